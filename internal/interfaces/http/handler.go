package http

import (
	"net/http"
	"strings"

	"bnbconcierge/internal/usecases"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	pipeline *usecases.ConversationPipeline
}

func NewHandler(pipeline *usecases.ConversationPipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

func SetupRoutes(r *gin.Engine, pipeline *usecases.ConversationPipeline, auth *usecases.AuthUsecase, adminHandler *AdminHandler, middleware *Middleware) {
	h := NewHandler(pipeline)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max, KB uploads included
	r.Use(middleware.CORSMiddleware())

	// Public guest-facing routes
	chat := r.Group("/")
	chat.Use(middleware.RateLimitPerIP(2, 5))
	{
		chat.POST("/api/chat", h.HandleChat)
		chat.POST("/twilio/whatsapp", h.HandleTwilioWebhook)
	}

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			if auth == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Auth requires database persistence"})
				return
			}
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	// Admin-only Routes
	admin := r.Group("/admin")
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/kb/upload", adminHandler.UploadKB)
		admin.GET("/kb/inspect", adminHandler.InspectKB)
		admin.GET("/status", adminHandler.GetStatus)
		admin.GET("/handoffs", adminHandler.GetHandoffs)
		admin.GET("/whatsapp/qr", adminHandler.GetWhatsAppQR)
		admin.GET("/whatsapp/status", adminHandler.GetWhatsAppStatus)
	}
}

// HandleChat is the generic web chat endpoint: one message in, one
// composed answer out.
func (h *Handler) HandleChat(c *gin.Context) {
	var payload struct {
		Contact string `json:"contact"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.Contact == "" {
		payload.Contact = payload.Phone
	}
	contact := SanitizeString(payload.Contact)
	message := TruncateString(SanitizeString(payload.Message), MaxMessageLength)
	if contact == "" || message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact and message are required"})
		return
	}

	answer := h.pipeline.HandleMessage(c.Request.Context(), contact, message)
	c.JSON(http.StatusOK, answer)
}

// HandleTwilioWebhook serves WhatsApp via Twilio's inbound webhook,
// replying with TwiML. Twilio posts form fields; From carries the
// "whatsapp:+39..." sender.
func (h *Handler) HandleTwilioWebhook(c *gin.Context) {
	from := c.PostForm("From")
	body := TruncateString(SanitizeString(c.PostForm("Body")), MaxMessageLength)
	if from == "" || body == "" {
		c.String(http.StatusBadRequest, "missing From or Body")
		return
	}

	contact := SanitizeString(strings.TrimPrefix(from, "whatsapp:"))
	answer := h.pipeline.HandleMessage(c.Request.Context(), contact, body)

	twiml := `<?xml version="1.0" encoding="UTF-8"?><Response><Message>` +
		EscapeXML(answer.Text) + `</Message></Response>`
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twiml))
}
