package http

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"bnbconcierge/internal/infrastructure"
	"bnbconcierge/internal/interfaces"
	"bnbconcierge/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

type AdminHandler struct {
	kb       *repository.KnowledgeStore
	kbPath   string
	sessions interfaces.SessionStore
	handoffs interfaces.HandoffStore
	wa       *infrastructure.WhatsAppGateway
}

func NewAdminHandler(kb *repository.KnowledgeStore, kbPath string, sessions interfaces.SessionStore, handoffs interfaces.HandoffStore, wa *infrastructure.WhatsAppGateway) *AdminHandler {
	return &AdminHandler{
		kb:       kb,
		kbPath:   kbPath,
		sessions: sessions,
		handoffs: handoffs,
		wa:       wa,
	}
}

// UploadKB replaces the knowledge base from an uploaded .xlsx workbook.
// The swap is all-or-nothing: a malformed workbook leaves the previous
// knowledge serving traffic.
func (h *AdminHandler) UploadKB(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
		return
	}
	defer src.Close()

	blob, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}

	kb, err := h.kb.Parse(c.Request.Context(), bytes.NewReader(blob))
	if err != nil {
		var malformed *repository.MalformedKBError
		if errors.As(err, &malformed) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":           "malformed knowledge base",
				"missing_columns": malformed.Missing,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.kb.Replace(kb)

	// Persist the workbook so restarts reload it. Failure to write is
	// logged, the in-memory swap already happened.
	if h.kbPath != "" {
		if err := os.WriteFile(h.kbPath, blob, 0644); err != nil {
			log.Printf("[admin] persist kb workbook failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "replaced",
		"entries":   len(kb.Entries),
		"units":     len(kb.Registry),
		"loaded_at": kb.LoadedAt,
	})
}

// InspectKB reports how the on-disk workbook's headers map to the
// canonical columns, for debugging host spreadsheets.
func (h *AdminHandler) InspectKB(c *gin.Context) {
	report, err := h.kb.Inspect(h.kbPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetStatus returns operational statistics
func (h *AdminHandler) GetStatus(c *gin.Context) {
	kb := h.kb.Active()

	status := gin.H{
		"kb": gin.H{
			"entries":   len(kb.Entries),
			"units":     len(kb.Registry),
			"loaded_at": kb.LoadedAt,
		},
	}

	if h.sessions != nil {
		if n, err := h.sessions.Count(c.Request.Context()); err == nil {
			status["sessions"] = n
		}
	}
	if h.handoffs != nil {
		if n, err := h.handoffs.Count(c.Request.Context()); err == nil {
			status["handoffs"] = n
		}
	}
	if h.wa != nil {
		status["whatsapp_connected"] = h.wa.IsLoggedIn()
	}

	c.JSON(http.StatusOK, status)
}

// GetHandoffs lists recent escalations, newest first.
func (h *AdminHandler) GetHandoffs(c *gin.Context) {
	if h.handoffs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.handoffs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch handoffs"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetWhatsAppQR returns the pairing QR code PNG for the concierge device
func (h *AdminHandler) GetWhatsAppQR(c *gin.Context) {
	if h.wa == nil {
		c.String(http.StatusServiceUnavailable, "WhatsApp not configured")
		return
	}

	qrCodeString := h.wa.GetQR()
	if qrCodeString == "" {
		if h.wa.IsLoggedIn() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	// Generate PNG
	png, err := qrcode.Encode(qrCodeString, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// GetWhatsAppStatus returns the device pairing state
func (h *AdminHandler) GetWhatsAppStatus(c *gin.Context) {
	if h.wa == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "error": "WhatsApp not configured"})
		return
	}

	phone, name := h.wa.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"connected": h.wa.IsLoggedIn(),
		"phone":     phone,
		"name":      name,
		"hasQR":     h.wa.GetQR() != "",
	})
}
