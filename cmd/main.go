package main

import (
	"context"
	"fmt"
	"os"

	"bnbconcierge/internal/config"
	"bnbconcierge/internal/infrastructure"
	"bnbconcierge/internal/interfaces"
	"bnbconcierge/internal/interfaces/http"
	"bnbconcierge/internal/repository"
	"bnbconcierge/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file; in production the environment is set directly.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using process environment")
	}
	cfg := config.Load()
	ctx := context.Background()

	// Connect to PostgreSQL. The concierge still answers without it,
	// it just loses durable sessions, history and handoff records.
	var (
		sessionStore interfaces.SessionStore
		messageStore interfaces.MessageStore
		handoffStore interfaces.HandoffStore
		userRepo     *repository.UserRepository
	)
	pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		fmt.Println("Warning: database unavailable, running without persistence:", err)
	} else {
		defer pgClient.Close()
		sessionStore = repository.NewSessionRepository(pgClient.Pool)
		messageStore = repository.NewMessageRepository(pgClient.Pool)
		handoffStore = repository.NewHandoffRepository(pgClient.Pool)
		userRepo = repository.NewUserRepository(pgClient.Pool)
	}

	// Generation and embedding backend
	var (
		generator interfaces.Generator
		embedder  interfaces.Embedder
	)
	if cfg.OpenAIAPIKey != "" {
		client := infrastructure.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIEmbedModel)
		generator = client
		embedder = client
	} else {
		fmt.Println("Warning: OPENAI_API_KEY not set, serving canned answers only")
	}

	// Booking resolver: fixture-backed mock or the real CiaoBooking API
	var resolver interfaces.BookingResolver
	if cfg.MockCiaoBooking {
		mock, err := infrastructure.NewMockBookingProvider(cfg.MockBookingPath)
		if err != nil {
			fmt.Println("Warning: mock booking dataset unusable:", err)
			mock = &infrastructure.MockBookingProvider{}
		}
		resolver = mock
	} else {
		resolver = infrastructure.NewCiaoBookingClient(cfg.CiaoBookingBaseURL, cfg.CiaoBookingAPIKey, cfg.CiaoBookingTimeout)
	}

	// Knowledge base: load the workbook from disk if present. Startup
	// proceeds either way; admins can upload one later.
	kbStore := repository.NewKnowledgeStore(embedder)
	if err := kbStore.LoadFile(ctx, cfg.KBXLSXPath); err != nil {
		fmt.Println("Warning: knowledge base not loaded:", err)
	} else {
		fmt.Printf("Knowledge base loaded: %d entries\n", len(kbStore.Active().Entries))
	}

	retriever := usecases.NewHybridRetriever(embedder, cfg.KBTopK, cfg.KBMinScore)
	composer := usecases.NewAnswerComposer(generator)
	sessions := infrastructure.NewSessionManager(cfg.SessionTTL)
	notifier := infrastructure.NewWebhookNotifier(cfg.HandoffWebhookURL)

	pipeline := usecases.NewConversationPipeline(
		kbStore, resolver, retriever, composer, sessions,
		sessionStore, messageStore, handoffStore, notifier,
	)

	// Admin auth
	var authUsecase *usecases.AuthUsecase
	if userRepo != nil {
		authUsecase = usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
		if err := authUsecase.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
			fmt.Println("Warning: failed to ensure admin user:", err)
		}
	}

	// WhatsApp direct channel (optional)
	var waGateway *infrastructure.WhatsAppGateway
	if cfg.WAEnabled {
		waGateway, err = infrastructure.NewWhatsAppGateway(cfg.WADeviceDB)
		if err != nil {
			fmt.Println("Warning: WhatsApp gateway init failed:", err)
			waGateway = nil
		} else {
			waGateway.Handler = func(contact, text string) string {
				return pipeline.HandleMessage(context.Background(), contact, text).Text
			}
			if err := waGateway.Connect(); err != nil {
				fmt.Println("Warning: WhatsApp connect failed:", err)
			}
		}
	}

	// Setup HTTP server
	middleware := http.NewMiddleware(cfg.JWTSecret, cfg.AdminAPIKey)
	adminHandler := http.NewAdminHandler(kbStore, cfg.KBXLSXPath, sessionStore, handoffStore, waGateway)

	r := gin.Default()
	http.SetupRoutes(r, pipeline, authUsecase, adminHandler, middleware)
	go func() {
		if err := r.Run(cfg.ListenAddr); err != nil {
			fmt.Printf("FAILED to start HTTP Server: %v\n", err)
			os.Exit(1)
		}
	}()

	// Telegram polling
	if cfg.TelegramBotToken != "" {
		tg, err := infrastructure.NewTelegramGateway(cfg.TelegramBotToken)
		if err != nil {
			fmt.Println("Warning: Telegram gateway init failed:", err)
		} else {
			tg.Handler = func(contact, text string) string {
				return pipeline.HandleMessage(context.Background(), contact, text).Text
			}
			fmt.Println("Telegram Bot Connected")
			tg.Start() // blocks
			return
		}
	}

	fmt.Println("Telegram disabled (token missing). Serving HTTP only.")
	select {}
}
