package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// WhatsAppGateway runs the concierge over a direct WhatsApp connection.
// One device serves the whole property; pairing happens via the admin
// QR endpoint.
type WhatsAppGateway struct {
	Client  *whatsmeow.Client
	Handler func(contact, text string) string

	limiter *MessageRateLimiter
	qrCode  string
	qrLock  sync.RWMutex
}

func NewWhatsAppGateway(dbPath string) (*WhatsAppGateway, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create device dir: %w", err)
		}
	}

	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(context.Background(), "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	g := &WhatsAppGateway{
		Client:  client,
		limiter: NewMessageRateLimiter(0.5, 5),
	}
	client.AddEventHandler(g.handleEvent)
	return g, nil
}

func (g *WhatsAppGateway) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		if v.Info.IsGroup || v.Info.IsFromMe {
			return
		}
		sender, content := parseMessage(v)
		if content == "" {
			return
		}
		contact := "+" + sender
		if !g.limiter.Allow(contact) {
			return
		}
		if g.Handler == nil {
			return
		}
		go func() {
			g.sendComposing(sender)
			reply := g.Handler(contact, content)
			if reply != "" {
				if err := g.SendMessage(sender, reply); err != nil {
					fmt.Printf("[WA] send failed: %v\n", err)
				}
			}
		}()
	}
}

func parseMessage(evt *events.Message) (string, string) {
	sender := evt.Info.Sender.User // The phone number
	var content string

	if evt.Message.Conversation != nil {
		content = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil {
		content = *evt.Message.ExtendedTextMessage.Text
	}

	return sender, content
}

func (g *WhatsAppGateway) Connect() error {
	if g.Client.Store.ID == nil {
		// No ID stored, new login
		qrChan, _ := g.Client.GetQRChannel(context.Background())
		err := g.Client.Connect()
		if err != nil {
			return err
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					g.qrLock.Lock()
					g.qrCode = evt.Code
					g.qrLock.Unlock()
					fmt.Println("[WA] New pairing QR available")
				} else {
					fmt.Println("[WA] Login event:", evt.Event)
				}
			}
		}()
		return nil
	}

	// Already paired
	if err := g.Client.Connect(); err != nil {
		return err
	}
	fmt.Println("[WA] Connected (existing session)")
	return nil
}

func (g *WhatsAppGateway) GetQR() string {
	g.qrLock.RLock()
	defer g.qrLock.RUnlock()
	return g.qrCode
}

func (g *WhatsAppGateway) IsLoggedIn() bool {
	return g.Client.Store.ID != nil
}

// GetUserInfo returns the paired phone number and push name.
func (g *WhatsAppGateway) GetUserInfo() (string, string) {
	if g.Client.Store.ID == nil {
		return "", ""
	}
	return g.Client.Store.ID.User, g.Client.Store.PushName
}

func (g *WhatsAppGateway) SendMessage(to string, content string) error {
	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("invalid number format: %v", err)
	}

	_, err = g.Client.SendMessage(context.Background(), jid, &waProto.Message{
		Conversation: &content,
	})
	return err
}

// sendComposing broadcasts a typing indicator while the answer is built.
func (g *WhatsAppGateway) sendComposing(to string) {
	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return
	}
	g.Client.SendPresence(context.Background(), types.PresenceAvailable)
	g.Client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (g *WhatsAppGateway) Disconnect() {
	g.Client.Disconnect()
}
