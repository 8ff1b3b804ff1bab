package infrastructure

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway runs the concierge over a Telegram bot. Incoming
// texts are fed to the Handler (the conversation pipeline) and the
// returned answer is sent back to the chat.
type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Handler func(contact, text string) string

	limiter *MessageRateLimiter
	stop    chan struct{}
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramGateway{
		Bot:     bot,
		limiter: NewMessageRateLimiter(0.5, 5),
		stop:    make(chan struct{}),
	}, nil
}

// Start polls for updates until Stop is called.
func (g *TelegramGateway) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := g.Bot.GetUpdatesChan(u)

	fmt.Printf("[TG] Started polling (@%s)\n", g.Bot.Self.UserName)

	for {
		select {
		case <-g.stop:
			fmt.Println("[TG] Stopped polling")
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			go g.handleMessage(update.Message)
		}
	}
}

func (g *TelegramGateway) handleMessage(m *tgbotapi.Message) {
	chatID := m.Chat.ID
	contact := "tg:" + strconv.FormatInt(chatID, 10)

	if m.IsCommand() && m.Command() == "start" {
		g.send(chatID, "Benvenuto! Sono l'assistente della struttura. Come posso aiutarLa?")
		return
	}
	if m.Text == "" {
		return
	}
	if !g.limiter.Allow(contact) {
		return
	}

	if g.Handler == nil {
		return
	}
	reply := g.Handler(contact, m.Text)
	if reply != "" {
		g.send(chatID, reply)
	}
}

func (g *TelegramGateway) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := g.Bot.Send(msg); err != nil {
		fmt.Printf("[TG] send failed: %v\n", err)
	}
}

func (g *TelegramGateway) Stop() {
	close(g.stop)
}
