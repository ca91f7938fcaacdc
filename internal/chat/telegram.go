package chat

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stellarlinkco/groupwatch/internal/bus"
	"github.com/stellarlinkco/groupwatch/internal/config"
)

// TelegramBot is the subset of the bot API the client uses (allows mocking
// in tests).
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot.
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking).
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramClient listens to group chats over the bot long-poll API and
// publishes messages from listened groups onto the bus. Groups are matched
// by chat title, the only stable name a front end can offer.
type TelegramClient struct {
	token      string
	proxy      string
	bus        *bus.MessageBus
	botFactory BotFactory
	bot        TelegramBot

	mu       sync.Mutex
	listened map[string]bool
}

func NewTelegramClient(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramClient, error) {
	return NewTelegramClientWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramClientWithFactory creates a TelegramClient with a custom bot
// factory (for testing).
func NewTelegramClientWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &TelegramClient{
		token:      cfg.Token,
		proxy:      cfg.Proxy,
		bus:        b,
		botFactory: factory,
		listened:   make(map[string]bool),
	}, nil
}

func (t *TelegramClient) AddListenChat(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listened[group] = true
	return nil
}

func (t *TelegramClient) RemoveListenChat(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listened, group)
	return nil
}

func (t *TelegramClient) isListened(group string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listened[group]
}

func (t *TelegramClient) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

// Run polls updates and dispatches listened-group messages until ctx is
// done.
func (t *TelegramClient) Run(ctx context.Context) error {
	if t.bot == nil {
		if err := t.initBot(); err != nil {
			return err
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	log.Printf("[telegram] polling started")
	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			t.handleMessage(update.Message)
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Printf("[telegram] stopped")
			return nil
		}
	}
}

func (t *TelegramClient) handleMessage(msg *tgbotapi.Message) {
	group := msg.Chat.Title
	if group == "" || !t.isListened(group) {
		return
	}

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	if content == "" {
		return
	}

	sender := "未知"
	if msg.From != nil {
		sender = msg.From.UserName
		if sender == "" {
			sender = msg.From.FirstName
		}
	}

	if !t.bus.Publish(bus.InboundMessage{
		Group:     group,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}) {
		log.Printf("[telegram] bus full, dropping message from %s", group)
	}
}

// SetBot sets the bot (for testing).
func (t *TelegramClient) SetBot(bot TelegramBot) {
	t.bot = bot
}
