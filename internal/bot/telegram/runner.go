// Package telegram connects bot.Handler to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"findot/internal/bot"
	"findot/internal/core"
	"findot/internal/log"
)

const (
	pollTimeout   = 60
	updateTimeout = 2 * time.Minute
	maxVoiceBytes = 20 << 20
)

// botAPI is the subset of *tgbotapi.BotAPI the runner uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Runner long-polls for updates and hands each to the handler. Updates run
// concurrently across chats and one at a time within a chat.
type Runner struct {
	api     botAPI
	handler *bot.Handler
	client  *http.Client
	logger  *log.Logger
	sem     chan struct{}

	mu    sync.Mutex
	chats map[int64]*sync.Mutex
}

func New(token string, handler *bot.Handler, workers int, logger *log.Logger) (*Runner, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logger.Info("Authorized on Telegram", "account", api.Self.UserName)
	return newRunner(api, handler, workers, logger), nil
}

func newRunner(api botAPI, handler *bot.Handler, workers int, logger *log.Logger) *Runner {
	if workers <= 0 {
		workers = 8
	}
	return &Runner{
		api:     api,
		handler: handler,
		client:  &http.Client{Timeout: time.Minute},
		logger:  logger.WithComponent(log.ComponentTelegram),
		sem:     make(chan struct{}, workers),
		chats:   make(map[int64]*sync.Mutex),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight updates.
func (r *Runner) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := r.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	r.logger.InfoContext(ctx, "Polling for updates")
	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				r.api.StopReceivingUpdates()
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-r.sem }()
				r.handle(ctx, update)
			}()
		}
	}
}

// chatLock returns the mutex serializing one chat. Entries live for the
// process lifetime; a household bot sees a handful of chats.
func (r *Runner) chatLock(chatID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chats[chatID]
	if !ok {
		m = &sync.Mutex{}
		r.chats[chatID] = m
	}
	return m
}

func (r *Runner) handle(parent context.Context, update tgbotapi.Update) {
	// finish in-flight work even when shutdown starts
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), updateTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Panic while handling update", "update_id", update.UpdateID, "panic", fmt.Sprint(p))
		}
	}()

	req, ok := toRequest(update)
	if !ok {
		return
	}
	lock := r.chatLock(req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	if cq := update.CallbackQuery; cq != nil {
		if _, err := r.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			r.logger.WarnContext(ctx, "Failed to answer callback", log.FieldChatID, req.ChatID, log.FieldError, err)
		}
	}

	reply := &chatReply{api: r.api, chatID: req.ChatID}
	var err error
	if msg := update.Message; msg != nil && msg.Voice != nil {
		err = r.handler.HandleVoice(ctx, req, r.voice(msg.Voice), reply)
	} else {
		err = r.handler.Dispatch(ctx, req, reply)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reply", log.FieldChatID, req.ChatID, log.FieldUserID, req.UserID, log.FieldError, err)
	}
}

func (r *Runner) voice(v *tgbotapi.Voice) bot.Voice {
	return bot.Voice{
		Duration: time.Duration(v.Duration) * time.Second,
		MimeType: v.MimeType,
		Fetch: func(ctx context.Context) ([]byte, error) {
			return r.download(ctx, v.FileID)
		},
	}
}

func (r *Runner) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
}

// toRequest converts messages and callback queries; other updates are skipped.
func toRequest(update tgbotapi.Update) (bot.Request, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		msg := update.Message
		req := bot.Request{
			UserID:   msg.From.ID,
			UserName: core.DisplayName(msg.From.UserName, msg.From.FirstName, msg.From.ID),
			ChatID:   msg.Chat.ID,
			Text:     msg.Text,
		}
		if msg.IsCommand() {
			req.Command = msg.Command()
			req.Args = strings.Fields(msg.CommandArguments())
		}
		return req, true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil &&
		update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		cq := update.CallbackQuery
		return bot.Request{
			UserID:   cq.From.ID,
			UserName: core.DisplayName(cq.From.UserName, cq.From.FirstName, cq.From.ID),
			ChatID:   cq.Message.Chat.ID,
			Callback: cq.Data,
		}, true
	}
	return bot.Request{}, false
}

type chatReply struct {
	api    botAPI
	chatID int64
}

func (c *chatReply) Send(_ context.Context, text string, kb *bot.Keyboard) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	if markup := replyMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func replyMarkup(kb *bot.Keyboard) interface{} {
	switch {
	case kb == nil:
		return nil
	case len(kb.Inline) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Inline))
		for _, row := range kb.Inline {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	case len(kb.Reply) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Reply))
		for _, row := range kb.Reply {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	}
	return nil
}
