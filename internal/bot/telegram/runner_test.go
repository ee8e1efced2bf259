package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"findot/internal/actions"
	"findot/internal/bot"
	"findot/internal/budget"
	"findot/internal/core"
	"findot/internal/log"
	"findot/internal/services"
	"findot/internal/sheets/memory"
)

type fakeAPI struct {
	updates chan tgbotapi.Update

	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks []string
	stopped   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return "", nil }

func newHandler(store *memory.Store) *bot.Handler {
	cache := actions.NewCache(actions.DefaultCapacity, actions.DefaultWindow)
	expenses := services.NewExpenseService(store, core.NewParser(nil), cache, nil, time.UTC, log.Discard())
	acts := actions.NewService(cache, store, nil, log.Discard())
	return bot.NewHandler(expenses, acts, budget.NewTracker(), bot.Options{Currency: "грн"}, log.Discard())
}

func commandMessage(chatID, userID int64, text string) *tgbotapi.Message {
	cmd := text
	for i, r := range text {
		if r == ' ' {
			cmd = text[:i]
			break
		}
	}
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, UserName: "olena"},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestToRequest(t *testing.T) {
	t.Run("command", func(t *testing.T) {
		req, ok := toRequest(tgbotapi.Update{Message: commandMessage(5, 7, "/whospent week")})
		if !ok || req.Command != "whospent" || len(req.Args) != 1 || req.Args[0] != "week" {
			t.Fatalf("got %+v ok=%v", req, ok)
		}
		if req.ChatID != 5 || req.UserID != 7 || req.UserName != "olena" {
			t.Fatalf("identity wrong: %+v", req)
		}
	})

	t.Run("text falls back to first name", func(t *testing.T) {
		req, ok := toRequest(tgbotapi.Update{Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 9, FirstName: "Taras"},
			Chat: &tgbotapi.Chat{ID: 9},
			Text: "Їжа 250",
		}})
		if !ok || req.Command != "" || req.Text != "Їжа 250" || req.UserName != "Taras" {
			t.Fatalf("got %+v", req)
		}
	})

	t.Run("callback", func(t *testing.T) {
		req, ok := toRequest(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: 3},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 11}},
			Data:    bot.CbUndo,
		}})
		if !ok || req.Callback != bot.CbUndo || req.ChatID != 11 || req.UserName != "3" {
			t.Fatalf("got %+v", req)
		}
	})

	t.Run("other updates are skipped", func(t *testing.T) {
		if _, ok := toRequest(tgbotapi.Update{UpdateID: 1}); ok {
			t.Fatal("expected skip")
		}
	})
}

func TestReplyMarkup(t *testing.T) {
	if replyMarkup(nil) != nil {
		t.Fatal("nil keyboard must produce no markup")
	}

	inline, ok := replyMarkup(&bot.Keyboard{Inline: [][]bot.Button{{{Text: "A", Data: "a"}}}}).(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(inline.InlineKeyboard) != 1 || *inline.InlineKeyboard[0][0].CallbackData != "a" {
		t.Fatalf("inline markup wrong: %+v", inline)
	}

	reply, ok := replyMarkup(&bot.Keyboard{Reply: [][]string{{"x", "y"}, {"z"}}}).(tgbotapi.ReplyKeyboardMarkup)
	if !ok || len(reply.Keyboard) != 2 || reply.Keyboard[0][1].Text != "y" || !reply.ResizeKeyboard {
		t.Fatalf("reply markup wrong: %+v", reply)
	}
}

func TestRunDispatchesUpdates(t *testing.T) {
	api := newFakeAPI()
	store := memory.New()
	r := newRunner(api, newHandler(store), 2, log.Discard())

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7, UserName: "olena"},
		Chat: &tgbotapi.Chat{ID: 7},
		Text: "Їжа 250",
	}}
	api.updates <- tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 8, UserName: "taras"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 8}},
		Data:    bot.CbUndo,
	}}
	api.updates <- tgbotapi.Update{UpdateID: 3}
	close(api.updates)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 2 {
		t.Fatalf("expected two replies, got %d", len(api.sent))
	}
	if len(api.callbacks) != 1 || api.callbacks[0] != "cb1" {
		t.Fatalf("callback not answered: %v", api.callbacks)
	}
	if store.Len() != 1 {
		t.Fatalf("expense not stored, rows = %d", store.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	r := newRunner(api, newHandler(memory.New()), 1, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if !api.stopped {
		t.Fatal("polling was not stopped")
	}
}
