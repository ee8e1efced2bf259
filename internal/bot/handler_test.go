package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"findot/internal/actions"
	"findot/internal/budget"
	"findot/internal/core"
	"findot/internal/log"
	"findot/internal/metrics"
	"findot/internal/middleware/ratelimit"
	"findot/internal/services"
	"findot/internal/sheets"
	"findot/internal/sheets/memory"
	"findot/internal/speech"
)

type sent struct {
	text string
	kb   *Keyboard
}

type fakeReply struct{ msgs []sent }

func (f *fakeReply) Send(_ context.Context, text string, kb *Keyboard) error {
	f.msgs = append(f.msgs, sent{text: text, kb: kb})
	return nil
}

func (f *fakeReply) last(t *testing.T) string {
	t.Helper()
	if len(f.msgs) == 0 {
		t.Fatal("no reply sent")
	}
	return f.msgs[len(f.msgs)-1].text
}

type brokenLedger struct{ *memory.Store }

func (brokenLedger) ReadRows(context.Context) ([]sheets.Row, error) {
	return nil, errors.New("connection refused")
}

func (brokenLedger) AppendRow(context.Context, []string) (core.RowRef, error) {
	return "", errors.New("connection refused")
}

type fixture struct {
	h     *Handler
	store *memory.Store
	cache *actions.Cache
}

func newFixture(t *testing.T, ledger sheets.LedgerStore, opts Options) *fixture {
	t.Helper()
	if opts.Currency == "" {
		opts.Currency = "грн"
	}
	cache := actions.NewCache(actions.DefaultCapacity, actions.DefaultWindow)
	expenses := services.NewExpenseService(ledger, core.NewParser(core.NormalizerFor("uk")), cache, nil, time.UTC, log.Discard())
	acts := actions.NewService(cache, ledger, nil, log.Discard())
	f := &fixture{
		h:     NewHandler(expenses, acts, budget.NewTracker(), opts, log.Discard()),
		cache: cache,
	}
	if m, ok := ledger.(*memory.Store); ok {
		f.store = m
	}
	return f
}

func (f *fixture) send(t *testing.T, req Request) string {
	t.Helper()
	r := &fakeReply{}
	if err := f.h.Dispatch(context.Background(), req, r); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	return r.last(t)
}

func olena(text string) Request {
	return Request{UserID: 1, UserName: "olena", ChatID: 1, Text: text}
}

func taras(text string) Request {
	return Request{UserID: 2, UserName: "taras", ChatID: 1, Text: text}
}

func command(user Request, cmd string, args ...string) Request {
	user.Text = "/" + cmd
	user.Command = cmd
	user.Args = args
	return user
}

func TestDispatchSavesExpense(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	got := f.send(t, olena("ремонт машини на 1500 шини"))

	for _, want := range []string{"✅ Запис додано", "Ремонт Машини на", "1500.00 грн", "olena", "💬 Коментар: шини"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply %q does not contain %q", got, want)
		}
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected one stored row, got %d", f.store.Len())
	}
}

func TestDispatchRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no amount", "abc", msgFormatHelp},
		{"no category", "250 обід", msgFormatHelp},
		{"empty", "   ", msgFormatHelp},
		{"zero", "Їжа 0", msgNonPositive},
		{"negative", "Їжа -50", msgNonPositive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, memory.New(), Options{})
			if got := f.send(t, olena(tt.text)); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if f.store.Len() != 0 {
				t.Error("rejected input must not be stored")
			}
		})
	}
}

func TestDispatchLedgerFailures(t *testing.T) {
	f := newFixture(t, brokenLedger{memory.New()}, Options{})
	if got := f.send(t, olena("Їжа 250")); got != msgSaveFailed {
		t.Errorf("save reply = %q", got)
	}
	if got := f.send(t, command(olena(""), "month")); got != msgReadFailed {
		t.Errorf("stats reply = %q", got)
	}
	if got := f.send(t, command(olena(""), "recent")); got != msgRecentFailed {
		t.Errorf("recent reply = %q", got)
	}
}

func TestUndo(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, olena("Їжа 250 обід"))

	got := f.send(t, command(olena(""), "undo"))
	if !strings.Contains(got, "✅ Запис скасовано") || !strings.Contains(got, "250.00 грн") {
		t.Fatalf("undo reply = %q", got)
	}
	if f.store.Len() != 0 {
		t.Fatal("row should be deleted")
	}
	if got := f.send(t, command(olena(""), "undo")); got != undoTexts.none {
		t.Fatalf("second undo reply = %q", got)
	}
}

func TestUndoOnlyAffectsOwnAction(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, olena("Їжа 250"))
	if got := f.send(t, command(taras(""), "undo")); got != undoTexts.none {
		t.Fatalf("reply = %q", got)
	}
	if f.store.Len() != 1 {
		t.Fatal("other user's row must stay")
	}
}

func TestUndoExpired(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.cache.Record(1, actions.Action{
		CreatedAt: time.Now().Add(-time.Hour),
		Expense:   core.Expense{Ref: "mem:1", Category: "Їжа"},
	})
	if got := f.send(t, command(olena(""), "undo")); !strings.Contains(got, "максимум 10 хвилин") {
		t.Fatalf("reply = %q", got)
	}
}

func TestIgnoreExcludesFromStats(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, olena("Їжа 250"))

	got := f.send(t, Request{UserID: 1, UserName: "olena", Callback: CbIgnore})
	if !strings.Contains(got, "🔕 Запис позначено як ігнорований") {
		t.Fatalf("ignore reply = %q", got)
	}
	if got := f.send(t, command(olena(""), "today")); got != "Немає витрат за сьогодні." {
		t.Fatalf("today reply = %q", got)
	}
	recent := f.send(t, command(olena(""), "recent"))
	if !strings.Contains(recent, "🔕 Їжа") {
		t.Fatalf("recent should flag ignored rows: %q", recent)
	}
}

func TestPeriodStats(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, olena("Їжа 300"))
	f.send(t, olena("Кава 100"))
	f.send(t, taras("Їжа 100"))

	got := f.send(t, command(olena(""), "week"))
	for _, want := range []string{
		"📊 Статистика за поточний тиждень:",
		"💰 Загальна сума: 500.00 грн",
		"📝 Кількість записів: 3",
		"• Їжа: 400.00 грн (80.0%)",
		"👤 По користувачах:",
		"• olena: 400.00 грн (80.0%)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("week stats missing %q in:\n%s", want, got)
		}
	}

	mine := f.send(t, Request{UserID: 2, UserName: "taras", Text: BtnMyStats})
	if !strings.Contains(mine, "(користувач: taras)") || strings.Contains(mine, "По користувачах") {
		t.Errorf("mystats = %q", mine)
	}
	if !strings.Contains(mine, "100.00 грн") {
		t.Errorf("mystats total wrong: %q", mine)
	}

	if got := f.send(t, command(olena(""), "prevmonth")); got != "Немає витрат за минулий місяць." {
		t.Errorf("prevmonth = %q", got)
	}
}

func TestWhoSpent(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, olena("Їжа 300"))

	if got := f.send(t, command(olena(""), "whospent", "week")); got != msgTwoUsers {
		t.Fatalf("single user reply = %q", got)
	}

	f.send(t, taras("Кава 100"))
	got := f.send(t, command(olena(""), "whospent", "today"))
	for _, want := range []string{"Рейтинг витрат сьогодні", "🥇 olena: 300.00 грн (75.0%)", "🥈 taras", "💸 Різниця: 200.00 грн", "olena витратив більше на 200.00 грн"} {
		if !strings.Contains(got, want) {
			t.Errorf("ranking missing %q in:\n%s", want, got)
		}
	}

	// unknown argument falls back to the month
	if got := f.send(t, command(olena(""), "whospent", "decade")); !strings.Contains(got, "цього місяця") {
		t.Errorf("fallback = %q", got)
	}
}

func TestTopCompareFamily(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	if got := f.send(t, command(olena(""), "top")); got != msgNoMonth {
		t.Fatalf("empty top = %q", got)
	}
	if got := f.send(t, command(olena(""), "family")); got != msgNoMonth {
		t.Fatalf("empty family = %q", got)
	}

	for _, text := range []string{"Їжа 400", "Кава 100", "Таксі 50", "Кіно 30"} {
		f.send(t, olena(text))
	}
	f.send(t, taras("Їжа 100"))

	top := f.send(t, Request{UserID: 1, UserName: "olena", Text: BtnTop})
	for _, want := range []string{"🥇 Їжа", "🥈 Кава", "🥉 Таксі", "4. Кіно"} {
		if !strings.Contains(top, want) {
			t.Errorf("top missing %q in:\n%s", want, top)
		}
	}

	cmp := f.send(t, Request{UserID: 1, UserName: "olena", Callback: CbCompare})
	for _, want := range []string{"Загальний бюджет сім'ї: 680.00 грн", "1. 👤 olena:", "📝 4 записів", "Топ категорії: Їжа (400 грн), Кава (100 грн), Таксі (50 грн)"} {
		if !strings.Contains(cmp, want) {
			t.Errorf("compare missing %q in:\n%s", want, cmp)
		}
	}

	fam := f.send(t, command(olena(""), "family"))
	for _, want := range []string{"💼 Сімейний бюджет:", "📅 За місяць: 680.00 грн", "👥 Розподіл по сім'ї:", "📂 Основні категорії:"} {
		if !strings.Contains(fam, want) {
			t.Errorf("family missing %q in:\n%s", want, fam)
		}
	}
}

func TestBudget(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})

	if got := f.send(t, command(olena(""), "budget_status")); got != msgBudgetUnset {
		t.Fatalf("unset status = %q", got)
	}
	for _, arg := range []string{"abc", "-5", "0"} {
		if got := f.send(t, command(olena(""), "budget", arg)); got != msgBudgetInvalid {
			t.Errorf("/budget %s = %q", arg, got)
		}
	}
	if got := f.send(t, command(olena(""), "budget")); !strings.Contains(got, "/budget 15000") {
		t.Errorf("usage = %q", got)
	}

	if got := f.send(t, command(olena(""), "budget", "1000")); !strings.Contains(got, "1000.00 грн на місяць") {
		t.Fatalf("set = %q", got)
	}
	f.send(t, olena("Їжа 250"))

	got := f.send(t, command(olena(""), "budget_status"))
	for _, want := range []string{"📊 Бюджет на місяць: 1000.00 грн", "💸 Витрачено: 250.00 грн (25.0%)", "✅ Залишилось: 750.00 грн", "██░░░░░░░░ 25.0%"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q in:\n%s", want, got)
		}
	}
}

func TestStartHelpAndMenu(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})

	r := &fakeReply{}
	if err := f.h.Dispatch(context.Background(), command(olena(""), "start"), r); err != nil {
		t.Fatal(err)
	}
	if r.msgs[0].kb == nil || len(r.msgs[0].kb.Reply) != 5 {
		t.Fatalf("start should attach the reply keyboard: %+v", r.msgs[0].kb)
	}
	if !strings.Contains(r.msgs[0].text, "❌ Недоступно") {
		t.Errorf("voice status should be unavailable: %q", r.msgs[0].text)
	}

	if got := f.send(t, olena(BtnHelp)); got != msgHelp {
		t.Errorf("help button = %q", got)
	}

	r = &fakeReply{}
	if err := f.h.Dispatch(context.Background(), olena(BtnManage), r); err != nil {
		t.Fatal(err)
	}
	if r.msgs[0].text != msgMenu || r.msgs[0].kb == nil || len(r.msgs[0].kb.Inline) != 5 {
		t.Fatalf("menu = %+v", r.msgs[0])
	}

	if got := f.send(t, command(olena(""), "nonsense")); got != msgUnknownCmd {
		t.Errorf("unknown = %q", got)
	}
}

func seriesCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestUnknownCommandsShareOneMetricSeries(t *testing.T) {
	f := newFixture(t, memory.New(), Options{})
	f.send(t, command(olena(""), "nonsense"))
	before := seriesCount(metrics.Commands)

	for i := 0; i < 50; i++ {
		req := command(Request{UserID: int64(1000 + i), UserName: "u", ChatID: int64(1000 + i)}, fmt.Sprintf("junk%d", i))
		if got := f.send(t, req); got != msgUnknownCmd {
			t.Fatalf("reply = %q", got)
		}
		f.send(t, Request{UserID: 1, UserName: "u", ChatID: 1, Callback: fmt.Sprintf("cb%d", i)})
	}

	if after := seriesCount(metrics.Commands); after != before {
		t.Fatalf("series grew from %d to %d", before, after)
	}
}

func TestCommandLabel(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"today", "today"},
		{"budget_status", "budget_status"},
		{"junk", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := commandLabel(tt.cmd); got != tt.want {
			t.Errorf("commandLabel(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1})
	t.Cleanup(limiter.Stop)
	f := newFixture(t, memory.New(), Options{Limiter: limiter})

	f.send(t, olena("Їжа 250"))
	if got := f.send(t, olena("Їжа 100")); got != msgRateLimited {
		t.Fatalf("reply = %q", got)
	}
	if f.store.Len() != 1 {
		t.Fatal("throttled message must not be stored")
	}
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

func TestHandleVoice(t *testing.T) {
	fetch := func(context.Context) ([]byte, error) { return []byte("ogg"), nil }
	mustNotFetch := func(context.Context) ([]byte, error) {
		return nil, errors.New("fetch must not be called")
	}

	tests := []struct {
		name  string
		tr    speech.Transcriber
		voice Voice
		want  []string
		rows  int
	}{
		{
			name:  "disabled",
			voice: Voice{Duration: time.Second, Fetch: mustNotFetch},
			want:  []string{msgVoiceDisabled},
		},
		{
			name:  "too long",
			tr:    fakeTranscriber{text: "Кава 60"},
			voice: Voice{Duration: 2 * time.Minute, Fetch: mustNotFetch},
			want:  []string{"Максимальна тривалість: 60 секунд."},
		},
		{
			name:  "no speech",
			tr:    fakeTranscriber{err: speech.ErrNoSpeech},
			voice: Voice{Duration: time.Second, Fetch: fetch},
			want:  []string{msgVoiceProcessing, msgVoiceNoSpeech},
		},
		{
			name:  "service down",
			tr:    fakeTranscriber{err: speech.ErrUnavailable},
			voice: Voice{Duration: time.Second, Fetch: fetch},
			want:  []string{msgVoiceProcessing, msgVoiceFailed},
		},
		{
			name:  "recognized",
			tr:    fakeTranscriber{text: "Кава 60 лате"},
			voice: Voice{Duration: 5 * time.Second, MimeType: "audio/ogg", Fetch: fetch},
			want:  []string{msgVoiceProcessing, `🎤 Розпізнано: "Кава 60 лате"`, "✅ Запис додано"},
			rows:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, memory.New(), Options{Transcriber: tt.tr, MaxVoiceDuration: time.Minute})
			r := &fakeReply{}
			if err := f.h.HandleVoice(context.Background(), olena(""), tt.voice, r); err != nil {
				t.Fatalf("HandleVoice() error = %v", err)
			}
			if len(r.msgs) != len(tt.want) {
				t.Fatalf("got %d replies, want %d: %+v", len(r.msgs), len(tt.want), r.msgs)
			}
			for i, want := range tt.want {
				if !strings.Contains(r.msgs[i].text, want) {
					t.Errorf("reply %d = %q, want it to contain %q", i, r.msgs[i].text, want)
				}
			}
			if f.store.Len() != tt.rows {
				t.Errorf("stored rows = %d, want %d", f.store.Len(), tt.rows)
			}
		})
	}
}
