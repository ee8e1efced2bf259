// Package bot turns chat messages into expense operations and renders the
// answers. It knows nothing about the chat platform; see bot/telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"findot/internal/actions"
	"findot/internal/budget"
	"findot/internal/core"
	"findot/internal/log"
	"findot/internal/metrics"
	"findot/internal/middleware/ratelimit"
	"findot/internal/services"
	"findot/internal/speech"
)

// Reply sends one message back to the chat a request came from.
type Reply interface {
	Send(ctx context.Context, text string, kb *Keyboard) error
}

// Request is a platform-neutral inbound message. Exactly one of Command,
// Callback or Text drives dispatch, in that order of precedence.
type Request struct {
	UserID   int64
	UserName string
	ChatID   int64
	Text     string
	Command  string
	Args     []string
	Callback string
}

type Options struct {
	Currency         string
	MaxVoiceDuration time.Duration
	// Transcriber enables voice notes when set.
	Transcriber speech.Transcriber
	// Limiter throttles users when set.
	Limiter *ratelimit.Limiter
}

type Handler struct {
	expenses *services.ExpenseService
	actions  *actions.Service
	budget   *budget.Tracker
	speech   speech.Transcriber
	limiter  *ratelimit.Limiter
	maxVoice time.Duration
	render   Renderer
	logger   *log.Logger
}

func NewHandler(expenses *services.ExpenseService, acts *actions.Service, tracker *budget.Tracker, opts Options, logger *log.Logger) *Handler {
	if opts.MaxVoiceDuration <= 0 {
		opts.MaxVoiceDuration = time.Minute
	}
	return &Handler{
		expenses: expenses,
		actions:  acts,
		budget:   tracker,
		speech:   opts.Transcriber,
		limiter:  opts.Limiter,
		maxVoice: opts.MaxVoiceDuration,
		render:   Renderer{Currency: opts.Currency},
		logger:   logger.WithComponent(log.ComponentBot),
	}
}

// Dispatch routes a request. The returned error is a delivery failure of
// the reply; domain failures are answered in the chat.
func (h *Handler) Dispatch(ctx context.Context, req Request, reply Reply) error {
	if !h.allow(req) {
		h.logger.WarnContext(ctx, "Rate limit exceeded", log.FieldUserID, req.UserID)
		return reply.Send(ctx, msgRateLimited, nil)
	}

	cmd := req.Command
	if cmd == "" {
		cmd = req.Callback
	}
	if cmd == "" {
		if c, ok := buttonCommands[strings.TrimSpace(req.Text)]; ok {
			cmd = c
		}
	}
	if cmd == "" {
		metrics.Commands.WithLabelValues("expense").Inc()
		return h.saveText(ctx, req, req.Text, reply)
	}

	cmd = strings.ToLower(cmd)
	metrics.Commands.WithLabelValues(commandLabel(cmd)).Inc()
	h.logger.DebugContext(ctx, "Dispatching command", log.FieldCommand, cmd, log.FieldUserID, req.UserID)

	switch cmd {
	case "start":
		return reply.Send(ctx, h.render.Welcome(h.speech != nil), mainKeyboard())
	case "help":
		return reply.Send(ctx, msgHelp, nil)
	case "menu":
		return reply.Send(ctx, msgMenu, managementKeyboard())
	case "today":
		return h.periodStats(ctx, core.PeriodDay, "", reply)
	case "week":
		return h.periodStats(ctx, core.PeriodWeek, "", reply)
	case "month", "stats":
		return h.periodStats(ctx, core.PeriodMonth, "", reply)
	case "prevmonth":
		return h.periodStats(ctx, core.PeriodPrevMonth, "", reply)
	case "year":
		return h.periodStats(ctx, core.PeriodYear, "", reply)
	case "mystats":
		return h.periodStats(ctx, core.PeriodMonth, req.UserName, reply)
	case "top":
		return h.top(ctx, reply)
	case "compare":
		return h.compare(ctx, reply)
	case "family":
		return h.family(ctx, reply)
	case "whospent":
		return h.whoSpent(ctx, req.Args, reply)
	case "budget":
		return h.setBudget(ctx, req.Args, reply)
	case "budget_status":
		return h.budgetStatus(ctx, reply)
	case "recent":
		return h.recent(ctx, req, reply)
	case "undo":
		return h.undo(ctx, req, reply)
	case "ignore":
		return h.ignore(ctx, req, reply)
	default:
		return reply.Send(ctx, msgUnknownCmd, nil)
	}
}

// knownCommands bounds the command label set; the raw name is user input.
var knownCommands = map[string]bool{
	"start": true, "help": true, "menu": true,
	"today": true, "week": true, "month": true, "stats": true, "prevmonth": true, "year": true, "mystats": true,
	"top": true, "compare": true, "family": true, "whospent": true,
	"budget": true, "budget_status": true, "recent": true, "undo": true, "ignore": true,
}

func commandLabel(cmd string) string {
	if knownCommands[cmd] {
		return cmd
	}
	return "unknown"
}

func (h *Handler) allow(req Request) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(strconv.FormatInt(req.UserID, 10))
}

func (h *Handler) saveText(ctx context.Context, req Request, text string, reply Reply) error {
	e, err := h.expenses.Save(ctx, text, services.Submitter{ID: req.UserID, Name: req.UserName})
	if err != nil {
		return reply.Send(ctx, h.saveFailure(ctx, req, err), nil)
	}
	return reply.Send(ctx, h.render.Saved(e), nil)
}

func (h *Handler) saveFailure(ctx context.Context, req Request, err error) string {
	switch {
	case errors.Is(err, core.ErrNonPositiveAmount):
		return msgNonPositive
	case errors.Is(err, services.ErrLedger):
		h.logger.ErrorContext(ctx, "Failed to save expense", log.FieldUserID, req.UserID, log.FieldError, err)
		return msgSaveFailed
	default:
		h.logger.DebugContext(ctx, "Rejected expense text", log.FieldUserID, req.UserID, log.FieldError, err)
		return msgFormatHelp
	}
}

// records loads the ledger, answering the chat when it cannot be read.
func (h *Handler) records(ctx context.Context, reply Reply) ([]core.Expense, bool, error) {
	all, err := h.expenses.LoadAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load ledger", log.FieldError, err)
		return nil, false, reply.Send(ctx, msgReadFailed, nil)
	}
	return all, true, nil
}

func (h *Handler) periodStats(ctx context.Context, p core.Period, user string, reply Reply) error {
	all, ok, err := h.records(ctx, reply)
	if !ok {
		return err
	}
	filtered := core.Filter(all, p, h.expenses.Now(), core.FilterOptions{User: user})
	return reply.Send(ctx, h.render.Stats(filtered, periodTitle[p], user), nil)
}

func (h *Handler) month(ctx context.Context, reply Reply) ([]core.Expense, bool, error) {
	all, ok, err := h.records(ctx, reply)
	if !ok {
		return nil, false, err
	}
	return core.Filter(all, core.PeriodMonth, h.expenses.Now(), core.FilterOptions{}), true, nil
}

func (h *Handler) top(ctx context.Context, reply Reply) error {
	month, ok, err := h.month(ctx, reply)
	if !ok {
		return err
	}
	return reply.Send(ctx, h.render.Top(core.TopCategories(month, 0)), nil)
}

func (h *Handler) compare(ctx context.Context, reply Reply) error {
	month, ok, err := h.month(ctx, reply)
	if !ok {
		return err
	}
	s, ok := core.Summarize(month)
	if !ok {
		return reply.Send(ctx, msgNoMonth, nil)
	}
	return reply.Send(ctx, h.render.Compare(core.CompareUsers(month), s.Total), nil)
}

func (h *Handler) family(ctx context.Context, reply Reply) error {
	all, ok, err := h.records(ctx, reply)
	if !ok {
		return err
	}
	// no period tag: only the ignore filter applies
	active := core.Filter(all, "", h.expenses.Now(), core.FilterOptions{})
	rep, ok := core.BuildFamilyReport(active, h.expenses.Now())
	if !ok {
		return reply.Send(ctx, msgNoMonth, nil)
	}
	return reply.Send(ctx, h.render.Family(rep), nil)
}

// whoSpent accepts today, week, month or year; anything else means month.
func (h *Handler) whoSpent(ctx context.Context, args []string, reply Reply) error {
	p := core.PeriodMonth
	if len(args) > 0 {
		if parsed, ok := core.ParsePeriod(args[0]); ok && parsed != core.PeriodPrevMonth {
			p = parsed
		}
	}
	all, ok, err := h.records(ctx, reply)
	if !ok {
		return err
	}
	filtered := core.Filter(all, p, h.expenses.Now(), core.FilterOptions{})
	if len(filtered) == 0 {
		return reply.Send(ctx, fmt.Sprintf("Немає витрат за %s.", rankingEmpty[p]), nil)
	}
	users, err := core.RankUsers(filtered)
	if errors.Is(err, core.ErrInsufficientUsers) {
		return reply.Send(ctx, msgTwoUsers, nil)
	}
	return reply.Send(ctx, h.render.Ranking(users, p), nil)
}

func (h *Handler) setBudget(ctx context.Context, args []string, reply Reply) error {
	if len(args) == 0 {
		current, ok := h.budget.Get()
		return reply.Send(ctx, h.render.BudgetUsage(current, ok), nil)
	}
	amount, err := core.ParseAmount(args[0])
	if err == nil {
		err = h.budget.Set(amount)
	}
	if err != nil {
		return reply.Send(ctx, msgBudgetInvalid, nil)
	}
	h.logger.InfoContext(ctx, "Budget set", log.FieldAmount, amount.String())
	return reply.Send(ctx, h.render.BudgetSet(amount), nil)
}

func (h *Handler) budgetStatus(ctx context.Context, reply Reply) error {
	if _, ok := h.budget.Get(); !ok {
		return reply.Send(ctx, msgBudgetUnset, nil)
	}
	month, ok, err := h.month(ctx, reply)
	if !ok {
		return err
	}
	s, _ := core.Summarize(month)
	st, err := h.budget.Status(s.Total, h.expenses.Now())
	if err != nil {
		return reply.Send(ctx, msgBudgetUnset, nil)
	}
	return reply.Send(ctx, h.render.BudgetStatus(st), nil)
}

func (h *Handler) recent(ctx context.Context, req Request, reply Reply) error {
	records, err := h.expenses.Recent(ctx, req.UserName, 5)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load recent records", log.FieldUserID, req.UserID, log.FieldError, err)
		return reply.Send(ctx, msgRecentFailed, nil)
	}
	if len(records) == 0 {
		return reply.Send(ctx, msgNoRecent, nil)
	}
	return reply.Send(ctx, h.render.Recent(records), nil)
}

func (h *Handler) undo(ctx context.Context, req Request, reply Reply) error {
	a, err := h.actions.Undo(ctx, req.UserID)
	metrics.Actions.WithLabelValues(log.OpUndo, actionResult(err)).Inc()
	if err != nil {
		return reply.Send(ctx, h.actionFailure(err, undoTexts), nil)
	}
	return reply.Send(ctx, h.render.Undone(a.Expense), nil)
}

func (h *Handler) ignore(ctx context.Context, req Request, reply Reply) error {
	a, err := h.actions.Ignore(ctx, req.UserID)
	metrics.Actions.WithLabelValues(log.OpIgnore, actionResult(err)).Inc()
	if err != nil {
		return reply.Send(ctx, h.actionFailure(err, ignoreTexts), nil)
	}
	return reply.Send(ctx, h.render.Ignored(a.Expense), nil)
}

func (h *Handler) actionFailure(err error, t actionTexts) string {
	switch {
	case errors.Is(err, actions.ErrNoAction):
		return t.none
	case errors.Is(err, actions.ErrExpired):
		return fmt.Sprintf(t.expired, int(h.actions.Window().Minutes()))
	case errors.Is(err, actions.ErrNotFound):
		return t.notFound
	default:
		return t.failed
	}
}

func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, actions.ErrNoAction):
		return "no_action"
	case errors.Is(err, actions.ErrExpired):
		return "expired"
	case errors.Is(err, actions.ErrNotFound):
		return "not_found"
	}
	return "error"
}
