package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"findot/internal/budget"
	"findot/internal/core"
)

// Fixed user-facing messages.
const (
	msgFormatHelp = "❌ Невірний формат. Введи у форматі:\n" +
		"Категорія Сума Коментар\n" +
		"Приклад: Їжа 250 Обід"
	msgNonPositive   = "❌ Сума має бути більше нуля."
	msgSaveFailed    = "❌ Виникла помилка при записі даних. Перевірте доступ до таблиці."
	msgReadFailed    = "❌ Помилка при отриманні даних. Спробуйте пізніше."
	msgRecentFailed  = "❌ Помилка при отриманні записів."
	msgNoRecent      = "❌ У вас немає записів."
	msgNoMonth       = "Немає витрат за поточний місяць."
	msgTwoUsers      = "Потрібно мінімум 2 користувачі для порівняння."
	msgRateLimited   = "⏳ Забагато повідомлень. Спробуйте за хвилину."
	msgUnknownCmd    = "❓ Невідома команда. Використайте /help."
	msgBudgetInvalid = "❌ Введіть коректну суму. Приклад: /budget 15000"
	msgBudgetUnset   = "❌ Бюджет не встановлено.\n" +
		"Використайте /budget СУМА для встановлення бюджету."
	msgBudgetUsage = "💰 Встановіть сімейний бюджет:\n" +
		"/budget 15000 - встановити бюджет 15000 %s на місяць\n" +
		"/budget - подивитись поточний бюджет"
	msgMenu = "⚙️ Оберіть дію:"

	msgVoiceDisabled   = "❌ Обробка голосових повідомлень недоступна.\nВикористовуйте текстові повідомлення."
	msgVoiceTooLong    = "❌ Голосове повідомлення занадто довге. Максимальна тривалість: %d секунд."
	msgVoiceProcessing = "🎤 Обробляю голосове повідомлення..."
	msgVoiceNoSpeech   = "❌ Не вдалося розпізнати голосове повідомлення. Спробуйте говорити чіткіше."
	msgVoiceFailed     = "❌ Помилка при розпізнаванні голосу. Спробуйте пізніше."

	msgHelp = "📖 Повна довідка по боту:\n\n" +
		"📝 Запис витрат:\n" +
		"Їжа 250 Обід - текстом\n" +
		"🎤 Голосове повідомлення\n\n" +
		"📊 Статистика:\n" +
		"/today - за сьогодні\n" +
		"/week - за тиждень\n" +
		"/month - за місяць\n" +
		"/prevmonth - за минулий місяць\n" +
		"/year - за рік\n" +
		"/mystats - особиста\n" +
		"/top - топ категорій\n\n" +
		"👫 Сімейні функції:\n" +
		"/family - сімейний бюджет\n" +
		"/compare - порівняння\n" +
		"/whospent - рейтинг витрат\n\n" +
		"🛠️ Управління:\n" +
		"/undo - скасувати останній\n" +
		"/ignore - ігнорувати\n" +
		"/recent - останні записи\n\n" +
		"💰 Бюджет:\n" +
		"/budget 15000 - встановити\n" +
		"/budget_status - статус"
)

// actionTexts holds the wording that differs between undo and ignore.
type actionTexts struct {
	none, expired, notFound, failed string
}

var (
	undoTexts = actionTexts{
		none:     "❌ Немає дій для скасування.",
		expired:  "❌ Час для скасування минув (максимум %d хвилин).",
		notFound: "❌ Запис не знайдено для скасування.",
		failed:   "❌ Помилка при скасуванні запису.",
	}
	ignoreTexts = actionTexts{
		none:     "❌ Немає дій для позначення.",
		expired:  "❌ Час для позначення минув (максимум %d хвилин).",
		notFound: "❌ Запис не знайдено для позначення.",
		failed:   "❌ Помилка при позначенні запису.",
	}
)

// periodTitle is used in "Статистика за ..." headers.
var periodTitle = map[core.Period]string{
	core.PeriodDay:       "сьогодні",
	core.PeriodWeek:      "поточний тиждень",
	core.PeriodMonth:     "поточний місяць",
	core.PeriodPrevMonth: "минулий місяць",
	core.PeriodYear:      "поточний рік",
}

// rankingTitle is used in the /whospent header.
var rankingTitle = map[core.Period]string{
	core.PeriodDay:   "сьогодні",
	core.PeriodWeek:  "цього тижня",
	core.PeriodMonth: "цього місяця",
	core.PeriodYear:  "цього року",
}

var rankingEmpty = map[core.Period]string{
	core.PeriodDay:   "сьогодні",
	core.PeriodWeek:  "тиждень",
	core.PeriodMonth: "місяць",
	core.PeriodYear:  "рік",
}

// Renderer formats domain values as chat messages.
type Renderer struct {
	Currency string
}

func (r Renderer) money(d decimal.Decimal) string {
	return core.FormatAmount(d) + " " + r.Currency
}

func (r Renderer) share(b core.Bucket) string {
	return fmt.Sprintf("%s (%.1f%%)", r.money(b.Total), b.Percent)
}

func (r Renderer) Welcome(voice bool) string {
	status := "❌ Недоступно"
	if voice {
		status = "✅ Доступно"
	}
	return "🤖 Привіт! Я допоможу вести сімейний бюджет.\n\n" +
		"📝 Для запису надішли повідомлення у форматі:\n" +
		"Категорія Сума Коментар\n" +
		"Приклад: Їжа 250 Обід у ресторані\n\n" +
		"🎤 Голосові повідомлення: " + status + "\n\n" +
		"Використовуйте кнопки нижче або команди:"
}

func (r Renderer) Saved(e core.Expense) string {
	var b strings.Builder
	b.WriteString("✅ Запис додано:\n")
	fmt.Fprintf(&b, "📂 Категорія: %s\n", e.Category)
	fmt.Fprintf(&b, "💰 Сума: %s\n", r.money(e.Amount))
	fmt.Fprintf(&b, "👤 Користувач: %s", e.User)
	if e.Comment != "" {
		fmt.Fprintf(&b, "\n💬 Коментар: %s", e.Comment)
	}
	b.WriteString("\n\n💡 Якщо помилились, використайте /undo для скасування")
	return b.String()
}

func (r Renderer) Undone(e core.Expense) string {
	return fmt.Sprintf("✅ Запис скасовано:\n📂 Категорія: %s\n💰 Сума: %s", e.Category, r.money(e.Amount))
}

func (r Renderer) Ignored(e core.Expense) string {
	return fmt.Sprintf("🔕 Запис позначено як ігнорований:\n📂 Категорія: %s\n💰 Сума: %s\n"+
		"💡 Він не буде враховуватись у статистиці", e.Category, r.money(e.Amount))
}

// Stats renders a period summary. user is empty for household totals.
func (r Renderer) Stats(records []core.Expense, title, user string) string {
	s, ok := core.Summarize(records)
	if !ok {
		return fmt.Sprintf("Немає витрат за %s.", strings.ToLower(title))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статистика за %s", title)
	if user != "" {
		fmt.Fprintf(&b, " (користувач: %s)", user)
	}
	b.WriteString(":\n\n")
	fmt.Fprintf(&b, "💰 Загальна сума: %s\n", r.money(s.Total))
	fmt.Fprintf(&b, "📝 Кількість записів: %d\n", s.Count)
	fmt.Fprintf(&b, "📅 Середня витрата: %s\n\n", r.money(s.Average))

	b.WriteString("📂 По категоріях:\n")
	for _, c := range s.ByCategory {
		fmt.Fprintf(&b, "• %s: %s\n", c.Name, r.share(c))
	}
	if user == "" && len(s.ByUser) > 1 {
		b.WriteString("\n👤 По користувачах:\n")
		for _, u := range s.ByUser {
			fmt.Fprintf(&b, "• %s: %s\n", u.Name, r.share(u))
		}
	}
	return b.String()
}

func (r Renderer) Top(cats []core.Bucket) string {
	if len(cats) == 0 {
		return msgNoMonth
	}
	var b strings.Builder
	b.WriteString("🏆 Топ категорій за місяць:\n\n")
	for i, c := range cats {
		fmt.Fprintf(&b, "%s %s: %s\n", place(i, true), c.Name, r.share(c))
	}
	return b.String()
}

// place returns the medal for a zero-based rank. Past the podium it is the
// ordinal when numbered, else bronze again.
func place(i int, numbered bool) string {
	switch {
	case i == 0:
		return "🥇"
	case i == 1:
		return "🥈"
	case i == 2 || !numbered:
		return "🥉"
	}
	return fmt.Sprintf("%d.", i+1)
}

func (r Renderer) Ranking(users []core.Bucket, p core.Period) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Рейтинг витрат %s:\n\n", rankingTitle[p])
	for i, u := range users {
		fmt.Fprintf(&b, "%s %s: %s\n", place(i, false), u.Name, r.share(u))
	}
	if len(users) >= 2 {
		diff := users[0].Total.Sub(users[1].Total)
		fmt.Fprintf(&b, "\n💸 Різниця: %s", r.money(diff))
		if diff.IsPositive() {
			fmt.Fprintf(&b, "\n💡 %s витратив більше на %s", users[0].Name, r.money(diff))
		}
	}
	return b.String()
}

func (r Renderer) Compare(users []core.UserComparison, total decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("👫 Порівняння витрат за місяць:\n\n")
	fmt.Fprintf(&b, "💰 Загальний бюджет сім'ї: %s\n\n", r.money(total))
	for i, u := range users {
		fmt.Fprintf(&b, "%d. 👤 %s:\n", i+1, u.Name)
		fmt.Fprintf(&b, "   💰 %s\n", r.share(u.Bucket))
		fmt.Fprintf(&b, "   📝 %d записів\n", u.Count)
		fmt.Fprintf(&b, "   📊 Середня витрата: %s\n", r.money(u.Average))
		tops := make([]string, 0, len(u.TopCategories))
		for _, c := range u.TopCategories {
			tops = append(tops, fmt.Sprintf("%s (%s %s)", c.Name, c.Total.StringFixed(0), r.Currency))
		}
		fmt.Fprintf(&b, "   🏆 Топ категорії: %s\n\n", strings.Join(tops, ", "))
	}
	return b.String()
}

func (r Renderer) Family(rep core.FamilyReport) string {
	var b strings.Builder
	b.WriteString("💼 Сімейний бюджет:\n\n")
	fmt.Fprintf(&b, "📅 За тиждень: %s\n", r.money(rep.WeekTotal))
	fmt.Fprintf(&b, "📅 За місяць: %s\n", r.money(rep.MonthTotal))
	if rep.WeekTotal.IsPositive() {
		fmt.Fprintf(&b, "📈 Прогноз на місяць: %s\n", r.money(rep.Projection))
	}
	b.WriteString("\n👥 Розподіл по сім'ї:\n")
	for _, u := range rep.ByUser {
		fmt.Fprintf(&b, "• %s: %s\n", u.Name, r.share(u))
	}
	b.WriteString("\n📂 Основні категорії:\n")
	for _, c := range rep.TopCategories {
		fmt.Fprintf(&b, "• %s: %s\n", c.Name, r.share(c))
	}
	return b.String()
}

func (r Renderer) Recent(records []core.Expense) string {
	var b strings.Builder
	b.WriteString("📝 Ваші останні записи:\n\n")
	for i, e := range records {
		mark := ""
		if e.Ignored() {
			mark = "🔕 "
		}
		fmt.Fprintf(&b, "%d. %s%s: %s", i+1, mark, e.Category, r.money(e.Amount))
		if e.Comment != "" && !e.Ignored() {
			fmt.Fprintf(&b, " (%s)", e.Comment)
		}
		fmt.Fprintf(&b, "\n   📅 %s\n\n", e.Timestamp.Format("02.01 15:04"))
	}
	b.WriteString("💡 Використайте /undo для скасування останньої дії\n")
	b.WriteString("💡 Використайте /ignore для позначення як ігнорований")
	return b.String()
}

func (r Renderer) BudgetSet(amount decimal.Decimal) string {
	return fmt.Sprintf("💰 Сімейний бюджет встановлено: %s на місяць\n"+
		"💡 Використайте /budget_status для перевірки виконання бюджету", r.money(amount))
}

func (r Renderer) BudgetUsage(current decimal.Decimal, ok bool) string {
	msg := fmt.Sprintf(msgBudgetUsage, r.Currency)
	if ok {
		msg += fmt.Sprintf("\n\n📊 Поточний бюджет: %s", r.money(current))
	}
	return msg
}

func (r Renderer) BudgetStatus(st budget.Status) string {
	var b strings.Builder
	b.WriteString("💰 Статус сімейного бюджету:\n\n")
	fmt.Fprintf(&b, "📊 Бюджет на місяць: %s\n", r.money(st.Budget))
	fmt.Fprintf(&b, "💸 Витрачено: %s (%.1f%%)\n", r.money(st.Spent), st.PercentUsed)
	if st.Remaining.IsPositive() {
		fmt.Fprintf(&b, "✅ Залишилось: %s\n", r.money(st.Remaining))
		if st.DailyAllowance != nil {
			fmt.Fprintf(&b, "📅 Можна витрачати %s на день\n", r.money(*st.DailyAllowance))
		}
	} else {
		fmt.Fprintf(&b, "⚠️ Перевищення бюджету: %s\n", r.money(st.Remaining.Abs()))
	}
	fmt.Fprintf(&b, "\n📊 Прогрес: %s %.1f%%", ProgressBar(st.PercentUsed), st.PercentUsed)
	return b.String()
}

const barCells = 10

// ProgressBar draws percent as ten cells, clamped to the bar.
func ProgressBar(percent float64) string {
	filled := int(barCells * percent / 100)
	if filled < 0 {
		filled = 0
	}
	if filled > barCells {
		filled = barCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled)
}
