package bot

// Button is an inline button; Data comes back as Request.Callback.
type Button struct {
	Text string
	Data string
}

// Keyboard is attached to a reply. Reply rows replace the user's keyboard,
// Inline rows are shown under the message. At most one is set.
type Keyboard struct {
	Reply  [][]string
	Inline [][]Button
}

// Reply-keyboard labels. Pressing one sends its text as a plain message.
const (
	BtnMyStats = "📊 Моя статистика"
	BtnToday   = "📅 За сьогодні"
	BtnWeek    = "📈 За тиждень"
	BtnMonth   = "📆 За місяць"
	BtnFamily  = "👫 Сімейний бюджет"
	BtnTop     = "🏆 Топ категорій"
	BtnRecent  = "📝 Мої записи"
	BtnManage  = "⚙️ Управління"
	BtnHelp    = "ℹ️ Довідка"
)

// Inline callback payloads.
const (
	CbUndo         = "undo"
	CbIgnore       = "ignore"
	CbCompare      = "compare"
	CbBudgetStatus = "budget_status"
	CbWhoSpent     = "whospent"
)

func mainKeyboard() *Keyboard {
	return &Keyboard{Reply: [][]string{
		{BtnMyStats, BtnToday},
		{BtnWeek, BtnMonth},
		{BtnFamily, BtnTop},
		{BtnRecent, BtnManage},
		{BtnHelp},
	}}
}

func managementKeyboard() *Keyboard {
	return &Keyboard{Inline: [][]Button{
		{{Text: "🔄 Скасувати останній", Data: CbUndo}},
		{{Text: "🔕 Ігнорувати останній", Data: CbIgnore}},
		{{Text: "👥 Порівняти користувачів", Data: CbCompare}},
		{{Text: "💰 Статус бюджету", Data: CbBudgetStatus}},
		{{Text: "🏅 Хто більше витратив", Data: CbWhoSpent}},
	}}
}

// buttonCommands maps reply-keyboard labels to the command they stand for.
var buttonCommands = map[string]string{
	BtnMyStats: "mystats",
	BtnToday:   "today",
	BtnWeek:    "week",
	BtnMonth:   "month",
	BtnFamily:  "family",
	BtnTop:     "top",
	BtnRecent:  "recent",
	BtnManage:  "menu",
	BtnHelp:    "help",
}
