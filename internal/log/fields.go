package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldUser       = "user"
	FieldChatID     = "chat_id"
	FieldCommand    = "command"
	FieldCategory   = "category"
	FieldAmount     = "amount"
	FieldRowRef     = "row_ref"
	FieldPeriod     = "period"
	FieldEvent      = "event"
	FieldAttempt    = "attempt"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentActions   = "actions"
	ComponentBot       = "bot"
	ComponentTelegram  = "telegram"
	ComponentSpeech    = "speech"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentRetry     = "retry"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRead     = "read"
	OpAppend   = "append"
	OpDelete   = "delete"
	OpUpdate   = "update"
	OpUndo     = "undo"
	OpIgnore   = "ignore"
	OpParse    = "parse"
	OpPublish  = "publish"
	OpMirror   = "mirror"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds the fields identifying a stored record.
func (f LogFields) WithExpense(user, category, amount, ref string) LogFields {
	f[FieldUser] = user
	f[FieldCategory] = category
	f[FieldAmount] = amount
	if ref != "" {
		f[FieldRowRef] = ref
	}
	return f
}

func (f LogFields) WithHTTP(method, path string, status int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = status
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
