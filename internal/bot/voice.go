package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"findot/internal/log"
	"findot/internal/metrics"
	"findot/internal/speech"
)

// Voice describes a voice note. Fetch downloads the audio and is only
// called once the note passes the checks.
type Voice struct {
	Duration time.Duration
	MimeType string
	Fetch    func(ctx context.Context) ([]byte, error)
}

// HandleVoice transcribes a voice note, echoes the text and saves it like a
// typed message.
func (h *Handler) HandleVoice(ctx context.Context, req Request, v Voice, reply Reply) error {
	if !h.allow(req) {
		return reply.Send(ctx, msgRateLimited, nil)
	}
	metrics.Commands.WithLabelValues("voice").Inc()

	if h.speech == nil {
		return reply.Send(ctx, msgVoiceDisabled, nil)
	}
	if v.Duration > h.maxVoice {
		return reply.Send(ctx, fmt.Sprintf(msgVoiceTooLong, int(h.maxVoice.Seconds())), nil)
	}
	if err := reply.Send(ctx, msgVoiceProcessing, nil); err != nil {
		return err
	}

	audio, err := v.Fetch(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to download voice note", log.FieldUserID, req.UserID, log.FieldError, err)
		return reply.Send(ctx, msgVoiceFailed, nil)
	}

	text, err := h.speech.Transcribe(ctx, audio, v.MimeType)
	switch {
	case errors.Is(err, speech.ErrNoSpeech):
		return reply.Send(ctx, msgVoiceNoSpeech, nil)
	case err != nil:
		h.logger.ErrorContext(ctx, "Failed to transcribe voice note", log.FieldUserID, req.UserID, log.FieldError, err)
		return reply.Send(ctx, msgVoiceFailed, nil)
	}

	h.logger.InfoContext(ctx, "Voice note recognized", log.FieldUserID, req.UserID, "text", text)
	if err := reply.Send(ctx, fmt.Sprintf("🎤 Розпізнано: \"%s\"", text), nil); err != nil {
		return err
	}
	return h.saveText(ctx, req, text, reply)
}
