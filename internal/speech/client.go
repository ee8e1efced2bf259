// Package speech sends voice notes to an external speech-to-text service.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"findot/internal/metrics"
)

var (
	ErrNoSpeech    = errors.New("no speech recognized")
	ErrUnavailable = errors.New("speech service unavailable")
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Config struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

type asrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Client posts audio to BaseURL/asr behind a circuit breaker.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var _ Transcriber = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "speech",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Transcribe returns the recognized text. An empty transcript is ErrNoSpeech;
// an open breaker is ErrUnavailable.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, audio, mimeType)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.Transcriptions.WithLabelValues("unavailable").Inc()
			return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		metrics.Transcriptions.WithLabelValues("error").Inc()
		return "", err
	}
	text := strings.TrimSpace(out.(*asrResponse).Text)
	if text == "" {
		metrics.Transcriptions.WithLabelValues("empty").Inc()
		return "", ErrNoSpeech
	}
	metrics.Transcriptions.WithLabelValues("ok").Inc()
	return text, nil
}

func (c *Client) post(ctx context.Context, audio []byte, mimeType string) (*asrResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "voice"+extension(mimeType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/asr", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var result asrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	}
	return ".bin"
}
