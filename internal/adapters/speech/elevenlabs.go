package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/PabloGalante/haven-agent/internal/config"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

// ErrRejected marks a 4xx answer from the speech service. It is not retried.
var ErrRejected = errors.New("speech request rejected")

const maxAudioBytes = 16 << 20

// ElevenLabs synthesizes speech through the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	retrier      retry.Retry[Clip]
}

var _ Synthesizer = (*ElevenLabs)(nil)

// NewElevenLabs fails fast when the API key is missing.
func NewElevenLabs(cfg config.SpeechConfig) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs: %w", domain.ErrMissingCredential)
	}

	e := &ElevenLabs{
		client:       &http.Client{Timeout: 60 * time.Second},
		baseURL:      strings.TrimRight(firstNonEmpty(cfg.BaseURL, "https://api.elevenlabs.io"), "/"),
		apiKey:       cfg.APIKey,
		voiceID:      firstNonEmpty(cfg.VoiceID, "21m00Tcm4TlvDq8ikWAM"),
		modelID:      firstNonEmpty(cfg.ModelID, "eleven_multilingual_v2"),
		outputFormat: firstNonEmpty(cfg.OutputFormat, "mp3_44100_128"),
		retrier: retry.New[Clip](retry.Config{
			MaxAttempts:        3,
			InitialDelay:       200 * time.Millisecond,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRejected},
		}),
	}
	return e, nil
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (Clip, error) {
	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: e.modelID})
	if err != nil {
		return Clip{}, fmt.Errorf("encoding speech request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.voiceID), url.QueryEscape(e.outputFormat))

	return e.retrier.Do(ctx, func(ctx context.Context) (Clip, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return Clip{}, fmt.Errorf("creating speech request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("xi-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return Clip{}, fmt.Errorf("speech request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
			if err != nil {
				return Clip{}, fmt.Errorf("reading speech audio: %w", err)
			}
			if len(audio) == 0 {
				return Clip{}, fmt.Errorf("speech service returned no audio")
			}
			return Clip{Audio: audio, MimeType: mimeFor(e.outputFormat)}, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode >= 500 {
			return Clip{}, fmt.Errorf("speech server error %d: %s", resp.StatusCode, string(body))
		}
		return Clip{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, string(body))
	})
}

func mimeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
