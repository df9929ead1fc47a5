// Package openai provides an STT provider backed by the OpenAI audio API
// (whisper-1 and compatible servers).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to target a
// self-hosted OpenAI-compatible transcription server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failed transcriptions are reported, never retried.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// ModelID returns the configured model name.
func (p *Provider) ModelID() string { return p.model }

// Transcribe implements stt.Provider. TaskTranslate uses the translations
// endpoint, which always produces English.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: open audio: %w", err)
	}
	defer f.Close()

	if req.Task == stt.TaskTranslate {
		resp, err := p.client.Audio.Translations.New(ctx, oai.AudioTranslationNewParams{
			File:  f,
			Model: p.model,
		})
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("openai stt: translate: %w", err)
		}
		return stt.Transcript{Text: strings.TrimSpace(resp.Text), Language: "en"}, nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:           f,
		Model:          p.model,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return fromVerbose(resp.Text, resp.RawJSON()), nil
}

// verbose holds the verbose_json fields the SDK does not model.
type verbose struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// fromVerbose builds a Transcript from the response text and, when present,
// the verbose_json extras in raw.
func fromVerbose(text, raw string) stt.Transcript {
	tr := stt.Transcript{Text: strings.TrimSpace(text)}
	var v verbose
	if raw == "" || json.Unmarshal([]byte(raw), &v) != nil {
		return tr
	}
	tr.Language = v.Language
	tr.Duration = stt.Seconds(v.Duration)
	for _, s := range v.Segments {
		tr.Segments = append(tr.Segments, stt.Segment{
			Start: stt.Seconds(s.Start),
			End:   stt.Seconds(s.End),
			Text:  s.Text,
		})
	}
	return tr
}
