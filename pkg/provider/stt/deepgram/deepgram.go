// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// Each Transcribe call opens one socket, streams the utterance as linear16
// PCM, asks Deepgram to flush with a CloseStream message and joins the final
// results it sends back before closing the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	// multiLanguage enables multilingual detection on the live endpoint.
	multiLanguage    = "multi"

	// sendChunkBytes is 256 ms of 16 kHz mono linear16 audio.
	sendChunkBytes = 8192
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the fallback BCP-47 language code used when a request
// carries none (e.g., "en", "de-DE"). Without one the stream is transcribed
// in multilingual mode.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint replaces the live endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithKeywords boosts recognition of the given words (e.g. proper nouns from
// the configured vocabulary) by boost.
func WithKeywords(words []string, boost float64) Option {
	return func(p *Provider) {
		p.keywords = append([]string(nil), words...)
		p.boost = boost
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []string
	boost    float64
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		boost:    1,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams req.AudioPath to Deepgram and returns the joined final
// results. Translation is not offered by Deepgram and yields
// [stt.ErrUnsupportedTask].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Task == stt.TaskTranslate {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w: %s", stt.ErrUnsupportedTask, req.Task)
	}

	pcm, format, err := audio.ReadWAV(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	pcm, err = audio.ToMono16k(pcm, format)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}

	wsURL, err := p.buildURL(req.Language, audio.DefaultSampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	results := make(chan collected, 1)
	go func() { results <- collect(ctx, conn) }()

	if err := send(ctx, conn, pcm); err != nil {
		return stt.Transcript{}, err
	}

	var res collected
	select {
	case res = <-results:
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctx.Err())
	}
	if res.err != nil {
		return stt.Transcript{}, res.err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	return res.transcript(audio.DefaultFormat.Duration(len(pcm))), nil
}

// send writes pcm as binary frames and then asks Deepgram to flush.
func send(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += sendChunkBytes {
		end := min(off+sendChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// buildURL constructs the Deepgram live endpoint URL for one request.
func (p *Provider) buildURL(language string, sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := language
	if lang == "" {
		lang = p.language
	}
	if lang == "" {
		lang = multiLanguage
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")

	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "Kubernetes:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw, p.boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- response handling ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one final Results message.
type result struct {
	segment    stt.Segment
	confidence float64
}

// collected accumulates the finals of one request.
type collected struct {
	finals []result
	err    error
}

func (c collected) transcript(d time.Duration) stt.Transcript {
	tr := stt.Transcript{Duration: d}
	var conf float64
	for _, r := range c.finals {
		tr.Segments = append(tr.Segments, r.segment)
		conf += r.confidence
	}
	tr.Text = stt.JoinSegments(tr.Segments)
	if len(c.finals) > 0 {
		tr.Confidence = conf / float64(len(c.finals))
	}
	return tr
}

// collect reads messages until Deepgram closes the socket after flushing.
func collect(ctx context.Context, conn *websocket.Conn) collected {
	var c collected
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.err = fmt.Errorf("deepgram: read: %w", err)
			}
			return c
		}
		if r, ok := parseDeepgramResponse(msg); ok {
			c.finals = append(c.finals, r)
		}
	}
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. It returns
// (result, true) for a non-empty final Results message and (zero, false) for
// anything that should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" || !resp.IsFinal {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return result{}, false
	}
	return result{
		segment: stt.Segment{
			Start: stt.Seconds(resp.Start),
			End:   stt.Seconds(resp.Start + resp.Duration),
			Text:  alt.Transcript,
		},
		confidence: alt.Confidence,
	}, true
}
