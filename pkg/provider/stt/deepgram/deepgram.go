// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// The whole recording is streamed over a single connection: the container
// bytes are sent as binary frames (Deepgram detects WebM/Ogg/WAV on its own),
// followed by a CloseStream message. Deepgram then flushes its final results,
// sends a Metadata message and closes the socket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicetagger/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkSize is the size of each binary frame sent to Deepgram.
	chunkSize = 8 << 10

	// keywordBoost is the intensifier applied to every keyword hint.
	keywordBoost = 2.0
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code used when the Audio carries no
// hint (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeywords boosts recognition of the given words, typically the contact
// names the addressee is expected to be one of.
func WithKeywords(words ...string) Option {
	return func(p *Provider) {
		p.keywords = append(p.keywords, words...)
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests and for
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the recording to Deepgram and joins every final result.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Transcript, error) {
	if len(a.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	lang := a.Language
	if lang == "" {
		lang = p.language
	}
	wsURL, err := p.buildURL(lang)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- send(ctx, conn, a.Data)
	}()

	tr, err := collect(ctx, conn)
	if err != nil {
		// Unblock the writer before waiting on it.
		conn.CloseNow()
		<-writeErr
		return stt.Transcript{}, err
	}
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")

	tr.Language = lang
	return tr, nil
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (p *Provider) buildURL(lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "Maria:2")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw, keywordBoost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// send writes data in fixed-size binary frames followed by CloseStream.
func send(ctx context.Context, conn *websocket.Conn, data []byte) error {
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		if err := conn.Write(ctx, websocket.MessageBinary, data[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: write close stream: %w", err)
	}
	return nil
}

// collect reads messages until Deepgram sends Metadata or closes the socket
// normally, and joins the final results in arrival order.
func collect(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		parts    []string
		confSum  float64
		confN    int
		duration time.Duration
	)
	finish := func() stt.Transcript {
		tr := stt.Transcript{Text: strings.TrimSpace(strings.Join(parts, " ")), Duration: duration}
		if confN > 0 {
			tr.Confidence = confSum / float64(confN)
		}
		return tr
	}

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finish(), nil
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}

		ev, err := parseMessage(msg)
		if err != nil {
			return stt.Transcript{}, err
		}
		switch ev.kind {
		case "Results":
			if !ev.isFinal || ev.text == "" {
				continue
			}
			parts = append(parts, ev.text)
			confSum += ev.confidence
			confN++
			duration = max(duration, ev.end)
		case "Metadata":
			if ev.end > 0 {
				duration = ev.end
			}
			return finish(), nil
		}
	}
}

// deepgramResponse is the JSON structure of Deepgram Results, Metadata and
// Error messages.
type deepgramResponse struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// event is the part of a Deepgram message Transcribe cares about.
type event struct {
	kind       string
	isFinal    bool
	text       string
	confidence float64
	// end is start+duration for Results and the total duration for Metadata.
	end time.Duration
}

// parseMessage decodes a raw Deepgram WebSocket message. Error messages and
// undecodable payloads are returned as errors.
func parseMessage(data []byte) (event, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return event{}, fmt.Errorf("deepgram: parse message: %w", err)
	}

	ev := event{kind: resp.Type}
	switch resp.Type {
	case "Results":
		ev.isFinal = resp.IsFinal
		ev.end = seconds(resp.Start + resp.Duration)
		if len(resp.Channel.Alternatives) > 0 {
			alt := resp.Channel.Alternatives[0]
			ev.text = strings.TrimSpace(alt.Transcript)
			ev.confidence = alt.Confidence
		}
	case "Metadata":
		ev.end = seconds(resp.Duration)
	case "Error":
		msg := resp.Description
		if msg == "" {
			msg = resp.Message
		}
		return event{}, fmt.Errorf("deepgram: server error: %s", msg)
	}
	return ev, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
