package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voicetagger/internal/config"
	"github.com/MrWong99/voicetagger/internal/health"
	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/roster"
	"github.com/MrWong99/voicetagger/internal/server"
	"github.com/MrWong99/voicetagger/internal/tagger"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	nlpmock "github.com/MrWong99/voicetagger/pkg/nlp/mock"
	"github.com/MrWong99/voicetagger/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicetagger/pkg/provider/stt/mock"
)

var wavBytes = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:  "127.0.0.1:0",
		MaxUploadMB: config.DefaultMaxUploadMB,
		CORSOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, svc *tagger.Service, cfg config.ServerConfig, opts ...server.Option) http.Handler {
	t.Helper()
	m := testMetrics(t)
	opts = append([]server.Option{server.WithMetrics(m)}, opts...)
	return server.New(svc, cfg, opts...).Handler()
}

func readyService(t *testing.T, a *nlpmock.Annotator, opts ...tagger.Option) *tagger.Service {
	t.Helper()
	opts = append([]tagger.Option{tagger.WithMetrics(testMetrics(t))}, opts...)
	return tagger.New(nlp.NewRecognizer(a), opts...)
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "note.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/process_audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestProcessAudio_Success(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Result: stt.Transcript{Text: "Hey John, can you call me back?", Language: "en"}}
	svc := readyService(t, &nlpmock.Annotator{},
		tagger.WithTranscriber(p),
		tagger.WithRoster(roster.New([]string{"John"})),
	)
	h := newTestServer(t, svc, defaultServerConfig())

	rec := serve(h, uploadRequest(t, "audio", wavBytes))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["transcription"] != "Hey John, can you call me back?" {
		t.Errorf("transcription = %v", body["transcription"])
	}
	if body["addressee"] != "John" || body["stage"] != "pattern" {
		t.Errorf("addressee/stage = %v/%v, want John/pattern", body["addressee"], body["stage"])
	}
	if body["contact"] != "John" {
		t.Errorf("contact = %v, want John", body["contact"])
	}
	if id := rec.Header().Get(server.RequestIDHeader); id == "" || body["request_id"] != id {
		t.Errorf("request_id = %v, header = %q; want equal and non-empty", body["request_id"], id)
	}
	if p.CallCount() != 1 || !bytes.Equal(p.Calls[0].Audio.Data, wavBytes) {
		t.Errorf("provider received %+v", p.Calls)
	}
}

func TestProcessAudio_NoMatchIsNull(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Result: stt.Transcript{Text: "please call back soon"}}
	svc := readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(p))
	h := newTestServer(t, svc, defaultServerConfig())

	rec := serve(h, uploadRequest(t, "audio", wavBytes))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	v, ok := body["addressee"]
	if !ok || v != nil {
		t.Errorf("addressee = %v (present %v), want null", v, ok)
	}
	if body["stage"] != "none" {
		t.Errorf("stage = %v, want none", body["stage"])
	}
	if _, ok := body["contact"]; ok {
		t.Error("contact present without roster match")
	}
}

func TestProcessAudio_BadRequests(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Result: stt.Transcript{Text: "Hey John"}}
	svc := readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(p))
	h := newTestServer(t, svc, defaultServerConfig())

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"wrong field", uploadRequest(t, "file", wavBytes), "No audio file provided"},
		{"not multipart", jsonRequest(http.MethodPost, "/process_audio", `{"audio":"x"}`), "No audio file provided"},
		{"empty file", uploadRequest(t, "audio", nil), "tagger: stt: empty audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
			}
			if got := decodeBody(t, rec)["error"]; got != tt.want {
				t.Errorf("error = %v, want %q", got, tt.want)
			}
		})
	}
	if p.CallCount() != 0 {
		t.Errorf("provider called %d times for bad requests", p.CallCount())
	}
}

func TestProcessAudio_TooLarge(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	svc := readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(p))
	cfg := defaultServerConfig()
	cfg.MaxUploadMB = 1
	h := newTestServer(t, svc, cfg)

	rec := serve(h, uploadRequest(t, "audio", make([]byte, 2<<20)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413; body %s", rec.Code, rec.Body)
	}
	if p.CallCount() != 0 {
		t.Error("provider called for oversized upload")
	}
}

func TestProcessAudio_ErrorStatus(t *testing.T) {
	t.Parallel()

	notReady := nlp.Load(func() (nlp.Annotator, error) { return nil, errors.New("model missing") })

	tests := []struct {
		name string
		svc  *tagger.Service
		want int
	}{
		{
			name: "model not ready",
			svc:  tagger.New(notReady, tagger.WithTranscriber(&sttmock.Provider{}), tagger.WithMetrics(testMetrics(t))),
			want: http.StatusServiceUnavailable,
		},
		{
			name: "no transcriber",
			svc:  readyService(t, &nlpmock.Annotator{}),
			want: http.StatusServiceUnavailable,
		},
		{
			name: "transcription failure",
			svc:  readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(&sttmock.Provider{Err: errors.New("backend down")})),
			want: http.StatusInternalServerError,
		},
		{
			name: "unsupported container",
			svc:  readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(&sttmock.Provider{Err: stt.ErrUnsupportedFormat})),
			want: http.StatusUnsupportedMediaType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.svc, defaultServerConfig())
			rec := serve(h, uploadRequest(t, "audio", wavBytes))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.want, rec.Body)
			}
			if msg, _ := decodeBody(t, rec)["error"].(string); msg == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	a := &nlpmock.Annotator{Ents: []nlp.Entity{{Text: "Maria", Label: nlp.LabelPerson}}}
	h := newTestServer(t, readyService(t, a), defaultServerConfig())

	rec := serve(h, jsonRequest(http.MethodPost, "/extract", `{"text":"I told Maria about it"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["addressee"] != "Maria" || body["stage"] != "entity" {
		t.Errorf("addressee/stage = %v/%v, want Maria/entity", body["addressee"], body["stage"])
	}

	rec = serve(h, jsonRequest(http.MethodPost, "/extract", `not json`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want 400", rec.Code)
	}
}

func TestExtract_RecognizerFailure(t *testing.T) {
	t.Parallel()

	a := &nlpmock.Annotator{EntitiesErr: errors.New("runtime failure")}
	h := newTestServer(t, readyService(t, a), defaultServerConfig())

	rec := serve(h, jsonRequest(http.MethodPost, "/extract", `{"text":"ask Diego"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500; body %s", rec.Code, rec.Body)
	}
}

func TestEntities(t *testing.T) {
	t.Parallel()

	a := &nlpmock.Annotator{Ents: []nlp.Entity{
		{Text: "Maria", Label: nlp.LabelPerson},
		{Text: "Madrid", Label: nlp.LabelGPE},
	}}
	h := newTestServer(t, readyService(t, a), defaultServerConfig())

	rec := serve(h, jsonRequest(http.MethodPost, "/entities", `{"text":"Maria lives in Madrid"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var body struct {
		Entities []struct {
			Text string `json:"text"`
			Type string `json:"type"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entities) != 2 || body.Entities[1].Text != "Madrid" || body.Entities[1].Type != nlp.LabelGPE {
		t.Errorf("entities = %+v", body.Entities)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	notReady := nlp.Load(func() (nlp.Annotator, error) { return nil, errors.New("model missing") })

	tests := []struct {
		name string
		svc  *tagger.Service
		want bool
	}{
		{"ready", readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(&sttmock.Provider{})), true},
		{"no transcriber", readyService(t, &nlpmock.Annotator{}), false},
		{"no model", tagger.New(notReady, tagger.WithTranscriber(&sttmock.Provider{}), tagger.WithMetrics(testMetrics(t))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.svc, defaultServerConfig())
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/status", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["server"] != "running" {
				t.Errorf("server = %v, want running", body["server"])
			}
			if body["models_initialized"] != tt.want {
				t.Errorf("models_initialized = %v, want %v", body["models_initialized"], tt.want)
			}
		})
	}
}

func TestStatus_ProviderStates(t *testing.T) {
	t.Parallel()

	svc := readyService(t, &nlpmock.Annotator{}, tagger.WithTranscriber(&sttmock.Provider{}))
	states := func() map[string]string {
		return map[string]string{"whisper": "open", "openai": "closed"}
	}
	h := newTestServer(t, svc, defaultServerConfig(), server.WithProviderStates(states))
	body := decodeBody(t, serve(h, httptest.NewRequest(http.MethodGet, "/status", nil)))

	got, _ := body["providers"].(map[string]any)
	if got["whisper"] != "open" || got["openai"] != "closed" || len(got) != 2 {
		t.Errorf("providers = %v, want whisper=open openai=closed", body["providers"])
	}

	h = newTestServer(t, svc, defaultServerConfig())
	body = decodeBody(t, serve(h, httptest.NewRequest(http.MethodGet, "/status", nil)))
	if _, ok := body["providers"]; ok {
		t.Errorf("providers = %v, want omitted without a state source", body["providers"])
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, readyService(t, &nlpmock.Annotator{}), defaultServerConfig())
	for _, path := range []string{"/nope", "/static/app.js", "/metrics"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, rec.Code)
			continue
		}
		if got := decodeBody(t, rec)["error"]; got != "Resource not found" {
			t.Errorf("GET %s: error = %v", path, got)
		}
	}
}

func TestIndexPage(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, readyService(t, &nlpmock.Annotator{}), defaultServerConfig())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/process_audio") {
		t.Error("index page does not post to /process_audio")
	}
}

func TestOptionalMounts(t *testing.T) {
	t.Parallel()

	stub := func(body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
	}
	svc := readyService(t, &nlpmock.Annotator{})
	h := newTestServer(t, svc, defaultServerConfig(),
		server.WithHealth(health.New(health.ReadyFunc("nlp", svc.Ready))),
		server.WithMetricsHandler(stub("metrics")),
		server.WithMCPHandler(stub("mcp")),
	)

	tests := []struct {
		method, path string
		want         int
		body         string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, ""},
		{http.MethodGet, "/metrics", http.StatusOK, "metrics"},
		{http.MethodPost, "/mcp", http.StatusOK, "mcp"},
	}
	for _, tt := range tests {
		rec := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s %s: body = %q, want %q", tt.method, tt.path, rec.Body, tt.body)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	svc := readyService(t, &nlpmock.Annotator{})

	t.Run("preflight", func(t *testing.T) {
		h := newTestServer(t, svc, defaultServerConfig())
		req := httptest.NewRequest(http.MethodOptions, "/process_audio", nil)
		req.Header.Set("Origin", "chrome-extension://abc")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := serve(h, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("Allow-Methods = %q, want POST", got)
		}
	})

	t.Run("allow list", func(t *testing.T) {
		cfg := defaultServerConfig()
		cfg.CORSOrigins = []string{"https://web.whatsapp.com"}
		h := newTestServer(t, svc, cfg)

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://web.whatsapp.com")
		if got := serve(h, req).Header().Get("Access-Control-Allow-Origin"); got != "https://web.whatsapp.com" {
			t.Errorf("allowed origin: Allow-Origin = %q", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://evil.example")
		if got := serve(h, req).Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("foreign origin: Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := defaultServerConfig()
		cfg.CORSOrigins = nil
		h := newTestServer(t, svc, cfg)

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://web.whatsapp.com")
		if got := serve(h, req).Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, readyService(t, &nlpmock.Annotator{}), defaultServerConfig())

	const incoming = "0b5c2f4e-8a0d-4d7e-9f3c-1f2e3d4c5b6a"
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(server.RequestIDHeader, incoming)
	if got := serve(h, req).Header().Get(server.RequestIDHeader); got != incoming {
		t.Errorf("reused request ID = %q, want %q", got, incoming)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(server.RequestIDHeader, "not-a-uuid")
	if got := serve(h, req).Header().Get(server.RequestIDHeader); got == "" || got == "not-a-uuid" {
		t.Errorf("malformed request ID not replaced: %q", got)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := server.New(readyService(t, &nlpmock.Annotator{}), defaultServerConfig(), server.WithMetrics(testMetrics(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln, time.Second) }()

	url := "http://" + ln.Addr().String() + "/status"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
