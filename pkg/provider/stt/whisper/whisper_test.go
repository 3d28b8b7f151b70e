package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voicetagger/pkg/provider/stt"
	"github.com/MrWong99/voicetagger/pkg/provider/stt/whisper"
)

// capturedForm holds the multipart fields seen by the mock server.
type capturedForm struct {
	filename string
	data     []byte
	fields   map[string]string
}

// newMockServer creates a test server that responds to POST /inference with
// body and records the parsed multipart form in *got.
func newMockServer(t *testing.T, status int, body string, got *capturedForm, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if got != nil {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer f.Close()
			got.filename = hdr.Filename
			got.data, _ = io.ReadAll(f)
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func jsonText(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	t.Parallel()

	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_UploadsFormAndTrimsText(t *testing.T) {
	t.Parallel()

	var got capturedForm
	srv := newMockServer(t, http.StatusOK, jsonText("  Hey John, call me back.\n"), &got, nil)

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	upload := []byte{0x1A, 0x45, 0xDF, 0xA3, 1, 2, 3}
	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: upload, Filename: "voice.webm"})
	if err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}
	if tr.Text != "Hey John, call me back." {
		t.Errorf("Text = %q, want trimmed transcript", tr.Text)
	}
	if tr.Language != "en" {
		t.Errorf("Language = %q, want default %q", tr.Language, "en")
	}

	if got.filename != "voice.webm" {
		t.Errorf("uploaded filename = %q, want voice.webm", got.filename)
	}
	if string(got.data) != string(upload) {
		t.Errorf("uploaded data was modified")
	}
	want := map[string]string{"response_format": "json", "language": "en", "model": "small"}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %q = %q, want %q", k, got.fields[k], v)
		}
	}
}

func TestTranscribe_AudioLanguageOverridesDefault(t *testing.T) {
	t.Parallel()

	var got capturedForm
	srv := newMockServer(t, http.StatusOK, jsonText("Hallo"), &got, nil)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("OggS"), Language: "de"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.fields["language"] != "de" {
		t.Errorf("language field = %q, want de", got.fields["language"])
	}
	if _, ok := got.fields["model"]; ok {
		t.Error("model field sent although no model configured")
	}
	if got.filename != "audio.ogg" {
		t.Errorf("filename = %q, want sniffed audio.ogg", got.filename)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, jsonText("x"), nil, &calls)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("Transcribe: err = %v, want ErrEmptyAudio", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times for empty audio", calls.Load())
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusInternalServerError, "model crashed", nil, nil)
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte{1}})
	if err == nil {
		t.Fatal("Transcribe: expected error, got nil")
	}
}

func TestTranscribe_ErrorInBody(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusOK, `{"error":"failed to read WAV file"}`, nil, nil)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte{1}}); err == nil {
		t.Fatal("Transcribe: expected error, got nil")
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusOK, "not json", nil, nil)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte{1}}); err == nil {
		t.Fatal("Transcribe: expected error, got nil")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusOK, jsonText("x"), nil, nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, stt.Audio{Data: []byte{1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Transcribe: err = %v, want context.Canceled", err)
	}
}
