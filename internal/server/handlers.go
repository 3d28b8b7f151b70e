package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/tagger"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	"github.com/MrWong99/voicetagger/pkg/provider/stt"
)

// maxTextBytes caps JSON bodies of the text endpoints.
const maxTextBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type textRequest struct {
	Text string `json:"text"`
}

// addresseeBody is shared by /process_audio and /extract. Addressee is null
// when nothing was found.
type addresseeBody struct {
	Addressee         *string `json:"addressee"`
	Stage             string  `json:"stage"`
	Contact           string  `json:"contact,omitempty"`
	ContactConfidence float64 `json:"contact_confidence,omitempty"`
}

type processResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
	Language      string `json:"language,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	addresseeBody
}

type entitiesResponse struct {
	Entities []nlp.Entity `json:"entities"`
}

type statusResponse struct {
	Server            string `json:"server"`
	ModelsInitialized bool   `json:"models_initialized"`
	Transcriber       bool   `json:"transcriber"`
	NLPReady          bool   `json:"nlp_ready"`

	// Providers maps each STT provider to its breaker state.
	Providers map[string]string `json:"providers,omitempty"`
}

func newAddresseeBody(out tagger.Outcome) addresseeBody {
	b := addresseeBody{
		Stage:             out.Result.Stage.String(),
		Contact:           out.Contact,
		ContactConfidence: out.ContactConfidence,
	}
	if out.Result.Found() {
		name := out.Result.Name
		b.Addressee = &name
	}
	return b
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Audio file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read audio file")
		return
	}

	id := RequestIDFrom(r.Context())
	log := observe.Logger(r.Context()).With("request_id", id)
	log.Info("audio upload received", "filename", header.Filename, "bytes", len(data))

	out, err := s.svc.ProcessAudio(r.Context(), stt.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Language:    r.FormValue("language"),
	})
	if err != nil {
		status := statusFor(err)
		log.Log(r.Context(), levelFor(status), "process audio failed", "err", err, "status", status)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Success:       true,
		Transcription: out.Transcription,
		Language:      out.Language,
		RequestID:     id,
		addresseeBody: newAddresseeBody(out),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Extract(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, "extract failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newAddresseeBody(out))
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	ents, err := s.svc.Entities(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, "entities failed", err)
		return
	}
	writeJSON(w, http.StatusOK, entitiesResponse{Entities: ents})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	nlpReady := s.svc.Ready() == nil
	transcriber := s.svc.CanTranscribe()
	res := statusResponse{
		Server:            "running",
		ModelsInitialized: nlpReady && transcriber,
		Transcriber:       transcriber,
		NLPReady:          nlpReady,
	}
	if s.providerStates != nil {
		res.Providers = s.providerStates()
	}
	writeJSON(w, http.StatusOK, res)
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Resource not found")
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	observe.Logger(r.Context()).Log(r.Context(), levelFor(status), msg, "err", err, "status", status)
	writeError(w, status, err.Error())
}

func decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be JSON with a \"text\" field")
		return req, false
	}
	return req, true
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nlp.ErrNotReady), errors.Is(err, tagger.ErrNoTranscriber):
		return http.StatusServiceUnavailable
	case errors.Is(err, stt.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, stt.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
