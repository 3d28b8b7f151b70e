// Package prose provides an [nlp.Annotator] backed by the pure-Go prose
// library (github.com/jdkato/prose/v2), which ships an averaged-perceptron
// POS tagger and a named-entity model for English.
//
// Usage:
//
//	a, err := prose.New()                       // built-in English model
//	a, err := prose.New(prose.WithModelPath(p)) // model directory on disk
//	rec := nlp.Load(func() (nlp.Annotator, error) { return prose.New() })
package prose

import (
	"errors"
	"fmt"
	"os"

	prose "github.com/jdkato/prose/v2"

	"github.com/MrWong99/voicetagger/pkg/nlp"
)

// warmupText is annotated once during construction to prove the model can
// tag and extract before the annotator is handed out.
const warmupText = "Hey Maria, can you call John back?"

// Compile-time assertion that Annotator satisfies nlp.Annotator.
var _ nlp.Annotator = (*Annotator)(nil)

// Option is a functional option for configuring an Annotator.
type Option func(*Annotator)

// WithModelPath loads the tagging and entity model from a directory written
// by prose's Model.Write instead of the built-in English model.
func WithModelPath(path string) Option {
	return func(a *Annotator) {
		a.modelPath = path
	}
}

// Annotator implements nlp.Annotator on top of prose. Every call builds a
// fresh prose document, so an Annotator holds no per-call state and is safe
// for concurrent use.
type Annotator struct {
	modelPath string
	model     *prose.Model
}

// New constructs an Annotator, loads the configured model and runs a warm-up
// annotation. Any failure is returned as an error; callers treat it as a
// startup failure.
func New(opts ...Option) (*Annotator, error) {
	a := &Annotator{}
	for _, o := range opts {
		o(a)
	}

	if a.modelPath != "" {
		m, err := loadModel(a.modelPath)
		if err != nil {
			return nil, err
		}
		a.model = m
	}

	doc, err := a.document(warmupText, true)
	if err != nil {
		return nil, fmt.Errorf("prose: warm-up annotation: %w", err)
	}
	if len(doc.Tokens()) == 0 {
		return nil, errors.New("prose: warm-up annotation produced no tokens")
	}
	return a, nil
}

// Entities implements nlp.Annotator.
func (a *Annotator) Entities(text string) ([]nlp.Entity, error) {
	if text == "" {
		return []nlp.Entity{}, nil
	}
	doc, err := a.document(text, true)
	if err != nil {
		return nil, err
	}
	ents := doc.Entities()
	out := make([]nlp.Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, nlp.Entity{Text: e.Text, Label: e.Label})
	}
	return out, nil
}

// Tokens implements nlp.Annotator.
func (a *Annotator) Tokens(text string) ([]nlp.Token, error) {
	if text == "" {
		return []nlp.Token{}, nil
	}
	doc, err := a.document(text, false)
	if err != nil {
		return nil, err
	}
	toks := doc.Tokens()
	out := make([]nlp.Token, 0, len(toks))
	for _, t := range toks {
		out = append(out, nlp.Token{Text: t.Text, Tag: t.Tag})
	}
	return out, nil
}

// NounChunks implements nlp.Annotator. prose has no dependency parser, so
// chunks are derived from the POS tags with [nlp.ChunkNouns].
func (a *Annotator) NounChunks(text string) ([]string, error) {
	toks, err := a.Tokens(text)
	if err != nil {
		return nil, err
	}
	chunks := nlp.ChunkNouns(toks)
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}

// document annotates text. Sentence segmentation is always off: voice notes
// are short and only tokens and entities are needed.
func (a *Annotator) document(text string, extract bool) (*prose.Document, error) {
	opts := []prose.DocOpt{
		prose.WithSegmentation(false),
		prose.WithExtraction(extract),
	}
	if a.model != nil {
		opts = append(opts, prose.UsingModel(a.model))
	}
	doc, err := prose.NewDocument(text, opts...)
	if err != nil {
		return nil, fmt.Errorf("prose: annotate: %w", err)
	}
	return doc, nil
}

// loadModel reads a prose model directory. prose panics on unreadable model
// data, so the panic is converted into an error here.
func loadModel(path string) (m *prose.Model, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("prose: model path %q: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prose: model path %q is not a directory", path)
	}
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("prose: load model %q: %v", path, r)
		}
	}()
	return prose.ModelFromDisk(path), nil
}
