package nlp

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// ErrNotReady is returned by every [Recognizer] method when the underlying
// model failed to load.
var ErrNotReady = errors.New("nlp: recognizer not ready")

// Recognizer wraps an [Annotator] and derives the entity lists and name
// candidates the addressee resolver works with.
//
// A Recognizer is immutable after construction and safe for concurrent use.
type Recognizer struct {
	annotator Annotator
	loadErr   error
}

// NewRecognizer returns a ready Recognizer backed by a. A nil annotator yields
// a not-ready Recognizer.
func NewRecognizer(a Annotator) *Recognizer {
	if a == nil {
		return &Recognizer{loadErr: errors.New("no annotator configured")}
	}
	return &Recognizer{annotator: a}
}

// Load runs load once and returns a Recognizer for its result. When load fails
// the returned Recognizer is not ready: [Recognizer.Ready] reports the cause
// and all extraction calls fail fast. Load never returns nil.
func Load(load func() (Annotator, error)) *Recognizer {
	a, err := load()
	if err != nil {
		return &Recognizer{loadErr: err}
	}
	return NewRecognizer(a)
}

// Ready returns nil when the model is loaded, or an error wrapping
// [ErrNotReady] and the load failure otherwise.
func (r *Recognizer) Ready() error {
	if r.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, r.loadErr)
	}
	return nil
}

// ExtractEntities returns the named entities in text in first-occurrence
// order. Empty text yields an empty slice without consulting the model.
func (r *Recognizer) ExtractEntities(text string) ([]Entity, error) {
	if err := r.Ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []Entity{}, nil
	}
	ents, err := r.annotator.Entities(text)
	if err != nil {
		return nil, fmt.Errorf("nlp: extract entities: %w", err)
	}
	return ents, nil
}

// Persons returns the text of every PERSON entity in text, in document order.
func (r *Recognizer) Persons(text string) ([]string, error) {
	ents, err := r.ExtractEntities(text)
	if err != nil {
		return nil, err
	}
	var persons []string
	for _, e := range ents {
		if e.Label == LabelPerson {
			persons = append(persons, e.Text)
		}
	}
	return persons, nil
}

// ExtractPotentialNames returns weaker name candidates for text: first every
// proper-noun token longer than one character, then every noun chunk of one or
// two words whose text is not already a candidate.
func (r *Recognizer) ExtractPotentialNames(text string) ([]string, error) {
	if err := r.Ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	tokens, err := r.annotator.Tokens(text)
	if err != nil {
		return nil, fmt.Errorf("nlp: tag tokens: %w", err)
	}
	chunks, err := r.annotator.NounChunks(text)
	if err != nil {
		return nil, fmt.Errorf("nlp: noun chunks: %w", err)
	}

	names := []string{}
	for _, tok := range tokens {
		if tok.IsProperNoun() && utf8.RuneCountInString(tok.Text) > 1 {
			names = append(names, tok.Text)
		}
	}
	// Exact string comparison against everything collected so far, so a chunk
	// that repeats an earlier chunk is skipped as well.
	for _, chunk := range chunks {
		n := len(strings.Fields(chunk))
		if n < 1 || n > 2 {
			continue
		}
		if slices.Contains(names, chunk) {
			continue
		}
		names = append(names, chunk)
	}
	return names, nil
}
