// Package mock provides a test double for the nlp.Annotator interface.
//
// The Annotator returns fixed results and records every call, which lets
// tests assert that a resolution stage was (or was not) consulted:
//
//	a := &mock.Annotator{Ents: []nlp.Entity{{Text: "Maria", Label: "PERSON"}}}
//	rec := nlp.NewRecognizer(a)
//	_, _ = rec.ExtractEntities("call Maria")
//	a.EntitiesCalls() // 1
package mock

import (
	"sync"

	"github.com/MrWong99/voicetagger/pkg/nlp"
)

// Annotator is a mock implementation of nlp.Annotator.
type Annotator struct {
	mu sync.Mutex

	// Ents is returned by Entities.
	Ents []nlp.Entity
	// Toks is returned by Tokens.
	Toks []nlp.Token
	// Chunks is returned by NounChunks.
	Chunks []string

	// EntitiesErr, TokensErr and ChunksErr, when non-nil, are returned by the
	// corresponding method instead of a result.
	EntitiesErr error
	TokensErr   error
	ChunksErr   error

	entitiesCalls []string
	tokensCalls   []string
	chunksCalls   []string
}

// Entities records the call and returns Ents, EntitiesErr.
func (a *Annotator) Entities(text string) ([]nlp.Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entitiesCalls = append(a.entitiesCalls, text)
	if a.EntitiesErr != nil {
		return nil, a.EntitiesErr
	}
	return append([]nlp.Entity(nil), a.Ents...), nil
}

// Tokens records the call and returns Toks, TokensErr.
func (a *Annotator) Tokens(text string) ([]nlp.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokensCalls = append(a.tokensCalls, text)
	if a.TokensErr != nil {
		return nil, a.TokensErr
	}
	return append([]nlp.Token(nil), a.Toks...), nil
}

// NounChunks records the call and returns Chunks, ChunksErr.
func (a *Annotator) NounChunks(text string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunksCalls = append(a.chunksCalls, text)
	if a.ChunksErr != nil {
		return nil, a.ChunksErr
	}
	return append([]string(nil), a.Chunks...), nil
}

// EntitiesCalls returns the number of Entities invocations.
func (a *Annotator) EntitiesCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entitiesCalls)
}

// TokensCalls returns the number of Tokens invocations.
func (a *Annotator) TokensCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tokensCalls)
}

// ChunksCalls returns the number of NounChunks invocations.
func (a *Annotator) ChunksCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunksCalls)
}

// Reset clears all recorded calls.
func (a *Annotator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entitiesCalls = nil
	a.tokensCalls = nil
	a.chunksCalls = nil
}

// Ensure Annotator implements nlp.Annotator at compile time.
var _ nlp.Annotator = (*Annotator)(nil)
