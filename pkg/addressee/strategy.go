package addressee

import (
	"context"

	"github.com/MrWong99/voicetagger/pkg/nlp"
)

// Strategy is one stage of the resolution chain.
//
// Try reports ok=false when the stage found nothing; that is the normal
// negative case and never an error. A non-nil error means the stage itself
// failed and stops the chain.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Stage is recorded on the Result when this strategy wins.
	Stage() Stage

	// Try looks for an addressee in text.
	Try(ctx context.Context, text string) (name string, ok bool, err error)
}

// Compile-time interface assertions.
var (
	_ Strategy = (*PatternStrategy)(nil)
	_ Strategy = (*EntityStrategy)(nil)
	_ Strategy = (*FallbackStrategy)(nil)
)

// PatternStrategy adapts a [PatternMatcher] to [Strategy].
type PatternStrategy struct {
	Matcher *PatternMatcher
}

func (s *PatternStrategy) Name() string { return "pattern" }
func (s *PatternStrategy) Stage() Stage { return StagePattern }

func (s *PatternStrategy) Try(_ context.Context, text string) (string, bool, error) {
	name, ok := s.Matcher.Match(text)
	return name, ok, nil
}

// EntityStrategy returns the first PERSON entity found by the recogniser.
type EntityStrategy struct {
	Recognizer *nlp.Recognizer
}

func (s *EntityStrategy) Name() string { return "entity" }
func (s *EntityStrategy) Stage() Stage { return StageEntity }

func (s *EntityStrategy) Try(_ context.Context, text string) (string, bool, error) {
	persons, err := s.Recognizer.Persons(text)
	if err != nil {
		return "", false, err
	}
	if len(persons) == 0 {
		return "", false, nil
	}
	return persons[0], true, nil
}

// FallbackStrategy returns the first proper noun or short noun chunk.
type FallbackStrategy struct {
	Recognizer *nlp.Recognizer
}

func (s *FallbackStrategy) Name() string { return "fallback" }
func (s *FallbackStrategy) Stage() Stage { return StageFallback }

func (s *FallbackStrategy) Try(_ context.Context, text string) (string, bool, error) {
	names, err := s.Recognizer.ExtractPotentialNames(text)
	if err != nil {
		return "", false, err
	}
	if len(names) == 0 {
		return "", false, nil
	}
	return names[0], true, nil
}
