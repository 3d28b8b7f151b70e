// Package addressee resolves the intended recipient of a short voice note from
// its transcript.
//
// Resolution runs an ordered list of [Strategy] values and stops at the first
// one that yields a name:
//
//  1. Pattern  ([PatternStrategy]): direct-address idioms such as "Hey John"
//     or "Maria, can you". Deterministic and cheap.
//  2. Entity   ([EntityStrategy]): the first PERSON entity found by the
//     statistical recogniser.
//  3. Fallback ([FallbackStrategy]): the first proper noun, or failing that
//     the first short noun chunk.
//
// Within the winning stage the first candidate in document order wins; there
// is no confidence scoring. When nothing is found the resolver returns
// [NoMatch], which is distinct from any name including the empty string.
package addressee

import "fmt"

// Stage identifies which strategy produced a [Result].
type Stage int

const (
	// StageNone marks the no-match result.
	StageNone Stage = iota
	// StagePattern is a direct-address pattern hit.
	StagePattern
	// StageEntity is a PERSON entity from the recogniser.
	StageEntity
	// StageFallback is a proper-noun or noun-chunk guess.
	StageFallback
)

// String returns the lowercase stage name used in logs, metrics and JSON.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StagePattern:
		return "pattern"
	case StageEntity:
		return "entity"
	case StageFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one resolution. The zero value is [NoMatch].
type Result struct {
	// Name is the addressee exactly as it appears in the transcript. It is
	// only meaningful when Found reports true.
	Name string

	// Stage is the strategy stage that produced Name, or StageNone.
	Stage Stage
}

// NoMatch is the explicit "nothing found" result.
var NoMatch = Result{}

// Found reports whether r carries an addressee.
func (r Result) Found() bool {
	return r.Stage != StageNone
}

// String returns the addressee or "<no match>".
func (r Result) String() string {
	if !r.Found() {
		return "<no match>"
	}
	return r.Name
}
