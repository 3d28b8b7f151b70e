// Package nlp defines the natural-language capability used by the addressee
// resolver: named-entity recognition, part-of-speech tagging and noun-phrase
// chunking.
//
// The statistical model sits behind the [Annotator] interface so that the
// resolution logic can be tested with a stub and the backing model can be
// swapped without touching callers. [Recognizer] owns one Annotator and makes
// its readiness explicit: a Recognizer built from a failed model load stays in
// a not-ready state and every call on it fails with [ErrNotReady].
//
// Implementations of Annotator must be safe for concurrent use.
package nlp

// Well-known entity labels. Annotators may emit other labels; callers must not
// assume this list is exhaustive.
const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
	LabelGPE    = "GPE"
)

// Penn Treebank tags for proper nouns.
const (
	TagProperNoun       = "NNP"
	TagProperNounPlural = "NNPS"
)

// Entity is a labelled span of the input text.
type Entity struct {
	// Text is the span exactly as it appears in the input.
	Text string `json:"text"`

	// Label is the semantic category, e.g. "PERSON", "ORG", "GPE".
	Label string `json:"type"`
}

// Token is a single tagged token.
type Token struct {
	// Text is the token as it appears in the input.
	Text string

	// Tag is the Penn Treebank part-of-speech tag (e.g. "NNP", "VB", "DT").
	Tag string
}

// IsProperNoun reports whether t carries a proper-noun tag.
func (t Token) IsProperNoun() bool {
	return t.Tag == TagProperNoun || t.Tag == TagProperNounPlural
}

// Annotator is the abstraction over a statistical language model.
//
// Every method returns results in document order. An empty input must yield an
// empty result and a nil error. A non-nil error signals a model runtime
// failure; it is never used to report "nothing found".
type Annotator interface {
	// Entities returns the named entities found in text.
	Entities(text string) ([]Entity, error)

	// Tokens returns the POS-tagged tokens of text.
	Tokens(text string) ([]Token, error)

	// NounChunks returns the text of every base noun phrase in text.
	NounChunks(text string) ([]string, error)
}
