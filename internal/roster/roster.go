// Package roster maps an extracted addressee onto a known contact list.
//
// Transcription routinely misspells names ("Shawn" for "Sean", "Katrine"
// for "Catherine"), so matching is phonetic first:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the name and of every contact. A contact sharing any code
//     with the name is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: the phonetic candidate with the highest
//     case-insensitive Jaro-Winkler similarity wins, provided it reaches the
//     phonetic threshold (default 0.70).
//
//     Without a phonetic candidate, a contact is still accepted on pure
//     Jaro-Winkler similarity at the stricter fuzzy threshold (default 0.85).
//
// Determiners and pronouns ("the", "my", "you") are ignored, so a fallback
// chunk such as "the landlord" is compared on "landlord" alone.
package roster

import (
	"slices"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// stopwords never identify a contact on their own.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {},
	"my": {}, "your": {}, "our": {}, "his": {}, "her": {}, "their": {},
	"i": {}, "me": {}, "you": {}, "him": {}, "us": {}, "them": {}, "it": {},
}

// Option is a functional option for configuring a [Roster].
type Option func(*Roster)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching contact. Default: 0.70. Non-positive values are
// ignored.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Roster) {
		if threshold > 0 {
			r.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a contact with
// no phonetic overlap. Default: 0.85. Non-positive values are ignored.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Roster) {
		if threshold > 0 {
			r.fuzzyThreshold = threshold
		}
	}
}

// Match is a successful roster lookup.
type Match struct {
	// Contact is the roster entry, spelled as configured.
	Contact string

	// Confidence is the Jaro-Winkler similarity in [0, 1]; 1 for an exact
	// case-insensitive match.
	Confidence float64

	// Phonetic reports whether the contact shared a Double Metaphone code
	// with the name.
	Phonetic bool
}

// contact caches the normalised form and phonetic codes of a roster entry.
type contact struct {
	name   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Roster is a contact list with phonetic lookup. It is safe for concurrent
// use; [Roster.Replace] swaps the list atomically with respect to lookups.
type Roster struct {
	mu                sync.RWMutex
	contacts          []contact
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Roster] over contacts. Blank entries are dropped.
func New(contacts []string, opts ...Option) *Roster {
	r := &Roster{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	r.contacts = compile(contacts)
	return r
}

// Replace swaps in a new contact list.
func (r *Roster) Replace(contacts []string) {
	compiled := compile(contacts)
	r.mu.Lock()
	r.contacts = compiled
	r.mu.Unlock()
}

// SetThresholds updates both thresholds. Non-positive values keep the
// current setting.
func (r *Roster) SetThresholds(phonetic, fuzzy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if phonetic > 0 {
		r.phoneticThreshold = phonetic
	}
	if fuzzy > 0 {
		r.fuzzyThreshold = fuzzy
	}
}

// Contacts returns the configured contact names in order.
func (r *Roster) Contacts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.contacts))
	for i, c := range r.contacts {
		out[i] = c.name
	}
	return out
}

// Len returns the number of contacts.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contacts)
}

// Lookup finds the contact that best matches name. It reports false when
// the roster is empty, name has no meaningful words, or no contact clears
// its threshold.
func (r *Roster) Lookup(name string) (Match, bool) {
	tokens := meaningful(strings.Fields(strings.ToLower(name)))
	if len(tokens) == 0 {
		return Match{}, false
	}
	full := strings.Join(tokens, " ")
	codes := codesForTokens(tokens)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Match
	for _, c := range r.contacts {
		if c.lower == full {
			return Match{Contact: c.name, Confidence: 1, Phonetic: true}, true
		}
		score := bestJWScore(tokens, c.tokens, full, c.lower)
		if codesOverlap(codes, c.codes) {
			if score >= r.phoneticThreshold && (!best.Phonetic || score > best.Confidence) {
				best = Match{Contact: c.name, Confidence: score, Phonetic: true}
			}
		} else if !best.Phonetic && score >= r.fuzzyThreshold && score > best.Confidence {
			best = Match{Contact: c.name, Confidence: score}
		}
	}
	return best, best.Contact != ""
}

func compile(names []string) []contact {
	out := make([]contact, 0, len(names))
	for _, n := range names {
		lower := strings.ToLower(strings.TrimSpace(n))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		out = append(out, contact{
			name:   strings.TrimSpace(n),
			lower:  strings.Join(tokens, " "),
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
	}
	return out
}

// meaningful drops stopwords and surrounding punctuation.
func meaningful(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		t = strings.Trim(t, ".,;:!?\"'()")
		if t == "" {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return slices.Clip(out)
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings, and every token pair.
func bestJWScore(inputTokens, contactTokens []string, inputFull, contactFull string) float64 {
	score := matchr.JaroWinkler(inputFull, contactFull, false)

	if len(inputTokens) > 1 || len(contactTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(contactTokens, ""), false); s > score {
			score = s
		}
	}
	for _, it := range inputTokens {
		for _, ct := range contactTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
