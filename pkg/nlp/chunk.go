package nlp

import "strings"

var (
	determinerTags = map[string]bool{"DT": true, "PDT": true, "PRP$": true, "WP$": true}
	modifierTags   = map[string]bool{"JJ": true, "JJR": true, "JJS": true, "CD": true}
	nounTags       = map[string]bool{"NN": true, "NNS": true, "NNP": true, "NNPS": true}
)

// ChunkNouns groups POS-tagged tokens into base noun phrases and returns their
// text in document order.
//
// A chunk is an optional determiner or possessive pronoun, any number of
// adjectives or numerals, and a run of one or more nouns. A possessive marker
// between nouns ("Maria 's car") stays inside the chunk and is attached to the
// preceding word. A personal pronoun on its own forms a one-word chunk.
func ChunkNouns(tokens []Token) []string {
	var chunks []string
	n := len(tokens)
	for i := 0; i < n; {
		j := i
		if determinerTags[tokens[j].Tag] {
			j++
		}
		for j < n && modifierTags[tokens[j].Tag] {
			j++
		}
		k, end := j, j
		for k < n {
			tag := tokens[k].Tag
			if nounTags[tag] {
				k++
				end = k
				continue
			}
			if tag == "POS" && end > j && k+1 < n && (nounTags[tokens[k+1].Tag] || modifierTags[tokens[k+1].Tag]) {
				k++
				for k < n && modifierTags[tokens[k].Tag] {
					k++
				}
				continue
			}
			break
		}

		switch {
		case end > j:
			chunks = append(chunks, joinTokens(tokens[i:end]))
			i = end
		case tokens[i].Tag == "PRP":
			chunks = append(chunks, tokens[i].Text)
			i++
		default:
			i++
		}
	}
	return chunks
}

// joinTokens renders tokens as text, attaching possessive markers to the
// previous word.
func joinTokens(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 && t.Tag != "POS" {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
