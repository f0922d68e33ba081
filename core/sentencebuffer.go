package orchestration

import (
	"regexp"
	"strings"
)

// sentenceEnd matches terminal punctuation followed by whitespace or by the
// end of the buffered text.
var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// sentenceBuffer cuts streamed text into sentences. It is not safe for
// concurrent use; each exchange owns one.
type sentenceBuffer struct {
	buffer strings.Builder
}

// Feed appends chunk and returns every sentence completed by it, in order.
// Emitted sentences keep their trailing whitespace, so concatenating them with
// the final Flush reproduces the input exactly.
func (b *sentenceBuffer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	b.buffer.WriteString(chunk)

	var sentences []string
	rest := b.buffer.String()
	for rest != "" {
		loc := sentenceEnd.FindStringIndex(rest)
		if loc == nil {
			break
		}
		sentences = append(sentences, rest[:loc[1]])
		rest = rest[loc[1]:]
	}

	if len(sentences) > 0 {
		b.buffer.Reset()
		b.buffer.WriteString(rest)
	}
	return sentences
}

// Flush returns the unterminated remainder, if any, and empties the buffer.
func (b *sentenceBuffer) Flush() (string, bool) {
	rest := b.buffer.String()
	b.buffer.Reset()
	return rest, rest != ""
}

func (b *sentenceBuffer) Reset() {
	b.buffer.Reset()
}
