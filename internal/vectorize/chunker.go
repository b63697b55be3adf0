package vectorize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	wordsPerChunk = 400
	overlapWords  = 80
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineTrim = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanText decodes HTML entities, normalizes unicode, and collapses
// whitespace so the same document always produces the same chunks.
func CleanText(s string) string {
	s = html.UnescapeString(s)
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = newlineTrim.ReplaceAllString(s, "\n")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Sentences splits text at sentence-final punctuation followed by whitespace
// and a capital, digit, or opening quote/paren. Text with no clear sentence
// boundaries comes back as a single element.
func Sentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		// closing quotes or parens stay with the sentence
		end := i + 1
		for end < len(runes) && sentenceCloser(runes[end]) {
			end++
		}
		// consume following whitespace
		j := end
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == end || j >= len(runes) {
			continue
		}
		if !sentenceStart(runes[j]) {
			continue
		}
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			out = append(out, part)
		}
		start = j
		i = j - 1
	}
	if part := strings.TrimSpace(string(runes[start:])); part != "" {
		out = append(out, part)
	}
	return out
}

func sentenceCloser(r rune) bool {
	return r == ')' || r == '"' || r == '\''
}

func sentenceStart(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '(' || r == '"' || r == '\'':
		return true
	}
	return false
}

// ChunkText splits cleaned text into chunks of roughly wordsPerChunk words
// with overlapWords of trailing context carried into the next chunk.
// Sentence boundaries are preserved; a single sentence longer than the word
// budget is hard-split by words.
func ChunkText(s string) []string {
	return chunkText(s, wordsPerChunk, overlapWords)
}

func chunkText(s string, target, overlap int) []string {
	if s == "" {
		return nil
	}
	sents := Sentences(s)
	if len(sents) == 0 {
		sents = []string{s}
	}

	wc := make([]int, len(sents))
	cum := make([]int, len(sents)+1)
	for i, sent := range sents {
		wc[i] = len(strings.Fields(sent))
		cum[i+1] = cum[i] + wc[i]
	}

	var chunks []string
	i := 0
	for i < len(sents) {
		j := i
		for j < len(sents) && cum[j+1]-cum[i] <= target {
			j++
		}
		if j == i {
			// single sentence over budget: hard split by words
			words := strings.Fields(sents[i])
			chunks = append(chunks, strings.Join(words[:target], " "))
			back := target - overlap
			if back < 0 {
				back = 0
			}
			sents[i] = strings.Join(words[back:], " ")
			wc[i] = len(words) - back
			for k := i; k < len(sents); k++ {
				cum[k+1] = cum[k] + wc[k]
			}
			continue
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(sents[i:j], " ")))
		if j == len(sents) {
			break
		}

		// step back over sentences to keep ~overlap words of context
		k := j
		backWords := 0
		for k > i && backWords < overlap {
			k--
			backWords += wc[k]
		}
		if k <= i {
			k = i + 1
		}
		i = k
	}
	return chunks
}

// overlapWordCount returns how many leading words of chunk repeat the
// trailing words of prev.
func overlapWordCount(prev, chunk string) int {
	prevWords := strings.Fields(prev)
	chunkWords := strings.Fields(chunk)
	max := len(prevWords)
	if len(chunkWords) < max {
		max = len(chunkWords)
	}
	for size := max; size > 0; size-- {
		if wordsEqual(prevWords[len(prevWords)-size:], chunkWords[:size]) {
			return size
		}
	}
	return 0
}

func wordsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
