// Package chunker splits normalized documents into overlapping windows sized
// for embedding. Chunk IDs derive from (source_url, start offset), so
// re-chunking unchanged content produces identical IDs and upserts stay
// idempotent.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/pkg/tokencount"
)

const (
	DefaultMaxChunkTokens = 400
	DefaultOverlapTokens  = 80
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+[)"']?|[^.!?]+$`)

type Config struct {
	MaxChunkTokens int
	OverlapTokens  int
}

type Chunker struct {
	maxTokens int
	overlap   int
}

func New(cfg Config) *Chunker {
	maxTokens := cfg.MaxChunkTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 4
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}
}

// unit is one sentence (or a window of an oversize sentence) with its byte
// offset in the normalized document text.
type unit struct {
	text   string
	start  int
	end    int
	tokens int
}

// Split cuts a document into chunks on sentence boundaries, falling back to
// a fixed word window when a single sentence exceeds the token limit.
// Adjacent chunks share trailing sentences up to the overlap budget. Empty
// documents produce no chunks; documents smaller than one window produce
// exactly one.
func (c *Chunker) Split(doc model.Document) []model.Chunk {
	units := c.units(doc.RawText)
	if len(units) == 0 {
		return nil
	}

	var chunks []model.Chunk
	var current []unit
	curTokens := 0
	fresh := 0

	flush := func() {
		if fresh == 0 {
			return
		}
		texts := make([]string, 0, len(current))
		for _, u := range current {
			texts = append(texts, u.text)
		}
		text := strings.Join(texts, " ")
		chunks = append(chunks, model.Chunk{
			ID:          ChunkID(doc.SourceURL, current[0].start),
			SourceURL:   doc.SourceURL,
			Title:       doc.Title,
			Text:        text,
			StartOffset: current[0].start,
			EndOffset:   current[len(current)-1].end,
			TokenCount:  tokencount.Estimate(text),
		})
		// Carry trailing sentences into the next chunk for continuity.
		kept := make([]unit, 0, len(current))
		keptTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			u := current[i]
			if keptTokens+u.tokens > c.overlap {
				break
			}
			keptTokens += u.tokens
			kept = append([]unit{u}, kept...)
		}
		current = kept
		curTokens = keptTokens
		fresh = 0
	}

	for _, u := range units {
		if curTokens+u.tokens > c.maxTokens && len(current) > 0 {
			flush()
			// A carried overlap that alone blocks the new sentence gets
			// dropped rather than producing an oversize chunk.
			if curTokens+u.tokens > c.maxTokens {
				current = nil
				curTokens = 0
			}
		}
		current = append(current, u)
		curTokens += u.tokens
		fresh++
	}
	flush()
	return chunks
}

func (c *Chunker) units(text string) []unit {
	var units []unit
	offset := 0
	for _, para := range strings.Split(text, "\n\n") {
		for _, loc := range sentenceRe.FindAllStringIndex(para, -1) {
			sentence := strings.TrimSpace(para[loc[0]:loc[1]])
			if sentence == "" {
				continue
			}
			lead := leadingSpace(para[loc[0]:loc[1]])
			start := offset + loc[0] + lead
			units = append(units, c.window(sentence, start)...)
		}
		offset += len(para) + 2
	}
	return units
}

// window hard-splits a sentence that alone exceeds the token limit into
// overlapping word windows; anything smaller passes through as one unit.
func (c *Chunker) window(sentence string, start int) []unit {
	tokens := tokencount.Estimate(sentence)
	if tokens <= c.maxTokens {
		return []unit{{text: sentence, start: start, end: start + len(sentence), tokens: tokens}}
	}
	words := fieldsWithOffsets(sentence)
	var units []unit
	i := 0
	for i < len(words) {
		winTokens := 0
		j := i
		for j < len(words) && winTokens+words[j].tokens <= c.maxTokens {
			winTokens += words[j].tokens
			j++
		}
		if j == i {
			j = i + 1 // single word above the limit still forms a unit
		}
		first, last := words[i], words[j-1]
		text := sentence[first.start:last.end]
		units = append(units, unit{
			text:   text,
			start:  start + first.start,
			end:    start + last.end,
			tokens: tokencount.Estimate(text),
		})
		if j == len(words) {
			break
		}
		// Step back far enough to overlap the next window.
		back := j
		backTokens := 0
		for back > i && backTokens+words[back-1].tokens <= c.overlap {
			back--
			backTokens += words[back].tokens
		}
		if back == i {
			back = j
		}
		i = back
	}
	return units
}

type word struct {
	start  int
	end    int
	tokens int
}

func fieldsWithOffsets(s string) []word {
	var words []word
	inWord := false
	start := 0
	for i, r := range s {
		space := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !space && !inWord {
			inWord = true
			start = i
		}
		if space && inWord {
			inWord = false
			text := s[start:i]
			words = append(words, word{start: start, end: i, tokens: tokencount.Estimate(text)})
		}
	}
	if inWord {
		words = append(words, word{start: start, end: len(s), tokens: tokencount.Estimate(s[start:])})
	}
	return words
}

func leadingSpace(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t\n\r"))
}

// ChunkID is the stable identity of a chunk: a hex sha256 over the source
// URL and the chunk's start offset in the normalized text.
func ChunkID(sourceURL string, startOffset int) string {
	sum := sha256.Sum256([]byte(sourceURL + ":" + strconv.Itoa(startOffset)))
	return hex.EncodeToString(sum[:])
}
