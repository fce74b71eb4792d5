// Package splitter implements recursive character text splitting. Text is
// broken at the highest-priority separator present (paragraph, line, space,
// then individual characters) and the pieces are merged back into chunks of
// at most Size characters, each overlapping the previous one by up to
// Overlap characters. Lengths are measured in Unicode code points.
//
// Splitting is deterministic: identical input and parameters always produce
// identical chunk boundaries.
package splitter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Default chunking parameters.
const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the maximum overlap between consecutive chunks.
	DefaultChunkOverlap = 150
)

// DefaultSeparators are tried in order: paragraph break, line break, space,
// character boundary.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits documents into overlapping chunks. It holds no mutable
// state and is safe for concurrent use.
type Splitter struct {
	// size is the maximum chunk length in characters.
	size int
	// overlap is the maximum number of characters shared with the previous chunk.
	overlap int
	// separators is the prioritised separator list; the last entry should be "".
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the default separator list.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = append([]string(nil), seps...)
	}
}

// New constructs a Splitter. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int, opts ...Option) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("splitter: chunk size must be positive, got %d: %w", size, rag.ErrConfiguration)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("splitter: chunk overlap must be in [0, %d), got %d: %w", size, overlap, rag.ErrConfiguration)
	}
	s := &Splitter{size: size, overlap: overlap, separators: DefaultSeparators}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.separators) == 0 {
		s.separators = []string{""}
	}
	return s, nil
}

// NewFromEnv constructs a Splitter from CHUNK_SIZE and CHUNK_OVERLAP,
// falling back to the defaults when unset.
func NewFromEnv() (*Splitter, error) {
	size, err := envInt("CHUNK_SIZE", DefaultChunkSize)
	if err != nil {
		return nil, err
	}
	overlap, err := envInt("CHUNK_OVERLAP", DefaultChunkOverlap)
	if err != nil {
		return nil, err
	}
	return New(size, overlap)
}

// Size returns the configured chunk size.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured chunk overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits every document into chunks. Each chunk inherits a copy of its
// document's metadata plus start_index. Chunk ids are not assigned here; see
// AssignChunkIDs. An empty document list yields an empty chunk list.
func (s *Splitter) Split(docs []rag.Document) []rag.Chunk {
	chunks := make([]rag.Chunk, 0, len(docs))
	for _, doc := range docs {
		index, prevLen := 0, 0
		for _, text := range s.SplitText(doc.Content) {
			index = runeIndex(doc.Content, text, max(0, index+prevLen-s.overlap))
			prevLen = runeLen(text)

			md := rag.CloneMetadata(doc.Metadata)
			md[rag.MetaStartIndex] = strconv.Itoa(index)
			chunks = append(chunks, rag.Chunk{Content: text, Metadata: md})
		}
	}
	return chunks
}

// SplitText splits a single text into chunk strings.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

// AssignChunkIDs returns copies of chunks stamped with chunk_id
// "{doc_id}#c{n}", where n counts from 0 per doc_id in slice order. The
// counter is local to the call, so ids are reproducible only when the same
// chunk set is assigned in one pass. Chunks without doc_id fall back to
// their source.
func AssignChunkIDs(chunks []rag.Chunk) []rag.Chunk {
	counters := make(map[string]int)
	out := make([]rag.Chunk, len(chunks))
	for i, c := range chunks {
		docID := c.Metadata[rag.MetaDocID]
		if docID == "" {
			docID = c.Metadata[rag.MetaSource]
		}
		n := counters[docID]
		counters[docID] = n + 1

		md := rag.CloneMetadata(c.Metadata)
		md[rag.MetaChunkID] = fmt.Sprintf("%s#c%d", docID, n)
		out[i] = rag.Chunk{Content: c.Content, Metadata: md, Embedding: c.Embedding}
	}
	return out
}

// split recursively breaks text at the first separator it contains and
// merges the pieces into chunks.
func (s *Splitter) split(text string, separators []string) []string {
	var final []string

	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge combines small pieces into chunks no longer than size, carrying up
// to overlap characters of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.size && len(current) > 0 {
			if chunk := join(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if chunk := join(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeep splits text on sep, keeping the separator at the start of each
// following piece. Empty pieces are dropped. An empty sep splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// runeIndex returns the rune offset of the first occurrence of sub in s at
// or after rune offset from, or -1.
func runeIndex(s, sub string, from int) int {
	b := 0
	for i := 0; i < from && b < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[b:])
		b += size
	}
	idx := strings.Index(s[b:], sub)
	if idx < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(s[b:b+idx])
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("splitter: %s must be an integer, got %q: %w", key, v, rag.ErrConfiguration)
	}
	return n, nil
}
