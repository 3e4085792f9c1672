package chunk

import (
	"errors"
	"strings"

	"github.com/compintel/cibot/tools/acquire"
)

// Chunk is a bounded window of document text with source attribution.
// Embedding is filled in by the embedding stage before upsert.
type Chunk struct {
	Text       string
	SourceURL  string
	Entity     string
	Section    string
	Category   string
	ChunkIndex int
	Embedding  []float32
}

var ErrInvalidChunkConfig = errors.New("invalid chunk config: overlap must be in [0, max_len)")

// Chunker windows normalized documents into bounded-size overlapping
// segments. Markdown header lines delimit sections and are recorded as
// chunk metadata rather than chunk text.
type Chunker struct {
	MaxLen   int // maximum chunk length in runes
	Overlap  int // runes shared between adjacent windows of one section
	MinChars int // chunks shorter than this are dropped as noise
}

// Split windows one document deterministically. Empty or whitespace-only
// documents yield zero chunks.
func (c Chunker) Split(doc acquire.Document) ([]Chunk, error) {
	if c.MaxLen <= 0 || c.Overlap < 0 || c.Overlap >= c.MaxLen {
		return nil, ErrInvalidChunkConfig
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	var chunks []Chunk
	idx := 0
	for _, sec := range splitSections(doc.Content) {
		if sec.content == "" {
			continue
		}
		for _, text := range window(sec.content, c.MaxLen, c.Overlap) {
			if !c.valid(text) {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:       text,
				SourceURL:  doc.SourceURL,
				Entity:     doc.Entity,
				Section:    sec.title,
				Category:   detectCategory(text),
				ChunkIndex: idx,
			})
			idx++
		}
	}
	return chunks, nil
}

func (c Chunker) valid(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if strings.Trim(text, "#") == "" {
		return false
	}
	if len(text) < c.MinChars {
		return false
	}
	return true
}

type section struct {
	title   string
	content string
}

// splitSections splits scraped markdown on header lines. Documents
// without headers come back as a single untitled section.
func splitSections(content string) []section {
	var sections []section
	title := ""
	var lines []string

	flush := func() {
		if len(lines) == 0 {
			return
		}
		sections = append(sections, section{
			title:   title,
			content: strings.TrimSpace(strings.Join(lines, "\n")),
		})
		lines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			title = strings.TrimSpace(line)
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

// window slices text into rune windows of at most maxLen with the given
// overlap. Text at most maxLen long yields a single window equal to the
// input.
func window(text string, maxLen, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}
	var out []string
	for start := 0; start < len(runes); {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return out
}

// detectCategory tags a chunk with a coarse topic using keyword rules.
func detectCategory(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "price", "pricing", "$", "per month"):
		return "pricing"
	case containsAny(lower, "feature", "includes", "capabilities", "supports"):
		return "features"
	case containsAny(lower, "security", "compliance", "gdpr", "pci"):
		return "security"
	default:
		return "general"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
