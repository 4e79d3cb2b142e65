package reference

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
)

const (
	// maxChunkChars is the split point for long paragraphs.
	maxChunkChars = 420

	// minChunkChars discards fragments too short to cite usefully.
	minChunkChars = 24
)

// Loader parses reference files into chunks, caching the result by path.
// HTML documents are reduced to their readable content and converted to
// markdown before chunking so citations carry clean text.
type Loader struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk

	converter *md.Converter
	logger    *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates an empty chunk loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		chunks:    make(map[string][]Chunk),
		converter: md.NewConverter("", true, nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Chunks returns the parsed chunks for path, loading and caching on first
// use. Subsequent calls return the cached slice until Invalidate.
func (l *Loader) Chunks(path string) ([]Chunk, error) {
	l.mu.RLock()
	cached, ok := l.chunks[path]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	text, err := l.loadText(path)
	if err != nil {
		return nil, err
	}

	parsed := SplitChunks(text)

	l.mu.Lock()
	l.chunks[path] = parsed
	l.mu.Unlock()

	l.logger.Debug("Loaded reference file", "path", path, "chunks", len(parsed))
	return parsed, nil
}

// Invalidate drops the cached chunks for path. Called by the watcher when
// the underlying file changes.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	delete(l.chunks, path)
	l.mu.Unlock()
}

// loadText reads the file, reducing HTML to readable markdown.
func (l *Loader) loadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read reference file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".html" && ext != ".htm" {
		return string(data), nil
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), &url.URL{Path: path})
	if err != nil {
		return "", fmt.Errorf("extract readable content: %w", err)
	}

	markdown, err := l.converter.ConvertString(article.Content)
	if err != nil {
		// Fall back to the plain-text extraction rather than failing the
		// whole reference lookup.
		l.logger.Warn("HTML to markdown conversion failed, using plain text",
			"path", path, "error", err)
		return article.TextContent, nil
	}

	return markdown, nil
}

// SplitChunks turns raw reference text into citation-sized blocks:
// paragraph boundaries first, long paragraphs split at the nearest sentence
// boundary under the limit, fragments below the minimum dropped.
func SplitChunks(text string) []Chunk {
	var out []Chunk

	for _, para := range strings.Split(text, "\n\n") {
		block := strings.Join(strings.Fields(para), " ")
		for len(block) > maxChunkChars {
			cut := sentenceCut(block, maxChunkChars)
			head := strings.TrimSpace(block[:cut])
			if len(head) >= minChunkChars {
				out = append(out, Chunk{Text: head})
			}
			block = strings.TrimSpace(block[cut:])
		}
		if len(block) >= minChunkChars {
			out = append(out, Chunk{Text: block})
		}
	}

	return out
}

// sentenceCut finds the split index for a block longer than limit: the end
// of the last sentence that fits, or the last word boundary, or a hard cut.
func sentenceCut(block string, limit int) int {
	window := block[:limit]

	best := -1
	for _, end := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(window, end); i > best {
			best = i + len(end) - 1
		}
	}
	if best > 0 {
		return best
	}

	if i := strings.LastIndex(window, " "); i > 0 {
		return i
	}
	return limit
}
