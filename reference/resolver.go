package reference

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnknownReference is returned when a key maps to no reference file.
var ErrUnknownReference = errors.New("unknown reference key")

// slugPattern is the only shape a non-allow-listed key may have. It keeps
// the filesystem fallback immune to path traversal.
var slugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Resolver maps reference keys to files under a single documents directory.
// An explicit allow-list wins; otherwise a slug-shaped key is matched against
// files directly inside the directory.
type Resolver struct {
	docsDir string
	allow   map[string]string // key -> relative path within docsDir
}

// NewResolver creates a resolver rooted at docsDir with an optional
// allow-list of key -> relative path entries.
func NewResolver(docsDir string, allow map[string]string) *Resolver {
	return &Resolver{docsDir: docsDir, allow: allow}
}

// ResolvePath returns the absolute path for a reference key.
func (r *Resolver) ResolvePath(key string) (string, error) {
	if key == "" {
		return "", ErrUnknownReference
	}

	if rel, ok := r.allow[key]; ok {
		path, err := r.join(rel)
		if err != nil {
			return "", fmt.Errorf("allow-listed key %s: %w", key, err)
		}
		return path, nil
	}

	if !slugPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q is not a valid key", ErrUnknownReference, key)
	}

	// Slug fallback: match the key against supported extensions in the docs
	// directory. Sorted so the pick is deterministic when several exist.
	matches, err := doublestar.FilepathGlob(filepath.Join(r.docsDir, key+".{md,txt,html}"))
	if err != nil {
		return "", fmt.Errorf("glob reference files: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownReference, key)
	}

	sort.Strings(matches)
	return matches[0], nil
}

// join resolves rel inside docsDir, rejecting anything that escapes it.
func (r *Resolver) join(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", errors.New("absolute paths not allowed")
	}

	path := filepath.Join(r.docsDir, rel)

	rootAbs, err := filepath.Abs(r.docsDir)
	if err != nil {
		return "", err
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if pathAbs != rootAbs && !strings.HasPrefix(pathAbs, rootAbs+string(filepath.Separator)) {
		return "", errors.New("path escapes documents directory")
	}

	return pathAbs, nil
}
