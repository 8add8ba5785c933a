// Package installer saves a bounded number of discovered images to disk.
// It manages naming, parallel download and atomic placement of each file.
package installer

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultExt is used when a link carries no recognised image extension.
const DefaultExt = ".jpg"

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

// Request describes one install run.
// Immutable
type Request struct {
	// Links are the candidates; the first Total are saved.
	Links []string
	// Dir is the target directory. It is created if missing.
	Dir string
	// Tag names the files: <tag>_<n><ext>, n being the next number not
	// already used in Dir.
	Tag string
	// Total is the number of images to save.
	Total int
}

// Plan is the placement of a single image.
// Immutable
type Plan struct {
	// Index is 1-based.
	Index int
	URL   string
	// Path is where the image ends up.
	Path string
}

// NewPlan creates the target directory and assigns a file name to each of
// the first req.Total links. Numbers already taken in the directory, by any
// extension, are skipped so earlier runs are never mistaken for this one.
func NewPlan(req Request) ([]*Plan, error) {
	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}
	taken, err := takenNames(req.Dir)
	if err != nil {
		return nil, err
	}

	total := max(min(req.Total, len(req.Links)), 0)
	tag := SanitizeTag(req.Tag)

	plans := make([]*Plan, 0, total)
	n := 0
	for i, link := range req.Links[:total] {
		for {
			n++
			if !taken[fmt.Sprintf("%s_%d", tag, n)] {
				break
			}
		}
		name := fmt.Sprintf("%s_%d%s", tag, n, extOf(link))
		plans = append(plans, &Plan{
			Index: i + 1,
			URL:   link,
			Path:  filepath.Join(req.Dir, name),
		})
	}
	return plans, nil
}

// takenNames lists the entries of dir with every extension stripped, so
// "cats_1.jpg" and "cats_1.jpg.part" both take "cats_1".
func takenNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read target dir: %w", err)
	}
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if i := strings.IndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		taken[name] = true
	}
	return taken, nil
}

// SanitizeTag turns a search query into a file name prefix.
func SanitizeTag(tag string) string {
	tag = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(tag))
	if tag == "" {
		return "image"
	}
	return tag
}

func extOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return DefaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if imageExts[ext] {
		return ext
	}
	return DefaultExt
}
