package discovery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itchyny/gojq"
	"golang.org/x/net/html"
)

// HTMLExtractor finds every Container element carrying Class and takes the
// image source of the first img inside it.
// Immutable
type HTMLExtractor struct {
	Container string
	Class     string
	// Scheme is prepended to scheme-relative sources ("//host/a.jpg").
	Scheme string
}

// NewHTMLExtractor returns an extractor with the default container, class and
// scheme.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{
		Container: DefaultContainer,
		Class:     DefaultClass,
		Scheme:    DefaultScheme,
	}
}

func (e *HTMLExtractor) Extract(pageURL string, body string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var links []string
	doc.Find(e.Container).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.HasClass(e.Class)
	}).Each(func(_ int, s *goquery.Selection) {
		img := s.Find("img").First()
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		if link := e.normalize(pageURL, strings.TrimSpace(src)); link != "" {
			links = append(links, link)
		}
	})
	return links, nil
}

func (e *HTMLExtractor) normalize(pageURL, src string) string {
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		return e.Scheme + src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return src
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// JQExtractor runs a jq program over a JSON response and collects every
// string it produces.
// Immutable
type JQExtractor struct {
	code *gojq.Code
	// Scheme is prepended to scheme-relative results ("//host/a.jpg").
	Scheme string
}

// NewJQExtractor compiles query. Scheme starts as DefaultScheme.
func NewJQExtractor(query string) (*JQExtractor, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parse jq %q: %w", query, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile jq %q: %w", query, err)
	}
	return &JQExtractor{code: code, Scheme: DefaultScheme}, nil
}

func (e *JQExtractor) Extract(pageURL string, body string) ([]string, error) {
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var links []string
	iter := e.code.Run(data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("jq: %w", err)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if strings.HasPrefix(s, "//") {
			s = e.Scheme + s
		}
		links = append(links, s)
	}
	return links, nil
}
