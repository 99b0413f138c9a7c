package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// StaticPage serves saved HTML through the PageDriver interface. It backs
// offline extraction of captured pages and browser-free tests.
type StaticPage struct {
	mu      sync.Mutex
	pages   map[string]string
	doc     *goquery.Document
	visited []string
}

var _ PageDriver = (*StaticPage)(nil)

// NewStaticPage returns a page already loaded with html; Navigate keeps it
func NewStaticPage(html string) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &StaticPage{doc: doc}, nil
}

// NewStaticSite serves pages keyed by exact URL; unknown URLs fail to navigate
func NewStaticSite(pages map[string]string) *StaticPage {
	return &StaticPage{pages: pages}
}

// Visited lists every URL passed to Navigate
func (p *StaticPage) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

func (p *StaticPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visited = append(p.visited, url)
	if p.pages == nil {
		return nil
	}
	html, ok := p.pages[url]
	if !ok {
		return fmt.Errorf("navigate %s: no such page", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	p.doc = doc
	return nil
}

func (p *StaticPage) document() (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return p.doc, nil
}

func (p *StaticPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	return wrapSelection(doc.Find(selector)), nil
}

// WaitVisible returns the first visible match; a static page never changes,
// so a miss fails immediately
func (p *StaticPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	var found *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if visible(s) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("no visible element matches %s", selector)
	}
	return &staticElement{sel: found}, nil
}

func (p *StaticPage) Evaluate(ctx context.Context, script string) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	switch script {
	case ScriptTitle:
		return strings.TrimSpace(doc.Find("title").First().Text()), nil
	case ScriptInnerText:
		return doc.Find("body").Text(), nil
	default:
		return "", nil
	}
}

func (p *StaticPage) Content(ctx context.Context) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	return doc.Html()
}

func visible(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style, _ := n.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

type staticElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s})
	})
	return out
}

func (e *staticElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) QueryAll(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}

// StaticSessions hands out sessions over one shared StaticPage
type StaticSessions struct {
	Page *StaticPage

	mu     sync.Mutex
	opened int
	closed int
}

var _ SessionFactory = (*StaticSessions)(nil)

func (f *StaticSessions) Open(ctx context.Context) (PageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &staticSession{factory: f}, nil
}

// Counts reports sessions opened and closed so far
func (f *StaticSessions) Counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type staticSession struct {
	factory *StaticSessions
	once    sync.Once
}

func (s *staticSession) Page() PageDriver { return s.factory.Page }

func (s *staticSession) Close() error {
	s.once.Do(func() {
		s.factory.mu.Lock()
		s.factory.closed++
		s.factory.mu.Unlock()
	})
	return nil
}
