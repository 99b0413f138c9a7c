package scraper

import (
	"context"
	"time"

	"github.com/go-rod/rod"
)

// RodPage drives a live Chromium tab through go-rod
type RodPage struct {
	page *rod.Page
}

var _ PageDriver = (*RodPage)(nil)

// NewRodPage wraps an open rod page
func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

func (p *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *RodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(ctx, els), nil
}

// WaitVisible retries the selector until a match is visible or timeout elapses
func (p *RodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := p.page.Context(waitCtx).Element(selector)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	return &rodElement{el: el.Context(ctx)}, nil
}

func (p *RodPage) Evaluate(ctx context.Context, script string) (string, error) {
	res, err := p.page.Context(ctx).Eval(script)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *RodPage) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(ctx context.Context, els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el.Context(ctx)})
	}
	return out
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *rodElement) QueryAll(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}
