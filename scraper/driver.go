package scraper

import (
	"context"
	"time"
)

// Scripts understood by every PageDriver implementation
const (
	ScriptTitle          = `() => document.title`
	ScriptInnerText      = `() => document.body ? document.body.innerText : ""`
	ScriptScrollToBottom = `() => { window.scrollTo(0, document.body.scrollHeight); return "" }`
	ScriptScrollToTop    = `() => { window.scrollTo(0, 0); return "" }`
)

// PageDriver is a rendered page the extraction chain can query
type PageDriver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Evaluate(ctx context.Context, script string) (string, error)
	Content(ctx context.Context) (string, error)
}

// Element is a node returned by a PageDriver query
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, bool, error)
	QueryAll(selector string) ([]Element, error)
}

// PageSession owns one page and the resources behind it
type PageSession interface {
	Page() PageDriver
	Close() error
}

// SessionFactory opens a fresh session per logical operation
type SessionFactory interface {
	Open(ctx context.Context) (PageSession, error)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
