package scraper

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotDetectorDetect(t *testing.T) {
	bd := NewBotDetector()

	tests := []struct {
		name    string
		text    string
		title   string
		blocked bool
		kind    string
	}{
		{
			name:    "akamai access denied",
			text:    "You don't have permission to access \"http://www.homedepot.com/p/205594063\" on this server. Reference #18.2f3a1b17.1700000000.1a2b3c",
			title:   "Access Denied",
			blocked: true,
			kind:    BlockBotWall,
		},
		{
			name:    "press and hold challenge",
			text:    "Please verify you are a human. Press & Hold to confirm.",
			blocked: true,
			kind:    BlockCaptcha,
		},
		{
			name:    "rate limited",
			text:    "Too many requests. Please try again later.",
			blocked: true,
			kind:    BlockHTTPError,
		},
		{
			name:    "delisted product",
			text:    "Sorry, the product you are trying to view is not currently available.",
			blocked: false,
			kind:    BlockDelisted,
		},
		{
			name:    "ordinary product page",
			text:    strings.Repeat("Pre-Lit Spruce Artificial Christmas Tree with 500 Lights. ", 40),
			title:   "Pre-Lit Spruce Tree - The Home Depot",
			blocked: false,
			kind:    BlockNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := bd.Detect(tt.text, tt.title)
			assert.Equal(t, tt.blocked, sig.Blocked)
			assert.Equal(t, tt.kind, sig.Kind)
			if tt.blocked {
				assert.NotEmpty(t, sig.Reason())
				assert.LessOrEqual(t, sig.Score, 1.0)
			}
		})
	}
}

func TestBotDetectorShortPageBoost(t *testing.T) {
	bd := NewBotDetector()
	long := strings.Repeat("lorem ipsum dolor sit amet ", 80)

	short := bd.Detect("unusual traffic detected", "")
	padded := bd.Detect(long+"unusual traffic detected", "")

	assert.InDelta(t, 0.6, short.Score, 1e-9)
	assert.InDelta(t, 0.4, padded.Score, 1e-9)
	assert.True(t, short.Blocked)
	assert.True(t, padded.Blocked)
}

func TestBotDetectorInspect(t *testing.T) {
	page := staticPage(t, `<html><head><title>Access Denied</title></head>
		<body><h1>Access Denied</h1><p>Reference #18.5e3a1b17</p></body></html>`)

	sig := NewBotDetector().Inspect(context.Background(), page)
	assert.True(t, sig.Blocked)
	assert.Equal(t, BlockBotWall, sig.Kind)
}
