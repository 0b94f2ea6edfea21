package clientinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"
const safariIPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"

func TestSummarize(t *testing.T) {
	t.Run("desktop browser", func(t *testing.T) {
		summary := Summarize(chromeWindowsUA)
		assert.Contains(t, summary, "chrome 120")
		assert.Contains(t, summary, "desktop")
	})

	t.Run("mobile browser", func(t *testing.T) {
		summary := Summarize(safariIPhoneUA)
		assert.Contains(t, summary, "mobile")
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Summarize(""))
	})

	t.Run("garbage input still produces a summary", func(t *testing.T) {
		summary := Summarize("definitely-not-a-browser")
		assert.NotEmpty(t, summary)
		assert.Contains(t, summary, "unknown")
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("stable for same client", func(t *testing.T) {
		assert.Equal(t, Fingerprint(chromeWindowsUA), Fingerprint(chromeWindowsUA))
	})

	t.Run("distinct clients differ", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(chromeWindowsUA), Fingerprint(safariIPhoneUA))
	})

	t.Run("minor version bumps do not change the fingerprint", func(t *testing.T) {
		bumped := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.9999.1 Safari/537.36"
		assert.Equal(t, Fingerprint(chromeWindowsUA), Fingerprint(bumped))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Fingerprint(""))
	})
}
