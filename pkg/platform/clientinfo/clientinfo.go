// Package clientinfo condenses a raw User-Agent into a compact description
// for logs and audit details. Raw UA strings are long, high-cardinality, and
// occasionally carry injected content; the summary is neither.
package clientinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// Summarize reduces a User-Agent string to "browser major / os / platform",
// e.g. "chrome 120 / windows 10 / desktop". Empty input yields "".
func Summarize(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if version != "" {
		if before, _, _ := strings.Cut(version, "."); before != "" {
			majorVersion = before
		}
	}

	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	} else if ua.Bot() {
		platform = "bot"
	}

	return fmt.Sprintf("%s %s / %s / %s", browser, majorVersion, os, platform)
}

// Fingerprint hashes the summary so audit rows can correlate a client across
// requests without storing the raw User-Agent. Empty input yields "".
func Fingerprint(userAgentString string) string {
	summary := Summarize(userAgentString)
	if summary == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(summary))
	return hex.EncodeToString(hash[:])
}
