package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext holds state shared between godog steps. The suite is a
// black-box client: it talks to a running abuse engine over HTTP and to the
// lab login server for enforcement scenarios.
type TestContext struct {
	AdminURL   string // abuse engine admin API
	LoginURL   string // lab login server with Protect("login")
	AdminToken string

	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	// Per-scenario request attribution.
	ClientIP   string
	Identifier string
}

// NewTestContext creates a fresh context from the environment.
func NewTestContext() *TestContext {
	adminURL := os.Getenv("BULWARK_URL")
	if adminURL == "" {
		adminURL = "http://localhost:8080"
	}
	loginURL := os.Getenv("LOGIN_URL")
	if loginURL == "" {
		loginURL = "http://localhost:9000"
	}
	adminToken := os.Getenv("BULWARK_ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = "demo-admin-token"
	}

	return &TestContext{
		AdminURL:   adminURL,
		LoginURL:   loginURL,
		AdminToken: adminToken,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state while keeping the configured endpoints.
func (tc *TestContext) Reset() {
	tc.LastResponse = nil
	tc.LastResponseBody = nil
	tc.ClientIP = ""
	tc.Identifier = ""
}

// do sends a request and captures the response for later assertions.
func (tc *TestContext) do(method, url string, body interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.ClientIP)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// AdminRequest hits the abuse engine's admin API with the operator token.
func (tc *TestContext) AdminRequest(method, path string, body interface{}) error {
	return tc.do(method, tc.AdminURL+path, body, map[string]string{
		"X-Admin-Token":    tc.AdminToken,
		"X-Admin-Actor-ID": "e2e-suite",
	})
}

// Login attempts a login on the lab server with the scenario's identifier.
func (tc *TestContext) Login(password string) error {
	return tc.do(http.MethodPost, tc.LoginURL+"/login", map[string]string{
		"email":    tc.Identifier,
		"password": password,
	}, nil)
}

// GetResponseField extracts one top-level field from the JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains the given text.
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}
