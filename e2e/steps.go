package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

const wrongPassword = "definitely-not-it"

// RegisterSteps registers all step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Login scenarios (lab server)
	ctx.Step(`^a fresh user at a fresh address$`, tc.freshUserAtFreshAddress)
	ctx.Step(`^I fail to log in$`, tc.failToLogIn)
	ctx.Step(`^I fail to log in (\d+) times$`, tc.failToLogInNTimes)
	ctx.Step(`^I log in with the correct password$`, tc.logInCorrectly)

	// Admin API scenarios (abuse engine)
	ctx.Step(`^I add the address to the allowlist$`, tc.addAddressToAllowlist)
	ctx.Step(`^I remove the address from the allowlist$`, tc.removeAddressFromAllowlist)
	ctx.Step(`^I request the allowlist$`, tc.requestAllowlist)
	ctx.Step(`^I request the allowlist without a token$`, tc.requestAllowlistWithoutToken)
	ctx.Step(`^I inspect the lock state for the user$`, tc.inspectLockState)
	ctx.Step(`^I reset the user's buckets$`, tc.resetUserBuckets)
	ctx.Step(`^I trigger a sweep$`, tc.triggerSweep)
	ctx.Step(`^I request the (\d+) most recent audit events$`, tc.requestRecentAudit)

	// Assertions
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response header "([^"]*)" should be present$`, tc.responseHeaderShouldBePresent)
	ctx.Step(`^the response header "([^"]*)" should equal "([^"]*)"$`, tc.responseHeaderShouldEqual)
	ctx.Step(`^the Retry-After header should be at least (\d+)$`, tc.retryAfterAtLeast)
}

// freshUserAtFreshAddress gives the scenario its own identifier and source
// address so scenarios never share buckets.
func (tc *TestContext) freshUserAtFreshAddress(ctx context.Context) error {
	id := uuid.New()
	tc.Identifier = fmt.Sprintf("user-%x@example.com", id[:6])
	tc.ClientIP = fmt.Sprintf("10.%d.%d.%d", id[13], id[14], id[15])
	return nil
}

func (tc *TestContext) failToLogIn(ctx context.Context) error {
	return tc.Login(wrongPassword)
}

func (tc *TestContext) failToLogInNTimes(ctx context.Context, times int) error {
	for i := 0; i < times; i++ {
		if err := tc.Login(wrongPassword); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) logInCorrectly(ctx context.Context) error {
	return tc.Login("hunter2")
}

func (tc *TestContext) addAddressToAllowlist(ctx context.Context) error {
	return tc.AdminRequest(http.MethodPost, "/admin/abuse/allowlist", map[string]string{
		"type":       "ip",
		"identifier": tc.ClientIP,
		"reason":     "e2e allowlist scenario",
	})
}

func (tc *TestContext) removeAddressFromAllowlist(ctx context.Context) error {
	return tc.AdminRequest(http.MethodDelete, "/admin/abuse/allowlist", map[string]string{
		"type":       "ip",
		"identifier": tc.ClientIP,
	})
}

func (tc *TestContext) requestAllowlist(ctx context.Context) error {
	return tc.AdminRequest(http.MethodGet, "/admin/abuse/allowlist", nil)
}

func (tc *TestContext) requestAllowlistWithoutToken(ctx context.Context) error {
	return tc.do(http.MethodGet, tc.AdminURL+"/admin/abuse/allowlist", nil, nil)
}

func (tc *TestContext) inspectLockState(ctx context.Context) error {
	return tc.AdminRequest(http.MethodGet, "/admin/abuse/locks/"+tc.Identifier, nil)
}

func (tc *TestContext) resetUserBuckets(ctx context.Context) error {
	return tc.AdminRequest(http.MethodPost, "/admin/abuse/buckets/reset", map[string]string{
		"type":       "identifier",
		"identifier": tc.Identifier,
	})
}

func (tc *TestContext) triggerSweep(ctx context.Context) error {
	return tc.AdminRequest(http.MethodPost, "/admin/abuse/sweep", nil)
}

func (tc *TestContext) requestRecentAudit(ctx context.Context, limit int) error {
	return tc.AdminRequest(http.MethodGet, fmt.Sprintf("/admin/abuse/audit?limit=%d", limit), nil)
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	if tc.LastResponse.StatusCode != expectedStatus {
		return fmt.Errorf("expected status %d but got %d\nbody: %s",
			expectedStatus, tc.LastResponse.StatusCode, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldContain(ctx context.Context, text string) error {
	if !tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q\nbody: %s", text, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	actualValue, ok := data[field]
	if !ok {
		return fmt.Errorf("field %s not found in response\nbody: %s", field, string(tc.LastResponseBody))
	}
	if fmt.Sprint(actualValue) != expectedValue {
		return fmt.Errorf("field %s: expected %s but got %v", field, expectedValue, actualValue)
	}
	return nil
}

func (tc *TestContext) responseHeaderShouldBePresent(ctx context.Context, name string) error {
	if tc.LastResponse.Header.Get(name) == "" {
		return fmt.Errorf("header %s not present in response", name)
	}
	return nil
}

func (tc *TestContext) responseHeaderShouldEqual(ctx context.Context, name, expected string) error {
	actual := tc.LastResponse.Header.Get(name)
	if actual != expected {
		return fmt.Errorf("header %s: expected %q but got %q", name, expected, actual)
	}
	return nil
}

func (tc *TestContext) retryAfterAtLeast(ctx context.Context, minimum int) error {
	raw := tc.LastResponse.Header.Get("Retry-After")
	if raw == "" {
		return fmt.Errorf("Retry-After header not present")
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("Retry-After is not an integer: %q", raw)
	}
	if value < minimum {
		return fmt.Errorf("Retry-After %d is below the minimum %d", value, minimum)
	}
	return nil
}
