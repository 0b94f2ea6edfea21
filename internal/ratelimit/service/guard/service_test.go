package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulwark/internal/ratelimit/config"
	"bulwark/internal/ratelimit/models"
	"bulwark/internal/ratelimit/service/lockout"
	"bulwark/internal/ratelimit/service/tracker"
	"bulwark/internal/ratelimit/store/allowlist"
	"bulwark/internal/ratelimit/store/bucket"
	storelockout "bulwark/internal/ratelimit/store/lockout"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
	"bulwark/pkg/testutil"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *capturePublisher) Emit(_ context.Context, event audit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(eventType audit.AuditEvent) []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []audit.Event
	for _, e := range p.events {
		if e.Event == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	guard     *Service
	buckets   *bucket.MemoryStore
	allowlist *allowlist.MemoryStore
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	publisher := &capturePublisher{}

	buckets := bucket.NewMemory()
	trk, err := tracker.New(buckets, tracker.WithAuditPublisher(publisher))
	require.NoError(t, err)

	locks, err := lockout.New(storelockout.NewMemory(), lockout.WithAuditPublisher(publisher))
	require.NoError(t, err)

	allow := allowlist.NewMemory()

	svc, err := New(trk, locks, allow)
	require.NoError(t, err)

	return &fixture{guard: svc, buckets: buckets, allowlist: allow, publisher: publisher}
}

func loginRequest() models.CheckRequest {
	return models.CheckRequest{
		IP:         "203.0.113.7",
		Identifier: "alice@example.com",
		Action:     models.ActionLogin,
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestCheckAllowsFreshKey(t *testing.T) {
	f := newFixture(t)
	verdict := f.guard.Check(context.Background(), loginRequest())

	assert.True(t, verdict.Allowed)
	assert.Equal(t, 5, verdict.Limit)
	assert.Equal(t, 4, verdict.Remaining)
	assert.False(t, verdict.Locked)
	assert.Zero(t, verdict.RetryAfter)
}

// TestCheckWorkedExample walks the login policy (5 attempts / 5 min, captcha
// at 3, lockout at 10) through ten consecutive failures from one source.
func TestCheckWorkedExample(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	req := loginRequest()

	// Attempts 1-2: plain allows.
	for i := 1; i <= 2; i++ {
		verdict := f.guard.Check(ctx, req)
		assert.True(t, verdict.Allowed, "attempt %d", i)
		assert.False(t, verdict.RequiresCaptcha, "attempt %d", i)
	}

	// Attempts 3-5: allowed with the captcha signal raised.
	for i := 3; i <= 5; i++ {
		verdict := f.guard.Check(ctx, req)
		assert.True(t, verdict.Allowed, "attempt %d", i)
		assert.True(t, verdict.RequiresCaptcha, "attempt %d", i)
	}

	// Attempts 6-9: denied on the base window, no backoff escalation yet.
	for i := 6; i <= 9; i++ {
		verdict := f.guard.Check(ctx, req)
		assert.False(t, verdict.Allowed, "attempt %d", i)
		assert.False(t, verdict.Locked, "attempt %d", i)
		assert.GreaterOrEqual(t, verdict.RetryAfter, 1, "attempt %d", i)
	}

	// Attempt 10 crosses the lockout threshold.
	verdict := f.guard.Check(ctx, req)
	assert.False(t, verdict.Allowed)
	assert.True(t, verdict.Locked)
	assert.Equal(t, models.LayerLockout, verdict.Layer)
	assert.Equal(t, now.Add(15*time.Minute), verdict.LockedUntil)

	locked := f.publisher.byType(audit.EventAccountLocked)
	require.Len(t, locked, 1)
	assert.Equal(t, models.NewIdentifierKey(req.Identifier).String(), locked[0].Identifier)

	// Attempt 11: the standing lock takes precedence over the buckets.
	verdict = f.guard.Check(ctx, req)
	assert.True(t, verdict.Locked)
	require.Len(t, f.publisher.byType(audit.EventAccountLocked), 1, "no re-lock while locked")
}

func TestCheckLockExpiresWithWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	req := loginRequest()

	for i := 0; i < 10; i++ {
		f.guard.Check(ctx, req)
	}
	require.True(t, f.guard.Check(ctx, req).Locked)

	// Past both the lock and the (backoff-extended) bucket windows the key
	// behaves fresh.
	later := requestcontext.WithTime(context.Background(), now.Add(time.Hour))
	verdict := f.guard.Check(later, req)
	assert.True(t, verdict.Allowed)
	assert.False(t, verdict.Locked)
}

func TestCheckIPLayerBindsWithoutIdentifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := models.CheckRequest{IP: "203.0.113.7", Action: models.ActionLogin}

	for i := 0; i < 5; i++ {
		verdict := f.guard.Check(ctx, req)
		assert.True(t, verdict.Allowed)
	}
	verdict := f.guard.Check(ctx, req)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, models.LayerIP, verdict.Layer)
	assert.False(t, verdict.Locked, "IPs are never locked")
}

func TestCheckEitherLayerDenies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Exhaust the identifier bucket from rotating IPs: each IP stays under
	// its own limit while the identifier bucket fills.
	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"}
	var verdict models.Verdict
	for i := 0; i < 6; i++ {
		verdict = f.guard.Check(ctx, models.CheckRequest{
			IP:         ips[i%len(ips)],
			Identifier: "alice@example.com",
			Action:     models.ActionLogin,
		})
	}
	assert.False(t, verdict.Allowed)
	assert.Equal(t, models.LayerIdentifier, verdict.Layer)
}

func TestCheckMergeReportsLowerRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Warm the IP bucket with a different identifier first.
	f.guard.Check(ctx, models.CheckRequest{IP: "203.0.113.7", Identifier: "bob@example.com", Action: models.ActionLogin})

	verdict := f.guard.Check(ctx, loginRequest())
	assert.True(t, verdict.Allowed)
	// IP bucket is at 2 attempts, identifier bucket at 1: the IP layer binds.
	assert.Equal(t, models.LayerIP, verdict.Layer)
	assert.Equal(t, 3, verdict.Remaining)
}

func TestCheckAllowlistBypassesBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := models.NewAllowlistEntry(models.AllowlistTypeIP, "203.0.113.7", "load test source", "ops@example.com", nil)
	require.NoError(t, err)
	require.NoError(t, f.allowlist.Add(ctx, entry))

	req := loginRequest()
	for i := 0; i < 20; i++ {
		verdict := f.guard.Check(ctx, req)
		assert.True(t, verdict.Allowed, "attempt %d", i+1)
		assert.Equal(t, 5, verdict.Remaining, "bypass reports full quota")
	}
}

func TestCheckAllowlistDoesNotBypassLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := loginRequest()

	// Lock the identifier first, then allowlist the IP.
	for i := 0; i < 10; i++ {
		f.guard.Check(ctx, req)
	}
	require.True(t, f.guard.Check(ctx, req).Locked)

	entry, err := models.NewAllowlistEntry(models.AllowlistTypeIdentifier, req.Identifier, "vip", "ops@example.com", nil)
	require.NoError(t, err)
	require.NoError(t, f.allowlist.Add(ctx, entry))

	verdict := f.guard.Check(ctx, req)
	assert.False(t, verdict.Allowed, "the bypass covers counting, not explicit locks")
	assert.True(t, verdict.Locked)
}

func TestCheckUnknownActionFallsBackToAPIPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verdict := f.guard.Check(ctx, models.CheckRequest{IP: "203.0.113.7", Action: models.Action("mystery")})
	assert.True(t, verdict.Allowed)
	apiPolicy := config.DefaultConfig().PolicyFor(models.ActionAPI)
	assert.Equal(t, apiPolicy.MaxAttempts, verdict.Limit)
}

func TestClearAllThenCheckBehavesFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := loginRequest()

	for i := 0; i < 7; i++ {
		f.guard.Check(ctx, req)
	}
	require.False(t, f.guard.Check(ctx, req).Allowed)

	require.NoError(t, f.guard.ClearAll(ctx, req.IP, req.Identifier, req.Action))

	verdict := f.guard.Check(ctx, req)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 4, verdict.Remaining)
}

func TestCheckConcurrentAttemptsAllCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const goroutines = 32
	res := testutil.RunConcurrent(goroutines, func(int) error {
		f.guard.Check(ctx, models.CheckRequest{IP: "203.0.113.7", Action: models.ActionAPI})
		return nil
	})
	require.EqualValues(t, goroutines, res.Successes)

	b, err := f.buckets.Get(ctx, models.NewIPKey("203.0.113.7").String(), models.ActionAPI)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, goroutines, b.Attempts)
}
