package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bulwark/internal/ratelimit/admin/mocks"
	"bulwark/internal/ratelimit/models"
	dErrors "bulwark/pkg/domain-errors"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/requestcontext"
)

// =============================================================================
// Admin Service Test Suite
// =============================================================================
// Justification for unit tests: The admin service is a thin orchestration layer
// over the stores. Tests verify constructor invariants, input normalization,
// error propagation, and audit event emission.

type capturePublisher struct {
	events []audit.Event
}

func (p *capturePublisher) Emit(_ context.Context, event audit.Event) {
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(event audit.AuditEvent) []audit.Event {
	var out []audit.Event
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type AdminServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockAllowlist *mocks.MockAllowlistStore
	mockBuckets   *mocks.MockBucketStore
	mockLockouts  *mocks.MockLockoutMachine
	mockSweeper   *mocks.MockSweeper
	publisher     *capturePublisher
	service       *Service
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockAllowlist = mocks.NewMockAllowlistStore(s.ctrl)
	s.mockBuckets = mocks.NewMockBucketStore(s.ctrl)
	s.mockLockouts = mocks.NewMockLockoutMachine(s.ctrl)
	s.mockSweeper = mocks.NewMockSweeper(s.ctrl)
	s.publisher = &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service, _ = New(
		s.mockAllowlist,
		s.mockBuckets,
		s.mockLockouts,
		WithLogger(logger),
		WithAuditPublisher(s.publisher),
		WithSweeper(s.mockSweeper),
	)
}

func (s *AdminServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *AdminServiceSuite) TestNew() {
	s.Run("nil allowlist store returns error", func() {
		_, err := New(nil, s.mockBuckets, s.mockLockouts)
		s.Error(err)
		s.Contains(err.Error(), "allowlist store is required")
	})

	s.Run("nil bucket store returns error", func() {
		_, err := New(s.mockAllowlist, nil, s.mockLockouts)
		s.Error(err)
		s.Contains(err.Error(), "bucket store is required")
	})

	s.Run("nil lockout machine returns error", func() {
		_, err := New(s.mockAllowlist, s.mockBuckets, nil)
		s.Error(err)
		s.Contains(err.Error(), "lockout machine is required")
	})

	s.Run("valid dependencies returns configured service", func() {
		svc, err := New(s.mockAllowlist, s.mockBuckets, s.mockLockouts)
		s.NoError(err)
		s.NotNil(svc)
		s.Nil(svc.sweeper)
	})
}

// =============================================================================
// Allowlist Tests
// =============================================================================

func (s *AdminServiceSuite) TestAddToAllowlist() {
	ctx := context.Background()

	s.Run("mixed case identifier is normalized before storage", func() {
		req := &models.AddAllowlistRequest{
			Type:       "  IDENTIFIER  ",
			Identifier: "  Partner@Example.COM  ",
			Reason:     "  trusted integration  ",
		}

		s.mockAllowlist.EXPECT().
			Add(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, entry *models.AllowlistEntry) error {
				s.Equal(models.AllowlistTypeIdentifier, entry.Type)
				s.Equal("partner@example.com", entry.Identifier)
				s.Equal("trusted integration", entry.Reason)
				s.Equal("ops@example.com", entry.CreatedBy)
				return nil
			})

		entry, err := s.service.AddToAllowlist(ctx, req, "ops@example.com")
		s.NoError(err)
		s.NotEmpty(entry.ID)

		added := s.publisher.byType(audit.EventAllowlistAdded)
		s.Require().Len(added, 1)
		s.Equal("partner@example.com", added[0].Identifier)
		s.Equal("ops@example.com", added[0].Details["actor"])
	})

	s.Run("invalid type returns validation error", func() {
		req := &models.AddAllowlistRequest{
			Type:       "subnet",
			Identifier: "203.0.113.0/24",
			Reason:     "office range",
		}

		_, err := s.service.AddToAllowlist(ctx, req, "ops@example.com")
		s.Error(err)
	})

	s.Run("past expiry returns validation error", func() {
		past := time.Now().Add(-time.Hour)
		req := &models.AddAllowlistRequest{
			Type:       "ip",
			Identifier: "203.0.113.7",
			Reason:     "load test",
			ExpiresAt:  &past,
		}

		_, err := s.service.AddToAllowlist(ctx, req, "ops@example.com")
		s.Error(err)
		s.Contains(err.Error(), "expires_at must be in the future")
	})

	s.Run("store failure maps to unavailable", func() {
		req := &models.AddAllowlistRequest{
			Type:       "ip",
			Identifier: "203.0.113.7",
			Reason:     "load test",
		}

		s.mockAllowlist.EXPECT().
			Add(ctx, gomock.Any()).
			Return(errors.New("connection refused"))

		_, err := s.service.AddToAllowlist(ctx, req, "ops@example.com")
		s.Require().Error(err)
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})
}

func (s *AdminServiceSuite) TestRemoveFromAllowlist() {
	ctx := context.Background()

	s.Run("removes normalized entry and audits", func() {
		req := &models.RemoveAllowlistRequest{
			Type:       "  IP  ",
			Identifier: "  203.0.113.7  ",
		}

		s.mockAllowlist.EXPECT().
			Remove(ctx, models.AllowlistTypeIP, "203.0.113.7").
			Return(nil)

		s.NoError(s.service.RemoveFromAllowlist(ctx, req, "ops@example.com"))

		removed := s.publisher.byType(audit.EventAllowlistRemoved)
		s.Require().Len(removed, 1)
		s.Equal("203.0.113.7", removed[0].Identifier)
	})

	s.Run("missing identifier returns validation error", func() {
		req := &models.RemoveAllowlistRequest{Type: "ip"}
		s.Error(s.service.RemoveFromAllowlist(ctx, req, "ops@example.com"))
	})
}

func (s *AdminServiceSuite) TestListAllowlist() {
	ctx := context.Background()

	s.Run("passes entries through", func() {
		entry, err := models.NewAllowlistEntry(models.AllowlistTypeIP, "203.0.113.7", "load test", "ops@example.com", nil)
		s.Require().NoError(err)

		s.mockAllowlist.EXPECT().
			List(ctx).
			Return([]*models.AllowlistEntry{entry}, nil)

		entries, err := s.service.ListAllowlist(ctx)
		s.NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(entry.ID, entries[0].ID)
	})

	s.Run("store failure maps to unavailable", func() {
		s.mockAllowlist.EXPECT().
			List(ctx).
			Return(nil, errors.New("connection refused"))

		_, err := s.service.ListAllowlist(ctx)
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})
}

// =============================================================================
// Bucket Inspection and Reset Tests
// =============================================================================

func (s *AdminServiceSuite) TestInspectBucket() {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	s.Run("returns bucket state with expiry computed", func() {
		s.mockBuckets.EXPECT().
			Get(ctx, "ip:203.0.113.7", models.Action("login")).
			Return(&models.Bucket{
				Identifier: "ip:203.0.113.7",
				Action:     "login",
				Attempts:   4,
				ResetAt:    now.Add(2 * time.Minute),
			}, nil)

		resp, err := s.service.InspectBucket(ctx, models.AllowlistTypeIP, "203.0.113.7", "login")
		s.NoError(err)
		s.Equal(4, resp.Attempts)
		s.False(resp.Expired)
	})

	s.Run("absent bucket returns not found", func() {
		s.mockBuckets.EXPECT().
			Get(ctx, "identifier:ghost@example.com", models.Action("login")).
			Return(nil, nil)

		_, err := s.service.InspectBucket(ctx, models.AllowlistTypeIdentifier, "ghost@example.com", "login")
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeNotFound, dErr.Code)
	})
}

func (s *AdminServiceSuite) TestResetBucket() {
	ctx := context.Background()

	s.Run("with action resets one bucket", func() {
		req := &models.ResetBucketRequest{
			Type:       "ip",
			Identifier: "203.0.113.7",
			Action:     "login",
		}

		s.mockBuckets.EXPECT().
			Delete(ctx, "ip:203.0.113.7", models.Action("login")).
			Return(nil)

		resp, err := s.service.ResetBucket(ctx, req, "ops@example.com")
		s.NoError(err)
		s.Equal(1, resp.Deleted)

		resets := s.publisher.byType(audit.EventBucketReset)
		s.Require().Len(resets, 1)
		s.Equal("ip:203.0.113.7", resets[0].Identifier)
	})

	s.Run("without action resets every bucket for the key", func() {
		req := &models.ResetBucketRequest{
			Type:       "identifier",
			Identifier: "  Alice@Example.COM  ",
		}

		s.mockBuckets.EXPECT().
			DeleteByIdentifier(ctx, "identifier:alice@example.com").
			Return(int64(3), nil)

		resp, err := s.service.ResetBucket(ctx, req, "ops@example.com")
		s.NoError(err)
		s.Equal(3, resp.Deleted)
	})

	s.Run("store failure maps to unavailable", func() {
		req := &models.ResetBucketRequest{
			Type:       "ip",
			Identifier: "203.0.113.7",
		}

		s.mockBuckets.EXPECT().
			DeleteByIdentifier(ctx, "ip:203.0.113.7").
			Return(int64(0), errors.New("connection refused"))

		_, err := s.service.ResetBucket(ctx, req, "ops@example.com")
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})
}

// =============================================================================
// Lock Inspection and Unlock Tests
// =============================================================================

func (s *AdminServiceSuite) TestInspectLock() {
	ctx := context.Background()
	until := time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC)

	s.Run("locked identifier reports full state", func() {
		s.mockLockouts.EXPECT().
			Status(ctx, models.NewIdentifierKey("alice@example.com")).
			Return(models.LockStatus{
				State:       models.LockStateLocked,
				LockedUntil: until,
				Attempts:    10,
				Reason:      "too many failed attempts",
			})

		resp := s.service.InspectLock(ctx, "alice@example.com")
		s.Equal(models.LockStateLocked, resp.State)
		s.Require().NotNil(resp.LockedUntil)
		s.Equal(until, *resp.LockedUntil)
		s.Equal(10, resp.Attempts)
	})

	s.Run("unlocked identifier reports bare state", func() {
		s.mockLockouts.EXPECT().
			Status(ctx, models.NewIdentifierKey("bob@example.com")).
			Return(models.LockStatus{State: models.LockStateUnlocked})

		resp := s.service.InspectLock(ctx, "bob@example.com")
		s.Equal(models.LockStateUnlocked, resp.State)
		s.Nil(resp.LockedUntil)
	})
}

func (s *AdminServiceSuite) TestUnlock() {
	ctx := context.Background()

	s.Run("normalizes identifier before unlocking", func() {
		req := &models.UnlockRequest{Identifier: "  Alice@Example.COM  "}

		s.mockLockouts.EXPECT().
			Unlock(ctx, models.NewIdentifierKey("alice@example.com")).
			Return(nil)

		s.NoError(s.service.Unlock(ctx, req, "ops@example.com"))
	})

	s.Run("missing identifier returns validation error", func() {
		req := &models.UnlockRequest{}
		s.Error(s.service.Unlock(ctx, req, "ops@example.com"))
	})
}

// =============================================================================
// Sweep and Audit Tests
// =============================================================================

func (s *AdminServiceSuite) TestTriggerSweep() {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	s.Run("runs one pass and audits totals", func() {
		s.mockSweeper.EXPECT().
			Sweep(ctx, now).
			Return(&models.SweepResult{BucketsDeleted: 12, LockoutsDeleted: 3}, nil)

		resp, err := s.service.TriggerSweep(ctx)
		s.NoError(err)
		s.Equal(int64(12), resp.BucketsDeleted)
		s.Equal(int64(3), resp.LockoutsDeleted)
		s.Equal(now, resp.SweptAt)

		sweeps := s.publisher.byType(audit.EventSweepCompleted)
		s.Require().Len(sweeps, 1)
	})

	s.Run("sweeper failure maps to unavailable", func() {
		s.mockSweeper.EXPECT().
			Sweep(ctx, now).
			Return(nil, errors.New("store timeout"))

		_, err := s.service.TriggerSweep(ctx)
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})

	s.Run("unconfigured sweeper returns unavailable", func() {
		svc, err := New(s.mockAllowlist, s.mockBuckets, s.mockLockouts)
		s.Require().NoError(err)

		_, err = svc.TriggerSweep(ctx)
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})
}

func (s *AdminServiceSuite) TestRecentAudit() {
	ctx := context.Background()

	s.Run("passes events through", func() {
		reader := mocks.NewMockAuditReader(s.ctrl)
		svc, err := New(s.mockAllowlist, s.mockBuckets, s.mockLockouts, WithAuditReader(reader))
		s.Require().NoError(err)

		reader.EXPECT().
			ListRecent(ctx, 50).
			Return([]audit.Event{{Event: audit.EventAccountLocked}}, nil)

		events, err := svc.RecentAudit(ctx, 50)
		s.NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.EventAccountLocked, events[0].Event)
	})

	s.Run("unconfigured reader returns unavailable", func() {
		_, err := s.service.RecentAudit(ctx, 50)
		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.Equal(dErrors.CodeUnavailable, dErr.Code)
	})
}
