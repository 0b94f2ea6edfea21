// Package handler exposes the admin HTTP surface over the abuse engine.
// All routes sit behind the admin token middleware; none of them are on the
// enforcement path.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bulwark/internal/ratelimit/models"
	dErrors "bulwark/pkg/domain-errors"
	"bulwark/pkg/platform/audit"
	"bulwark/pkg/platform/httputil"
	adminmw "bulwark/pkg/platform/middleware/admin"
	platformstrings "bulwark/pkg/platform/strings"
	"bulwark/pkg/requestcontext"
)

// defaultAuditLimit bounds the recent-events listing when the caller does not
// pass one; maxAuditLimit bounds what a caller may request.
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// maxBodyBytes caps admin request bodies.
const maxBodyBytes = 64 * 1024

// Service is the admin surface the handler fronts. Satisfied by admin.Service.
type Service interface {
	AddToAllowlist(ctx context.Context, req *models.AddAllowlistRequest, actor string) (*models.AllowlistEntry, error)
	RemoveFromAllowlist(ctx context.Context, req *models.RemoveAllowlistRequest, actor string) error
	ListAllowlist(ctx context.Context) ([]*models.AllowlistEntry, error)
	InspectBucket(ctx context.Context, entryType models.AllowlistEntryType, identifier string, action models.Action) (*models.BucketStatusResponse, error)
	ResetBucket(ctx context.Context, req *models.ResetBucketRequest, actor string) (*models.ResetBucketResponse, error)
	InspectLock(ctx context.Context, identifier string) *models.LockStatusResponse
	Unlock(ctx context.Context, req *models.UnlockRequest, actor string) error
	TriggerSweep(ctx context.Context) (*models.SweepResponse, error)
	RecentAudit(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/abuse", func(r chi.Router) {
		r.Post("/allowlist", h.HandleAddAllowlist)
		r.Delete("/allowlist", h.HandleRemoveAllowlist)
		r.Get("/allowlist", h.HandleListAllowlist)
		r.Get("/buckets", h.HandleInspectBucket)
		r.Post("/buckets/reset", h.HandleResetBucket)
		r.Get("/locks/{identifier}", h.HandleInspectLock)
		r.Post("/unlock", h.HandleUnlock)
		r.Post("/sweep", h.HandleTriggerSweep)
		r.Get("/audit", h.HandleRecentAudit)
	})
}

// HandleAddAllowlist implements POST /admin/abuse/allowlist.
// Input: { "type": "ip", "identifier": "203.0.113.7", "reason": "...", "expires_at": "..." }
func (h *Handler) HandleAddAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, ok := httputil.DecodeJSON[models.AddAllowlistRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	entry, err := h.service.AddToAllowlist(ctx, req, actor(ctx))
	if err != nil {
		h.writeError(w, r, err, "failed to add allowlist entry")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

// HandleRemoveAllowlist implements DELETE /admin/abuse/allowlist.
// Input: { "type": "ip", "identifier": "203.0.113.7" }
// Output: 204 No Content
func (h *Handler) HandleRemoveAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, ok := httputil.DecodeJSON[models.RemoveAllowlistRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.RemoveFromAllowlist(ctx, req, actor(ctx)); err != nil {
		h.writeError(w, r, err, "failed to remove allowlist entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListAllowlist implements GET /admin/abuse/allowlist.
func (h *Handler) HandleListAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.service.ListAllowlist(ctx)
	if err != nil {
		h.writeError(w, r, err, "failed to list allowlist entries")
		return
	}
	if entries == nil {
		entries = []*models.AllowlistEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleInspectBucket implements GET /admin/abuse/buckets?type=ip&identifier=...&action=login.
func (h *Handler) HandleInspectBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entryType, err := models.ParseAllowlistEntryType(r.URL.Query().Get("type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier query parameter is required"))
		return
	}
	if entryType == models.AllowlistTypeIdentifier {
		identifier = platformstrings.NormalizeIdentifier(identifier)
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "action query parameter is required"))
		return
	}

	status, err := h.service.InspectBucket(ctx, entryType, identifier, models.Action(action))
	if err != nil {
		h.writeError(w, r, err, "failed to inspect bucket")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleResetBucket implements POST /admin/abuse/buckets/reset.
// Input: { "type": "ip", "identifier": "203.0.113.7", "action": "login" };
// action is optional and widens the reset to every action bucket when absent.
func (h *Handler) HandleResetBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, ok := httputil.DecodeJSON[models.ResetBucketRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	resp, err := h.service.ResetBucket(ctx, req, actor(ctx))
	if err != nil {
		h.writeError(w, r, err, "failed to reset bucket")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleInspectLock implements GET /admin/abuse/locks/{identifier}.
func (h *Handler) HandleInspectLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// chi hands back the raw path segment, so percent-encoded identifiers
	// (alice%40example.com) must be unescaped before normalization.
	raw, err := url.PathUnescape(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier is not valid"))
		return
	}

	identifier := platformstrings.NormalizeIdentifier(raw)
	if identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier is required"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.service.InspectLock(ctx, identifier))
}

// HandleUnlock implements POST /admin/abuse/unlock.
// Input: { "identifier": "alice@example.com", "reason": "verified by support" }
// Output: 204 No Content
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, ok := httputil.DecodeJSON[models.UnlockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Unlock(ctx, req, actor(ctx)); err != nil {
		h.writeError(w, r, err, "failed to unlock identifier")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTriggerSweep implements POST /admin/abuse/sweep.
func (h *Handler) HandleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.TriggerSweep(ctx)
	if err != nil {
		h.writeError(w, r, err, "sweep failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRecentAudit implements GET /admin/abuse/audit?limit=100.
func (h *Handler) HandleRecentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxAuditLimit)
	}

	events, err := h.service.RecentAudit(ctx, limit)
	if err != nil {
		h.writeError(w, r, err, "failed to list audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	ctx := r.Context()
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

// actor resolves the admin identity for audit attribution. Token auth proves
// authorization, not identity; the actor header is attribution only.
func actor(ctx context.Context) string {
	if actorID := adminmw.GetAdminActorID(ctx); actorID != "" {
		return actorID
	}
	return "unknown"
}
