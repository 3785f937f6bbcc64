package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"freeswitch-bridge/internal/attempts"
	"freeswitch-bridge/internal/auth"
	"freeswitch-bridge/internal/dialer"
	"freeswitch-bridge/internal/rbac"
	"freeswitch-bridge/internal/routing"
	"freeswitch-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Dialer interface {
	Dial(ctx context.Context, req dialer.DialRequest) dialer.Result
}

type History interface {
	History(ctx context.Context, workspaceID, campaignID string) ([]attempts.Record, error)
	Summary(ctx context.Context, workspaceID, campaignID string) (attempts.Summary, error)
}

// Slots caps concurrent campaign attempts across processes.
type Slots interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ReadyCheck reports whether one dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dialer  Dialer
	Plan    routing.DialPlan
	History History
	// Slots is optional; nil means no cap.
	Slots Slots
	Ready map[string]ReadyCheck

	// DialTimeout bounds one campaign attempt once detached from the request.
	DialTimeout time.Duration
}

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.Ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// dialRequest carries no campaign id: every attempt gets a fresh one so two
// requests can never share a history.
type dialRequest struct {
	Lead   string   `json:"lead"`
	Agents []string `json:"agents"`
}

// Dial runs one campaign attempt and answers with its disposition.
// RBAC: owner, agent, super_admin.
//
// The attempt is detached from the client connection: a caller hanging up
// must not leave half-bridged legs behind. Only DialTimeout cancels it.
func (h Handlers) Dial(c *gin.Context) {
	log := logger.FromGin(c)
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	route, err := h.Plan.Resolve(req.Lead, req.Agents)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Slots != nil {
		ok, err := h.Slots.Acquire(c.Request.Context())
		if err != nil {
			log.Error("concurrency cap unavailable", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "concurrency cap unavailable"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent campaign attempts"})
			return
		}
		defer func() {
			if err := h.Slots.Release(context.WithoutCancel(c.Request.Context())); err != nil {
				log.Warn("concurrency slot release failed", "err", err)
			}
		}()
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if h.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.DialTimeout)
		defer cancel()
	}

	res := h.Dialer.Dial(ctx, dialer.DialRequest{
		WorkspaceID: workspaceID,
		CampaignID:  uuid.NewString(),
		Lead:        route.Lead,
		Agents:      route.Agents,
	})

	status := http.StatusOK
	if res.Disposition == dialer.DispositionError {
		status = http.StatusBadGateway
	}
	c.JSON(status, res)
}

// Attempts lists the attempt history of one campaign in the caller's workspace.
// RBAC: owner, analyst, super_admin.
func (h Handlers) Attempts(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rows, err := h.History.History(c.Request.Context(), workspaceID, c.Param("campaign_id"))
	if err != nil {
		h.historyError(c, err)
		return
	}
	if len(rows) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": c.Param("campaign_id"), "attempts": rows})
}

// Summary aggregates the attempt history of one campaign. Unknown campaigns
// answer 404 like Attempts.
func (h Handlers) Summary(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	sum, err := h.History.Summary(c.Request.Context(), workspaceID, c.Param("campaign_id"))
	if err != nil {
		h.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) historyError(c *gin.Context, err error) {
	if errors.Is(err, attempts.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, attempts.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	logger.FromGin(c).Error("attempt history lookup failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
}

// RequireWorkspaceAndAnyRole bundles the tenant and role checks for a route group.
func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
