package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"outreach-platform/internal/dispositions"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
	"outreach-platform/internal/reporting"
	"outreach-platform/pkg/apperr"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/validator"
)

const defaultReportRange = 24 * time.Hour

type Disposer interface {
	Dispose(ctx context.Context, sub dispositions.Submission) (dispositions.Disposed, error)
}

// QueueMover is the write surface of *queue.Transitioner used over HTTP.
type QueueMover interface {
	RecordTransition(ctx context.Context, ev queue.TransitionEvent) (queue.TransitionResult, error)
	Enqueue(ctx context.Context, userID string, queueType queue.Type, reason string) (queue.Entry, error)
	Reset(ctx context.Context, userID string, queueType queue.Type, reason string) (queue.TransitionResult, error)
}

type MonitorRunner interface {
	RunOnce(ctx context.Context) (monitor.Report, error)
}

type Reports interface {
	MonitorHealth(ctx context.Context, r reporting.TimeRange) (reporting.MonitorHealth, error)
	ConversionSummary(ctx context.Context, r reporting.TimeRange) (reporting.ConversionSummary, error)
	OutcomeSummary(ctx context.Context, r reporting.TimeRange) (reporting.OutcomeSummary, error)
}

type LatestMetrics interface {
	Latest(ctx context.Context) (monitor.HealthMetrics, bool, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dispositions Disposer
	Queue        QueueMover
	Monitor      MonitorRunner
	Reports      Reports
	// Latest is optional; health then reports only the stored history.
	Latest    LatestMetrics
	Validator *validator.Validator
	// Checks back /readyz, keyed by dependency name.
	Checks map[string]func(ctx context.Context) error
	Now    func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: what + " not configured"})
}

// Ready reports 503 when any dependency check fails.
func (h Handlers) Ready(c *gin.Context) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "dependency", name, "err", err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	c.JSON(status, gin.H{"dependencies": deps})
}

// --- Outcomes ---

// ListOutcomeTypes returns the outcome catalog for agent UIs.
func (h Handlers) ListOutcomeTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes.Catalog()})
}

// --- Dispositions ---

func (h Handlers) SubmitDisposition(c *gin.Context) {
	if h.Dispositions == nil {
		notConfigured(c, "dispositions")
		return
	}
	var req dispositions.Submission
	if !h.bindJSON(c, &req) {
		return
	}
	out, err := h.Dispositions.Dispose(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// --- Queue ---

type transitionRequest struct {
	UserID     string     `json:"user_id" validate:"required,max=64"`
	FromQueue  string     `json:"from_queue" validate:"omitempty,oneof=unsigned_users outstanding_requests"`
	ToQueue    string     `json:"to_queue" validate:"omitempty,oneof=unsigned_users outstanding_requests"`
	Reason     string     `json:"reason" validate:"max=500"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// RecordTransition accepts queue moves made by other systems (magic links,
// document uploads).
func (h Handlers) RecordTransition(c *gin.Context) {
	if h.Queue == nil {
		notConfigured(c, "queue")
		return
	}
	var req transitionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	from, err := queue.ParseType(req.FromQueue)
	if err != nil {
		abort(c, err)
		return
	}
	to, err := queue.ParseType(req.ToQueue)
	if err != nil {
		abort(c, err)
		return
	}
	ev := queue.TransitionEvent{UserID: req.UserID, FromQueue: from, ToQueue: to, Reason: req.Reason}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	out, err := h.Queue.RecordTransition(c.Request.Context(), ev)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

type enqueueRequest struct {
	UserID    string `json:"user_id" validate:"required,max=64"`
	QueueType string `json:"queue_type" validate:"required,oneof=unsigned_users outstanding_requests"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h Handlers) Enqueue(c *gin.Context) {
	if h.Queue == nil {
		notConfigured(c, "queue")
		return
	}
	var req enqueueRequest
	if !h.bindJSON(c, &req) {
		return
	}
	entry, err := h.Queue.Enqueue(c.Request.Context(), req.UserID, queue.Type(req.QueueType), req.Reason)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type resetRequest struct {
	QueueType string `json:"queue_type" validate:"required,oneof=unsigned_users outstanding_requests"`
	Reason    string `json:"reason" validate:"max=500"`
}

// ResetUser is the only way back into a queue for an inactive user.
func (h Handlers) ResetUser(c *gin.Context) {
	if h.Queue == nil {
		notConfigured(c, "queue")
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		abort(c, apperr.BadRequest("user_id required"))
		return
	}
	var req resetRequest
	if !h.bindJSON(c, &req) {
		return
	}
	out, err := h.Queue.Reset(c.Request.Context(), userID, queue.Type(req.QueueType), req.Reason)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Monitor ---

// MonitorHealth summarizes stored runs over ?from=&to= (RFC3339, default the
// last 24h) and adds the cached latest run when available.
func (h Handlers) MonitorHealth(c *gin.Context) {
	if h.Reports == nil {
		notConfigured(c, "reporting")
		return
	}
	rng, ok := h.timeRange(c)
	if !ok {
		return
	}
	summary, err := h.Reports.MonitorHealth(c.Request.Context(), rng)
	if err != nil {
		abort(c, err)
		return
	}

	resp := gin.H{"summary": summary}
	if h.Latest != nil {
		latest, found, err := h.Latest.Latest(c.Request.Context())
		switch {
		case err != nil:
			// History is still useful without the cache.
			resp["latest_error"] = "latest run unavailable"
		case found:
			resp["latest"] = latest
		}
	}
	c.JSON(http.StatusOK, resp)
}

// RunMonitor triggers one reconciliation pass. An overlapping run answers 409.
func (h Handlers) RunMonitor(c *gin.Context) {
	if h.Monitor == nil {
		notConfigured(c, "monitor")
		return
	}
	report, err := h.Monitor.RunOnce(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Reports ---

func (h Handlers) ConversionReport(c *gin.Context) {
	if h.Reports == nil {
		notConfigured(c, "reporting")
		return
	}
	rng, ok := h.timeRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.ConversionSummary(c.Request.Context(), rng)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) OutcomeReport(c *gin.Context) {
	if h.Reports == nil {
		notConfigured(c, "reporting")
		return
	}
	rng, ok := h.timeRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.OutcomeSummary(c.Request.Context(), rng)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) timeRange(c *gin.Context) (reporting.TimeRange, bool) {
	to := h.now()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			abort(c, apperr.BadRequest("to must be RFC3339"))
			return reporting.TimeRange{}, false
		}
		to = t.UTC()
	}
	from := to.Add(-defaultReportRange)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			abort(c, apperr.BadRequest("from must be RFC3339"))
			return reporting.TimeRange{}, false
		}
		from = t.UTC()
	}
	return reporting.TimeRange{From: from, To: to}, true
}
