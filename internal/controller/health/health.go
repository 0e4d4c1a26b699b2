// Package health scores fleet liveness from controller status and heartbeat
// freshness, and flags controllers that have gone silent.
package health

import (
	"log/slog"
	"time"

	"vendcore/internal/controller/models"
)

// Grade buckets a controller's operational health.
type Grade string

const (
	GradeHealthy  Grade = "healthy"
	GradeDegraded Grade = "degraded"
	GradeSilent   Grade = "silent"
	GradeDown     Grade = "down"
)

// Report is the health assessment for one controller.
type Report struct {
	ControllerID  string
	Status        models.Status
	Grade         Grade
	LastHeartbeat *time.Time
	SilentFor     time.Duration
}

// Checker derives health reports from controller state the caller loads; it
// performs no I/O of its own. Thresholds default to one missed heartbeat
// window (degraded) and five (silent).
type Checker struct {
	log           *slog.Logger
	degradedAfter time.Duration
	silentAfter   time.Duration
}

type Option func(*Checker)

func WithThresholds(degradedAfter, silentAfter time.Duration) Option {
	return func(c *Checker) {
		c.degradedAfter = degradedAfter
		c.silentAfter = silentAfter
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Checker) { c.log = log }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		log:           slog.Default(),
		degradedAfter: time.Minute,
		silentAfter:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assess grades one controller without touching its state.
func (c *Checker) Assess(ctrl *models.Controller, now time.Time) Report {
	report := Report{
		ControllerID:  ctrl.ID,
		Status:        ctrl.Status,
		LastHeartbeat: ctrl.LastHeartbeatAt,
	}
	switch ctrl.Status {
	case models.StatusError:
		report.Grade = GradeDown
		return report
	case models.StatusConfiguring, models.StatusMaintenance:
		report.Grade = GradeHealthy
		return report
	}
	if ctrl.LastHeartbeatAt == nil {
		report.Grade = GradeSilent
		return report
	}
	report.SilentFor = now.Sub(*ctrl.LastHeartbeatAt)
	switch {
	case report.SilentFor >= c.silentAfter:
		report.Grade = GradeSilent
	case report.SilentFor >= c.degradedAfter:
		report.Grade = GradeDegraded
	default:
		report.Grade = GradeHealthy
	}
	return report
}

// Sweep grades the given controllers and returns the ones needing attention
// in input order.
func (c *Checker) Sweep(online []*models.Controller, now time.Time) []Report {
	var flagged []Report
	for _, ctrl := range online {
		report := c.Assess(ctrl, now)
		if report.Grade == GradeHealthy {
			continue
		}
		c.log.Warn("controller unhealthy",
			"controller_id", report.ControllerID, "grade", report.Grade,
			"silent_for", report.SilentFor)
		flagged = append(flagged, report)
	}
	return flagged
}
