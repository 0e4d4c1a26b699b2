// Package planning derives replenishment routes from container fill levels.
package planning

import (
	"sort"

	"vendcore/internal/container/models"
)

// Line is one refill proposal: bring a container back to capacity.
type Line struct {
	ContainerID  string
	ControllerID string
	ProductID    string
	Stock        int
	Capacity     int
	Refill       int
}

// Plan is a replenishment pass over the fleet, most depleted first.
type Plan struct {
	Lines      []Line
	TotalUnits int
}

// Planner proposes refills for containers whose fill level dropped below the
// threshold fraction. It works on the fleet the caller loads and performs no
// I/O of its own. Default threshold is a quarter full.
type Planner struct {
	threshold float64
}

type Option func(*Planner)

// WithThreshold sets the fill fraction below which a container is planned
// for refill.
func WithThreshold(fraction float64) Option {
	return func(p *Planner) { p.threshold = fraction }
}

func NewPlanner(opts ...Option) *Planner {
	p := &Planner{threshold: 0.25}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan proposes refills for the given containers. Containers in maintenance
// or error are skipped; a technician visit handles those.
func (p *Planner) Plan(containers []*models.Container) Plan {
	var plan Plan
	for _, c := range containers {
		if !p.needsRefill(c) {
			continue
		}
		refill := c.Capacity - c.Stock
		plan.Lines = append(plan.Lines, Line{
			ContainerID:  c.ID,
			ControllerID: c.ControllerID,
			ProductID:    c.ProductID,
			Stock:        c.Stock,
			Capacity:     c.Capacity,
			Refill:       refill,
		})
		plan.TotalUnits += refill
	}
	sort.Slice(plan.Lines, func(i, j int) bool {
		a, b := plan.Lines[i], plan.Lines[j]
		if a.Stock != b.Stock {
			return a.Stock < b.Stock
		}
		return a.ContainerID < b.ContainerID
	})
	return plan
}

func (p *Planner) needsRefill(c *models.Container) bool {
	switch c.Status {
	case models.StatusMaintenance, models.StatusError:
		return false
	}
	if c.Capacity == 0 {
		return false
	}
	return float64(c.Stock) < p.threshold*float64(c.Capacity)
}
