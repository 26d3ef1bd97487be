package inventory

import (
	"math"
	"time"
)

// Status is derived from an item's level on every read and never stored.
type Status string

const (
	StatusLow         Status = "low"
	StatusGood        Status = "good"
	StatusOptimal     Status = "optimal"
	StatusOverstocked Status = "overstocked"
)

// Thresholds place the optimal band inside [Minimum, Maximum] as fractions
// of that range.
type Thresholds struct {
	OptimalFloor   float64
	OptimalCeiling float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{OptimalFloor: 0.25, OptimalCeiling: 0.75}
}

// Item is one stocked ingredient at a location.
type Item struct {
	ID            string     `json:"id"`
	Location      string     `json:"location"`
	Name          string     `json:"name" validate:"required"`
	Unit          string     `json:"unit" validate:"required"`
	Current       float64    `json:"current" validate:"gte=0"`
	Minimum       float64    `json:"minimum" validate:"gte=0"`
	Maximum       float64    `json:"maximum" validate:"gtefield=Minimum"`
	Supplier      string     `json:"supplier"`
	AutoOrder     bool       `json:"autoOrder"`
	LastOrderedAt *time.Time `json:"lastOrderedAt,omitempty"`
}

// View is an Item as served, with its derived fields.
type View struct {
	Item
	Status      Status  `json:"status"`
	FillPercent float64 `json:"fillPercent"`
}

// Derive computes the served view of it.
func Derive(it Item, t Thresholds) View {
	fill := 0.0
	if it.Maximum > 0 {
		fill = math.Round(it.Current/it.Maximum*1000) / 10
	}
	return View{
		Item:        it,
		Status:      StatusOf(it.Current, it.Minimum, it.Maximum, t),
		FillPercent: fill,
	}
}

// StatusOf classifies current against the [minimum, maximum] band.
func StatusOf(current, minimum, maximum float64, t Thresholds) Status {
	switch {
	case current < minimum:
		return StatusLow
	case current > maximum:
		return StatusOverstocked
	case maximum == minimum:
		return StatusOptimal
	}

	pos := (current - minimum) / (maximum - minimum)
	if pos >= t.OptimalFloor && pos <= t.OptimalCeiling {
		return StatusOptimal
	}
	return StatusGood
}
