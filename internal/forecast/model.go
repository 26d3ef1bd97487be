package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// Model names accepted by the registry.
const (
	ModelSeasonalNaive = "seasonal_naive"
	ModelLinear        = "linear"
	ModelEnsemble      = "ensemble"
)

var (
	ErrUnknownModel   = errors.New("unknown forecast model")
	ErrInvalidHorizon = errors.New("horizon must not be negative")
)

// SeriesPoint is one bucket of history.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is an evenly spaced history, oldest first.
type Series struct {
	Step   time.Duration
	Points []SeriesPoint
}

// Point is one predicted bucket.
type Point struct {
	Time       time.Time `json:"time"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
}

// Model predicts the next buckets of a series.
//
// Forecast returns exactly horizon points, each with Confidence in [0,1],
// or a *kitchen.InsufficientDataError when the series is too short.
type Model interface {
	Name() string
	Forecast(ctx context.Context, s Series, horizon int) ([]Point, error)
}

// Params configures every model variant.
type Params struct {
	// MinSamples is the shortest history any model will forecast from.
	MinSamples int

	// SeasonLength is the number of buckets in one season, 7 for daily
	// buckets with a weekly pattern.
	SeasonLength int

	// Decay multiplies confidence once per step beyond the first.
	Decay float64
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		MinSamples:   7,
		SeasonLength: 7,
		Decay:        0.95,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MinSamples <= 0 {
		p.MinSamples = d.MinSamples
	}
	if p.SeasonLength <= 0 {
		p.SeasonLength = d.SeasonLength
	}
	if p.Decay <= 0 || p.Decay > 1 {
		p.Decay = d.Decay
	}
	return p
}

// Constructor builds a Model from Params.
type Constructor func(Params) Model

// Registry maps configured model names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in models.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register(ModelSeasonalNaive, func(p Params) Model { return NewSeasonalNaive(p) })
	r.Register(ModelLinear, func(p Params) Model { return NewLinearRegression(p) })
	r.Register(ModelEnsemble, func(p Params) Model {
		return NewEnsemble(p, NewSeasonalNaive(p), NewLinearRegression(p))
	})
	return r
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// New builds the model registered under name.
func (r *Registry) New(name string, p Params) (Model, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return ctor(p.withDefaults()), nil
}

// Names lists registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func checkInput(s Series, horizon, need int) error {
	if horizon < 0 {
		return ErrInvalidHorizon
	}
	if len(s.Points) < need {
		return &kitchen.InsufficientDataError{Have: len(s.Points), Need: need}
	}
	return nil
}

// step returns the spacing of s, falling back to the gap between the last
// two points when Step is unset.
func step(s Series) time.Duration {
	if s.Step > 0 {
		return s.Step
	}
	n := len(s.Points)
	if n >= 2 {
		return s.Points[n-1].Time.Sub(s.Points[n-2].Time)
	}
	return 0
}

// confidence decays base by decay for every step past the first.
func confidence(base, decay float64, h int) float64 {
	return clamp01(base * math.Pow(decay, float64(h-1)))
}

// accuracyFromError turns a relative error into a base confidence.
func accuracyFromError(errSum, scale float64) float64 {
	if scale == 0 {
		if errSum == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - errSum/scale)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func meanAbs(points []SeriesPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += math.Abs(p.Value)
	}
	return sum / float64(len(points))
}

func nonNegative(v float64) float64 {
	return math.Max(0, v)
}
