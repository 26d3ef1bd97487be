package forecast

import (
	"context"
	"math"
	"time"
)

// SeasonalNaive repeats the most recent full season.
type SeasonalNaive struct {
	params Params
}

func NewSeasonalNaive(p Params) *SeasonalNaive {
	return &SeasonalNaive{params: p.withDefaults()}
}

func (m *SeasonalNaive) Name() string { return ModelSeasonalNaive }

func (m *SeasonalNaive) Forecast(ctx context.Context, s Series, horizon int) ([]Point, error) {
	season := m.params.SeasonLength
	if err := checkInput(s, horizon, max(m.params.MinSamples, season)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pts := s.Points
	n := len(pts)
	base := m.baseConfidence(pts)
	last := pts[n-1].Time
	dt := step(s)

	out := make([]Point, 0, horizon)
	for h := 1; h <= horizon; h++ {
		ref := pts[n-season+(h-1)%season]
		out = append(out, Point{
			Time:       last.Add(time.Duration(h) * dt),
			Value:      nonNegative(ref.Value),
			Confidence: confidence(base, m.params.Decay, h),
		})
	}
	return out, nil
}

// baseConfidence scores how well last season predicted this one in-sample.
// With exactly one season of history there is nothing to score against.
func (m *SeasonalNaive) baseConfidence(pts []SeriesPoint) float64 {
	season := m.params.SeasonLength
	if len(pts) <= season {
		return 0.5
	}

	var errSum float64
	for i := season; i < len(pts); i++ {
		errSum += math.Abs(pts[i].Value - pts[i-season].Value)
	}
	mae := errSum / float64(len(pts)-season)
	return accuracyFromError(mae, meanAbs(pts[season:]))
}
