package forecast

import (
	"context"
	"math"
	"time"
)

// LinearRegression fits a least-squares trend line over bucket index.
type LinearRegression struct {
	params Params
}

func NewLinearRegression(p Params) *LinearRegression {
	return &LinearRegression{params: p.withDefaults()}
}

func (m *LinearRegression) Name() string { return ModelLinear }

func (m *LinearRegression) Forecast(ctx context.Context, s Series, horizon int) ([]Point, error) {
	if err := checkInput(s, horizon, max(m.params.MinSamples, 2)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slope, intercept := fit(s.Points)
	base := accuracyFromError(rmse(s.Points, slope, intercept), meanAbs(s.Points))

	n := len(s.Points)
	last := s.Points[n-1].Time
	dt := step(s)

	out := make([]Point, 0, horizon)
	for h := 1; h <= horizon; h++ {
		x := float64(n - 1 + h)
		out = append(out, Point{
			Time:       last.Add(time.Duration(h) * dt),
			Value:      nonNegative(intercept + slope*x),
			Confidence: confidence(base, m.params.Decay, h),
		})
	}
	return out, nil
}

func fit(pts []SeriesPoint) (slope, intercept float64) {
	n := float64(len(pts))
	var sx, sy, sxx, sxy float64
	for i, p := range pts {
		x := float64(i)
		sx += x
		sy += p.Value
		sxx += x * x
		sxy += x * p.Value
	}

	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / denom
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

func rmse(pts []SeriesPoint, slope, intercept float64) float64 {
	var ss float64
	for i, p := range pts {
		r := p.Value - (intercept + slope*float64(i))
		ss += r * r
	}
	return math.Sqrt(ss / float64(len(pts)))
}
