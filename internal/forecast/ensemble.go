package forecast

import (
	"context"
	"errors"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// Ensemble averages the predictions and confidences of its members.
// Members that cannot forecast the series are left out; the ensemble only
// fails when all of them do.
type Ensemble struct {
	params  Params
	members []Model
}

func NewEnsemble(p Params, members ...Model) *Ensemble {
	return &Ensemble{params: p.withDefaults(), members: members}
}

func (m *Ensemble) Name() string { return ModelEnsemble }

func (m *Ensemble) Forecast(ctx context.Context, s Series, horizon int) ([]Point, error) {
	if err := checkInput(s, horizon, m.params.MinSamples); err != nil {
		return nil, err
	}
	if len(m.members) == 0 {
		return nil, errors.New("ensemble has no members")
	}

	var (
		sum      []Point
		used     int
		firstErr error
	)
	for _, member := range m.members {
		pts, err := member.Forecast(ctx, s, horizon)
		if err != nil {
			if !errors.Is(err, kitchen.ErrInsufficientData) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if sum == nil {
			sum = make([]Point, horizon)
			for i := range pts {
				sum[i].Time = pts[i].Time
			}
		}
		for i := range pts {
			sum[i].Value += pts[i].Value
			sum[i].Confidence += pts[i].Confidence
		}
		used++
	}

	if used == 0 {
		return nil, firstErr
	}

	for i := range sum {
		sum[i].Value /= float64(used)
		sum[i].Confidence = clamp01(sum[i].Confidence / float64(used))
	}
	return sum, nil
}
