package query

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/priyankabp/stock-smart-kitchen/internal/aggregate"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

const maxParallelCategories = 4

// WasteRequest asks for the waste panel of a location.
type WasteRequest struct {
	Location string

	// Categories defaults to the ingredients stocked at Location.
	Categories []string

	Range   kitchen.TimeRange
	Bucket  time.Duration
	Timeout time.Duration
}

// WasteShare is the waste of one ingredient over the whole range.
type WasteShare struct {
	Category string          `json:"category"`
	Wasted   decimal.Decimal `json:"wasted"`
	Sold     decimal.Decimal `json:"sold"`
	Cost     decimal.Decimal `json:"cost"`

	// Percent is wasted / (wasted + sold); nil when nothing moved.
	Percent *float64 `json:"percent"`
}

// WastePoint is the waste of every requested ingredient in one bucket.
type WastePoint struct {
	BucketStart time.Time       `json:"bucketStart"`
	BucketEnd   time.Time       `json:"bucketEnd"`
	Wasted      decimal.Decimal `json:"wasted"`
	Cost        decimal.Decimal `json:"cost"`
}

// WasteView is what the waste reduction panel renders.
type WasteView struct {
	Location    string          `json:"location"`
	Bucket      string          `json:"bucket"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	ByCategory  []WasteShare    `json:"byCategory"`
	Trend       []WastePoint    `json:"trend"`
	TotalWasted decimal.Decimal `json:"totalWasted"`
	TotalCost   decimal.Decimal `json:"totalCost"`
}

type wasteRollup struct {
	share WasteShare
	trend []kitchen.Aggregate
}

// Waste returns per-ingredient waste shares over req.Range and the waste
// and cost trend in buckets of req.Bucket.
func (s *Service) Waste(ctx context.Context, req WasteRequest) (*WasteView, error) {
	if err := s.checkLocation(req.Location); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx, req.Timeout)
	defer cancel()

	categories, err := s.wasteCategories(ctx, req)
	if err != nil {
		return nil, err
	}

	rng := kitchen.TimeRange{Start: req.Range.Start.UTC(), End: req.Range.End.UTC()}
	view := &WasteView{
		Location:    req.Location,
		Bucket:      req.Bucket.String(),
		From:        rng.Start,
		To:          rng.End,
		ByCategory:  make([]WasteShare, 0, len(categories)),
		Trend:       []WastePoint{},
		TotalWasted: decimal.Zero,
		TotalCost:   decimal.Zero,
	}

	rollups := make([]wasteRollup, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCategories)
	for i, category := range categories {
		g.Go(func() error {
			r, err := s.wasteOf(gctx, req.Location, category, rng, req.Bucket)
			if err != nil {
				return err
			}
			rollups[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range rollups {
		view.ByCategory = append(view.ByCategory, r.share)
		view.TotalWasted = view.TotalWasted.Add(r.share.Wasted)
		view.TotalCost = view.TotalCost.Add(r.share.Cost)

		for i, a := range r.trend {
			if i == len(view.Trend) {
				view.Trend = append(view.Trend, WastePoint{
					BucketStart: a.BucketStart,
					BucketEnd:   a.BucketEnd,
					Wasted:      decimal.Zero,
					Cost:        decimal.Zero,
				})
			}
			view.Trend[i].Wasted = view.Trend[i].Wasted.Add(a.Sum)
			if a.CostSum != nil {
				view.Trend[i].Cost = view.Trend[i].Cost.Add(*a.CostSum)
			}
		}
	}
	return view, nil
}

func (s *Service) wasteCategories(ctx context.Context, req WasteRequest) ([]string, error) {
	seen := make(map[string]bool)
	out := make([]string, 0, len(req.Categories))
	add := func(c string) {
		c = kitchen.NormalizeCategory(c)
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	if len(req.Categories) > 0 {
		for _, c := range req.Categories {
			add(c)
		}
		return out, nil
	}

	items, err := s.inventory.List(ctx, req.Location)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		add(it.ID)
	}
	return out, nil
}

func (s *Service) wasteOf(ctx context.Context, location, category string, rng kitchen.TimeRange, bucket time.Duration) (wasteRollup, error) {
	trend, err := s.engine.Rollup(ctx, aggregate.Request{
		Stream: kitchen.StreamKey{Location: location, Category: kitchen.WasteCategory(category)},
		Bucket: bucket,
		Range:  rng,
	})
	if err != nil {
		return wasteRollup{}, err
	}

	out := wasteRollup{
		share: WasteShare{Category: category, Wasted: decimal.Zero, Sold: decimal.Zero, Cost: decimal.Zero},
		trend: trend,
	}
	for _, a := range trend {
		out.share.Wasted = out.share.Wasted.Add(a.Sum)
		if a.CostSum != nil {
			out.share.Cost = out.share.Cost.Add(*a.CostSum)
		}
	}

	if !rng.Empty() {
		sold, err := s.engine.Rollup(ctx, aggregate.Request{
			Stream: kitchen.StreamKey{Location: location, Category: category},
			Bucket: rng.End.Sub(rng.Start),
			Range:  rng,
		})
		if err != nil {
			return wasteRollup{}, err
		}
		for _, a := range sold {
			out.share.Sold = out.share.Sold.Add(a.Sum)
		}
	}

	moved := out.share.Wasted.Add(out.share.Sold)
	if !moved.IsZero() {
		pct := out.share.Wasted.Div(moved).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		out.share.Percent = &pct
	}
	return out, nil
}
