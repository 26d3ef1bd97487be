package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priyankabp/stock-smart-kitchen/internal/aggregate"
	"github.com/priyankabp/stock-smart-kitchen/internal/forecast"
	"github.com/priyankabp/stock-smart-kitchen/internal/inventory"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

// Error codes carried in a structured ForecastError.
const CodeInsufficientData = "FCT_001"

// Options bounds query execution.
type Options struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	MaxHorizon     int
}

// Request asks for the rollup of one stream and, optionally, a forecast.
type Request struct {
	Location string
	Category string
	Range    kitchen.TimeRange
	Bucket   time.Duration
	Horizon  int

	// Timeout overrides Options.DefaultTimeout, capped at Options.MaxTimeout.
	Timeout time.Duration
}

// ForecastError explains why a forecast is missing from a Response whose
// aggregates are still valid.
type ForecastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Have    int    `json:"have"`
	Need    int    `json:"need"`
}

// Response is what the dashboard renders for one chart.
type Response struct {
	Location      string                   `json:"location"`
	Category      string                   `json:"category"`
	Bucket        string                   `json:"bucket"`
	From          time.Time                `json:"from"`
	To            time.Time                `json:"to"`
	Aggregates    []kitchen.Aggregate      `json:"aggregates"`
	Total         decimal.Decimal          `json:"total"`
	Forecast      []kitchen.ForecastResult `json:"forecast,omitempty"`
	ForecastError *ForecastError           `json:"forecastError,omitempty"`
}

// InventoryView is the full inventory panel of a location.
type InventoryView struct {
	Location      string                   `json:"location"`
	Items         []inventory.View         `json:"items"`
	Summary       inventory.Summary        `json:"summary"`
	PendingOrders []inventory.PendingOrder `json:"pendingOrders"`
	Suggestions   []inventory.Suggestion   `json:"suggestions"`
}

// Service composes rollups, forecasts and inventory into read-only views.
// It never writes to the time-series store.
type Service struct {
	engine     *aggregate.Engine
	model      forecast.Model
	ledger     *forecast.Ledger
	inventory  inventory.Repository
	thresholds inventory.Thresholds
	sites      map[string]kitchen.Site
	opts       Options

	now func() time.Time
}

func NewService(
	engine *aggregate.Engine,
	model forecast.Model,
	ledger *forecast.Ledger,
	inv inventory.Repository,
	thresholds inventory.Thresholds,
	sites []kitchen.Site,
	opts Options,
) *Service {
	known := make(map[string]kitchen.Site, len(sites))
	for _, s := range sites {
		known[s.ID] = s
	}
	return &Service{
		engine:     engine,
		model:      model,
		ledger:     ledger,
		inventory:  inv,
		thresholds: thresholds,
		sites:      known,
		opts:       opts,
		now:        time.Now,
	}
}

// Sites returns the configured locations.
func (s *Service) Sites() []kitchen.Site {
	out := make([]kitchen.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	return out
}

func (s *Service) checkLocation(location string) error {
	if _, ok := s.sites[location]; !ok {
		return fmt.Errorf("%w: %q", kitchen.ErrUnknownLocation, location)
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context, requested time.Duration) (context.Context, context.CancelFunc) {
	timeout := s.opts.DefaultTimeout
	if requested > 0 {
		timeout = requested
	}
	if s.opts.MaxTimeout > 0 && timeout > s.opts.MaxTimeout {
		timeout = s.opts.MaxTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) rollupRequest(req Request) aggregate.Request {
	return aggregate.Request{
		Stream: kitchen.StreamKey{Location: req.Location, Category: kitchen.NormalizeCategory(req.Category)},
		Bucket: req.Bucket,
		Range:  kitchen.TimeRange{Start: req.Range.Start.UTC(), End: req.Range.End.UTC()},
	}
}

// Aggregates returns the rollup for req and, when req.Horizon > 0, a
// forecast continuing it. A forecast that lacks history is reported in
// Response.ForecastError; it only fails the call when there are no
// aggregates to return either.
func (s *Service) Aggregates(ctx context.Context, req Request) (*Response, error) {
	if err := s.checkLocation(req.Location); err != nil {
		return nil, err
	}
	if req.Horizon < 0 || (s.opts.MaxHorizon > 0 && req.Horizon > s.opts.MaxHorizon) {
		return nil, fmt.Errorf("%w: horizon must be between 0 and %d", forecast.ErrInvalidHorizon, s.opts.MaxHorizon)
	}

	ctx, cancel := s.withTimeout(ctx, req.Timeout)
	defer cancel()

	areq := s.rollupRequest(req)
	aggs, err := s.engine.Rollup(ctx, areq)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Location:   areq.Stream.Location,
		Category:   areq.Stream.Category,
		Bucket:     areq.Bucket.String(),
		From:       areq.Range.Start,
		To:         areq.Range.End,
		Aggregates: aggs,
		Total:      decimal.Zero,
	}
	for _, a := range aggs {
		resp.Total = resp.Total.Add(a.Sum)
	}

	if req.Horizon == 0 {
		return resp, nil
	}

	results, err := s.forecast(ctx, areq, aggs, req.Horizon)
	var ide *kitchen.InsufficientDataError
	switch {
	case errors.As(err, &ide):
		if len(aggs) == 0 {
			return nil, err
		}
		resp.ForecastError = &ForecastError{
			Code:    CodeInsufficientData,
			Message: ide.Error(),
			Have:    ide.Have,
			Need:    ide.Need,
		}
	case err != nil:
		return nil, err
	default:
		resp.Forecast = results
		if s.ledger != nil {
			s.ledger.Record(results, areq.Bucket)
		}
	}
	return resp, nil
}

func (s *Service) forecast(ctx context.Context, areq aggregate.Request, aggs []kitchen.Aggregate, horizon int) ([]kitchen.ForecastResult, error) {
	series := forecast.Series{Step: areq.Bucket, Points: make([]forecast.SeriesPoint, 0, len(aggs))}
	for _, a := range aggs {
		series.Points = append(series.Points, forecast.SeriesPoint{Time: a.BucketStart, Value: a.Sum.InexactFloat64()})
	}

	pts, err := s.model.Forecast(ctx, series, horizon)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", kitchen.ErrTimeout, err)
		}
		return nil, err
	}

	out := make([]kitchen.ForecastResult, 0, len(pts))
	for _, p := range pts {
		out = append(out, kitchen.ForecastResult{
			Location:   areq.Stream.Location,
			Category:   areq.Stream.Category,
			TargetDate: p.Time,
			Predicted:  p.Value,
			Confidence: p.Confidence,
			Model:      s.model.Name(),
		})
	}
	return out, nil
}

// Correlation relates req's demand to local weather.
func (s *Service) Correlation(ctx context.Context, req Request) (*aggregate.Correlation, error) {
	if err := s.checkLocation(req.Location); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx, req.Timeout)
	defer cancel()

	return s.engine.Correlate(ctx, s.rollupRequest(req))
}

// Accuracy reports how past forecasts for location (and category) fared.
func (s *Service) Accuracy(_ context.Context, location, category string) (*forecast.AccuracyReport, error) {
	if err := s.checkLocation(location); err != nil {
		return nil, err
	}
	if category != "" {
		category = kitchen.NormalizeCategory(category)
	}
	rep := s.ledger.Report(location, category)
	return &rep, nil
}

// Inventory returns the inventory panel of location with derived statuses.
func (s *Service) Inventory(ctx context.Context, location string) (*InventoryView, error) {
	if err := s.checkLocation(location); err != nil {
		return nil, err
	}

	items, err := s.inventory.List(ctx, location)
	if err != nil {
		return nil, err
	}
	pending, err := s.inventory.PendingOrders(ctx, location)
	if err != nil {
		return nil, err
	}

	views := make([]inventory.View, 0, len(items))
	for _, it := range items {
		views = append(views, inventory.Derive(it, s.thresholds))
	}

	return &InventoryView{
		Location:      location,
		Items:         views,
		Summary:       inventory.Summarize(views, len(pending)),
		PendingOrders: pending,
		Suggestions:   inventory.ReorderSuggestions(views, pending),
	}, nil
}

// Actuals totals key over r. It backs forecast ledger reconciliation.
//
// An empty r counts as an actual of zero once the stream has observations
// after it: the bucket is closed and nothing was sold in it. Until then the
// data may simply not have arrived yet, and ok is false.
func (s *Service) Actuals(ctx context.Context, key kitchen.StreamKey, r kitchen.TimeRange) (float64, bool, error) {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	aggs, err := s.engine.Rollup(ctx, aggregate.Request{Stream: key, Bucket: r.End.Sub(r.Start), Range: r})
	if err != nil {
		return 0, false, err
	}
	if len(aggs) > 0 && aggs[0].Count > 0 {
		return aggs[0].Sum.InexactFloat64(), true, nil
	}

	later, err := s.engine.Observed(ctx, key, kitchen.TimeRange{Start: r.End, End: s.now().UTC()})
	if err != nil {
		return 0, false, err
	}
	return 0, later, nil
}

// Reconcile scores closed forecasts against what was actually sold.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	n, err := s.ledger.Reconcile(ctx, s.Actuals)
	if err != nil {
		log.ForContext(ctx).WithError(err).Warn("forecast reconciliation stopped early")
	}
	return n, err
}
