package ingest

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

const maxParallelStreams = 8

// Result reports what happened to the record at Index of the submitted batch.
type Result struct {
	Index    int                        `json:"index"`
	ID       string                     `json:"id,omitempty"`
	Accepted bool                       `json:"accepted"`
	Errors   []*kitchen.ValidationError `json:"errors,omitempty"`

	// Error is set when a valid record could not be written.
	Error string `json:"error,omitempty"`
}

// Publisher is notified of every observation after it was appended.
// Implementations must not block.
type Publisher interface {
	Publish(obs kitchen.Observation)
}

// Adapter validates raw records and appends the valid ones to the store.
// It never retries; a failed record is reported back to the caller.
type Adapter struct {
	appender kitchen.Appender
	sites    map[string]kitchen.Site
	validate *validator.Validate

	publishers []Publisher

	mu      sync.Mutex
	writers map[string]*sync.Mutex

	newID func() string
	now   func() time.Time
}

// NewAdapter creates an Adapter accepting records for the given sites only.
func NewAdapter(appender kitchen.Appender, sites []kitchen.Site) *Adapter {
	known := make(map[string]kitchen.Site, len(sites))
	for _, s := range sites {
		known[s.ID] = s
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Adapter{
		appender: appender,
		sites:    known,
		validate: v,
		writers:  make(map[string]*sync.Mutex),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Subscribe registers p for accepted observations.
func (a *Adapter) Subscribe(p Publisher) {
	a.publishers = append(a.publishers, p)
}

type pending struct {
	index int
	obs   kitchen.Observation
}

// Ingest returns exactly one Result per record, in input order.
//
// Records of different streams are appended in parallel. Within a stream
// records are appended one at a time in timestamp order, and no two Ingest
// calls write the same stream at once.
func (a *Adapter) Ingest(ctx context.Context, records []RawRecord) []Result {
	results := make([]Result, len(records))
	streams := make(map[string][]pending)
	receivedAt := a.now().UTC()

	for i, rec := range records {
		results[i].Index = i

		obs, errs := a.normalize(rec)
		if len(errs) > 0 {
			results[i].Errors = errs
			continue
		}
		obs.ReceivedAt = receivedAt
		results[i].ID = obs.ID

		key := obs.Stream().String()
		streams[key] = append(streams[key], pending{index: i, obs: obs})
	}

	var g errgroup.Group
	g.SetLimit(maxParallelStreams)
	for key, batch := range streams {
		g.Go(func() error {
			a.appendStream(ctx, key, batch, results)
			return nil
		})
	}
	_ = g.Wait()

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		}
	}
	log.ForContext(ctx).WithFields(log.Fields{
		"records":  len(records),
		"accepted": accepted,
		"rejected": len(records) - accepted,
		"streams":  len(streams),
	}).Debug("ingest batch processed")

	return results
}

func (a *Adapter) appendStream(ctx context.Context, key string, batch []pending, results []Result) {
	slices.SortStableFunc(batch, func(x, y pending) int {
		return x.obs.Timestamp.Compare(y.obs.Timestamp)
	})

	w := a.writer(key)
	w.Lock()
	defer w.Unlock()

	for _, p := range batch {
		if err := a.appender.Append(ctx, p.obs); err != nil {
			log.ForContext(ctx).WithError(err).WithField("stream", key).Warn("append failed")
			results[p.index].Error = err.Error()
			continue
		}
		results[p.index].Accepted = true
		for _, pub := range a.publishers {
			pub.Publish(p.obs)
		}
	}
}

func (a *Adapter) writer(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.writers[key]
	if !ok {
		w = &sync.Mutex{}
		a.writers[key] = w
	}
	return w
}

func (a *Adapter) normalize(rec RawRecord) (kitchen.Observation, []*kitchen.ValidationError) {
	errs := a.structErrors(rec)

	if rec.Location != "" {
		if _, ok := a.sites[rec.Location]; !ok {
			errs = append(errs, &kitchen.ValidationError{Field: "location", Reason: kitchen.ErrUnknownLocation.Error()})
		}
	}

	var ts time.Time
	if rec.Timestamp != "" {
		var err error
		if ts, err = ParseTime(rec.Timestamp); err != nil {
			errs = append(errs, &kitchen.ValidationError{Field: "timestamp", Reason: err.Error()})
		}
	}

	kind := rec.kind()
	category := kitchen.WeatherCategory
	if kind != KindWeather {
		category = kitchen.NormalizeCategory(rec.Category)
		switch {
		case rec.Category != "" && category == "":
			errs = append(errs, &kitchen.ValidationError{Field: "category", Reason: "is blank"})
		case kitchen.ReservedCategory(category):
			errs = append(errs, &kitchen.ValidationError{Field: "category", Reason: fmt.Sprintf("%q is reserved", category)})
		}
		if rec.Quantity == nil {
			errs = append(errs, &kitchen.ValidationError{Field: "quantity", Reason: "is required"})
		}
		if kind == KindWaste {
			category = kitchen.WasteCategory(category)
		}
	}

	for field, v := range map[string]*float64{
		"quantity":    rec.Quantity,
		"revenue":     rec.Revenue,
		"cost":        rec.Cost,
		"temperature": rec.Temperature,
		"humidity":    rec.Humidity,
		"windSpeed":   rec.WindSpeed,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			errs = append(errs, &kitchen.ValidationError{Field: field, Reason: "must be a finite number"})
		}
	}

	if len(errs) > 0 {
		slices.SortFunc(errs, func(x, y *kitchen.ValidationError) int {
			return strings.Compare(x.Field, y.Field)
		})
		return kitchen.Observation{}, errs
	}

	id := rec.ID
	if id == "" {
		id = a.newID()
	}

	obs := kitchen.Observation{
		ID:           id,
		Location:     rec.Location,
		Category:     category,
		Timestamp:    ts,
		Source:       kitchen.Source(kind),
		Revenue:      rec.Revenue,
		Cost:         rec.Cost,
		Temperature:  rec.Temperature,
		Humidity:     rec.Humidity,
		WindSpeed:    rec.WindSpeed,
		VisitorCount: rec.VisitorCount,
		Condition:    strings.ToLower(strings.TrimSpace(rec.Condition)),
	}
	if rec.Quantity != nil {
		obs.Quantity = *rec.Quantity
	}
	return obs, nil
}

func (a *Adapter) structErrors(rec RawRecord) []*kitchen.ValidationError {
	err := a.validate.Struct(rec)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*kitchen.ValidationError{{Field: "record", Reason: err.Error()}}
	}

	out := make([]*kitchen.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, &kitchen.ValidationError{Field: fe.Field(), Reason: reason(fe)})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid":
		return "must be a UUID"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
