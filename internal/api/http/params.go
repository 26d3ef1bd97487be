package httpapi

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/priyankabp/stock-smart-kitchen/internal/ingest"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/query"
)

var validate = validator.New()

// streamQuery holds the query parameters shared by aggregate and
// correlation requests.
type streamQuery struct {
	Location string `query:"location" validate:"required"`
	Category string `query:"category" validate:"required,max=64"`
	From     string `query:"from" validate:"required"`
	To       string `query:"to" validate:"required"`
	Bucket   string `query:"bucket"`
	Horizon  int    `query:"horizon" validate:"gte=0"`
	Timeout  string `query:"timeout"`
}

func parseStreamQuery(c *fiber.Ctx) (query.Request, error) {
	var q streamQuery
	if err := c.QueryParser(&q); err != nil {
		return query.Request{}, badRequest("invalid query parameters: %v", err)
	}
	if err := validate.Struct(q); err != nil {
		return query.Request{}, validationError(err)
	}

	rng, err := parseRange(q.From, q.To)
	if err != nil {
		return query.Request{}, err
	}

	bucket, err := parseBucket(q.Bucket)
	if err != nil {
		return query.Request{}, err
	}

	timeout, err := parseTimeout(q.Timeout)
	if err != nil {
		return query.Request{}, err
	}

	return query.Request{
		Location: q.Location,
		Category: q.Category,
		Range:    rng,
		Bucket:   bucket,
		Horizon:  q.Horizon,
		Timeout:  timeout,
	}, nil
}

// wasteQuery holds the query parameters of the waste panel. Categories is
// a comma separated list; empty means every stocked ingredient.
type wasteQuery struct {
	Location   string `query:"location" validate:"required"`
	Categories string `query:"categories" validate:"max=1024"`
	From       string `query:"from" validate:"required"`
	To         string `query:"to" validate:"required"`
	Bucket     string `query:"bucket"`
	Timeout    string `query:"timeout"`
}

func parseWasteQuery(c *fiber.Ctx) (query.WasteRequest, error) {
	var q wasteQuery
	if err := c.QueryParser(&q); err != nil {
		return query.WasteRequest{}, badRequest("invalid query parameters: %v", err)
	}
	if err := validate.Struct(q); err != nil {
		return query.WasteRequest{}, validationError(err)
	}

	rng, err := parseRange(q.From, q.To)
	if err != nil {
		return query.WasteRequest{}, err
	}

	if q.Bucket == "" {
		q.Bucket = "month"
	}
	bucket, err := parseBucket(q.Bucket)
	if err != nil {
		return query.WasteRequest{}, err
	}
	timeout, err := parseTimeout(q.Timeout)
	if err != nil {
		return query.WasteRequest{}, err
	}

	req := query.WasteRequest{
		Location: q.Location,
		Range:    rng,
		Bucket:   bucket,
		Timeout:  timeout,
	}
	for _, category := range strings.Split(q.Categories, ",") {
		if category = strings.TrimSpace(category); category != "" {
			req.Categories = append(req.Categories, category)
		}
	}
	return req, nil
}

func parseRange(fromRaw, toRaw string) (kitchen.TimeRange, error) {
	from, err := ingest.ParseTime(fromRaw)
	if err != nil {
		return kitchen.TimeRange{}, badRequest("from: %v", err)
	}
	to, err := ingest.ParseTime(toRaw)
	if err != nil {
		return kitchen.TimeRange{}, badRequest("to: %v", err)
	}
	if to.Before(from) {
		return kitchen.TimeRange{}, badRequest("to must not be before from")
	}
	return kitchen.TimeRange{Start: from, End: to}, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, badRequest("timeout must be a positive duration such as 2s")
	}
	return d, nil
}

// parseBucket accepts hour, day, week and month (30 days) or any positive
// Go duration. An empty value means one day.
func parseBucket(s string) (time.Duration, error) {
	switch strings.ToLower(s) {
	case "", "day", "daily":
		return 24 * time.Hour, nil
	case "hour", "hourly":
		return time.Hour, nil
	case "week", "weekly":
		return 7 * 24 * time.Hour, nil
	case "month", "monthly":
		return 30 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, badRequest("bucket must be hour, day, week, month or a positive duration")
	}
	return d, nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return badRequest("%v", err)
	}

	details := make([]*kitchen.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, &kitchen.ValidationError{
			Field:  strings.ToLower(fe.Field()[:1]) + fe.Field()[1:],
			Reason: "failed " + fe.Tag() + " check",
		})
	}
	apiErr := badRequest("invalid request")
	apiErr.Details = details
	return apiErr
}
