package httpapi

import (
	"bytes"
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/priyankabp/stock-smart-kitchen/internal/ingest"
	"github.com/priyankabp/stock-smart-kitchen/internal/inventory"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/livefeed"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
	"github.com/priyankabp/stock-smart-kitchen/internal/query"
)

const hubTimeout = 10 * time.Second

// Ingester accepts raw record batches.
type Ingester interface {
	Ingest(ctx context.Context, records []ingest.RawRecord) []ingest.Result
}

// Handler serves the dashboard API.
type Handler struct {
	ingester   Ingester
	query      *query.Service
	inventory  inventory.Repository
	thresholds inventory.Thresholds
	hub        *livefeed.Hub
	sites      map[string]kitchen.Site
	maxBatch   int
}

func NewHandler(
	ingester Ingester,
	svc *query.Service,
	inv inventory.Repository,
	thresholds inventory.Thresholds,
	hub *livefeed.Hub,
	maxBatch int,
) *Handler {
	sites := make(map[string]kitchen.Site)
	for _, s := range svc.Sites() {
		sites[s.ID] = s
	}
	return &Handler{
		ingester:   ingester,
		query:      svc,
		inventory:  inv,
		thresholds: thresholds,
		hub:        hub,
		sites:      sites,
		maxBatch:   maxBatch,
	}
}

func (h *Handler) knownLocation(location string) error {
	if location == "" {
		return badRequest("location is required")
	}
	if _, ok := h.sites[location]; !ok {
		return &APIError{Status: fiber.StatusNotFound, Code: CodeUnknownLocation, Message: "unknown location: " + location}
	}
	return nil
}

type ingestResponse struct {
	Accepted int             `json:"accepted"`
	Rejected int             `json:"rejected"`
	Results  []ingest.Result `json:"results"`
}

// PostObservations ingests a batch sent either as a bare JSON array or as
// {"records": [...]}. Rejected records do not fail the request.
func (h *Handler) PostObservations(c *fiber.Ctx) error {
	var records []ingest.RawRecord

	body := bytes.TrimSpace(c.Body())
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &records); err != nil {
			return badRequest("invalid JSON body: %v", err)
		}
	} else {
		var envelope struct {
			Records []ingest.RawRecord `json:"records"`
		}
		if err := c.BodyParser(&envelope); err != nil {
			return badRequest("invalid JSON body: %v", err)
		}
		records = envelope.Records
	}

	if len(records) == 0 {
		return badRequest("batch contains no records")
	}
	if h.maxBatch > 0 && len(records) > h.maxBatch {
		return &APIError{
			Status:  fiber.StatusRequestEntityTooLarge,
			Code:    CodePayloadTooLarge,
			Message: "batch exceeds the maximum size",
			Details: fiber.Map{"max": h.maxBatch, "got": len(records)},
		}
	}

	results := h.ingester.Ingest(c.UserContext(), records)

	resp := ingestResponse{Results: results}
	for _, r := range results {
		if r.Accepted {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	return c.JSON(resp)
}

func (h *Handler) GetAggregates(c *fiber.Ctx) error {
	req, err := parseStreamQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.query.Aggregates(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *Handler) GetCorrelations(c *fiber.Ctx) error {
	req, err := parseStreamQuery(c)
	if err != nil {
		return err
	}
	corr, err := h.query.Correlation(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(corr)
}

func (h *Handler) GetWaste(c *fiber.Ctx) error {
	req, err := parseWasteQuery(c)
	if err != nil {
		return err
	}
	view, err := h.query.Waste(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *Handler) GetForecastAccuracy(c *fiber.Ctx) error {
	rep, err := h.query.Accuracy(c.UserContext(), c.Query("location"), c.Query("category"))
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

func (h *Handler) GetLocations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"locations": h.query.Sites()})
}

func (h *Handler) GetInventory(c *fiber.Ctx) error {
	view, err := h.query.Inventory(c.UserContext(), c.Query("location"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *Handler) GetInventorySummary(c *fiber.Ctx) error {
	view, err := h.query.Inventory(c.UserContext(), c.Query("location"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location":    view.Location,
		"summary":     view.Summary,
		"suggestions": view.Suggestions,
	})
}

// PostInventoryEvent applies an order, shipment, delivery or usage event.
func (h *Handler) PostInventoryEvent(c *fiber.Ctx) error {
	var ev inventory.Event
	if err := c.BodyParser(&ev); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := validate.Struct(ev); err != nil {
		return validationError(err)
	}
	if err := h.knownLocation(ev.Location); err != nil {
		return err
	}

	it, err := h.inventory.Apply(c.UserContext(), ev)
	if err != nil {
		return err
	}
	return c.JSON(inventory.Derive(it, h.thresholds))
}

// PutInventoryItem creates or replaces the item named by the path.
func (h *Handler) PutInventoryItem(c *fiber.Ctx) error {
	var it inventory.Item
	if err := c.BodyParser(&it); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	it.ID = c.Params("id")
	if err := validate.Struct(it); err != nil {
		return validationError(err)
	}
	if err := h.knownLocation(it.Location); err != nil {
		return err
	}

	saved, err := h.inventory.Upsert(c.UserContext(), it)
	if err != nil {
		return err
	}
	return c.JSON(inventory.Derive(saved, h.thresholds))
}

// RequireLocationForUpgrade rejects non-websocket requests and unknown
// location filters before the upgrade happens.
func (h *Handler) RequireLocationForUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if loc := c.Query("location"); loc != "" {
		if err := h.knownLocation(loc); err != nil {
			return err
		}
	}
	return c.Next()
}

// LiveFeed streams accepted observations to a websocket client until it
// disconnects.
func (h *Handler) LiveFeed(conn *websocket.Conn) {
	location := conn.Query("location")

	ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
	client := h.hub.Register(ctx, conn, location)
	cancel()
	if client == nil {
		return
	}

	// The connection is released when this handler returns, so wait for
	// the hub's writer to let go of it first.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
		defer cancel()
		h.hub.Unregister(ctx, client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.L.WithError(err).Debug("live feed client disconnected")
			return
		}
	}
}
