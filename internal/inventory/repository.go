package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// Event kinds.
const (
	EventOrder    = "order"
	EventShipped  = "shipped"
	EventDelivery = "delivery"
	EventUsage    = "usage"
)

var ErrNoPendingOrder = errors.New("no pending order for item")

// Event changes an item's stock or ordering state.
type Event struct {
	Location string    `json:"location" validate:"required"`
	ItemID   string    `json:"itemId" validate:"required"`
	Kind     string    `json:"kind" validate:"required,oneof=order shipped delivery usage"`
	Quantity float64   `json:"quantity" validate:"gte=0"`
	ETA      string    `json:"eta,omitempty"`
	At       time.Time `json:"at"`
}

// Order statuses.
const (
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
)

// PendingOrder is an order placed with a supplier and not yet delivered.
type PendingOrder struct {
	ID       string    `json:"id"`
	Location string    `json:"location"`
	ItemID   string    `json:"itemId"`
	Item     string    `json:"item"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit"`
	Supplier string    `json:"supplier"`
	ETA      string    `json:"eta,omitempty"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placedAt"`
}

// Repository holds inventory items and pending orders.
type Repository interface {
	List(ctx context.Context, location string) ([]Item, error)
	Get(ctx context.Context, location, id string) (Item, error)
	Upsert(ctx context.Context, it Item) (Item, error)
	Apply(ctx context.Context, ev Event) (Item, error)
	PendingOrders(ctx context.Context, location string) ([]PendingOrder, error)
}

// MemoryRepository is a concurrency-safe in-memory Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]Item
	orders []PendingOrder
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]Item),
		now:   time.Now,
	}
}

// ItemID derives an item id from its display name so that it lines up with
// the sales category of the same ingredient.
func ItemID(name string) string {
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}
	return kitchen.NormalizeCategory(name)
}

func itemKey(location, id string) string {
	return location + ":" + id
}

func (r *MemoryRepository) List(_ context.Context, location string) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0)
	for _, it := range r.items {
		if it.Location == location {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, location, id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[itemKey(location, id)]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", kitchen.ErrItemNotFound, id)
	}
	return it, nil
}

// Upsert creates or replaces an item. An empty ID is derived from Name.
func (r *MemoryRepository) Upsert(_ context.Context, it Item) (Item, error) {
	if it.ID == "" {
		it.ID = ItemID(it.Name)
	}
	if it.ID == "" {
		return Item{}, &kitchen.ValidationError{Field: "name", Reason: "is blank"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[itemKey(it.Location, it.ID)] = it
	return it, nil
}

// Apply records ev against its item. Usage never takes stock below zero.
// A delivery closes the oldest pending order for the item, if any.
func (r *MemoryRepository) Apply(_ context.Context, ev Event) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := itemKey(ev.Location, ev.ItemID)
	it, ok := r.items[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", kitchen.ErrItemNotFound, ev.ItemID)
	}

	at := ev.At
	if at.IsZero() {
		at = r.now()
	}
	at = at.UTC()

	switch ev.Kind {
	case EventOrder:
		it.LastOrderedAt = &at
		r.orders = append(r.orders, PendingOrder{
			ID:       uuid.NewString(),
			Location: it.Location,
			ItemID:   it.ID,
			Item:     it.Name,
			Quantity: ev.Quantity,
			Unit:     it.Unit,
			Supplier: it.Supplier,
			ETA:      ev.ETA,
			Status:   OrderProcessing,
			PlacedAt: at,
		})
	case EventShipped:
		i := r.oldestOrder(it)
		if i < 0 {
			return Item{}, fmt.Errorf("%w: %s", ErrNoPendingOrder, it.ID)
		}
		r.orders[i].Status = OrderShipped
		if ev.ETA != "" {
			r.orders[i].ETA = ev.ETA
		}
	case EventDelivery:
		it.Current += ev.Quantity
		if i := r.oldestOrder(it); i >= 0 {
			r.orders = slices.Delete(r.orders, i, i+1)
		}
	case EventUsage:
		it.Current = math.Max(0, it.Current-ev.Quantity)
	default:
		return Item{}, &kitchen.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown event kind %q", ev.Kind)}
	}

	r.items[key] = it
	return it, nil
}

func (r *MemoryRepository) oldestOrder(it Item) int {
	return slices.IndexFunc(r.orders, func(o PendingOrder) bool {
		return o.Location == it.Location && o.ItemID == it.ID
	})
}

func (r *MemoryRepository) PendingOrders(_ context.Context, location string) ([]PendingOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PendingOrder, 0)
	for _, o := range r.orders {
		if o.Location == location {
			out = append(out, o)
		}
	}
	return out, nil
}
