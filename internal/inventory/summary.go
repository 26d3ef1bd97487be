package inventory

// Summary is the quick-stats strip of the inventory view.
type Summary struct {
	Total         int            `json:"total"`
	ByStatus      map[Status]int `json:"byStatus"`
	AutoOrder     int            `json:"autoOrder"`
	PendingOrders int            `json:"pendingOrders"`
}

// Suggestion proposes restocking an auto-order item up to its maximum.
type Suggestion struct {
	ItemID   string  `json:"itemId"`
	Item     string  `json:"item"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Supplier string  `json:"supplier"`
}

// Summarize counts views per status.
func Summarize(views []View, pending int) Summary {
	s := Summary{
		Total: len(views),
		ByStatus: map[Status]int{
			StatusLow:         0,
			StatusGood:        0,
			StatusOptimal:     0,
			StatusOverstocked: 0,
		},
		PendingOrders: pending,
	}
	for _, v := range views {
		s.ByStatus[v.Status]++
		if v.AutoOrder {
			s.AutoOrder++
		}
	}
	return s
}

// ReorderSuggestions lists auto-order items below minimum that have no
// order in flight.
func ReorderSuggestions(views []View, pending []PendingOrder) []Suggestion {
	inFlight := make(map[string]bool, len(pending))
	for _, o := range pending {
		inFlight[o.ItemID] = true
	}

	out := make([]Suggestion, 0)
	for _, v := range views {
		if !v.AutoOrder || v.Status != StatusLow || inFlight[v.ID] {
			continue
		}
		out = append(out, Suggestion{
			ItemID:   v.ID,
			Item:     v.Name,
			Quantity: v.Maximum - v.Current,
			Unit:     v.Unit,
			Supplier: v.Supplier,
		})
	}
	return out
}
