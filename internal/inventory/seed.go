package inventory

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Seed reads a JSON array of items and upserts each of them into repo.
func Seed(ctx context.Context, repo Repository, r io.Reader) (int, error) {
	var items []Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("decode inventory seed: %w", err)
	}

	for i, it := range items {
		if it.Location == "" {
			return i, fmt.Errorf("inventory seed item %d: location is required", i)
		}
		if _, err := repo.Upsert(ctx, it); err != nil {
			return i, fmt.Errorf("inventory seed item %d: %w", i, err)
		}
	}
	return len(items), nil
}
