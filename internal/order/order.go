// Package order maintains the total order of todo items.
//
// Every function here is pure: inputs are never modified and the returned
// slices never share backing arrays with them.
package order

import (
	"math"
	"sort"

	"mytodos/internal/models"
)

// Normalize turns raw store items into a canonical list sorted by order.
//
// Items without an order take their 1-based arrival position. Ties keep
// arrival order, and an item whose order does not exceed its predecessor's
// is bumped to predecessor+1 so that orders in the result are strictly
// increasing. If a bump would overflow, the whole list is re-ranked
// densely from 1 instead. Already-normalized input is returned unchanged.
func Normalize(raw []models.RawItem) []models.Item {
	items := make([]models.Item, 0, len(raw))
	for i, r := range raw {
		ord := i + 1
		if r.Order != nil {
			ord = *r.Order
		}
		items = append(items, models.Item{
			ID:        r.ID,
			Content:   r.Content,
			Order:     ord,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})

	for i := 1; i < len(items); i++ {
		if items[i].Order > items[i-1].Order {
			continue
		}
		if items[i-1].Order == math.MaxInt {
			return Rerank(items)
		}
		items[i].Order = items[i-1].Order + 1
	}

	return items
}

// IndexOf returns the position of id in items, or -1.
func IndexOf(items []models.Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Move removes the item at from and reinserts it at to. Items in between
// shift by one position towards from. Out of range indexes return a plain
// copy.
func Move(items []models.Item, from, to int) []models.Item {
	out := Clone(items)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}

	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]models.Item{moved}, out[to:]...)...)
	return out
}

// Rerank assigns dense 1-based orders matching each item's position.
func Rerank(items []models.Item) []models.Item {
	out := Clone(items)
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

// Remove returns items without the entry for id.
func Remove(items []models.Item, id string) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// Next returns the order for an item appended after every existing item.
// At math.MaxInt it saturates; Normalize resolves the resulting tie.
func Next(items []models.Item) int {
	highest := 0
	for _, item := range items {
		if item.Order > highest {
			highest = item.Order
		}
	}
	if highest == math.MaxInt {
		return highest
	}
	return highest + 1
}

// Clone returns a copy of items that is safe to modify.
func Clone(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	return out
}
