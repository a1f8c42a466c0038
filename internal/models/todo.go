package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrEmptyContent is returned when a todo has no content after trimming.
var ErrEmptyContent = errors.New("content is required")

// MaxOrder is the largest order a client may set. Normalization can bump
// orders past it without overflowing.
const MaxOrder = math.MaxInt32

// ErrOrderOutOfRange is returned for orders outside 1..MaxOrder.
var ErrOrderOutOfRange = fmt.Errorf("order must be between 1 and %d", MaxOrder)

// Item represents a single todo entry as held in the local list.
type Item struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RawItem is a todo as delivered by the store. Order is nil for rows
// written before ordering existed.
type RawItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Order     *int      `json:"order,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateContent trims content and rejects it if nothing is left.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	return trimmed, nil
}

// ValidateOrder rejects orders a client may not set.
func ValidateOrder(order int) error {
	if order < 1 || order > MaxOrder {
		return ErrOrderOutOfRange
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
