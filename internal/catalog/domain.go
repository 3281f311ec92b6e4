package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ItemKind tags the catalog entity a line item points at.
type ItemKind string

const (
	// KindProduct references frames, accessories and other stocked goods.
	KindProduct ItemKind = "product"
	// KindLens references lens catalog entries.
	KindLens ItemKind = "lens"
)

// ItemRef identifies one catalog entry as a tagged reference. Line items and
// inventory rows carry an ItemRef instead of a dynamically resolved type
// string; resolution happens through an explicit lookup per variant.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   int64    `json:"id"`
}

// Valid reports whether the reference carries a known kind and an id.
func (r ItemRef) Valid() bool {
	return (r.Kind == KindProduct || r.Kind == KindLens) && r.ID > 0
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Product is a general catalog entry (frames, accessories).
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Brand     *string   `json:"brand,omitempty"`
	Price     float64   `json:"price" validate:"gt=0"`
	Cost      float64   `json:"cost" validate:"gte=0"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lens is a lens catalog entry.
type Lens struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Material  string    `json:"material" validate:"required"`
	Index     float64   `json:"index" validate:"gte=0"`
	Price     float64   `json:"price" validate:"gt=0"`
	Cost      float64   `json:"cost" validate:"gte=0"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidPrice rejects catalog writes whose price is not strictly positive.
var ErrInvalidPrice = errors.New("catalog: price must be greater than zero")

// ErrInvalidRef indicates an unresolvable item reference.
var ErrInvalidRef = errors.New("catalog: invalid item reference")

// ErrNotFound indicates a missing catalog entry.
var ErrNotFound = errors.New("catalog: not found")
