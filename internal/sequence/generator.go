// Package sequence produces collision-free, human-readable document numbers
// scoped by prefix and date, e.g. SALE-20260828-0001.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes used across the application.
const (
	PrefixQuote = "QUOTE"
	PrefixOrder = "ORD"
	PrefixSale  = "SALE"
	PrefixLab   = "LAB"
)

// ErrStorageUnavailable indicates the sequence store could not be reached.
// The generator never guesses a number from stale data.
var ErrStorageUnavailable = errors.New("sequence: storage unavailable")

// Queryer is satisfied by *pgxpool.Pool and pgx.Tx, so numbers can be
// allocated inside a caller-owned transaction.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Generator allocates document numbers from the document_sequences table.
type Generator struct {
	db Queryer
}

// NewGenerator constructs a Generator.
func NewGenerator(db Queryer) *Generator {
	return &Generator{db: db}
}

// Next returns the next number for the prefix and scope date. The upsert
// increments the per-prefix-per-day counter under a row lock, so concurrent
// callers are serialized and never receive the same number.
func (g *Generator) Next(ctx context.Context, prefix string, scopeDate time.Time) (string, error) {
	return Next(ctx, g.db, prefix, scopeDate)
}

// Next allocates a number using the supplied Queryer. Sequences start at 0001
// and are dense: each call returns exactly the previous value plus one.
func Next(ctx context.Context, db Queryer, prefix string, scopeDate time.Time) (string, error) {
	if prefix == "" {
		return "", errors.New("sequence: prefix required")
	}
	day := scopeDate.Format("20060102")
	var seq int64
	err := db.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, scope_date, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, scope_date)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, prefix, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, day, seq), nil
}
