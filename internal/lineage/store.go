package lineage

import (
	"context"

	"github.com/calctree/engine/internal/models"
	"github.com/google/uuid"
)

// Order is the creation order in which ListAll returns records.
type Order int

const (
	Descending Order = iota
	Ascending
)

// ListOptions bounds a ListAll call.
type ListOptions struct {
	Order Order
	// AsOf, when positive, hides records with an id greater than AsOf.
	AsOf int64
}

// Store is the record store adapter. It is the only component that touches
// persistence. A returned id must be visible to subsequent GetByID and
// ListAll calls, and records returned must have their User preloaded.
type Store interface {
	InsertRoot(ctx context.Context, owner uuid.UUID, result float64) (int64, error)
	InsertChild(ctx context.Context, owner uuid.UUID, parentID int64, op Operator, operand, result float64) (int64, error)
	// GetByID returns ok=false without an error when no record has the id.
	GetByID(ctx context.Context, id int64) (rec *models.Calculation, ok bool, err error)
	ListAll(ctx context.Context, opts ListOptions) ([]models.Calculation, error)
}

// Cache stores materialized forests keyed by a generation counter.
type Cache interface {
	GetObject(ctx context.Context, key string, dest any) (bool, error)
	SetObject(ctx context.Context, key string, v any) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}
