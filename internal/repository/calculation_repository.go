package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/calctree/engine/internal/lineage"
	"github.com/calctree/engine/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CalculationRepository is the gorm backed record store of the lineage engine.
// It only ever inserts single rows, which the database makes atomic.
type CalculationRepository struct {
	db *gorm.DB
}

var _ lineage.Store = (*CalculationRepository)(nil)

func NewCalculationRepository(db *gorm.DB) *CalculationRepository {
	return &CalculationRepository{db: db}
}

func (r *CalculationRepository) InsertRoot(ctx context.Context, owner uuid.UUID, result float64) (int64, error) {
	c := models.Calculation{
		UserID: owner,
		IsRoot: true,
		Result: result,
	}
	if err := r.insert(ctx, &c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (r *CalculationRepository) InsertChild(ctx context.Context, owner uuid.UUID, parentID int64, op lineage.Operator, operand, result float64) (int64, error) {
	opStr := string(op)
	c := models.Calculation{
		UserID:   owner,
		ParentID: &parentID,
		IsRoot:   false,
		Operator: &opStr,
		Operand:  &operand,
		Result:   result,
	}
	if err := r.insert(ctx, &c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (r *CalculationRepository) insert(ctx context.Context, c *models.Calculation) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: insert calculation: %w", lineage.ErrIntegrityViolation, err)
	default:
		return fmt.Errorf("insert calculation: %w", err)
	}
}

func (r *CalculationRepository) GetByID(ctx context.Context, id int64) (*models.Calculation, bool, error) {
	var c models.Calculation
	err := r.db.WithContext(ctx).Preload("User").First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get calculation %d: %w", id, err)
	}
	return &c, true, nil
}

func (r *CalculationRepository) ListAll(ctx context.Context, opts lineage.ListOptions) ([]models.Calculation, error) {
	q := r.db.WithContext(ctx).Preload("User")
	if opts.AsOf > 0 {
		q = q.Where("id <= ?", opts.AsOf)
	}
	// ids are assigned monotonically, so they give the insertion order.
	if opts.Order == lineage.Ascending {
		q = q.Order("id ASC")
	} else {
		q = q.Order("id DESC")
	}

	out := []models.Calculation{}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (r *CalculationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Calculation{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count calculations: %w", err)
	}
	return n, nil
}
