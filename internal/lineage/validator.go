package lineage

import (
	"context"
	"fmt"
)

// ParentRecord is the resolved parent of an extension.
type ParentRecord struct {
	ID     int64
	Result float64
}

// Extension is a validated request to append a child to Parent.
type Extension struct {
	Parent   ParentRecord
	Operator Operator
	Operand  float64
}

// Validator enforces the structural invariants of a record before it is appended.
type Validator struct {
	store Store
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// ValidateRoot fails with ErrInvalidOperand unless number is finite.
func (v *Validator) ValidateRoot(number float64) error {
	if !Finite(number) {
		return fail(ErrInvalidOperand, "starting number must be a finite number", fmt.Errorf("got %v", number))
	}
	return nil
}

// ValidateExtend checks the operator and operand, then resolves the parent.
// Malformed input is rejected before the store is consulted.
func (v *Validator) ValidateExtend(ctx context.Context, parentID int64, operator string, operand float64) (*Extension, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return nil, fail(ErrInvalidOperator, "operator must be one of + - * /", fmt.Errorf("got %q", operator))
	}
	if !Finite(operand) {
		return nil, fail(ErrInvalidOperand, "operand must be a finite number", fmt.Errorf("got %v", operand))
	}
	if parentID <= 0 {
		return nil, fail(ErrUnknownParent, "parent calculation not found", nil).WithMeta("parent_id", parentID)
	}

	rec, ok, err := v.store.GetByID(ctx, parentID)
	if err != nil {
		return nil, storageFailure(err, "resolve parent calculation failed")
	}
	if !ok {
		return nil, fail(ErrUnknownParent, "parent calculation not found", nil).WithMeta("parent_id", parentID)
	}

	return &Extension{
		Parent:   ParentRecord{ID: rec.ID, Result: rec.Result},
		Operator: op,
		Operand:  operand,
	}, nil
}
