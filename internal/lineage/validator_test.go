package lineage

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/calctree/engine/internal/models"
	appErr "github.com/calctree/engine/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockStore is a testify mock of Store for failure injection.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertRoot(ctx context.Context, owner uuid.UUID, result float64) (int64, error) {
	args := m.Called(ctx, owner, result)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertChild(ctx context.Context, owner uuid.UUID, parentID int64, op Operator, operand, result float64) (int64, error) {
	args := m.Called(ctx, owner, parentID, op, operand, result)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetByID(ctx context.Context, id int64) (*models.Calculation, bool, error) {
	args := m.Called(ctx, id)
	var rec *models.Calculation
	if v := args.Get(0); v != nil {
		rec = v.(*models.Calculation)
	}
	return rec, args.Bool(1), args.Error(2)
}

func (m *mockStore) ListAll(ctx context.Context, opts ListOptions) ([]models.Calculation, error) {
	args := m.Called(ctx, opts)
	var recs []models.Calculation
	if v := args.Get(0); v != nil {
		recs = v.([]models.Calculation)
	}
	return recs, args.Error(1)
}

func TestValidateRoot(t *testing.T) {
	v := NewValidator(newMemStore())

	require.NoError(t, v.ValidateRoot(10))
	require.NoError(t, v.ValidateRoot(-0.5))

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := v.ValidateRoot(bad)
		require.ErrorIs(t, err, ErrInvalidOperand)
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	}
}

func TestValidateExtend(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("alice")
	parent, err := store.InsertRoot(context.Background(), owner.ID, 10)
	require.NoError(t, err)
	v := NewValidator(store)

	ext, err := v.ValidateExtend(context.Background(), parent, "*", 2)
	require.NoError(t, err)
	assert.Equal(t, ParentRecord{ID: parent, Result: 10}, ext.Parent)
	assert.Equal(t, Multiply, ext.Operator)
	assert.Equal(t, 2.0, ext.Operand)
}

func TestValidateExtendRejects(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("alice")
	parent, err := store.InsertRoot(context.Background(), owner.ID, 10)
	require.NoError(t, err)
	v := NewValidator(store)

	tests := []struct {
		name     string
		parentID int64
		operator string
		operand  float64
		want     error
		code     appErr.Code
	}{
		{"bad operator", parent, "^", 1, ErrInvalidOperator, appErr.CodeInvalid},
		{"empty operator", parent, "", 1, ErrInvalidOperator, appErr.CodeInvalid},
		{"nan operand", parent, "+", math.NaN(), ErrInvalidOperand, appErr.CodeInvalid},
		{"infinite operand", parent, "-", math.Inf(1), ErrInvalidOperand, appErr.CodeInvalid},
		{"unknown parent", 999, "+", 1, ErrUnknownParent, appErr.CodeNotFound},
		{"zero parent", 0, "+", 1, ErrUnknownParent, appErr.CodeNotFound},
		{"negative parent", -3, "+", 1, ErrUnknownParent, appErr.CodeNotFound},
		{"operator checked before parent", 999, "?", 1, ErrInvalidOperator, appErr.CodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateExtend(context.Background(), tt.parentID, tt.operator, tt.operand)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.code, appErr.CodeOf(err))
		})
	}
}

func TestValidateExtendMalformedInputSkipsStore(t *testing.T) {
	store := new(mockStore)
	v := NewValidator(store)

	_, err := v.ValidateExtend(context.Background(), 1, "x", 1)
	require.ErrorIs(t, err, ErrInvalidOperator)
	store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestValidateExtendStorageFailure(t *testing.T) {
	store := new(mockStore)
	cause := errors.New("connection reset")
	store.On("GetByID", mock.Anything, int64(4)).Return(nil, false, cause)
	v := NewValidator(store)

	_, err := v.ValidateExtend(context.Background(), 4, "+", 1)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, appErr.CodeUnavailable, appErr.CodeOf(err))
	store.AssertExpectations(t)
}

func TestValidateExtendInvalidOperatorMessage(t *testing.T) {
	v := NewValidator(newMemStore())

	_, err := v.ValidateExtend(context.Background(), 1, "%", 1)
	require.ErrorIs(t, err, ErrInvalidOperator)
	assert.Equal(t, 1, strings.Count(err.Error(), ErrInvalidOperator.Error()), err.Error())
	assert.Contains(t, err.Error(), `got "%"`)
}
