package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	appErr "github.com/calctree/engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory Cache.
type memCache struct {
	mu       sync.Mutex
	objects  map[string][]byte
	counters map[string]int64
	failIncr bool
	gets     int
	hits     int
}

func newMemCache() *memCache {
	return &memCache{objects: map[string][]byte{}, counters: map[string]int64{}}
}

func (c *memCache) GetObject(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.objects[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) SetObject(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = b
	return nil
}

func (c *memCache) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIncr {
		return 0, errors.New("redis down")
	}
	c.counters[key]++
	return c.counters[key], nil
}

// recordingCollector keeps the error kinds it was told about.
type recordingCollector struct {
	mu         sync.Mutex
	ops        map[string]int
	errors     []string
	violations int64
}

func (r *recordingCollector) RecordOperation(_ context.Context, op, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = map[string]int{}
	}
	r.ops[op+":"+status]++
}

func (r *recordingCollector) RecordError(_ context.Context, op, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, op+":"+errorType)
}

func (r *recordingCollector) SetAuditViolations(_ context.Context, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = count
}

func TestCreateRoot(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)

	node, err := e.CreateRoot(context.Background(), alice, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), node.ID)
	assert.True(t, node.IsRoot)
	assert.Nil(t, node.ParentID)
	assert.Nil(t, node.Operator)
	assert.Nil(t, node.Operand)
	assert.Equal(t, 10.0, node.Result)
	assert.Equal(t, alice, node.Owner)
	assert.False(t, node.CreatedAt.IsZero())
}

func TestCreateRootRejectsNonFinite(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)

	_, err := e.CreateRoot(context.Background(), alice, math.NaN())
	require.ErrorIs(t, err, ErrInvalidOperand)
	assert.Zero(t, store.len())
}

func TestExtendNodeBuildsLineage(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	bob := store.addUser("bob")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 10)
	require.NoError(t, err)
	b, err := e.ExtendNode(ctx, bob, a.ID, "+", 5)
	require.NoError(t, err)
	c, err := e.ExtendNode(ctx, alice, b.ID, "*", 2)
	require.NoError(t, err)
	d, err := e.ExtendNode(ctx, bob, a.ID, "-", 3)
	require.NoError(t, err)

	assert.Equal(t, 15.0, b.Result)
	assert.Equal(t, 30.0, c.Result)
	assert.Equal(t, 7.0, d.Result)
	assert.False(t, b.IsRoot)
	require.NotNil(t, b.ParentID)
	assert.Equal(t, a.ID, *b.ParentID)
	require.NotNil(t, c.Operator)
	assert.Equal(t, Multiply, *c.Operator)
	assert.Equal(t, 2.0, *c.Operand)
	assert.Equal(t, "bob", b.Owner.Name)

	roots, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, a.ID, roots[0].ID)
	assert.Equal(t, []int64{d.ID, b.ID}, ids(roots[0].Children))
	assert.Equal(t, []int64{c.ID}, ids(roots[0].Children[1].Children))
	assert.Equal(t, 4, Count(roots))
}

func TestExtendNodeDivideByZeroAppendsNothing(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	m := &recordingCollector{}
	e := NewEngine(store, WithMetrics(m))
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 0)
	require.NoError(t, err)

	_, err = e.ExtendNode(ctx, alice, a.ID, "/", 0)
	require.ErrorIs(t, err, ErrDivideByZero)
	assert.ErrorIs(t, err, ErrArithmetic)
	assert.Equal(t, appErr.CodeInvalid, appErr.CodeOf(err))
	assert.Equal(t, 1, store.len())
	assert.Contains(t, m.errors, "extend_node:divide_by_zero")
}

func TestExtendNodeUnknownParent(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)

	_, err := e.ExtendNode(context.Background(), alice, 42, "+", 1)
	require.ErrorIs(t, err, ErrUnknownParent)
	assert.Equal(t, appErr.CodeNotFound, appErr.CodeOf(err))

	var ae *appErr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int64(42), ae.Meta["parent_id"])
	assert.Zero(t, store.len())
}

func TestExtendNodeOverflow(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, math.MaxFloat64)
	require.NoError(t, err)

	_, err = e.ExtendNode(ctx, alice, a.ID, "*", 10)
	require.ErrorIs(t, err, ErrNonFiniteResult)
	assert.Equal(t, 1, store.len())
}

func TestExtendNodeConcurrentFanOut(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 1)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.ExtendNode(ctx, alice, a.ID, "+", float64(i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	roots, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Len(t, roots[0].Children, n)
}

func TestMaterializeForestIsIdempotent(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 2)
	require.NoError(t, err)
	_, err = e.ExtendNode(ctx, alice, a.ID, "*", 3)
	require.NoError(t, err)

	first, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	second, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.len())
}

func TestMaterializeForestEmpty(t *testing.T) {
	e := NewEngine(newMemStore())

	roots, err := e.MaterializeForest(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, roots)
	assert.Empty(t, roots)
}

func TestMaterializeForestAsOf(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 10)
	require.NoError(t, err)
	b, err := e.ExtendNode(ctx, alice, a.ID, "+", 5)
	require.NoError(t, err)
	_, err = e.ExtendNode(ctx, alice, b.ID, "+", 1)
	require.NoError(t, err)
	_, err = e.CreateRoot(ctx, alice, 99)
	require.NoError(t, err)

	roots, err := e.MaterializeForest(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids(roots))
	assert.Equal(t, 2, Count(roots))
}

func TestMaterializeForestUsesCache(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	cache := newMemCache()
	e := NewEngine(store, WithCache(cache))
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 10)
	require.NoError(t, err)

	first, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	second, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, ids(first), ids(second))

	// An append moves the generation, so the next read rebuilds.
	_, err = e.ExtendNode(ctx, alice, a.ID, "+", 1)
	require.NoError(t, err)
	third, err := e.MaterializeForest(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 2, Count(third))

	// Historical reads bypass the cache.
	gets := cache.gets
	_, err = e.MaterializeForest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, gets, cache.gets)
}

func TestCacheFailureDoesNotFailWrites(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	cache := newMemCache()
	cache.failIncr = true
	e := NewEngine(store, WithCache(cache))

	_, err := e.CreateRoot(context.Background(), alice, 1)
	require.NoError(t, err)
}

func TestStorageUnavailable(t *testing.T) {
	store := new(mockStore)
	cause := errors.New("dial tcp: connection refused")
	store.On("InsertRoot", mock.Anything, mock.Anything, 5.0).Return(int64(0), cause)
	store.On("ListAll", mock.Anything, mock.Anything).Return(nil, cause)
	m := &recordingCollector{}
	e := NewEngine(store, WithMetrics(m))

	_, err := e.CreateRoot(context.Background(), Owner{}, 5)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, appErr.CodeUnavailable, appErr.CodeOf(err))

	_, err = e.MaterializeForest(context.Background(), 0)
	require.ErrorIs(t, err, ErrStorage)

	assert.Equal(t, 1, m.ops["create_root:error"])
	assert.Equal(t, 1, m.ops["materialize_forest:error"])
}

func TestInsertIntegrityViolation(t *testing.T) {
	store := new(mockStore)
	store.On("GetByID", mock.Anything, int64(1)).Return(&modelsRoot, true, nil)
	store.On("InsertChild", mock.Anything, mock.Anything, int64(1), Add, 1.0, 11.0).
		Return(int64(0), errors.Join(ErrIntegrityViolation, errors.New("FOREIGN KEY constraint failed")))
	e := NewEngine(store)

	_, err := e.ExtendNode(context.Background(), Owner{}, 1, "+", 1)
	require.ErrorIs(t, err, ErrIntegrityViolation)
	assert.Equal(t, appErr.CodeInternal, appErr.CodeOf(err))
	store.AssertExpectations(t)
}

func TestLineage(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice")
	e := NewEngine(store)
	ctx := context.Background()

	a, err := e.CreateRoot(ctx, alice, 10)
	require.NoError(t, err)
	b, err := e.ExtendNode(ctx, alice, a.ID, "+", 5)
	require.NoError(t, err)
	c, err := e.ExtendNode(ctx, alice, b.ID, "*", 2)
	require.NoError(t, err)

	path, err := e.Lineage(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, []int64{path[0].ID, path[1].ID, path[2].ID})

	path, err = e.Lineage(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, path, 1)

	_, err = e.Lineage(ctx, 404)
	require.ErrorIs(t, err, ErrUnknownParent)
	assert.Equal(t, appErr.CodeNotFound, appErr.CodeOf(err))
}

func TestLineageDetectsBrokenChains(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("alice")
	store.put(modelsChild(1, 2, owner))
	store.put(modelsChild(2, 1, owner))
	store.put(modelsChild(5, 77, owner))
	e := NewEngine(store)

	_, err := e.Lineage(context.Background(), 1)
	require.ErrorIs(t, err, ErrIntegrityViolation)

	_, err = e.Lineage(context.Background(), 5)
	require.ErrorIs(t, err, ErrIntegrityViolation)
}
