package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/calctree/engine/pkg/logger"
	"github.com/calctree/engine/pkg/metrics"
	"go.uber.org/zap"
)

const generationKey = "forest:generation"

// Service is the public contract of the lineage engine.
type Service interface {
	CreateRoot(ctx context.Context, owner Owner, number float64) (*Node, error)
	ExtendNode(ctx context.Context, owner Owner, parentID int64, operator string, operand float64) (*Node, error)
	MaterializeForest(ctx context.Context, asOf int64) ([]*TreeNode, error)
	Lineage(ctx context.Context, id int64) ([]Node, error)
	Audit(ctx context.Context) (*AuditReport, error)
}

// Engine composes the validator, the evaluator and the forest assembler over a Store.
// It holds no mutable state of its own; the store is the only shared resource.
type Engine struct {
	store     Store
	validator *Validator
	cache     Cache
	metrics   metrics.Collector
}

var _ Service = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables forest caching. A nil cache leaves caching off.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics sets the metrics collector. The default discards everything.
func WithMetrics(m metrics.Collector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		validator: NewValidator(store),
		metrics:   metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateRoot appends a new root holding number.
func (e *Engine) CreateRoot(ctx context.Context, owner Owner, number float64) (node *Node, err error) {
	defer e.observe(ctx, "create_root", time.Now(), &err)

	if err := e.validator.ValidateRoot(number); err != nil {
		return nil, err
	}

	id, err := e.store.InsertRoot(ctx, owner.ID, number)
	if err != nil {
		return nil, storageFailure(err, "create starting number failed")
	}
	e.bumpGeneration(ctx)

	node, err = e.fetch(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	logger.L().Info("root created",
		zap.Int64("id", node.ID),
		zap.String("owner", owner.ID.String()),
		zap.Float64("result", node.Result),
	)
	return node, nil
}

// ExtendNode appends a child of parentID whose result is
// evaluate(parent.result, operator, operand). Any authenticated owner may
// extend any node; concurrent extensions of one parent simply fan out.
func (e *Engine) ExtendNode(ctx context.Context, owner Owner, parentID int64, operator string, operand float64) (node *Node, err error) {
	defer e.observe(ctx, "extend_node", time.Now(), &err)

	ext, err := e.validator.ValidateExtend(ctx, parentID, operator, operand)
	if err != nil {
		return nil, err
	}

	result, err := Evaluate(ext.Parent.Result, ext.Operator, ext.Operand)
	if err != nil {
		return nil, fail(ErrDivideByZero, "cannot divide by zero", nil).WithMeta("parent_id", parentID)
	}
	if !Finite(result) {
		return nil, fail(ErrNonFiniteResult, "result is out of range",
			fmt.Errorf("%v %s %v", ext.Parent.Result, ext.Operator, ext.Operand))
	}

	id, err := e.store.InsertChild(ctx, owner.ID, ext.Parent.ID, ext.Operator, ext.Operand, result)
	if err != nil {
		return nil, storageFailure(err, "create calculation failed")
	}
	e.bumpGeneration(ctx)

	node, err = e.fetch(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	logger.L().Info("node extended",
		zap.Int64("id", node.ID),
		zap.Int64("parent_id", parentID),
		zap.String("operator", string(ext.Operator)),
		zap.String("owner", owner.ID.String()),
		zap.Float64("result", node.Result),
	)
	return node, nil
}

// MaterializeForest returns every root with its descendants, newest first.
// A positive asOf hides records created after the record with that id.
func (e *Engine) MaterializeForest(ctx context.Context, asOf int64) (roots []*TreeNode, err error) {
	defer e.observe(ctx, "materialize_forest", time.Now(), &err)

	key := ""
	if asOf <= 0 && e.cache != nil {
		if gen, cerr := e.cache.Counter(ctx, generationKey); cerr != nil {
			logger.L().Warn("forest cache generation lookup failed", zap.Error(cerr))
		} else {
			key = fmt.Sprintf("forest:%d", gen)
			var cached []*TreeNode
			hit, cerr := e.cache.GetObject(ctx, key, &cached)
			if cerr != nil {
				logger.L().Warn("forest cache read failed", zap.String("key", key), zap.Error(cerr))
			} else if hit {
				return cached, nil
			}
		}
	}

	recs, err := e.store.ListAll(ctx, ListOptions{Order: Descending, AsOf: asOf})
	if err != nil {
		return nil, storageFailure(err, "list calculations failed")
	}
	roots = Assemble(NodesFromModels(recs))

	if key != "" {
		if cerr := e.cache.SetObject(ctx, key, roots); cerr != nil {
			logger.L().Warn("forest cache write failed", zap.String("key", key), zap.Error(cerr))
		}
	}
	return roots, nil
}

// Lineage returns the path from the root down to id, root first.
func (e *Engine) Lineage(ctx context.Context, id int64) (path []Node, err error) {
	defer e.observe(ctx, "lineage", time.Now(), &err)

	seen := map[int64]bool{}
	cur := id
	for {
		if seen[cur] {
			return nil, fail(ErrIntegrityViolation, "calculation lineage contains a cycle", nil).WithMeta("id", cur)
		}
		seen[cur] = true

		rec, ok, err := e.store.GetByID(ctx, cur)
		if err != nil {
			return nil, storageFailure(err, "resolve calculation failed")
		}
		if !ok {
			if cur == id {
				return nil, fail(ErrUnknownParent, "calculation not found", nil).WithMeta("id", id)
			}
			return nil, fail(ErrIntegrityViolation, "calculation references a missing parent", nil).WithMeta("id", cur)
		}
		path = append(path, NodeFromModel(rec))
		if rec.ParentID == nil {
			break
		}
		cur = *rec.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// fetch re-reads a freshly appended record so the caller sees the stored
// values, including the creation time and the owner's display name.
func (e *Engine) fetch(ctx context.Context, id int64, owner Owner) (*Node, error) {
	rec, ok, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, storageFailure(err, "read created calculation failed")
	}
	if !ok {
		return nil, fail(ErrIntegrityViolation, "created calculation is not visible", nil).WithMeta("id", id)
	}
	n := NodeFromModel(rec)
	if n.Owner.Name == "" {
		n.Owner.Name = owner.Name
	}
	return &n, nil
}

func (e *Engine) bumpGeneration(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if _, err := e.cache.Incr(ctx, generationKey); err != nil {
		logger.L().Warn("forest cache invalidation failed", zap.Error(err))
	}
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, errp *error) {
	status := "ok"
	if err := *errp; err != nil {
		status = "error"
		kind := ErrorKind(err)
		e.metrics.RecordError(ctx, op, kind)
		switch kind {
		case "storage_unavailable", "integrity_violation", "unknown":
			logger.L().Error("lineage operation failed", zap.String("operation", op), zap.Error(err))
		default:
			logger.L().Warn("lineage operation rejected", zap.String("operation", op), zap.String("reason", kind))
		}
	}
	e.metrics.RecordOperation(ctx, op, status, time.Since(start))
}
