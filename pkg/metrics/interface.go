package metrics

import (
	"context"
	"time"
)

// Collector records lineage engine activity.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, duration time.Duration)
	RecordError(ctx context.Context, operation string, errorType string)
	SetAuditViolations(ctx context.Context, count int64)
}
