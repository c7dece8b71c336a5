package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calctree/engine/internal/lineage"
	"github.com/calctree/engine/pkg/logger"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeLineageAudit is the asynq task type of the integrity audit.
const TypeLineageAudit = "lineage:audit"

// AuditPayload is the task payload for audit runs.
type AuditPayload struct {
	Trigger string `json:"trigger"`
}

// NewAuditTask builds an audit task. Only one audit may be queued at a time.
func NewAuditTask(trigger string) (*asynq.Task, error) {
	b, err := json.Marshal(AuditPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLineageAudit, b,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Unique(time.Hour),
	), nil
}

// Auditor runs a full integrity pass over the record store.
type Auditor interface {
	Audit(ctx context.Context) (*lineage.AuditReport, error)
}

// AuditTaskHandler handles lineage audit tasks.
type AuditTaskHandler struct {
	auditor Auditor
}

func NewAuditTaskHandler(auditor Auditor) *AuditTaskHandler {
	return &AuditTaskHandler{auditor: auditor}
}

// HandleAudit runs the audit. Storage failures are returned so asynq retries
// the task; violations are findings, reported in the logs and metrics only.
func (h *AuditTaskHandler) HandleAudit(ctx context.Context, t *asynq.Task) error {
	var p AuditPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid audit task payload", zap.Error(err))
		return fmt.Errorf("decode audit payload: %v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling audit task", zap.String("trigger", p.Trigger))
	report, err := h.auditor.Audit(ctx)
	if err != nil {
		logger.L().Error("audit failed", zap.String("trigger", p.Trigger), zap.Error(err))
		return err
	}
	if !report.OK() {
		logger.L().Warn("audit found integrity violations",
			zap.String("trigger", p.Trigger),
			zap.Int("violations", len(report.Violations)),
			zap.Int("checked", report.Checked),
		)
	}
	return nil
}
