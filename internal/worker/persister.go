package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/store"
)

// PlanPersister writes a finalized lesson plan through the persistence
// gateway. The write is an unconditional upsert keyed by plan id, so a
// re-delivered task lands on the same document instead of duplicating it.
type PlanPersister struct {
	gateway store.Gateway
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewPlanPersister creates a plan persister worker.
func NewPlanPersister(g store.Gateway, logger *zap.Logger, timeout time.Duration) *PlanPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PlanPersister{gateway: g, logger: logger, timeout: timeout, now: time.Now}
}

// Execute validates and persists the plan from the task payload.
func (w *PlanPersister) Execute(ctx context.Context, task envelope.Task) envelope.Result {
	start := time.Now()

	if err := requireKind(task, envelope.KindWritePlan); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal, err, time.Since(start))
	}

	plan := task.Payload.Draft
	if err := plan.Validate(); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation,
			fmt.Errorf("plan failed validation before write: %w", err), time.Since(start))
	}
	if plan.UserID != task.UserID {
		return envelope.Fatal(task.TaskID, envelope.ClassUnauthorized,
			fmt.Errorf("plan user %q does not match task user %q", plan.UserID, task.UserID), time.Since(start))
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// The owning profile must exist before any plan is attached to it.
	if _, err := w.gateway.Get(callCtx, store.UsersCollection, plan.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return envelope.Fatal(task.TaskID, envelope.ClassUnauthorized,
				fmt.Errorf("unknown user %q: %w", plan.UserID, err), time.Since(start))
		}
		return fromStoreError(task.TaskID, err, time.Since(start))
	}

	stamped := clonePlan(plan)
	stamped.LastAccessed = w.now().UTC()

	data, err := json.Marshal(stamped)
	if err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal,
			fmt.Errorf("encoding plan %s: %w", stamped.PlanID, err), time.Since(start))
	}

	collection := store.PlansCollection(stamped.UserID)
	version, err := w.gateway.Upsert(callCtx, collection, stamped.PlanID, data, store.AnyVersion)
	if err != nil {
		return fromStoreError(task.TaskID, err, time.Since(start))
	}

	w.logger.Debug("plan persisted",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", stamped.UserID),
		zap.String("plan_id", stamped.PlanID),
		zap.Int64("version", version))

	res := envelope.Success(task.TaskID, time.Since(start))
	res.Plan = stamped
	res.Ack = &envelope.Ack{Collection: collection, Key: stamped.PlanID, Version: version}
	return res
}

// fromStoreError maps a gateway error to a result. Version conflicts are
// retryable under their own class so the caller can reread and retry;
// everything else from storage is treated as a transient backend fault.
func fromStoreError(taskID string, err error, elapsed time.Duration) envelope.Result {
	if errors.Is(err, store.ErrVersionConflict) {
		return envelope.Retryable(taskID, envelope.ClassPersistenceConflict, err, elapsed)
	}
	return envelope.Retryable(taskID, envelope.ClassTransientProvider, err, elapsed)
}
