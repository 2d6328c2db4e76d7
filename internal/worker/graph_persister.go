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
	"github.com/knowflow/knowflow/pkg/models"
)

// GraphPersister merges a graph fragment into the learner's stored graph
// under optimistic concurrency. Each attempt rereads the stored graph,
// so a version conflict surfaced as a retryable failure is resolved by
// the next attempt merging against the fresh state.
type GraphPersister struct {
	gateway store.Gateway
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewGraphPersister creates a graph persister worker.
func NewGraphPersister(g store.Gateway, logger *zap.Logger, timeout time.Duration) *GraphPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GraphPersister{gateway: g, logger: logger, timeout: timeout, now: time.Now}
}

// Execute reads the stored graph, merges the task's fragment into it,
// and writes the merged graph back conditioned on the version read.
func (w *GraphPersister) Execute(ctx context.Context, task envelope.Task) envelope.Result {
	start := time.Now()

	if err := requireKind(task, envelope.KindWriteGraph); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal, err, time.Since(start))
	}

	fragment := task.Payload.Fragment

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var (
		base     *models.KnowledgeGraph
		expected int64
	)
	doc, err := w.gateway.Get(callCtx, store.GraphsCollection, task.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First graph for this learner. Expecting version 0 keeps two
		// concurrent first writes from silently overwriting each other.
		base = models.NewKnowledgeGraph(task.UserID)
		expected = 0
	case err != nil:
		return fromStoreError(task.TaskID, err, time.Since(start))
	default:
		base = &models.KnowledgeGraph{}
		if err := doc.Decode(base); err != nil {
			return envelope.Fatal(task.TaskID, envelope.ClassInternal,
				fmt.Errorf("decoding stored graph for %s: %w", task.UserID, err), time.Since(start))
		}
		expected = doc.Version
	}

	base.Merge(fragment)
	base.UserID = task.UserID
	base.UpdatedAt = w.now().UTC()

	// The fragment alone may carry edges into concepts that live only in
	// the stored graph, so validation runs on the merged result.
	if err := base.Validate(); err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassSchemaValidation,
			fmt.Errorf("merged graph failed validation: %w", err), time.Since(start))
	}

	data, err := json.Marshal(base)
	if err != nil {
		return envelope.Fatal(task.TaskID, envelope.ClassInternal,
			fmt.Errorf("encoding graph for %s: %w", task.UserID, err), time.Since(start))
	}

	version, err := w.gateway.Upsert(callCtx, store.GraphsCollection, task.UserID, data, expected)
	if err != nil {
		return fromStoreError(task.TaskID, err, time.Since(start))
	}

	w.logger.Debug("graph persisted",
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.Int("nodes", len(base.Nodes)),
		zap.Int("edges", len(base.Edges)),
		zap.Int64("version", version))

	res := envelope.Success(task.TaskID, time.Since(start))
	res.Graph = base
	res.Ack = &envelope.Ack{Collection: store.GraphsCollection, Key: task.UserID, Version: version}
	return res
}
