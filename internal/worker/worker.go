// Package worker implements the pipeline stage units: generators that
// turn instructions into structured artifacts, a retriever that gathers
// external references, and persisters that idempotently write artifacts
// through the persistence gateway. Workers never fail past their
// boundary; every internal failure maps to a typed result envelope.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/provider"
)

// fromProviderError maps a classified provider failure onto a result
// envelope: transient kinds are retryable, auth failures surface
// unchanged, anything else structural is fatal.
func fromProviderError(taskID string, err error, elapsed time.Duration) envelope.Result {
	var pe *provider.Error
	if errors.As(err, &pe) {
		switch {
		case pe.Transient():
			return envelope.Retryable(taskID, envelope.ClassTransientProvider, err, elapsed)
		case pe.Kind == provider.KindAuth:
			return envelope.Fatal(taskID, envelope.ClassUnauthorized, err, elapsed)
		default:
			return envelope.Fatal(taskID, envelope.ClassInternal, err, elapsed)
		}
	}
	return envelope.Retryable(taskID, envelope.ClassTransientProvider, err, elapsed)
}

// requireKind rejects envelopes routed to the wrong worker. A mismatch
// is a bug in the calling coordinator, not something a retry fixes.
func requireKind(task envelope.Task, want envelope.Kind) error {
	if task.Kind != want {
		return fmt.Errorf("task %s has kind %s, worker handles %s", task.TaskID, task.Kind, want)
	}
	return task.Validate()
}

// decodeModelJSON unmarshals model output into v, tolerating the
// markdown fences and prose models wrap JSON documents in.
func decodeModelJSON(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON document in model output")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// instructionPreamble is the delegation header every coordinator-derived
// instruction carries, so a worker always knows the originating prompt
// and user without trusting free text.
func instructionPreamble(task envelope.Task) string {
	return fmt.Sprintf("source_prompt: %s\nuser_id: %s\nrefined instruction: %s",
		task.SourcePrompt, task.UserID, task.RefinedInstruction)
}
