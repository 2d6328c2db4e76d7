package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowflow/knowflow/internal/store"
)

var (
	submitUser    string
	submitPrompt  string
	submitContext []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Run one orchestration directly, without the HTTP server",
	Long: `Submits a single learning prompt for a user and prints the run
outcome as JSON. The user profile is created on first submission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitUser == "" || submitPrompt == "" {
			return fmt.Errorf("--user and --prompt are required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		taskCtx, err := parseContext(submitContext)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := touchProfile(ctx, rt.gateway, submitUser, submitPrompt); err != nil {
			return fmt.Errorf("preparing user profile: %w", err)
		}

		outcome := rt.orch.Run(ctx, submitUser, submitPrompt, taskCtx)

		out, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if !outcome.Success {
			os.Exit(1)
		}
		return nil
	},
}

// parseContext turns repeated key=value flags into the task context map.
func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				out[pair[:i]] = pair[i+1:]
				break
			}
			if i == len(pair)-1 {
				return nil, fmt.Errorf("context entry %q is not key=value", pair)
			}
		}
	}
	return out, nil
}

// touchProfile mirrors the server's profile upsert so direct submissions
// also register the user and record the prompt before the run starts.
func touchProfile(ctx context.Context, gateway store.Gateway, userID, prompt string) error {
	now := time.Now().UTC()
	p := map[string]any{
		"user_id":        userID,
		"created_at":     now,
		"last_active":    now,
		"last_prompt":    prompt,
		"last_prompt_at": now,
	}

	doc, err := gateway.Get(ctx, store.UsersCollection, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		var existing struct {
			CreatedAt time.Time `json:"created_at"`
		}
		if decodeErr := doc.Decode(&existing); decodeErr == nil && !existing.CreatedAt.IsZero() {
			p["created_at"] = existing.CreatedAt
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = gateway.Upsert(ctx, store.UsersCollection, userID, data, store.AnyVersion)
	return err
}

func init() {
	submitCmd.Flags().StringVar(&submitUser, "user", "", "User id to run for")
	submitCmd.Flags().StringVar(&submitPrompt, "prompt", "", "Learning prompt to submit")
	submitCmd.Flags().StringArrayVar(&submitContext, "context", nil, "Context entry as key=value (repeatable)")
}
