package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowflow/knowflow/internal/store"
	"github.com/knowflow/knowflow/pkg/models"
)

var (
	plansUser  string
	plansJSON  bool
	plansLimit int
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List a user's persisted lesson plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		if plansUser == "" {
			return fmt.Errorf("--user is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		gateway, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer gateway.Close()

		docs, err := gateway.Query(context.Background(), store.PlansCollection(plansUser), store.Filter{}, plansLimit, 0)
		if err != nil {
			return fmt.Errorf("listing plans: %w", err)
		}

		plans := make([]models.LessonPlan, 0, len(docs))
		for _, doc := range docs {
			var plan models.LessonPlan
			if err := doc.Decode(&plan); err != nil {
				continue
			}
			plans = append(plans, plan)
		}

		if plansJSON {
			out, err := json.MarshalIndent(plans, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(plans) == 0 {
			fmt.Printf("No plans found for user %s\n", plansUser)
			return nil
		}
		for _, plan := range plans {
			fmt.Printf("%s  %-30s  %d lessons  %s  %s\n",
				plan.PlanID, plan.Title, len(plan.Lessons), plan.Status,
				plan.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	plansCmd.Flags().StringVar(&plansUser, "user", "", "User id to list plans for")
	plansCmd.Flags().BoolVar(&plansJSON, "json", false, "Print plans as JSON")
	plansCmd.Flags().IntVar(&plansLimit, "limit", 0, "Maximum plans to list (0 for all)")
}
