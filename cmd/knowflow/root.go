package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "knowflow",
	Short: "AI learning-plan and knowledge-graph orchestrator",
	Long: `Know-Flow turns a vague learning prompt into a structured lesson plan
and keeps a per-user knowledge graph of the concepts those plans teach.

Each submission runs a two-phase pipeline: generate and enrich a lesson
plan, persist it, then derive graph concepts from the persisted plan and
merge them into the user's knowledge graph.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (defaults to XDG lookup)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
