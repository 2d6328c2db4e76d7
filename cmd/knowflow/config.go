package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowflow/knowflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display current configuration",
	Long: `Displays the effective configuration after defaults, config files,
and environment variables are applied. API keys are masked.

Configuration is stored at ~/.config/knowflow/config.yaml
Project-specific overrides can be placed in .knowflow.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		displayConfig(cfg)
		return nil
	},
}

// displayConfig prints all configuration values with secrets masked.
func displayConfig(cfg *config.Config) {
	fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
	fmt.Printf("server.auth_token: %s\n", config.MaskAPIKey(cfg.Server.AuthToken))
	fmt.Printf("server.rate_limit: %d\n", cfg.Server.RateLimit)
	fmt.Printf("server.rate_window: %s\n", cfg.Server.RateWindow)
	fmt.Printf("provider.backend: %s\n", cfg.Provider.Backend)
	fmt.Printf("provider.anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Provider.Anthropic.APIKey))
	fmt.Printf("provider.anthropic.model: %s\n", cfg.Provider.Anthropic.Model)
	fmt.Printf("provider.anthropic.use_aws_bedrock: %t\n", cfg.Provider.Anthropic.UseAWSBedrock)
	fmt.Printf("provider.openai.api_key: %s\n", config.MaskAPIKey(cfg.Provider.OpenAI.APIKey))
	fmt.Printf("provider.openai.model: %s\n", cfg.Provider.OpenAI.Model)
	fmt.Printf("store.path: %s\n", cfg.Store.Path)
	fmt.Printf("pipeline.max_lessons: %d\n", cfg.Pipeline.MaxLessons)
	fmt.Printf("pipeline.max_resources_per_lesson: %d\n", cfg.Pipeline.MaxResourcesPerLesson)
	fmt.Printf("pipeline.max_retries: %d\n", cfg.Pipeline.MaxRetries)
	fmt.Printf("pipeline.backoff_base: %s\n", cfg.Pipeline.BackoffBase)
	fmt.Printf("pipeline.backoff_cap: %s\n", cfg.Pipeline.BackoffCap)
	fmt.Printf("pipeline.stage_timeout: %s\n", cfg.Pipeline.StageTimeout)
	fmt.Printf("logging.level: %s\n", cfg.Logging.Level)
	fmt.Printf("logging.format: %s\n", cfg.Logging.Format)
}
