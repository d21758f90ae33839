package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"capgen/internal/config"
	"capgen/internal/nlu"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "capgen",
	Short: "capgen - capability compiler and dialogue runtime for recorded UI tests",
	Long: `capgen turns recorded Android UI test methods into parameterized
capabilities and serves them behind a conversational agent.

The offline side splits test classes, parses the recorded interaction
chains, and compiles each method into a capability with free slots where
the recording typed text. The online side matches user utterances against
the capability catalog, asks for missing slot values, and emits fully
bound execution plans.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zapConfig := zap.NewProductionConfig()
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			parsed = zapcore.InfoLevel
		}
		zapConfig.Level = zap.NewAtomicLevelAt(parsed)
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// newModelClient builds the configured language model client. serve and
// compile both need one; compile can run without via --offline.
func newModelClient(ctx context.Context) (nlu.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no LLM api key configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}
	switch cfg.LLM.Provider {
	case "gemini":
		return nlu.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	case "openai", "":
		chatCfg := nlu.DefaultChatConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			chatCfg.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.LLM.Model != "" {
			chatCfg.Model = cfg.LLM.Model
		}
		if cfg.LLM.Timeout != "" {
			chatCfg.Timeout = cfg.GetLLMTimeout()
		}
		return nlu.NewChatClient(chatCfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "capgen.yaml", "Config file path")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
