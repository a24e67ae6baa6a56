package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/joho/godotenv"
	"github.com/kiosk404/mcp-llm-bridge/pkg/bridge"
	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/kiosk404/mcp-llm-bridge/pkg/logging"
	"github.com/spf13/cobra"
)

var logger = logging.New("mcp_llm_bridge.main")

// logLevelEnv selects the log level, e.g. DEBUG to trace LLM requests.
const logLevelEnv = "MCP_LLM_BRIDGE_LOG_LEVEL"

var paramsPath string

var rootCmd = &cobra.Command{
	Use:           "mcp-llm-bridge",
	Short:         "Run MCP-LLM bridge",
	Long:          "Bridge an MCP tool server to an OpenAI-compatible or Ollama chat model.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&paramsPath, "params", "params.json", "Path to JSON parameter file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	level, err := logLevelFromEnv()
	if err != nil {
		return err
	}
	logging.SetLevel(level)

	cfg, err := config.Load(paramsPath)
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("Starting bridge with model: %s", cfg.LLMConfig.Model))

	b, err := bridge.New(cfg)
	if err != nil {
		return err
	}
	return bridge.Run(context.Background(), b, chatLoop)
}

// chatLoop prompts until the user quits. Errors from a single turn are logged and
// the loop moves on to the next prompt.
func chatLoop(ctx context.Context, b *bridge.Bridge) error {
	for {
		var userInput string
		prompt := &survey.Input{
			Message: "Enter your prompt (or 'quit' to exit):",
		}
		if err := survey.AskOne(prompt, &userInput); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				logger.Info("Exiting...")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if isQuit(userInput) {
			return nil
		}

		response, err := b.ProcessMessage(ctx, userInput)
		if err != nil {
			logger.Error(fmt.Sprintf("Error occurred: %v", err))
			continue
		}
		fmt.Printf("\nResponse: %s\n", response)
	}
}

// isQuit matches the quit words exactly, ignoring case only.
func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// logLevelFromEnv parses the log level from the environment, defaulting to INFO.
func logLevelFromEnv() (slog.Level, error) {
	level := slog.LevelInfo
	value := os.Getenv(logLevelEnv)
	if value == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return level, fmt.Errorf("invalid %s: %w", logLevelEnv, err)
	}
	return level, nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
