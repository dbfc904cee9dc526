package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	"github.com/Chative-core-poc-v1/refineloop/internal/core"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
	pkgredis "github.com/Chative-core-poc-v1/refineloop/pkg/redis"
)

// AppConfig defines all configurable parameters of the refine loop,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM providers
	Providers model.ProviderConfig

	// Agent configs
	Responder model.ResponderConfig
	Critic    model.CriticConfig
	Loop      model.LoopConfig
	Memory    model.MemoryConfig
	Search    model.SearchConfig
}

var rootCmd = &cobra.Command{
	Use:   "refineloop",
	Short: "Responder/Critic refine loop with memory and web search",
	Long: `refineloop answers a question with a Responder model, has a Critic model check the
answer (optionally verifying facts through web search) and revises until the Critic
approves or the attempt budget is spent.`,
	SilenceUsage: true,
}

var envCfg AppConfig

func init() {
	cobra.OnInitialize(loadConfig)
}

// loadConfig mirrors the usual startup: .env first, then the process environment.
func loadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env file: %v\n", err)
	}
	if err := envconfig.Process("", &envCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Env),
		Level:       envCfg.LogLevel,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
