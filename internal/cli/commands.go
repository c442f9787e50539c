package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/config"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/debug"
	"github.com/avelar/fxpilot/internal/display"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/server"
	"github.com/avelar/fxpilot/internal/workflow"
)

const version = "1.0.0"

// NewRootCmd builds the fxpilot command tree. Running with no subcommand
// starts the interactive prompt loop.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "fxpilot",
		Short: "FxPilot - multi-agent trading analysis",
		Long: `FxPilot answers free-text trading questions ("should I buy gold?") by running
news, technical, and fundamental analysis in parallel, sizing the trade, and
synthesizing a single BUY/SELL/WAIT decision with a full report.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(cfg))
	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [QUERY]",
		Short: "Run one analysis for a free-text trading query",
		Long: `Run a full analysis for a trading query and print the decision.
Example: fxpilot analyze "should I buy gold this week?" --balance 25000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			balance, _ := cmd.Flags().GetFloat64("balance")
			maxRisk, _ := cmd.Flags().GetFloat64("max-risk")
			stream, _ := cmd.Flags().GetBool("stream")

			opts := &workflow.Options{AccountBalance: balance, MaxRiskPerTrade: maxRisk}
			return runAnalysis(cmd.Context(), cfg, query, opts, stream)
		},
	}

	cmd.Flags().Float64("balance", 0, "Account balance override for position sizing")
	cmd.Flags().Float64("max-risk", 0, "Max risk per trade override (fraction, e.g. 0.01)")
	cmd.Flags().Bool("stream", true, "Show live progress while the analysis runs")

	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ServerAddr = addr
			}
			if einoDebug, _ := cmd.Flags().GetBool("eino-debug"); einoDebug {
				cfg.EinoDebugEnabled = true
			}

			ctx := cmd.Context()

			dbg := debug.NewEinoDebugger(cfg)
			if err := dbg.Initialize(ctx); err != nil {
				log.Printf("[CLI] eino debug server unavailable: %v", err)
			}

			engine, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}

			if watch, _ := cmd.Flags().GetBool("watch-config"); watch {
				if err := watchConfig(ctx, cfg); err != nil {
					log.Printf("[CLI] config watching unavailable: %v", err)
				}
			}

			return server.NewServer(cfg.ServerAddr, engine).Start(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().Bool("eino-debug", false, "Start the eino visual debug server")
	cmd.Flags().Bool("watch-config", false, "Reload config.json on change")

	return cmd
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cfg)
		},
	})

	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("FxPilot v%s\n", version)
			fmt.Println("Multi-agent trading analysis pipeline")
		},
	}
}

// buildEngine wires the shared services behind one engine. Without an API key
// the reasoning model is skipped and every stage runs its deterministic
// fallback, which still produces a (conservative) result.
func buildEngine(ctx context.Context, cfg *config.Config) (*workflow.Engine, error) {
	var reasoner llm.Reasoner
	if cfg.LLMAPIKey != "" {
		chatModel, err := llm.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		reasoner = llm.NewModelReasoner(chatModel, time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
	} else {
		log.Printf("[CLI] no LLM API key configured, running with deterministic fallbacks only")
	}

	prices := dataflows.NewPriceService(cfg.MetalPriceAPIKey, cfg.ForexRateAPIKey,
		dataflows.NewCache(time.Duration(cfg.PriceCacheTTL)*time.Second))
	news := dataflows.NewNewsService(
		dataflows.NewCache(time.Duration(cfg.NewsCacheTTL)*time.Second))

	return workflow.NewEngine(cfg, reasoner, prices, news), nil
}

// watchConfig reloads risk and cache settings from config.json on change.
// The engine reads the config pointer per run, so updated values apply to the
// next analysis without a restart.
func watchConfig(ctx context.Context, cfg *config.Config) error {
	mgr, err := config.NewManager(config.WithInitialConfig(cfg))
	if err != nil {
		return err
	}
	return mgr.Watch(ctx, func(updated config.Config) {
		*cfg = updated
		log.Printf("[CLI] configuration reloaded from %s", mgr.Path())
	})
}

func runAnalysis(ctx context.Context, cfg *config.Config, query string, opts *workflow.Options, stream bool) error {
	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	if !stream {
		result, err := engine.Analyze(ctx, query, opts)
		if err != nil {
			return err
		}
		fmt.Print(display.RenderResult(result))
		return nil
	}

	events, err := engine.AnalyzeStream(ctx, query, opts)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Type == consts.EventComplete {
			if result, ok := workflow.ResultFromEvent(ev); ok {
				fmt.Println()
				fmt.Print(display.RenderResult(result))
			}
			continue
		}
		if line := display.RenderEvent(ev); line != "" {
			fmt.Println(line)
		}
	}
	return nil
}

func showConfig(cfg *config.Config) {
	fmt.Println("FxPilot configuration")
	fmt.Println("---------------------")
	fmt.Printf("LLM provider:        %s\n", cfg.LLMProvider)
	fmt.Printf("LLM model:           %s\n", cfg.LLMModel)
	if cfg.LLMBaseURL != "" {
		fmt.Printf("LLM base URL:        %s\n", cfg.LLMBaseURL)
	}
	fmt.Printf("LLM timeout:         %ds\n", cfg.LLMTimeoutSeconds)
	fmt.Println()
	fmt.Printf("Account balance:     %.2f\n", cfg.AccountBalance)
	fmt.Printf("Max risk per trade:  %.1f%%\n", cfg.MaxRiskPerTrade*100)
	fmt.Printf("Pip multiplier:      %.0f\n", cfg.PipMultiplier)
	fmt.Println()
	fmt.Printf("Price cache TTL:     %ds\n", cfg.PriceCacheTTL)
	fmt.Printf("News cache TTL:      %ds\n", cfg.NewsCacheTTL)
	fmt.Printf("Server address:      %s\n", cfg.ServerAddr)
	fmt.Println()
	printKeyStatus("LLM API key", cfg.LLMAPIKey)
	printKeyStatus("Metal Price API key", cfg.MetalPriceAPIKey)
	printKeyStatus("Forex Rate API key", cfg.ForexRateAPIKey)
	if cfg.EinoDebugEnabled {
		fmt.Printf("Eino debug:          http://localhost:%d\n", cfg.EinoDebugPort)
	}
}

func printKeyStatus(name, key string) {
	status := "not configured"
	if key != "" {
		status = "configured"
	}
	fmt.Printf("%-20s %s\n", name+":", status)
}

func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var warnings []string
	if cfg.LLMAPIKey == "" {
		warnings = append(warnings, "no LLM API key: decisions will fall back to WAIT")
	}
	if cfg.MetalPriceAPIKey == "" {
		warnings = append(warnings, "no Metal Price API key: commodity prices use the Yahoo fallback")
	}
	if cfg.ForexRateAPIKey == "" {
		warnings = append(warnings, "no Forex Rate API key: forex prices use the Yahoo fallback")
	}

	if len(warnings) == 0 {
		fmt.Println("Configuration OK.")
		return nil
	}
	fmt.Printf("Configuration OK with %d warnings:\n", len(warnings))
	for _, w := range warnings {
		fmt.Println("  - " + w)
	}
	return nil
}
