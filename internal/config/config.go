package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the analysis pipeline. Values come from
// defaults, then a config.json on disk, then environment variables.
type Config struct {
	// LLM backend
	LLMProvider string `json:"llm_provider"` // "openai" or "deepseek"
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url"`
	LLMAPIKey   string `json:"llm_api_key"`
	// LLMTimeoutSeconds bounds a single model call.
	LLMTimeoutSeconds int `json:"llm_timeout_seconds"`

	// Risk management
	AccountBalance  float64 `json:"account_balance"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
	// PipMultiplier converts price distance to pips. A single multiplier is
	// applied to every pair; JPY-style quoting is not special-cased.
	PipMultiplier float64 `json:"pip_multiplier"`

	// Market data API keys
	MetalPriceAPIKey string `json:"metalprice_api_key"`
	ForexRateAPIKey  string `json:"forexrate_api_key"`

	// Cache TTLs in seconds
	PriceCacheTTL int `json:"price_cache_ttl"`
	NewsCacheTTL  int `json:"news_cache_ttl"`

	// HTTP server
	ServerAddr string `json:"server_addr"`

	Debug bool `json:"debug"`

	// Eino debug server
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

// DefaultConfig builds the baseline configuration and overlays environment
// variables, loading a .env file first if one exists.
func DefaultConfig() *Config {
	cfg := &Config{
		LLMProvider:       "openai",
		LLMModel:          "gpt-4o-mini",
		LLMTimeoutSeconds: 60,

		AccountBalance:  10000.0,
		MaxRiskPerTrade: 0.02,
		PipMultiplier:   10000.0,

		PriceCacheTTL: 60,
		NewsCacheTTL:  300,

		ServerAddr: ":8000",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}

	_ = godotenv.Load()
	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLMBaseURL = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.LLMAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" && c.LLMProvider == "deepseek" {
		c.LLMAPIKey = val
	}
	if val := os.Getenv("LLM_TIMEOUT_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.LLMTimeoutSeconds = n
		}
	}

	if val := os.Getenv("ACCOUNT_BALANCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.AccountBalance = f
		}
	}
	if val := os.Getenv("MAX_RISK_PER_TRADE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.MaxRiskPerTrade = f
		}
	}
	if val := os.Getenv("PIP_MULTIPLIER"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.PipMultiplier = f
		}
	}

	if val := os.Getenv("METALPRICE_API_KEY"); val != "" {
		c.MetalPriceAPIKey = val
	}
	if val := os.Getenv("FOREXRATE_API_KEY"); val != "" {
		c.ForexRateAPIKey = val
	}

	if val := os.Getenv("PRICE_CACHE_TTL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.PriceCacheTTL = n
		}
	}
	if val := os.Getenv("NEWS_CACHE_TTL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.NewsCacheTTL = n
		}
	}

	if val := os.Getenv("SERVER_ADDR"); val != "" {
		c.ServerAddr = val
	}

	if val := os.Getenv("DEBUG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
		}
	}
	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = b
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = n
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai", "deepseek":
	default:
		return fmt.Errorf("unsupported llm_provider %q", c.LLMProvider)
	}
	if c.AccountBalance <= 0 {
		return fmt.Errorf("account_balance must be positive, got %v", c.AccountBalance)
	}
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 1 {
		return fmt.Errorf("max_risk_per_trade must be in (0, 1], got %v", c.MaxRiskPerTrade)
	}
	if c.PipMultiplier <= 0 {
		return fmt.Errorf("pip_multiplier must be positive, got %v", c.PipMultiplier)
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("llm_timeout_seconds must be positive, got %d", c.LLMTimeoutSeconds)
	}
	if c.PriceCacheTTL < 0 || c.NewsCacheTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.EinoDebugEnabled && (c.EinoDebugPort <= 0 || c.EinoDebugPort > 65535) {
		return fmt.Errorf("eino_debug_port out of range: %d", c.EinoDebugPort)
	}
	return nil
}
