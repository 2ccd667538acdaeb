package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Network settings
	Network string `mapstructure:"network" yaml:"network"`
	RPCUrl  string `mapstructure:"rpc_url" yaml:"rpc_url"`

	// Wallet settings
	Wallet WalletConfig `mapstructure:"wallet" yaml:"wallet"`

	// Tracked token settings
	Token TokenConfig `mapstructure:"token" yaml:"token"`

	// PumpPortal trade settings
	Portal PortalConfig `mapstructure:"portal" yaml:"portal"`

	// Market data (Helius) settings
	Market MarketConfig `mapstructure:"market" yaml:"market"`

	// Goal pipeline settings
	Goal GoalConfig `mapstructure:"goal" yaml:"goal"`

	// HTTP server settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Advanced settings
	Advanced AdvancedConfig `mapstructure:"advanced" yaml:"advanced"`
}

// WalletConfig contains the signing wallet settings
type WalletConfig struct {
	Address    string `mapstructure:"address" yaml:"address"`
	PrivateKey string `mapstructure:"private_key" yaml:"private_key"`
	// Mnemonic is an alternative to private_key; ignored when private_key is set
	Mnemonic string `mapstructure:"mnemonic" yaml:"mnemonic"`
}

// TokenConfig identifies the tracked token
type TokenConfig struct {
	Mint string `mapstructure:"mint" yaml:"mint"`
	// ProgramID overrides the classic token program for Token-2022 mints
	ProgramID string `mapstructure:"program_id" yaml:"program_id"`
}

// PortalConfig contains PumpPortal trade-local settings
type PortalConfig struct {
	URL             string  `mapstructure:"url" yaml:"url"`
	PriorityFeeSOL  float64 `mapstructure:"priority_fee_sol" yaml:"priority_fee_sol"`
	SlippagePercent int     `mapstructure:"slippage_percent" yaml:"slippage_percent"`
	Pool            string  `mapstructure:"pool" yaml:"pool"`
	TimeoutSec      int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// MarketConfig contains Helius market data settings
type MarketConfig struct {
	HeliusAPIKey string `mapstructure:"helius_api_key" yaml:"helius_api_key"`
	HeliusURL    string `mapstructure:"helius_url" yaml:"helius_url"`
	CacheTTLSec  int    `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	TimeoutSec   int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// GoalConfig contains threshold pipeline settings
type GoalConfig struct {
	StepUSD         float64 `mapstructure:"step_usd" yaml:"step_usd"`
	BuybackFraction float64 `mapstructure:"buyback_fraction" yaml:"buyback_fraction"`
	SettleDelaySec  int     `mapstructure:"settle_delay_sec" yaml:"settle_delay_sec"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr" yaml:"listen_addr"`
	FrontendOrigin string `mapstructure:"frontend_origin" yaml:"frontend_origin"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	LogToFile   bool   `mapstructure:"log_to_file" yaml:"log_to_file"`
	LogFilePath string `mapstructure:"log_file_path" yaml:"log_file_path"`
}

// AdvancedConfig contains advanced settings
type AdvancedConfig struct {
	MaxRetries        int `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayMs      int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	ConfirmTimeoutSec int `mapstructure:"confirm_timeout_sec" yaml:"confirm_timeout_sec"`
	RPCTimeoutSec     int `mapstructure:"rpc_timeout_sec" yaml:"rpc_timeout_sec"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string, envPath string) (*Config, error) {
	config := &Config{}

	// First, load .env file if specified or default locations
	if err := loadEnvFile(envPath); err != nil {
		fmt.Printf("Warning: Failed to load .env file: %v\n", err)
	}

	// Set default values
	setDefaults()

	// Set config file path
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and common config directories
		viper.SetConfigName("backend")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/buyback-bot/")
	}

	// Enable reading from environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BUYBACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Manually bind environment variables that viper might miss
	bindEnvVariables()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with defaults and env vars
		fmt.Printf("Config file not found, using environment variables and defaults\n")
	}

	// Unmarshal config
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate and post-process config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile(envPath string) error {
	var envFiles []string

	// If specific path provided, use it first
	if envPath != "" {
		envFiles = append(envFiles, envPath)
	}

	// Add default .env file locations
	envFiles = append(envFiles, []string{
		".env",
		"./.env",
		"configs/.env",
	}...)

	var envFile string
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			envFile = file
			break
		}
	}

	if envFile == "" {
		if envPath != "" {
			return fmt.Errorf("specified .env file not found: %s", envPath)
		}
		return fmt.Errorf(".env file not found in any of the expected locations: %v", envFiles)
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	loadedCount := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE format
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if len(value) >= 2 {
					if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
						(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
						value = value[1 : len(value)-1]
					}
				}

				if err := os.Setenv(key, value); err == nil {
					loadedCount++
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	fmt.Printf("Loaded %d environment variables from %s\n", loadedCount, envFile)
	return nil
}

// bindEnvVariables manually binds environment variables that viper might miss.
// Each key also accepts the bare name the original .env layout used.
func bindEnvVariables() {
	// Top-level variables
	viper.BindEnv("network", "BUYBACK_NETWORK")
	viper.BindEnv("rpc_url", "BUYBACK_RPC_URL", "SOLANA_RPC_URL")

	// Wallet variables
	viper.BindEnv("wallet.address", "BUYBACK_WALLET_ADDRESS", "WALLET_ADDRESS")
	viper.BindEnv("wallet.private_key", "BUYBACK_WALLET_PRIVATE_KEY", "WALLET_PRIVATE_KEY")
	viper.BindEnv("wallet.mnemonic", "BUYBACK_WALLET_MNEMONIC", "WALLET_MNEMONIC")

	// Token variables
	viper.BindEnv("token.mint", "BUYBACK_TOKEN_MINT", "TOKEN_MINT")
	viper.BindEnv("token.program_id", "BUYBACK_TOKEN_PROGRAM_ID", "TOKEN_PROGRAM_ID")

	// Portal variables
	viper.BindEnv("portal.url", "BUYBACK_PORTAL_URL")
	viper.BindEnv("portal.priority_fee_sol", "BUYBACK_PORTAL_PRIORITY_FEE_SOL", "PRIORITY_FEE")
	viper.BindEnv("portal.slippage_percent", "BUYBACK_PORTAL_SLIPPAGE_PERCENT")
	viper.BindEnv("portal.pool", "BUYBACK_PORTAL_POOL")

	// Market variables
	viper.BindEnv("market.helius_api_key", "BUYBACK_MARKET_HELIUS_API_KEY", "HELIUS_API_KEY")
	viper.BindEnv("market.helius_url", "BUYBACK_MARKET_HELIUS_URL")
	viper.BindEnv("market.cache_ttl_sec", "BUYBACK_MARKET_CACHE_TTL_SEC")

	// Goal variables
	viper.BindEnv("goal.step_usd", "BUYBACK_GOAL_STEP_USD")
	viper.BindEnv("goal.buyback_fraction", "BUYBACK_GOAL_BUYBACK_FRACTION")
	viper.BindEnv("goal.settle_delay_sec", "BUYBACK_GOAL_SETTLE_DELAY_SEC")

	// Server variables
	viper.BindEnv("server.listen_addr", "BUYBACK_SERVER_LISTEN_ADDR")
	viper.BindEnv("server.frontend_origin", "BUYBACK_SERVER_FRONTEND_ORIGIN", "FRONTEND_ORIGIN")

	// Logging variables
	viper.BindEnv("logging.level", "BUYBACK_LOGGING_LEVEL")
	viper.BindEnv("logging.format", "BUYBACK_LOGGING_FORMAT")
	viper.BindEnv("logging.log_to_file", "BUYBACK_LOGGING_LOG_TO_FILE")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Network defaults
	viper.SetDefault("network", "mainnet")
	viper.SetDefault("rpc_url", "")

	// Portal defaults
	viper.SetDefault("portal.url", DefaultPortalURL)
	viper.SetDefault("portal.priority_fee_sol", DefaultPriorityFeeSOL)
	viper.SetDefault("portal.slippage_percent", DefaultSlippagePercent)
	viper.SetDefault("portal.pool", DefaultPool)
	viper.SetDefault("portal.timeout_sec", 60)

	// Market defaults
	viper.SetDefault("market.helius_url", DefaultHeliusURL)
	viper.SetDefault("market.cache_ttl_sec", DefaultMarketCacheTTLSec)
	viper.SetDefault("market.timeout_sec", 20)

	// Goal defaults
	viper.SetDefault("goal.step_usd", DefaultGoalStepUSD)
	viper.SetDefault("goal.buyback_fraction", DefaultBuybackFraction)
	viper.SetDefault("goal.settle_delay_sec", DefaultSettleDelaySec)

	// Server defaults
	viper.SetDefault("server.listen_addr", ":8000")
	viper.SetDefault("server.frontend_origin", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.log_to_file", false)
	viper.SetDefault("logging.log_file_path", "logs/backend.log")

	// Advanced defaults
	viper.SetDefault("advanced.max_retries", MaxRetries)
	viper.SetDefault("advanced.retry_delay_ms", RetryDelayMs)
	viper.SetDefault("advanced.confirm_timeout_sec", ConfirmTimeoutSec)
	viper.SetDefault("advanced.rpc_timeout_sec", 30)
}

// validateConfig validates the configuration. Missing wallet or token values
// are a warning only: pipeline stages fail individually at call time instead
// of blocking startup.
func validateConfig(config *Config) error {
	// Set RPC URL if not provided
	if config.RPCUrl == "" {
		config.RPCUrl = GetRPCEndpoint(config.Network)
	}

	if config.Wallet.Address == "" || (config.Wallet.PrivateKey == "" && config.Wallet.Mnemonic == "") || config.Token.Mint == "" {
		fmt.Printf("Warning: missing wallet/token settings; claim, buyback and burn will fail until provided\n")
	}

	// Validate goal parameters
	if config.Goal.StepUSD <= 0 {
		return fmt.Errorf("goal.step_usd must be positive, got %f", config.Goal.StepUSD)
	}
	if config.Goal.BuybackFraction <= 0 || config.Goal.BuybackFraction > 1 {
		return fmt.Errorf("goal.buyback_fraction must be in (0, 1], got %f", config.Goal.BuybackFraction)
	}
	if config.Goal.SettleDelaySec < 0 {
		return fmt.Errorf("goal.settle_delay_sec must be non-negative")
	}

	// Validate slippage
	if config.Portal.SlippagePercent < 0 || config.Portal.SlippagePercent > 100 {
		return fmt.Errorf("portal.slippage_percent must be between 0 and 100")
	}
	if config.Portal.PriorityFeeSOL < 0 {
		return fmt.Errorf("portal.priority_fee_sol must be non-negative")
	}

	// Create log directory if needed
	if config.Logging.LogToFile {
		logDir := filepath.Dir(config.Logging.LogFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	return nil
}

// GetConfigFromEnv loads configuration from environment variables only
func GetConfigFromEnv(envPath string) *Config {
	// Load .env file first
	if err := loadEnvFile(envPath); err != nil {
		fmt.Printf("Warning: Failed to load .env file: %v\n", err)
	}

	config := &Config{
		Network: getEnvString("BUYBACK_NETWORK", "mainnet"),
		RPCUrl:  firstEnvString("", "BUYBACK_RPC_URL", "SOLANA_RPC_URL"),
		Wallet: WalletConfig{
			Address:    firstEnvString("", "BUYBACK_WALLET_ADDRESS", "WALLET_ADDRESS"),
			PrivateKey: firstEnvString("", "BUYBACK_WALLET_PRIVATE_KEY", "WALLET_PRIVATE_KEY"),
			Mnemonic:   firstEnvString("", "BUYBACK_WALLET_MNEMONIC", "WALLET_MNEMONIC"),
		},
		Token: TokenConfig{
			Mint:      firstEnvString("", "BUYBACK_TOKEN_MINT", "TOKEN_MINT"),
			ProgramID: firstEnvString("", "BUYBACK_TOKEN_PROGRAM_ID", "TOKEN_PROGRAM_ID"),
		},
		Portal: PortalConfig{
			URL:             getEnvString("BUYBACK_PORTAL_URL", DefaultPortalURL),
			PriorityFeeSOL:  firstEnvFloat(DefaultPriorityFeeSOL, "BUYBACK_PORTAL_PRIORITY_FEE_SOL", "PRIORITY_FEE"),
			SlippagePercent: getEnvInt("BUYBACK_PORTAL_SLIPPAGE_PERCENT", DefaultSlippagePercent),
			Pool:            getEnvString("BUYBACK_PORTAL_POOL", DefaultPool),
			TimeoutSec:      getEnvInt("BUYBACK_PORTAL_TIMEOUT_SEC", 60),
		},
		Market: MarketConfig{
			HeliusAPIKey: firstEnvString("", "BUYBACK_MARKET_HELIUS_API_KEY", "HELIUS_API_KEY"),
			HeliusURL:    getEnvString("BUYBACK_MARKET_HELIUS_URL", DefaultHeliusURL),
			CacheTTLSec:  getEnvInt("BUYBACK_MARKET_CACHE_TTL_SEC", DefaultMarketCacheTTLSec),
			TimeoutSec:   getEnvInt("BUYBACK_MARKET_TIMEOUT_SEC", 20),
		},
		Goal: GoalConfig{
			StepUSD:         getEnvFloat("BUYBACK_GOAL_STEP_USD", DefaultGoalStepUSD),
			BuybackFraction: getEnvFloat("BUYBACK_GOAL_BUYBACK_FRACTION", DefaultBuybackFraction),
			SettleDelaySec:  getEnvInt("BUYBACK_GOAL_SETTLE_DELAY_SEC", DefaultSettleDelaySec),
		},
		Server: ServerConfig{
			ListenAddr:     getEnvString("BUYBACK_SERVER_LISTEN_ADDR", ":8000"),
			FrontendOrigin: firstEnvString("", "BUYBACK_SERVER_FRONTEND_ORIGIN", "FRONTEND_ORIGIN"),
		},
		Logging: LoggingConfig{
			Level:       getEnvString("BUYBACK_LOGGING_LEVEL", "info"),
			Format:      getEnvString("BUYBACK_LOGGING_FORMAT", "text"),
			LogToFile:   getEnvBool("BUYBACK_LOGGING_LOG_TO_FILE", false),
			LogFilePath: getEnvString("BUYBACK_LOGGING_LOG_FILE_PATH", "logs/backend.log"),
		},
		Advanced: AdvancedConfig{
			MaxRetries:        getEnvInt("BUYBACK_ADVANCED_MAX_RETRIES", MaxRetries),
			RetryDelayMs:      getEnvInt("BUYBACK_ADVANCED_RETRY_DELAY_MS", RetryDelayMs),
			ConfirmTimeoutSec: getEnvInt("BUYBACK_ADVANCED_CONFIRM_TIMEOUT_SEC", ConfirmTimeoutSec),
			RPCTimeoutSec:     getEnvInt("BUYBACK_ADVANCED_RPC_TIMEOUT_SEC", 30),
		},
	}

	// Set RPC URL if not provided via environment
	if config.RPCUrl == "" {
		config.RPCUrl = GetRPCEndpoint(config.Network)
	}

	if config.Wallet.Address == "" || (config.Wallet.PrivateKey == "" && config.Wallet.Mnemonic == "") || config.Token.Mint == "" {
		fmt.Printf("Warning: missing wallet/token settings; claim, buyback and burn will fail until provided\n")
	}

	return config
}

// GetSettleDelay returns the post-claim settle delay as a duration
func (c *Config) GetSettleDelay() time.Duration {
	if c.Goal.SettleDelaySec <= 0 {
		return 0
	}
	return time.Duration(c.Goal.SettleDelaySec) * time.Second
}

// GetMarketCacheTTL returns the market data cache TTL as a duration
func (c *Config) GetMarketCacheTTL() time.Duration {
	return time.Duration(c.Market.CacheTTLSec) * time.Second
}

// GetRPCTimeout returns the per-call RPC timeout
func (c *Config) GetRPCTimeout() time.Duration {
	if c.Advanced.RPCTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Advanced.RPCTimeoutSec) * time.Second
}

// AllowedOrigins returns the CORS allow-list: the fixed local dev origins
// plus the configured frontend origin when set.
func (c *Config) AllowedOrigins() []string {
	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost",
		"http://127.0.0.1",
	}
	if c.Server.FrontendOrigin != "" {
		origins = append(origins, c.Server.FrontendOrigin)
	}
	return origins
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnvString(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func firstEnvFloat(defaultValue float64, keys ...string) float64 {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
				return floatValue
			}
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
