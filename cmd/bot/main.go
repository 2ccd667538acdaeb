package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buyback-bot-go/internal/burn"
	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/dashboard"
	"buyback-bot-go/internal/logger"
	"buyback-bot-go/internal/market"
	"buyback-bot-go/internal/pipeline"
	"buyback-bot-go/internal/portal"
	"buyback-bot-go/internal/server"
	"buyback-bot-go/internal/solana"
	"buyback-bot-go/internal/wallet"
)

const Version = "1.0.0"

// CLI flags
var (
	network    = flag.String("network", "", "Network to use (mainnet/devnet)")
	logLevel   = flag.String("log-level", "", "Log level (debug/info/warn/error)")
	listenAddr = flag.String("listen", "", "HTTP listen address")
	configFile = flag.String("config", "", "Path to config file")
	envFile    = flag.String("env", "", "Path to .env file")
)

// App wires the dashboard state, market data, pipeline and HTTP server
type App struct {
	config       *config.Config
	logger       *logger.Logger
	solanaClient *solana.Client
	wallet       *wallet.Wallet
	state        *dashboard.State
	market       *market.Fetcher
	pipeline     *pipeline.Pipeline
	server       *server.Server
	ctx          context.Context
	cancel       context.CancelFunc
}

func main() {
	flag.Parse()

	cfg := loadConfigurationWithOverrides()

	log := initializeLogger(cfg)

	app, err := NewApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create application")
	}

	if err := app.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start application")
	}
}

func loadConfigurationWithOverrides() *config.Config {
	configPath := "configs/bot.yaml"
	if *configFile != "" {
		configPath = *configFile
	}

	cfg, err := config.LoadConfig(configPath, *envFile)
	if err != nil {
		fmt.Printf("Warning: Failed to load YAML config (%v), using environment variables only\n", err)
		cfg = config.GetConfigFromEnv(*envFile)
	}

	if *network != "" {
		cfg.Network = *network
		cfg.RPCUrl = config.GetRPCEndpoint(*network)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	return cfg
}

func initializeLogger(cfg *config.Config) *logger.Logger {
	logConfig := logger.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		LogToFile:   cfg.Logging.LogToFile,
		LogFilePath: cfg.Logging.LogFilePath,
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return log
}

// NewApp builds all components. Missing wallet or token configuration is not
// fatal here: the affected pipeline stages fail at call time instead, so the
// dashboard stays reachable.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	solanaClient := solana.NewClient(solana.ClientConfig{
		Endpoint: cfg.RPCUrl,
		Timeout:  cfg.GetRPCTimeout(),
	}, log.Logger)

	var walletInstance *wallet.Wallet
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.Mnemonic != "" {
		var err error
		walletInstance, err = wallet.NewWallet(wallet.WalletConfig{
			Address:    cfg.Wallet.Address,
			PrivateKey: cfg.Wallet.PrivateKey,
			Mnemonic:   cfg.Wallet.Mnemonic,
		}, solanaClient, log.Logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
	} else {
		log.Warn("No wallet key configured, pipeline stages will fail until one is set")
	}

	state := dashboard.NewState()

	marketFetcher := market.NewFetcher(market.FetcherConfig{
		URL:     cfg.Market.HeliusURL,
		APIKey:  cfg.Market.HeliusAPIKey,
		Mint:    cfg.Token.Mint,
		TTL:     cfg.GetMarketCacheTTL(),
		Timeout: time.Duration(cfg.Market.TimeoutSec) * time.Second,
	}, state, log.Logger)

	claimer, buyer, burner := buildExecutors(cfg, walletInstance, solanaClient, log)

	goalPipeline := pipeline.NewPipeline(pipeline.Config{
		GoalStepUSD:     cfg.Goal.StepUSD,
		BuybackFraction: cfg.Goal.BuybackFraction,
	}, state, claimer, buyer, burner, log)

	httpServer := server.NewServer(server.ServerConfig{
		ListenAddr:  cfg.Server.ListenAddr,
		TokenMint:   cfg.Token.Mint,
		GoalStepUSD: cfg.Goal.StepUSD,
		Origins:     cfg.AllowedOrigins(),
	}, state, marketFetcher, goalPipeline, log)

	return &App{
		config:       cfg,
		logger:       log,
		solanaClient: solanaClient,
		wallet:       walletInstance,
		state:        state,
		market:       marketFetcher,
		pipeline:     goalPipeline,
		server:       httpServer,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// buildExecutors creates the trade and burn executors, substituting stubs
// that fail with a configuration error when prerequisites are missing
func buildExecutors(
	cfg *config.Config,
	walletInstance *wallet.Wallet,
	solanaClient *solana.Client,
	log *logger.Logger,
) (pipeline.Claimer, pipeline.Buyer, pipeline.Burner) {
	if walletInstance == nil {
		stub := unconfigured{reason: "wallet private key is not configured"}
		return stub, stub, stub
	}
	if cfg.Token.Mint == "" {
		stub := unconfigured{reason: "token mint is not configured"}
		return stub, stub, stub
	}

	executor := portal.NewExecutor(portal.ExecutorConfig{
		URL:         cfg.Portal.URL,
		Mint:        cfg.Token.Mint,
		PriorityFee: cfg.Portal.PriorityFeeSOL,
		Slippage:    cfg.Portal.SlippagePercent,
		Pool:        cfg.Portal.Pool,
		SettleDelay: cfg.GetSettleDelay(),
		Timeout:     time.Duration(cfg.Portal.TimeoutSec) * time.Second,
	}, walletInstance, solanaClient, log.Logger)

	burnExecutor, err := burn.NewExecutor(burn.ExecutorConfig{
		Mint:      cfg.Token.Mint,
		ProgramID: cfg.Token.ProgramID,
	}, walletInstance, solanaClient, log.Logger)
	if err != nil {
		log.WithError(err).Warn("Burn executor unavailable")
		return executor, executor, unconfigured{reason: err.Error()}
	}

	return executor, executor, burnExecutor
}

// unconfigured satisfies the pipeline stage interfaces with a fixed error
type unconfigured struct {
	reason string
}

func (u unconfigured) ClaimCreatorFees(ctx context.Context) (float64, string, error) {
	return 0, "", fmt.Errorf("claim unavailable: %s", u.reason)
}

func (u unconfigured) BuyBack(ctx context.Context, amountSOL float64) (string, error) {
	return "", fmt.Errorf("buyback unavailable: %s", u.reason)
}

func (u unconfigured) BurnAll(ctx context.Context) (*burn.Result, error) {
	return nil, fmt.Errorf("burn unavailable: %s", u.reason)
}

// Start runs the HTTP server until a shutdown signal arrives
func (a *App) Start() error {
	a.logger.LogStartup(Version, a.config.Network, a.config.RPCUrl, a.config.Token.Mint)

	if a.wallet != nil {
		balance := a.wallet.BalanceSOL(a.ctx)
		a.logger.WithField("balance_sol", balance).Info(
			fmt.Sprintf("💳 Wallet %s ready", a.wallet.PublicKeyString()))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.logger.LogShutdown(sig.String())
		a.cancel()
	}()

	return a.server.Start(a.ctx)
}
