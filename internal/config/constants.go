package config

// Solana network constants
const (
	SolanaMainnetRPC = "https://api.mainnet-beta.solana.com"
	SolanaDevnetRPC  = "https://api.devnet.solana.com"

	// Solana constants
	LamportsPerSol = 1_000_000_000

	// Transaction constants
	MaxRetries        = 3
	RetryDelayMs      = 1000
	ConfirmTimeoutSec = 30
)

// External service endpoints
const (
	// PumpPortal local transaction API (returns unsigned transactions)
	DefaultPortalURL = "https://pumpportal.fun/api/trade-local"

	// Helius DAS endpoint template; the api key is appended as a query param
	DefaultHeliusURL = "https://mainnet.helius-rpc.com/"
)

// Goal pipeline constants
const (
	// Market-cap threshold size in USD; crossing each multiple triggers the pipeline
	DefaultGoalStepUSD = 100_000.0

	// Fraction of claimed creator fees spent on the buyback
	DefaultBuybackFraction = 0.25

	// Fixed nudge applied to the visible supply-burned percentage per successful burn
	SupplyBurnedIncrementPct = 0.05

	// Wait after a claim submission before re-reading the wallet balance
	DefaultSettleDelaySec = 2

	// Newest-first transaction history cap
	TxHistoryLimit = 50
)

// Trading constants
const (
	// Slippage tolerance passed to PumpPortal, in percent
	DefaultSlippagePercent = 10

	// Default priority fee in SOL
	DefaultPriorityFeeSOL = 0.000001

	// Pool selection passed to PumpPortal
	DefaultPool = "auto"
)

// Market data constants
const (
	// Seconds between Helius refreshes; reads inside the window reuse cached values
	DefaultMarketCacheTTLSec = 20

	// Rounding applied to stored values
	PriceDecimals     = 8
	MarketCapDecimals = 2
	SolAmountDecimals = 6
)

// SPL token program addresses
const (
	// Classic SPL token program; overridable for Token-2022 mints
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// GetRPCEndpoint returns RPC endpoint based on network
func GetRPCEndpoint(network string) string {
	switch network {
	case "mainnet":
		return SolanaMainnetRPC
	case "devnet":
		return SolanaDevnetRPC
	default:
		return SolanaMainnetRPC
	}
}

// ConvertSOLToLamports converts SOL to lamports
func ConvertSOLToLamports(sol float64) uint64 {
	return uint64(sol * LamportsPerSol)
}

// ConvertLamportsToSOL converts lamports to SOL
func ConvertLamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}
