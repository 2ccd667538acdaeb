package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFromEnv_Defaults(t *testing.T) {
	cfg := GetConfigFromEnv("nonexistent.env")

	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, SolanaMainnetRPC, cfg.RPCUrl)
	assert.Equal(t, DefaultPortalURL, cfg.Portal.URL)
	assert.Equal(t, DefaultSlippagePercent, cfg.Portal.SlippagePercent)
	assert.Equal(t, DefaultPool, cfg.Portal.Pool)
	assert.Equal(t, DefaultHeliusURL, cfg.Market.HeliusURL)
	assert.Equal(t, DefaultGoalStepUSD, cfg.Goal.StepUSD)
	assert.Equal(t, DefaultBuybackFraction, cfg.Goal.BuybackFraction)
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestGetConfigFromEnv_BareNamesFromOriginalLayout(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "WalletAddr111")
	t.Setenv("WALLET_PRIVATE_KEY", "secretkey")
	t.Setenv("TOKEN_MINT", "Mint111")
	t.Setenv("HELIUS_API_KEY", "helius-key")
	t.Setenv("SOLANA_RPC_URL", "https://rpc.example")
	t.Setenv("PRIORITY_FEE", "0.00002")
	t.Setenv("FRONTEND_ORIGIN", "https://dash.example")

	cfg := GetConfigFromEnv("nonexistent.env")

	assert.Equal(t, "WalletAddr111", cfg.Wallet.Address)
	assert.Equal(t, "secretkey", cfg.Wallet.PrivateKey)
	assert.Equal(t, "Mint111", cfg.Token.Mint)
	assert.Equal(t, "helius-key", cfg.Market.HeliusAPIKey)
	assert.Equal(t, "https://rpc.example", cfg.RPCUrl)
	assert.Equal(t, 0.00002, cfg.Portal.PriorityFeeSOL)
	assert.Equal(t, "https://dash.example", cfg.Server.FrontendOrigin)
}

func TestGetConfigFromEnv_PrefixedNamesWin(t *testing.T) {
	t.Setenv("BUYBACK_WALLET_ADDRESS", "Prefixed111")
	t.Setenv("WALLET_ADDRESS", "Bare111")

	cfg := GetConfigFromEnv("nonexistent.env")
	assert.Equal(t, "Prefixed111", cfg.Wallet.Address)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := `# signing wallet
WALLET_ADDRESS=FileAddr111
TOKEN_MINT="QuotedMint111"

PRIORITY_FEE='0.000005'
`
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0600))

	t.Setenv("WALLET_ADDRESS", "")
	t.Setenv("TOKEN_MINT", "")
	t.Setenv("PRIORITY_FEE", "")

	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "FileAddr111", os.Getenv("WALLET_ADDRESS"))
	assert.Equal(t, "QuotedMint111", os.Getenv("TOKEN_MINT"), "quotes are stripped")
	assert.Equal(t, "0.000005", os.Getenv("PRIORITY_FEE"))
}

func TestLoadEnvFile_MissingExplicitPath(t *testing.T) {
	err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{}
	origins := cfg.AllowedOrigins()
	assert.Contains(t, origins, "http://localhost:5173")
	assert.Contains(t, origins, "http://localhost:3000")
	assert.Len(t, origins, 6)

	cfg.Server.FrontendOrigin = "https://dash.example"
	origins = cfg.AllowedOrigins()
	assert.Contains(t, origins, "https://dash.example")
	assert.Len(t, origins, 7)
}

func TestGetRPCEndpoint(t *testing.T) {
	assert.Equal(t, SolanaMainnetRPC, GetRPCEndpoint("mainnet"))
	assert.Equal(t, SolanaDevnetRPC, GetRPCEndpoint("devnet"))
	assert.Equal(t, SolanaMainnetRPC, GetRPCEndpoint("something-else"))
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{}
	cfg.Goal.SettleDelaySec = 2
	cfg.Market.CacheTTLSec = 20
	cfg.Advanced.RPCTimeoutSec = 45

	assert.Equal(t, "2s", cfg.GetSettleDelay().String())
	assert.Equal(t, "20s", cfg.GetMarketCacheTTL().String())
	assert.Equal(t, "45s", cfg.GetRPCTimeout().String())

	cfg.Goal.SettleDelaySec = 0
	cfg.Advanced.RPCTimeoutSec = 0
	assert.Equal(t, "0s", cfg.GetSettleDelay().String())
	assert.Equal(t, "30s", cfg.GetRPCTimeout().String())
}

func TestLamportConversions(t *testing.T) {
	assert.Equal(t, uint64(1_000_000_000), ConvertSOLToLamports(1))
	assert.Equal(t, uint64(500_000_000), ConvertSOLToLamports(0.5))
	assert.Equal(t, 2.5, ConvertLamportsToSOL(2_500_000_000))
}
