package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/solana"
	"buyback-bot-go/internal/wallet"
	"buyback-bot-go/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Executor builds and submits trades through the PumpPortal trade-local API.
// The API returns an unsigned serialized transaction which we re-sign with
// the local wallet and submit over our own RPC connection.
type Executor struct {
	url         string
	mint        string
	priorityFee float64
	slippage    int
	pool        string
	settleDelay time.Duration

	httpClient *http.Client
	wallet     *wallet.Wallet
	rpcClient  *solana.Client
	logger     *logrus.Logger

	// wait is a context-aware sleep, replaceable in tests
	wait func(ctx context.Context, d time.Duration)
}

// ExecutorConfig contains trade executor configuration
type ExecutorConfig struct {
	URL         string
	Mint        string
	PriorityFee float64
	Slippage    int
	Pool        string
	SettleDelay time.Duration
	Timeout     time.Duration
}

// NewExecutor creates a PumpPortal trade executor
func NewExecutor(cfg ExecutorConfig, w *wallet.Wallet, rpcClient *solana.Client, logger *logrus.Logger) *Executor {
	if cfg.URL == "" {
		cfg.URL = config.DefaultPortalURL
	}
	if cfg.Pool == "" {
		cfg.Pool = config.DefaultPool
	}
	if cfg.Slippage == 0 {
		cfg.Slippage = config.DefaultSlippagePercent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Executor{
		url:         cfg.URL,
		mint:        cfg.Mint,
		priorityFee: cfg.PriorityFee,
		slippage:    cfg.Slippage,
		pool:        cfg.Pool,
		settleDelay: cfg.SettleDelay,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		wallet:      w,
		rpcClient:   rpcClient,
		logger:      logger,
		wait:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// tradeLocal posts a trade request and returns the raw unsigned transaction
func (e *Executor) tradeLocal(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", e.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create trade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trade request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trade API error %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("trade API returned an empty transaction")
	}

	return body, nil
}

// submit signs the raw transaction, sends it over RPC and waits for
// confirmation within the configured timeout
func (e *Executor) submit(ctx context.Context, raw []byte) (string, error) {
	signature, err := e.wallet.SignAndSubmit(ctx, raw)
	if err != nil {
		return "", err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, time.Duration(config.ConfirmTimeoutSec)*time.Second)
	defer cancel()
	if err := e.rpcClient.WaitForConfirmation(confirmCtx, signature); err != nil {
		return "", fmt.Errorf("transaction %s not confirmed: %w", signature, err)
	}

	return signature, nil
}

// ClaimCreatorFees collects accumulated creator fees into the wallet.
// The claimed amount is measured as the SOL balance delta around the claim,
// read after a short settle delay, floored at zero and rounded to six
// decimals. Concurrent wallet activity leaks into the measurement.
func (e *Executor) ClaimCreatorFees(ctx context.Context) (float64, string, error) {
	balanceBefore := e.wallet.BalanceSOL(ctx)

	form := url.Values{}
	form.Set("publicKey", e.wallet.PublicKeyString())
	form.Set("action", "collectCreatorFee")
	form.Set("priorityFee", formatFloat(e.priorityFee))

	raw, err := e.tradeLocal(ctx, form)
	if err != nil {
		return 0, "", fmt.Errorf("claim failed: %w", err)
	}

	signature, err := e.submit(ctx, raw)
	if err != nil {
		return 0, "", fmt.Errorf("claim failed: %w", err)
	}

	if e.settleDelay > 0 {
		e.wait(ctx, e.settleDelay)
	}

	balanceAfter := e.wallet.BalanceSOL(ctx)

	claimed := utils.RoundTo(balanceAfter-balanceBefore, config.SolAmountDecimals)
	if claimed < 0 {
		claimed = 0
	}

	e.logger.WithFields(logrus.Fields{
		"signature":   signature,
		"claimed_sol": claimed,
	}).Info("💰 Creator fees claimed")

	return claimed, signature, nil
}

// BuyBack spends amountSOL of wallet SOL buying the token
func (e *Executor) BuyBack(ctx context.Context, amountSOL float64) (string, error) {
	if amountSOL <= 0 {
		return "", fmt.Errorf("buyback amount must be positive, got %f", amountSOL)
	}

	form := url.Values{}
	form.Set("publicKey", e.wallet.PublicKeyString())
	form.Set("action", "buy")
	form.Set("mint", e.mint)
	form.Set("amount", formatFloat(amountSOL))
	form.Set("denominatedInSol", "true")
	form.Set("slippage", strconv.Itoa(e.slippage))
	form.Set("priorityFee", formatFloat(e.priorityFee))
	form.Set("pool", e.pool)

	raw, err := e.tradeLocal(ctx, form)
	if err != nil {
		return "", fmt.Errorf("buyback failed: %w", err)
	}

	signature, err := e.submit(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("buyback failed: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"signature":  signature,
		"amount_sol": amountSOL,
	}).Info("🛒 Buyback executed")

	return signature, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
