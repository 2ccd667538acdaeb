package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"buyback-bot-go/internal/burn"
	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/dashboard"
	"buyback-bot-go/internal/logger"
	"buyback-bot-go/pkg/utils"
)

// Claimer collects accrued creator fees into the wallet
type Claimer interface {
	ClaimCreatorFees(ctx context.Context) (float64, string, error)
}

// Buyer spends SOL buying the tracked token
type Buyer interface {
	BuyBack(ctx context.Context, amountSOL float64) (string, error)
}

// Burner destroys the wallet's token holdings
type Burner interface {
	BurnAll(ctx context.Context) (*burn.Result, error)
}

// Pipeline runs the claim, buyback and burn sequence whenever the market cap
// crosses into a new goal bucket. Evaluations are serialized so a crossing
// observed by concurrent dashboard reads triggers the sequence exactly once.
type Pipeline struct {
	state  *dashboard.State
	claim  Claimer
	buy    Buyer
	burn   Burner
	logger *logger.Logger

	goalStepUSD     float64
	buybackFraction float64

	mu sync.Mutex
}

// Config contains pipeline tuning parameters
type Config struct {
	GoalStepUSD     float64
	BuybackFraction float64
}

// NewPipeline creates a goal pipeline bound to the shared dashboard state
func NewPipeline(cfg Config, state *dashboard.State, claim Claimer, buy Buyer, burner Burner, log *logger.Logger) *Pipeline {
	if cfg.GoalStepUSD <= 0 {
		cfg.GoalStepUSD = config.DefaultGoalStepUSD
	}
	if cfg.BuybackFraction <= 0 {
		cfg.BuybackFraction = config.DefaultBuybackFraction
	}

	return &Pipeline{
		state:           state,
		claim:           claim,
		buy:             buy,
		burn:            burner,
		logger:          log,
		goalStepUSD:     cfg.GoalStepUSD,
		buybackFraction: cfg.BuybackFraction,
	}
}

// Evaluate checks for a goal-bucket crossing and runs the pipeline on one.
// It never returns an error: stage failures become transaction records and
// the caller's read path proceeds regardless.
func (p *Pipeline) Evaluate(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	marketCap := p.state.MarketCapUSD()
	currentBucket := int64(math.Floor(marketCap / p.goalStepUSD))

	// The bucket is consumed before any stage runs, so a crossing fires
	// once even when stages fail or polls race
	if !p.state.AdvanceBucket(currentBucket) {
		return
	}

	p.logger.LogGoalCrossed(currentBucket, marketCap)
	p.run(ctx)
}

// run executes the three stages in order. A failed stage is recorded and
// stops the remaining stages for this cycle.
func (p *Pipeline) run(ctx context.Context) {
	claimed, claimSig, err := p.claim.ClaimCreatorFees(ctx)
	if err != nil {
		p.logger.LogStageError("claim", err)
		p.state.PushTx(dashboard.TxClaim, 0, fmt.Sprintf("creator fee claim failed: %v", err), "")
		return
	}
	p.logger.LogStageSuccess("claim", claimSig, claimed)
	p.state.PushTx(dashboard.TxClaim, claimed, fmt.Sprintf("claimed %.6f SOL in creator fees", claimed), claimSig)

	buyAmount := utils.RoundTo(claimed*p.buybackFraction, config.SolAmountDecimals)
	if buyAmount <= 0 {
		p.state.PushTx(dashboard.TxBuyback, 0, "no buyback", "")
		return
	}

	buySig, err := p.buy.BuyBack(ctx, buyAmount)
	if err != nil {
		p.logger.LogStageError("buyback", err)
		p.state.PushTx(dashboard.TxBuyback, 0, fmt.Sprintf("buyback failed: %v", err), "")
		return
	}
	buyValueUSD := buyAmount * p.state.PriceUSD()
	p.logger.LogStageSuccess("buyback", buySig, buyAmount)
	p.state.PushTx(dashboard.TxBuyback, buyAmount, fmt.Sprintf("bought tokens with %.6f SOL", buyAmount), buySig)
	p.state.AddBuybackUSD(buyValueUSD)

	result, err := p.burn.BurnAll(ctx)
	if err != nil {
		p.logger.LogStageError("burn", err)
		p.state.PushTx(dashboard.TxBurn, 0, fmt.Sprintf("burn failed: %v", err), "")
		return
	}
	p.logger.LogStageSuccess("burn", result.Signature, buyAmount)
	p.state.PushTx(dashboard.TxBurn, buyAmount, fmt.Sprintf("burned %f tokens", result.AmountTokens), result.Signature)
	p.state.RecordBurnUSD(buyValueUSD)
}
