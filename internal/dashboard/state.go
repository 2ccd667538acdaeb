package dashboard

import (
	"sync"
	"time"

	"buyback-bot-go/internal/config"
	"buyback-bot-go/pkg/utils"
)

// TxKind identifies the pipeline stage that produced a transaction record
type TxKind string

const (
	TxClaim   TxKind = "claim"
	TxBuyback TxKind = "buyback"
	TxBurn    TxKind = "burn"
)

// TxStatus is "confirmed" when an on-chain signature exists, "recorded" otherwise
type TxStatus string

const (
	StatusConfirmed TxStatus = "confirmed"
	StatusRecorded  TxStatus = "recorded"
)

// TransactionRecord is an immutable entry in the recent-transaction log
type TransactionRecord struct {
	Signature   *string  `json:"signature"`
	Kind        TxKind   `json:"kind"`
	AmountSOL   float64  `json:"amount_sol"`
	Status      TxStatus `json:"status"`
	Timestamp   string   `json:"timestamp"`
	Description string   `json:"description"`
}

// Snapshot is a consistent copy of the dashboard state
type Snapshot struct {
	PriceUSD        float64             `json:"price_usd"`
	VolumeChangePct float64             `json:"volume_change_pct"`
	BuybacksUSD     float64             `json:"buybacks_usd"`
	BurnedUSD       float64             `json:"burned_usd"`
	MarketCapUSD    float64             `json:"market_cap_usd"`
	SupplyBurnedPct float64             `json:"supply_burned_pct"`
	LastGoalBucket  int64               `json:"-"`
	Transactions    []TransactionRecord `json:"transactions"`
}

// State holds the process-lifetime dashboard aggregate. One instance is
// created at startup and shared by the HTTP layer and the goal pipeline;
// the mutex makes every read and mutation atomic.
type State struct {
	mu sync.Mutex

	priceUSD        float64
	volumeChangePct float64
	buybacksUSD     float64
	burnedUSD       float64
	marketCapUSD    float64
	supplyBurnedPct float64
	lastGoalBucket  int64
	tx              []TransactionRecord

	now func() time.Time
}

// NewState creates an empty dashboard state
func NewState() *State {
	return &State{
		tx:  make([]TransactionRecord, 0, config.TxHistoryLimit),
		now: time.Now,
	}
}

// PushTx appends a transaction record at the front of the log. An empty
// signature records a failed or skipped action. The log is capped; the
// oldest entry is evicted first.
func (s *State) PushTx(kind TxKind, amountSOL float64, description string, signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := TransactionRecord{
		Kind:        kind,
		AmountSOL:   amountSOL,
		Status:      StatusRecorded,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		Description: description,
	}
	if signature != "" {
		sig := signature
		record.Signature = &sig
		record.Status = StatusConfirmed
	}
	if amountSOL < 0 {
		record.AmountSOL = 0
	}

	s.tx = append([]TransactionRecord{record}, s.tx...)
	if len(s.tx) > config.TxHistoryLimit {
		s.tx = s.tx[:config.TxHistoryLimit]
	}
}

// SetMarketData overwrites the cached price and market cap
func (s *State) SetMarketData(priceUSD, marketCapUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceUSD = priceUSD
	s.marketCapUSD = marketCapUSD
}

// BumpMarketCap adds delta to the market cap and returns the new value
func (s *State) BumpMarketCap(deltaUSD float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketCapUSD += deltaUSD
	return s.marketCapUSD
}

// MarketCapUSD returns the current market cap
func (s *State) MarketCapUSD() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marketCapUSD
}

// PriceUSD returns the current token price
func (s *State) PriceUSD() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priceUSD
}

// LastGoalBucket returns the highest bucket index already processed
func (s *State) LastGoalBucket() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGoalBucket
}

// AdvanceBucket atomically advances the processed-bucket watermark to
// currentBucket and reports whether this caller consumed the crossing.
// Two concurrent callers observing the same crossing get at most one true.
func (s *State) AdvanceBucket(currentBucket int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if currentBucket <= s.lastGoalBucket {
		return false
	}
	s.lastGoalBucket = currentBucket
	return true
}

// AddBuybackUSD adds to the cumulative buyback total
func (s *State) AddBuybackUSD(amountUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buybacksUSD += amountUSD
}

// RecordBurnUSD adds to the cumulative burn total and nudges the visible
// supply-burned percentage by the fixed increment, capped at 100
func (s *State) RecordBurnUSD(amountUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.burnedUSD += amountUSD
	s.supplyBurnedPct = utils.RoundTo(
		utils.ClampF64(s.supplyBurnedPct+config.SupplyBurnedIncrementPct, 0, 100), 4)
}

// Snapshot returns a deep copy of the state; readers never observe a
// half-written record
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	txCopy := make([]TransactionRecord, len(s.tx))
	copy(txCopy, s.tx)

	return Snapshot{
		PriceUSD:        s.priceUSD,
		VolumeChangePct: s.volumeChangePct,
		BuybacksUSD:     s.buybacksUSD,
		BurnedUSD:       s.burnedUSD,
		MarketCapUSD:    s.marketCapUSD,
		SupplyBurnedPct: s.supplyBurnedPct,
		LastGoalBucket:  s.lastGoalBucket,
		Transactions:    txCopy,
	}
}
