package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"buyback-bot-go/internal/solana"
	"buyback-bot-go/internal/wallet"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogrus() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// servedTransaction assembles serialized transaction bytes with payer as the
// fee payer, shaped like a trade-local response
func servedTransaction(t *testing.T, payer types.Account) []byte {
	t.Helper()

	message := types.NewMessage(types.NewMessageParam{
		FeePayer:        payer.PublicKey,
		RecentBlockhash: "11111111111111111111111111111111",
		Instructions: []types.Instruction{
			{
				ProgramID: common.PublicKeyFromString("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"),
				Accounts: []types.AccountMeta{
					{PubKey: payer.PublicKey, IsSigner: true, IsWritable: true},
				},
				Data: []byte("trade"),
			},
		},
	})

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: message,
		Signers: []types.Account{payer},
	})
	require.NoError(t, err)

	raw, err := tx.Serialize()
	require.NoError(t, err)
	return raw
}

// fakeRPC answers getBalance with successive lamport values and confirms
// every submitted transaction immediately
func fakeRPC(t *testing.T, balances []uint64) *httptest.Server {
	t.Helper()
	var balanceCalls int64

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req solana.RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "getBalance":
			call := atomic.AddInt64(&balanceCalls, 1) - 1
			idx := int(call)
			if idx >= len(balances) {
				idx = len(balances) - 1
			}
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":%d}}`, balances[idx])
		case "sendTransaction":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"testsignature"}`)
		case "getSignatureStatuses":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"err":null,"confirmationStatus":"confirmed"}]}}`)
		default:
			t.Errorf("unexpected RPC method %s", req.Method)
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
		}
	}))
}

func newTestWallet(t *testing.T, rpcClient *solana.Client) (*wallet.Wallet, types.Account) {
	t.Helper()
	account := types.NewAccount()
	w, err := wallet.NewWallet(wallet.WalletConfig{
		PrivateKey: base58.Encode(account.PrivateKey),
	}, rpcClient, testLogrus())
	require.NoError(t, err)
	return w, account
}

func TestBuyBack_RejectsNonPositiveAmount(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Mint: "mint"}, nil, nil, testLogrus())

	for _, amount := range []float64{0, -0.5} {
		_, err := e.BuyBack(context.Background(), amount)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	}
}

func TestClaimCreatorFees_PortalErrorPropagates(t *testing.T) {
	rpc := fakeRPC(t, []uint64{1_000_000_000})
	defer rpc.Close()

	portalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "trade service unavailable", http.StatusServiceUnavailable)
	}))
	defer portalSrv.Close()

	rpcClient := solana.NewClient(solana.ClientConfig{Endpoint: rpc.URL}, testLogrus())
	w, _ := newTestWallet(t, rpcClient)

	e := NewExecutor(ExecutorConfig{URL: portalSrv.URL, Mint: "mint"}, w, rpcClient, testLogrus())

	_, _, err := e.ClaimCreatorFees(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade service unavailable")
}

func TestClaimCreatorFees_ReturnsBalanceDelta(t *testing.T) {
	// 10 SOL before the claim, 10.5 after
	rpc := fakeRPC(t, []uint64{10_000_000_000, 10_500_000_000})
	defer rpc.Close()

	rpcClient := solana.NewClient(solana.ClientConfig{Endpoint: rpc.URL}, testLogrus())
	w, account := newTestWallet(t, rpcClient)

	var gotForm map[string]string
	portalSrv := httptest.NewServer(http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"publicKey":   r.FormValue("publicKey"),
			"action":      r.FormValue("action"),
			"priorityFee": r.FormValue("priorityFee"),
		}
		wr.Write(servedTransaction(t, account))
	}))
	defer portalSrv.Close()

	e := NewExecutor(ExecutorConfig{
		URL:         portalSrv.URL,
		Mint:        "mint",
		PriorityFee: 0.000001,
	}, w, rpcClient, testLogrus())

	claimed, signature, err := e.ClaimCreatorFees(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "testsignature", signature)
	assert.Equal(t, 0.5, claimed)

	assert.Equal(t, w.PublicKeyString(), gotForm["publicKey"])
	assert.Equal(t, "collectCreatorFee", gotForm["action"])
	assert.Equal(t, "0.000001", gotForm["priorityFee"])
}

func TestClaimCreatorFees_NegativeDeltaFlooredAtZero(t *testing.T) {
	// Balance dropped across the claim (fees paid, nothing collected)
	rpc := fakeRPC(t, []uint64{10_000_000_000, 9_990_000_000})
	defer rpc.Close()

	rpcClient := solana.NewClient(solana.ClientConfig{Endpoint: rpc.URL}, testLogrus())
	w, account := newTestWallet(t, rpcClient)

	portalSrv := httptest.NewServer(http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		wr.Write(servedTransaction(t, account))
	}))
	defer portalSrv.Close()

	e := NewExecutor(ExecutorConfig{URL: portalSrv.URL, Mint: "mint"}, w, rpcClient, testLogrus())

	claimed, _, err := e.ClaimCreatorFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, claimed)
}

func TestBuyBack_SubmitsBuyPayload(t *testing.T) {
	rpc := fakeRPC(t, []uint64{10_000_000_000})
	defer rpc.Close()

	rpcClient := solana.NewClient(solana.ClientConfig{Endpoint: rpc.URL}, testLogrus())
	w, account := newTestWallet(t, rpcClient)

	var gotForm map[string]string
	portalSrv := httptest.NewServer(http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"action":           r.FormValue("action"),
			"mint":             r.FormValue("mint"),
			"amount":           r.FormValue("amount"),
			"denominatedInSol": r.FormValue("denominatedInSol"),
			"slippage":         r.FormValue("slippage"),
			"pool":             r.FormValue("pool"),
		}
		wr.Write(servedTransaction(t, account))
	}))
	defer portalSrv.Close()

	e := NewExecutor(ExecutorConfig{
		URL:  portalSrv.URL,
		Mint: "So11111111111111111111111111111111111111112",
	}, w, rpcClient, testLogrus())

	signature, err := e.BuyBack(context.Background(), 0.25)
	require.NoError(t, err)
	assert.Equal(t, "testsignature", signature)

	assert.Equal(t, "buy", gotForm["action"])
	assert.Equal(t, "So11111111111111111111111111111111111111112", gotForm["mint"])
	assert.Equal(t, "0.25", gotForm["amount"])
	assert.Equal(t, "true", gotForm["denominatedInSol"])
	assert.Equal(t, "10", gotForm["slippage"])
	assert.Equal(t, "auto", gotForm["pool"])
}

func TestTradeLocal_EmptyBodyIsError(t *testing.T) {
	portalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer portalSrv.Close()

	e := NewExecutor(ExecutorConfig{URL: portalSrv.URL, Mint: "mint"}, nil, nil, testLogrus())

	_, err := e.tradeLocal(context.Background(), url.Values{"action": {"buy"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty transaction")
}
