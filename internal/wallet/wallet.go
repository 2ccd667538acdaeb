package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"buyback-bot-go/internal/solana"

	"github.com/blocto/solana-go-sdk/types"
	gagliardetto "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

// Wallet represents the backend's signing wallet
type Wallet struct {
	account   types.Account
	rpcClient *solana.Client
	logger    *logrus.Logger
}

// WalletConfig contains wallet configuration
type WalletConfig struct {
	Address    string
	PrivateKey string
	Mnemonic   string
}

// NewWallet creates a wallet from a base58 private key, or derives one from a
// BIP39 mnemonic when no private key is configured
func NewWallet(cfg WalletConfig, rpcClient *solana.Client, logger *logrus.Logger) (*Wallet, error) {
	var account types.Account
	var err error

	switch {
	case cfg.PrivateKey != "":
		account, err = accountFromBase58(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
	case cfg.Mnemonic != "":
		account, err = accountFromMnemonic(cfg.Mnemonic)
		if err != nil {
			return nil, fmt.Errorf("invalid mnemonic: %w", err)
		}
	default:
		return nil, fmt.Errorf("wallet private key or mnemonic is required")
	}

	wallet := &Wallet{
		account:   account,
		rpcClient: rpcClient,
		logger:    logger,
	}

	if cfg.Address != "" && cfg.Address != wallet.PublicKeyString() {
		logger.WithFields(logrus.Fields{
			"configured": cfg.Address,
			"derived":    wallet.PublicKeyString(),
		}).Warn("Configured wallet address does not match the signing key")
	}

	logger.WithField("public_key", wallet.PublicKeyString()).Info("Wallet initialized")
	return wallet, nil
}

func accountFromBase58(privateKeyBase58 string) (types.Account, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return types.Account{}, fmt.Errorf("invalid private key length: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return types.AccountFromBytes(raw)
}

// accountFromMnemonic derives an ed25519 keypair the way solana-keygen does:
// BIP39 seed, keypair from seed[0:32]
func accountFromMnemonic(mnemonic string) (types.Account, error) {
	seed := bip39.NewSeed(mnemonic, "")
	privateKey := ed25519.NewKeyFromSeed(seed[:32])
	publicKey := privateKey.Public().(ed25519.PublicKey)
	privateKey64 := append(privateKey.Seed(), publicKey...)
	return types.AccountFromBytes(privateKey64)
}

// PublicKeyString returns the wallet's public key as base58 string
func (w *Wallet) PublicKeyString() string {
	return w.account.PublicKey.String()
}

// SignerKey returns the 64-byte private key for transaction-builder signing
func (w *Wallet) SignerKey() gagliardetto.PrivateKey {
	return gagliardetto.PrivateKey(w.account.PrivateKey)
}

// BalanceSOL returns the wallet's SOL balance, 0.0 on any failure
func (w *Wallet) BalanceSOL(ctx context.Context) float64 {
	return w.rpcClient.GetBalanceSOL(ctx, w.PublicKeyString())
}

// SignPortalTransaction re-signs an unsigned transaction returned by the
// trade service: the message is kept, the signer set is replaced with this
// wallet. Returns the signed transaction base64-encoded for submission.
func (w *Wallet) SignPortalTransaction(rawTx []byte) (string, error) {
	unsigned, err := types.TransactionDeserialize(rawTx)
	if err != nil {
		return "", fmt.Errorf("failed to deserialize portal transaction: %w", err)
	}

	signed, err := types.NewTransaction(types.NewTransactionParam{
		Message: unsigned.Message,
		Signers: []types.Account{w.account},
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign portal transaction: %w", err)
	}

	txBytes, err := signed.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize signed transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// SignAndSubmit signs an unsigned portal transaction and submits it to the
// RPC endpoint, returning the signature
func (w *Wallet) SignAndSubmit(ctx context.Context, rawTx []byte) (string, error) {
	encodedTx, err := w.SignPortalTransaction(rawTx)
	if err != nil {
		return "", err
	}

	signature, err := w.rpcClient.SendTransaction(ctx, encodedTx)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	w.logger.WithField("signature", signature).Info("Transaction sent")
	return signature, nil
}
