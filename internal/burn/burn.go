package burn

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/solana"
	"buyback-bot-go/internal/wallet"

	gsolana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Executor permanently removes tokens from circulation with SPL burn_checked.
// It ensures the wallet's associated token account exists before burning.
type Executor struct {
	mint      gsolana.PublicKey
	programID gsolana.PublicKey

	wallet    *wallet.Wallet
	rpcClient *solana.Client
	logger    *logrus.Logger
}

// ExecutorConfig contains burn executor configuration
type ExecutorConfig struct {
	Mint      string
	ProgramID string
}

// Result describes a completed burn
type Result struct {
	Signature    string
	AmountTokens float64
	AmountRaw    uint64
	Decimals     uint8
}

// NewExecutor creates a burn executor for the configured mint
func NewExecutor(cfg ExecutorConfig, w *wallet.Wallet, rpcClient *solana.Client, logger *logrus.Logger) (*Executor, error) {
	mint, err := gsolana.PublicKeyFromBase58(cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint %s: %w", cfg.Mint, err)
	}

	if cfg.ProgramID == "" {
		cfg.ProgramID = config.TokenProgramID
	}
	programID, err := gsolana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid token program ID %s: %w", cfg.ProgramID, err)
	}

	return &Executor{
		mint:      mint,
		programID: programID,
		wallet:    w,
		rpcClient: rpcClient,
		logger:    logger,
	}, nil
}

// BurnAll burns the wallet's entire balance of the token
func (e *Executor) BurnAll(ctx context.Context) (*Result, error) {
	return e.burn(ctx, nil)
}

// Burn burns a specific human-readable token amount
func (e *Executor) Burn(ctx context.Context, amountTokens float64) (*Result, error) {
	return e.burn(ctx, &amountTokens)
}

// burn resolves decimals and the token account, converts the requested
// amount to raw units and submits a burn_checked transaction. A nil amount
// means burn everything the account holds.
func (e *Executor) burn(ctx context.Context, amountTokens *float64) (*Result, error) {
	decimals, err := e.rpcClient.GetTokenSupply(ctx, e.mint.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token decimals: %w", err)
	}

	owner := e.wallet.SignerKey().PublicKey()
	tokenAccount, err := e.deriveTokenAccount(owner)
	if err != nil {
		return nil, err
	}

	exists, err := e.rpcClient.AccountExists(ctx, tokenAccount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to check token account: %w", err)
	}
	if !exists {
		if err := e.createTokenAccount(ctx, owner, tokenAccount); err != nil {
			return nil, fmt.Errorf("failed to create token account: %w", err)
		}
	}

	rawBalance, err := e.rpcClient.GetTokenAccountBalance(ctx, tokenAccount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read token balance: %w", err)
	}
	if rawBalance == 0 {
		return nil, fmt.Errorf("no tokens to burn in %s", tokenAccount.String())
	}

	rawAmount := rawBalance
	if amountTokens != nil {
		rawAmount, err = toRawAmount(*amountTokens, decimals)
		if err != nil {
			return nil, err
		}
		if rawAmount > rawBalance {
			return nil, fmt.Errorf("burn amount %d exceeds balance %d", rawAmount, rawBalance)
		}
	}

	signature, err := e.submitBurn(ctx, owner, tokenAccount, rawAmount, decimals)
	if err != nil {
		return nil, err
	}

	burned := toHumanAmount(rawAmount, decimals)

	e.logger.WithFields(logrus.Fields{
		"signature":     signature,
		"amount_tokens": burned,
		"amount_raw":    rawAmount,
		"token_account": tokenAccount.String(),
	}).Info("🔥 Tokens burned")

	return &Result{
		Signature:    signature,
		AmountTokens: burned,
		AmountRaw:    rawAmount,
		Decimals:     decimals,
	}, nil
}

// deriveTokenAccount computes the associated token account PDA using the
// configured token program in the seeds, so token-2022 mints resolve to the
// account that program actually owns
func (e *Executor) deriveTokenAccount(owner gsolana.PublicKey) (gsolana.PublicKey, error) {
	address, _, err := gsolana.FindProgramAddress(
		[][]byte{owner.Bytes(), e.programID.Bytes(), e.mint.Bytes()},
		gsolana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return gsolana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}
	return address, nil
}

// createTokenAccount creates the wallet's associated token account
func (e *Executor) createTokenAccount(ctx context.Context, owner, tokenAccount gsolana.PublicKey) error {
	e.logger.WithField("mint", e.mint.String()).Info("Creating associated token account")

	instruction := e.createTokenAccountInstruction(owner, tokenAccount)

	signature, err := e.signAndSend(ctx, owner, []gsolana.Instruction{instruction})
	if err != nil {
		return err
	}

	e.logger.WithField("signature", signature).Info("✅ Token account created")
	return nil
}

// createTokenAccountInstruction builds the ATA create instruction with the
// configured token program in the account list, matching the derivation above
func (e *Executor) createTokenAccountInstruction(owner, tokenAccount gsolana.PublicKey) gsolana.Instruction {
	return gsolana.NewInstruction(
		gsolana.SPLAssociatedTokenAccountProgramID,
		gsolana.AccountMetaSlice{
			gsolana.Meta(owner).WRITE().SIGNER(),
			gsolana.Meta(tokenAccount).WRITE(),
			gsolana.Meta(owner),
			gsolana.Meta(e.mint),
			gsolana.Meta(gsolana.SystemProgramID),
			gsolana.Meta(e.programID),
		},
		[]byte{},
	)
}

// submitBurn builds, signs and confirms the burn transaction
func (e *Executor) submitBurn(
	ctx context.Context,
	owner gsolana.PublicKey,
	tokenAccount gsolana.PublicKey,
	rawAmount uint64,
	decimals uint8,
) (string, error) {
	built := token.NewBurnCheckedInstruction(
		rawAmount,
		decimals,
		tokenAccount,
		e.mint,
		owner,
		[]gsolana.PublicKey{},
	).Build()

	// Re-home the instruction onto the configured token program so
	// token-2022 mints work with the same builder
	data, err := built.Data()
	if err != nil {
		return "", fmt.Errorf("failed to encode burn instruction: %w", err)
	}
	instruction := gsolana.NewInstruction(e.programID, built.Accounts(), data)

	return e.signAndSend(ctx, owner, []gsolana.Instruction{instruction})
}

// signAndSend assembles a transaction from instructions, signs it with the
// wallet key and submits it over RPC, waiting for confirmation
func (e *Executor) signAndSend(ctx context.Context, owner gsolana.PublicKey, instructions []gsolana.Instruction) (string, error) {
	blockhashStr, err := e.rpcClient.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	blockhash, err := gsolana.HashFromBase58(blockhashStr)
	if err != nil {
		return "", fmt.Errorf("invalid blockhash %s: %w", blockhashStr, err)
	}

	transaction, err := gsolana.NewTransaction(
		instructions,
		blockhash,
		gsolana.TransactionPayer(owner),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	signerKey := e.wallet.SignerKey()
	_, err = transaction.Sign(
		func(key gsolana.PublicKey) *gsolana.PrivateKey {
			if owner.Equals(key) {
				return &signerKey
			}
			return nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	serialized, err := transaction.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	signature, err := e.rpcClient.SendTransaction(ctx, base64.StdEncoding.EncodeToString(serialized))
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

// toRawAmount converts a human token amount to raw units, flooring any
// fraction below the mint's precision
func toRawAmount(amountTokens float64, decimals uint8) (uint64, error) {
	if amountTokens <= 0 {
		return 0, fmt.Errorf("burn amount must be positive, got %f", amountTokens)
	}

	scale := decimal.New(1, int32(decimals))
	raw := decimal.NewFromFloat(amountTokens).Mul(scale).Floor()
	if raw.IsZero() {
		return 0, fmt.Errorf("burn amount %f is below one raw unit", amountTokens)
	}

	return uint64(raw.IntPart()), nil
}

// toHumanAmount converts raw units back to a human token amount
func toHumanAmount(rawAmount uint64, decimals uint8) float64 {
	scale := decimal.New(1, int32(decimals))
	human, _ := decimal.NewFromInt(int64(rawAmount)).Div(scale).Float64()
	return human
}
