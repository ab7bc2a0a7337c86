package action

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/relaypoint/relaypoint/config"
)

var _ Action = new(solanaAction)

// solanaAction sends native SOL from the configured wallet to a recipient.
// The amount is denominated in SOL and converted to lamports before the
// transfer instruction is built.
type solanaAction struct {
	conf      config.SolanaConfig
	rpcClient *rpc.Client
}

func NewSolanaAction(conf config.SolanaConfig) *solanaAction {
	var client *rpc.Client
	if len(conf.RpcUrl) > 0 {
		client = rpc.New(conf.RpcUrl)
	}
	return &solanaAction{conf: conf, rpcClient: client}
}

func (a *solanaAction) GetName() string {
	return ACTION_TYPE_SEND_SOL
}

func (a *solanaAction) Validate(config map[string]any) error {
	return requireParams(config, "toAddress", "amount")
}

func (a *solanaAction) Execute(config map[string]any) (map[string]any, error) {
	if a.rpcClient == nil || len(a.conf.PrivateKey) == 0 {
		return nil, fmt.Errorf("solana wallet is not configured")
	}
	toAddress, ok := stringParam(config, "toAddress")
	if !ok || len(toAddress) == 0 {
		return nil, fmt.Errorf("sendSol action requires a non-empty \"toAddress\" in config")
	}
	amount, ok := numberParam(config, "amount")
	if !ok || amount <= 0 {
		return nil, fmt.Errorf("sendSol action requires a positive \"amount\" in config")
	}

	privateKey, err := solana.PrivateKeyFromBase58(a.conf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	recipient, err := solana.PublicKeyFromBase58(toAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address %s: %w", toAddress, err)
	}
	payer := privateKey.PublicKey()
	lamports := uint64(amount * float64(solana.LAMPORTS_PER_SOL))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recent, err := a.rpcClient.GetRecentBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	transferInstruction := system.NewTransferInstruction(
		lamports,
		payer,
		recipient,
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transferInstruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := a.rpcClient.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	return map[string]any{
		"signature": sig.String(),
		"lamports":  lamports,
		"from":      payer.String(),
		"to":        recipient.String(),
	}, nil
}
