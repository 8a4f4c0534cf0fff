// Package bank adapts the engine's funds contract to TON: balance
// verification through tonapi and outbound transfers through the operator
// wallet.
package bank

import (
	"context"
	"strconv"
	"time"

	"backend/internal/engine"
	"backend/internal/logger"

	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"
)

const (
	jettonTransferOp = 0xf8a7ea5
	// gas attached to a jetton transfer message
	jettonTransferAmount = 50_000_000
	forwardTonAmount     = 1
	sendTimeout          = 60 * time.Second
)

var walletVersions = map[string]int{
	"V3R1": 5,
	"V3R2": 6,
	"V4R1": 8,
	"V4R2": 9,
	"V5R1": 11,
}

type TonBank struct {
	client *tonapi.Client
	wallet *wallet.Wallet
}

var _ engine.FundsVerifier = (*TonBank)(nil)

func NewTonBank(apiToken string, walletMnemonic string, walletVersion string) *TonBank {

	logger.Debug("bank initialization: tonapi client...")
	client, err := tonapi.NewClient(tonapi.TonApiURL, tonapi.WithToken(apiToken))
	if err != nil {
		panic(err)
	}

	logger.Debug("bank initialization: operator wallet...")
	clientLite, err := liteapi.NewClientWithDefaultMainnet()
	if err != nil {
		panic(err)
	}

	pk, err := wallet.SeedToPrivateKey(walletMnemonic)
	if err != nil {
		panic(err)
	}

	version := walletVersions[walletVersion]
	operatorWallet, err := wallet.New(pk, wallet.Version(version), clientLite)
	if err != nil {
		panic(err)
	}

	logger.Debug("bank initialization: done", zap.String("wallet version", walletVersion))
	return &TonBank{
		client: client,
		wallet: &operatorWallet,
	}
}

// VerifyFunds checks that the wallet holds at least amount of the token.
func (b *TonBank) VerifyFunds(ctx context.Context, walletAddress string, token engine.Token, amount uint64) error {

	accountID, err := ton.ParseAccountID(walletAddress)
	if err != nil {
		return &engine.ValidationError{Reason: "invalid wallet address"}
	}

	var balance uint64
	switch token.Kind {
	case engine.TokenJetton:
		jettonID, err := ton.ParseAccountID(token.Master)
		if err != nil {
			return &engine.ValidationError{Reason: "invalid jetton master address"}
		}
		jettonBalance, err := b.client.GetAccountJettonBalance(ctx, tonapi.GetAccountJettonBalanceParams{
			AccountID: accountID.ToRaw(),
			JettonID:  jettonID.ToRaw(),
		})
		if err != nil {
			return err
		}
		balance, err = strconv.ParseUint(jettonBalance.Balance, 10, 64)
		if err != nil {
			return err
		}
	default:
		account, err := b.client.GetAccount(ctx, tonapi.GetAccountParams{AccountID: accountID.ToRaw()})
		if err != nil {
			return err
		}
		balance = uint64(account.Balance)
	}

	if balance < amount {
		return engine.ErrInsufficientFunds
	}
	return nil
}

// Height returns the masterchain seqno, the engine's block height source.
func (b *TonBank) Height(ctx context.Context) (int64, error) {
	head, err := b.client.GetBlockchainMasterchainHead(ctx)
	if err != nil {
		return 0, err
	}
	return int64(head.Seqno), nil
}

// Transfer sends amount of the token from the operator wallet to the
// recipient: a plain message for native TON, a transfer message to the
// operator's jetton wallet otherwise.
func (b *TonBank) Transfer(ctx context.Context, recipient string, token engine.Token, amount uint64) error {

	recipientID, err := ton.ParseAccountID(recipient)
	if err != nil {
		return &engine.ValidationError{Reason: "invalid recipient address"}
	}

	var message wallet.Message
	switch token.Kind {
	case engine.TokenJetton:
		message, err = b.jettonTransferMessage(ctx, recipientID, token.Master, amount)
		if err != nil {
			return err
		}
	default:
		message = wallet.Message{
			Amount:  tlb.Grams(amount),
			Address: recipientID,
			Bounce:  false,
			Mode:    wallet.DefaultMessageMode,
			Body:    boc.NewCell(),
		}
	}

	logger.Debug("sending transfer...",
		zap.String("recipient", recipient),
		zap.String("token", string(token.Kind)),
		zap.Uint64("amount", amount))
	_, err = b.wallet.SendV2(ctx, sendTimeout, message)
	return err
}

func (b *TonBank) jettonTransferMessage(ctx context.Context, recipientID ton.AccountID, master string, amount uint64) (wallet.Message, error) {

	jettonID, err := ton.ParseAccountID(master)
	if err != nil {
		return wallet.Message{}, &engine.ValidationError{Reason: "invalid jetton master address"}
	}

	// the transfer goes through the operator's wallet for this jetton
	operatorID := b.wallet.GetAddress()
	jettonBalance, err := b.client.GetAccountJettonBalance(ctx, tonapi.GetAccountJettonBalanceParams{
		AccountID: operatorID.ToRaw(),
		JettonID:  jettonID.ToRaw(),
	})
	if err != nil {
		return wallet.Message{}, err
	}
	jettonWalletID, err := ton.ParseAccountID(jettonBalance.WalletAddress.Address)
	if err != nil {
		return wallet.Message{}, err
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(jettonTransferOp, 32); err != nil {
		return wallet.Message{}, err
	}
	if err := cell.WriteUint(0, 64); err != nil {
		return wallet.Message{}, err
	}
	if err := tlb.Marshal(cell, tlb.Grams(amount)); err != nil {
		return wallet.Message{}, err
	}
	if err := tlb.Marshal(cell, recipientID.ToMsgAddress()); err != nil {
		return wallet.Message{}, err
	}
	if err := tlb.Marshal(cell, operatorID.ToMsgAddress()); err != nil {
		return wallet.Message{}, err
	}
	if err := cell.WriteBit(false); err != nil {
		return wallet.Message{}, err
	}
	if err := tlb.Marshal(cell, tlb.Grams(forwardTonAmount)); err != nil {
		return wallet.Message{}, err
	}
	if err := cell.WriteBit(false); err != nil {
		return wallet.Message{}, err
	}

	return wallet.Message{
		Amount:  jettonTransferAmount,
		Address: jettonWalletID,
		Bounce:  true,
		Mode:    wallet.DefaultMessageMode,
		Body:    cell,
	}, nil
}
