package events

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core/types"
)

const (
	// TypeTransfer is emitted for native lamport movements between accounts.
	TypeTransfer = "transfer.native"
	// TypeAirdrop is emitted when the faucet credits an account.
	TypeAirdrop = "transfer.airdrop"
)

type Transfer struct {
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}}
}

type Airdrop struct {
	To     solana.PublicKey
	Amount uint64
}

func (Airdrop) EventType() string { return TypeAirdrop }

func (e Airdrop) Event() *types.Event {
	return &types.Event{Type: TypeAirdrop, Attributes: map[string]string{
		"to":     e.To.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}}
}
