package types

import (
	"github.com/gagliardetto/solana-go"
)

// Account is the unit of persisted ledger state. Lamports are the native
// value held at the address, Owner is the program allowed to mutate Data and
// debit Lamports, and Data is the program-defined record payload.
type Account struct {
	Lamports uint64           `json:"lamports"`
	Owner    solana.PublicKey `json:"owner"`
	Data     []byte           `json:"data"`
}

// IsEmpty reports whether the account holds no value and no data. Empty
// accounts are treated as absent.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0 && a.Owner.IsZero())
}

// HasData reports whether a program record has been written at the address.
func (a *Account) HasData() bool {
	return a != nil && len(a.Data) > 0
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}
