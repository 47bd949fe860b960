package types

import (
	"bytes"
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrEmptyInstruction = errors.New("transaction: instruction has no program id")
	ErrMissingSigner    = errors.New("transaction: signer not listed as signing account")
)

// Instruction names a program, the accounts it touches and an opaque payload
// interpreted by that program.
type Instruction struct {
	ProgramID solana.PublicKey        `json:"programId"`
	Accounts  solana.AccountMetaSlice `json:"accounts"`
	Data      []byte                  `json:"data"`
}

// Transaction is one instruction together with the identities that authorised
// it. Signature collection happens outside the ledger; Signers is trusted.
type Transaction struct {
	Signers     []solana.PublicKey `json:"signers"`
	Instruction Instruction        `json:"instruction"`
}

// AccountLock describes the access a transaction needs on one address.
type AccountLock struct {
	Address  solana.PublicKey
	Writable bool
}

// Validate checks the structural consistency of the transaction.
func (tx *Transaction) Validate() error {
	if tx.Instruction.ProgramID.IsZero() {
		return ErrEmptyInstruction
	}
	for _, signer := range tx.Signers {
		found := false
		for _, meta := range tx.Instruction.Accounts {
			if meta != nil && meta.PublicKey.Equals(signer) && meta.IsSigner {
				found = true
				break
			}
		}
		if !found {
			return ErrMissingSigner
		}
	}
	return nil
}

// IsSigner reports whether addr authorised the transaction.
func (tx *Transaction) IsSigner(addr solana.PublicKey) bool {
	for _, signer := range tx.Signers {
		if signer.Equals(addr) {
			return true
		}
	}
	return false
}

// Locks merges the declared account metas into one lock per address, sorted
// by address so every transaction acquires locks in the same global order.
// An address listed both read-only and writable is locked writable.
func (tx *Transaction) Locks() []AccountLock {
	merged := make(map[solana.PublicKey]bool)
	for _, meta := range tx.Instruction.Accounts {
		if meta == nil {
			continue
		}
		merged[meta.PublicKey] = merged[meta.PublicKey] || meta.IsWritable
	}
	locks := make([]AccountLock, 0, len(merged))
	for addr, writable := range merged {
		locks = append(locks, AccountLock{Address: addr, Writable: writable})
	}
	sort.Slice(locks, func(i, j int) bool {
		return bytes.Compare(locks[i].Address[:], locks[j].Address[:]) < 0
	})
	return locks
}
