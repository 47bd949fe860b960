package core

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core/events"
	"github.com/wotori/solana-donations/core/types"
)

var (
	ErrAccountNotDeclared = errors.New("ledger: account not declared by transaction")
	ErrAccountReadOnly    = errors.New("ledger: account not declared writable")
	ErrIllegalOwner       = errors.New("ledger: account owned by another program")
	ErrInsufficientFunds  = errors.New("ledger: insufficient lamports")
	ErrLamportOverflow    = errors.New("ledger: lamport overflow")
	ErrSourceNotSigner    = errors.New("ledger: transfer source did not sign")
)

type accountReader interface {
	GetAccount(addr solana.PublicKey) (*types.Account, bool, error)
}

// Txn is the view a program gets while executing one instruction. Reads are
// limited to declared accounts and served from committed state on first
// touch; writes are limited to declared writable accounts and stay in the
// overlay until the runtime commits them.
type Txn struct {
	tx        *types.Transaction
	programID solana.PublicKey
	reader    accountReader
	declared  map[solana.PublicKey]bool
	loaded    map[solana.PublicKey]*types.Account
	dirty     map[solana.PublicKey]*types.Account
	events    events.Buffer
}

func newTxn(tx *types.Transaction, reader accountReader) *Txn {
	declared := make(map[solana.PublicKey]bool)
	for _, lock := range tx.Locks() {
		declared[lock.Address] = lock.Writable
	}
	return &Txn{
		tx:        tx,
		programID: tx.Instruction.ProgramID,
		reader:    reader,
		declared:  declared,
		loaded:    make(map[solana.PublicKey]*types.Account),
		dirty:     make(map[solana.PublicKey]*types.Account),
	}
}

// ProgramID returns the id of the program being executed.
func (t *Txn) ProgramID() solana.PublicKey { return t.programID }

// Instruction returns the instruction being executed.
func (t *Txn) Instruction() types.Instruction { return t.tx.Instruction }

// IsSigner reports whether addr authorised the transaction.
func (t *Txn) IsSigner(addr solana.PublicKey) bool { return t.tx.IsSigner(addr) }

// IsWritable reports whether addr was declared writable.
func (t *Txn) IsWritable(addr solana.PublicKey) bool { return t.declared[addr] }

func (t *Txn) load(addr solana.PublicKey) (*types.Account, error) {
	if _, ok := t.declared[addr]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotDeclared, addr)
	}
	if acc, ok := t.dirty[addr]; ok {
		return acc, nil
	}
	if acc, ok := t.loaded[addr]; ok {
		return acc, nil
	}
	acc, ok, err := t.reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		acc = &types.Account{}
	}
	t.loaded[addr] = acc
	return acc, nil
}

func (t *Txn) stage(addr solana.PublicKey) (*types.Account, error) {
	acc, err := t.load(addr)
	if err != nil {
		return nil, err
	}
	if !t.declared[addr] {
		return nil, fmt.Errorf("%w: %s", ErrAccountReadOnly, addr)
	}
	if staged, ok := t.dirty[addr]; ok {
		return staged, nil
	}
	staged := acc.Clone()
	t.dirty[addr] = staged
	return staged, nil
}

// Account returns a copy of the account at addr as seen by this transaction.
// The boolean is false when the account does not exist yet.
func (t *Txn) Account(addr solana.PublicKey) (*types.Account, bool, error) {
	acc, err := t.load(addr)
	if err != nil {
		return nil, false, err
	}
	if acc.IsEmpty() {
		return nil, false, nil
	}
	return acc.Clone(), true, nil
}

// SetAccountData replaces the record stored at addr. The executing program
// must own the account; an account without data and without owner is
// assigned to the program on first write.
func (t *Txn) SetAccountData(addr solana.PublicKey, data []byte) error {
	acc, err := t.stage(addr)
	if err != nil {
		return err
	}
	switch {
	case acc.Owner.Equals(t.programID):
	case acc.Owner.IsZero() && !acc.HasData():
		acc.Owner = t.programID
	default:
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, addr, acc.Owner)
	}
	acc.Data = append([]byte(nil), data...)
	return nil
}

// Transfer moves lamports between two declared writable accounts with system
// transfer semantics: the source must have signed the transaction.
func (t *Txn) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if !t.tx.IsSigner(from) {
		return fmt.Errorf("%w: %s", ErrSourceNotSigner, from)
	}
	src, err := t.stage(from)
	if err != nil {
		return err
	}
	dst, err := t.stage(to)
	if err != nil {
		return err
	}
	if from.Equals(to) {
		if src.Lamports < lamports {
			return ErrInsufficientFunds
		}
		return nil
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: have %d need %d", ErrInsufficientFunds, src.Lamports, lamports)
	}
	credited, carry := bits.Add64(dst.Lamports, lamports, 0)
	if carry != 0 {
		return ErrLamportOverflow
	}
	src.Lamports -= lamports
	dst.Lamports = credited
	t.events.Emit(events.Transfer{From: from, To: to, Amount: lamports})
	return nil
}

// Emit buffers an event; it is published only if the transaction commits.
func (t *Txn) Emit(evt events.Event) { t.events.Emit(evt) }

func (t *Txn) changes() map[solana.PublicKey]*types.Account {
	out := make(map[solana.PublicKey]*types.Account, len(t.dirty))
	for addr, acc := range t.dirty {
		out[addr] = acc.Clone()
	}
	return out
}
