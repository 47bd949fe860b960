package donations

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/types"
)

var errReadOnly = errors.New("donations: read-only state")

// AccountReader is the committed-state view used for queries.
type AccountReader interface {
	Account(addr solana.PublicKey) (*types.Account, bool, error)
}

// recordStore adapts ledger accounts to engineState. With txn set every
// access goes through the executing transaction; otherwise it reads
// committed state and rejects writes.
type recordStore struct {
	programID solana.PublicKey
	reader    AccountReader
	txn       *core.Txn
}

func txnStore(txn *core.Txn) *recordStore {
	return &recordStore{programID: txn.ProgramID(), reader: txn, txn: txn}
}

func (s *recordStore) data(addr solana.PublicKey) ([]byte, bool, error) {
	acc, ok, err := s.reader.Account(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok || !acc.HasData() {
		return nil, false, nil
	}
	if !acc.Owner.Equals(s.programID) {
		return nil, false, fmt.Errorf("%w: %s owned by %s", ErrInvalidAccount, addr, acc.Owner)
	}
	return acc.Data, true, nil
}

func (s *recordStore) put(addr solana.PublicKey, data []byte) error {
	if s.txn == nil {
		return errReadOnly
	}
	return s.txn.SetAccountData(addr, data)
}

func (s *recordStore) ConfigGet(addr solana.PublicKey) (*Config, bool, error) {
	data, ok, err := s.data(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg, err := DecodeConfig(data)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *recordStore) ConfigPut(addr solana.PublicKey, cfg *Config) error {
	data, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}
	return s.put(addr, data)
}

func (s *recordStore) DonorGet(addr solana.PublicKey) (*Donor, bool, error) {
	data, ok, err := s.data(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	donor, err := DecodeDonor(data)
	if err != nil {
		return nil, false, err
	}
	return donor, true, nil
}

func (s *recordStore) DonorPut(addr solana.PublicKey, donor *Donor) error {
	data, err := EncodeDonor(donor)
	if err != nil {
		return err
	}
	return s.put(addr, data)
}

func (s *recordStore) DonorIndexGet(addr solana.PublicKey) (*DonorIndex, bool, error) {
	data, ok, err := s.data(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	index, err := DecodeDonorIndex(data)
	if err != nil {
		return nil, false, err
	}
	return index, true, nil
}

func (s *recordStore) DonorIndexPut(addr solana.PublicKey, index *DonorIndex) error {
	data, err := EncodeDonorIndex(index)
	if err != nil {
		return err
	}
	return s.put(addr, data)
}

func (s *recordStore) Balance(addr solana.PublicKey) (uint64, error) {
	acc, ok, err := s.reader.Account(addr)
	if err != nil || !ok {
		return 0, err
	}
	return acc.Lamports, nil
}

func (s *recordStore) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if s.txn == nil {
		return errReadOnly
	}
	err := s.txn.Transfer(from, to, lamports)
	switch {
	case errors.Is(err, core.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, core.ErrLamportOverflow):
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return err
}

// NewQueryEngine returns an engine over committed state for the read
// helpers. Its instruction methods fail.
func NewQueryEngine(programID solana.PublicKey, reader AccountReader) *Engine {
	engine := NewEngine(programID)
	engine.SetState(&recordStore{programID: programID, reader: reader})
	return engine
}
