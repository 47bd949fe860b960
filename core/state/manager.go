package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/storage"
)

// Manager reads and writes ledger accounts on top of a key/value store.
// Account writes produced by one transaction are applied through a single
// storage batch so readers never observe a partially committed transaction.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var accountPrefix = []byte("account:")

// storedAccount is the RLP envelope persisted for every account.
type storedAccount struct {
	Lamports uint64
	Owner    [32]byte
	Data     []byte
}

func accountKey(addr solana.PublicKey) []byte {
	buf := make([]byte, len(accountPrefix)+solana.PublicKeyLength)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// GetAccount returns the committed account at addr. The boolean is false when
// nothing has ever been written there.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, fmt.Errorf("state: manager unavailable")
	}
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	acc := &types.Account{
		Lamports: stored.Lamports,
		Owner:    solana.PublicKeyFromBytes(stored.Owner[:]),
		Data:     stored.Data,
	}
	if acc.IsEmpty() {
		return nil, false, nil
	}
	return acc, true, nil
}

// PutAccounts writes every supplied account atomically.
func (m *Manager) PutAccounts(accounts map[solana.PublicKey]*types.Account) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if len(accounts) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for addr, acc := range accounts {
		if acc == nil {
			acc = &types.Account{}
		}
		encoded, err := rlp.EncodeToBytes(storedAccount{
			Lamports: acc.Lamports,
			Owner:    acc.Owner,
			Data:     acc.Data,
		})
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", addr, err)
		}
		batch.Put(accountKey(addr), encoded)
	}
	return batch.Write()
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 so it never collides with account keys.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
