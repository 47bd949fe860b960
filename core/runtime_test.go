package core

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wotori/solana-donations/core/events"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/storage"
)

var errCounterRejected = errors.New("counter: rejected")

// counterProgram increments a little-endian counter stored in the first
// account. A payload of 0xff transfers one lamport from the signer and then
// fails, so tests can check that nothing commits.
type counterProgram struct {
	id solana.PublicKey

	mu      sync.Mutex
	running int
	maxSeen int
	hold    time.Duration
}

func (p *counterProgram) ID() solana.PublicKey           { return p.id }
func (p *counterProgram) Name() string                   { return "counter" }
func (p *counterProgram) InstructionName(_ []byte) string { return "increment" }

func (p *counterProgram) Execute(txn *Txn) error {
	p.mu.Lock()
	p.running++
	if p.running > p.maxSeen {
		p.maxSeen = p.running
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}()

	ix := txn.Instruction()
	target := ix.Accounts[0].PublicKey
	acc, ok, err := txn.Account(target)
	if err != nil {
		return err
	}
	var count uint64
	if ok && len(acc.Data) == 8 {
		count = binary.LittleEndian.Uint64(acc.Data)
	}
	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, count+1)
	if err := txn.SetAccountData(target, buf); err != nil {
		return err
	}
	if len(ix.Data) == 1 && ix.Data[0] == 0xff {
		payer := ix.Accounts[1].PublicKey
		if err := txn.Transfer(payer, target, 1); err != nil {
			return err
		}
		return errCounterRejected
	}
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestRuntime(t *testing.T) (*Runtime, *counterProgram) {
	t.Helper()
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	prog := &counterProgram{id: solana.NewWallet().PublicKey()}
	require.NoError(t, rt.Register(prog))
	return rt, prog
}

func counterTx(prog solana.PublicKey, target, payer solana.PublicKey, data []byte) *types.Transaction {
	return &types.Transaction{
		Signers: []solana.PublicKey{payer},
		Instruction: types.Instruction{
			ProgramID: prog,
			Accounts: solana.AccountMetaSlice{
				solana.Meta(target).WRITE(),
				solana.Meta(payer).WRITE().SIGNER(),
			},
			Data: data,
		},
	}
}

func readCounter(t *testing.T, rt *Runtime, addr solana.PublicKey) uint64 {
	t.Helper()
	acc, ok, err := rt.Account(addr)
	require.NoError(t, err)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint64(acc.Data)
}

func TestRuntimeSerializesWritersOfSameAccount(t *testing.T) {
	rt, prog := newTestRuntime(t)
	prog.hold = 2 * time.Millisecond
	target := solana.NewWallet().PublicKey()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payer := solana.NewWallet().PublicKey()
			_, err := rt.Submit(context.Background(), counterTx(prog.id, target, payer, nil))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, uint64(workers), readCounter(t, rt, target))
	require.Equal(t, 1, prog.maxSeen)
	require.Zero(t, rt.locks.size())
}

func TestRuntimeRunsDisjointTransactionsInParallel(t *testing.T) {
	rt, prog := newTestRuntime(t)
	prog.hold = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := counterTx(prog.id, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), nil)
			_, err := rt.Submit(context.Background(), tx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Greater(t, prog.maxSeen, 1)
}

func TestRuntimeRollsBackFailedTransaction(t *testing.T) {
	rt, prog := newTestRuntime(t)
	emitter := &recordingEmitter{}
	rt.SetEmitter(emitter)

	target := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	_, err := rt.Airdrop(context.Background(), payer, 10)
	require.NoError(t, err)
	require.Equal(t, 1, emitter.count())

	_, err = rt.Submit(context.Background(), counterTx(prog.id, target, payer, []byte{0xff}))
	require.ErrorIs(t, err, errCounterRejected)

	balance, err := rt.Balance(payer)
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)
	require.Zero(t, readCounter(t, rt, target))
	require.Equal(t, 1, emitter.count(), "events of a rejected transaction must not be published")
}

func TestRuntimeReceiptCarriesCommittedEvents(t *testing.T) {
	rt, prog := newTestRuntime(t)
	target := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	receipt, err := rt.Submit(context.Background(), counterTx(prog.id, target, payer, nil))
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ID)
	require.Equal(t, "counter", receipt.Program)
	require.Equal(t, "increment", receipt.Instruction)
	require.Equal(t, uint64(1), readCounter(t, rt, target))

	acc, ok, err := rt.Account(target)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, acc.Owner.Equals(prog.id))
}

func TestRuntimeRejectsUndeclaredAccount(t *testing.T) {
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	id := solana.NewWallet().PublicKey()
	stray := solana.NewWallet().PublicKey()
	require.NoError(t, rt.Register(&probeProgram{id: id, fn: func(txn *Txn) error {
		_, _, err := txn.Account(stray)
		return err
	}}))

	payer := solana.NewWallet().PublicKey()
	tx := &types.Transaction{
		Signers: []solana.PublicKey{payer},
		Instruction: types.Instruction{
			ProgramID: id,
			Accounts:  solana.AccountMetaSlice{solana.Meta(payer).SIGNER()},
		},
	}
	_, err := rt.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ErrAccountNotDeclared)
}

func TestRuntimeRejectsWriteToReadOnlyAccount(t *testing.T) {
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	id := solana.NewWallet().PublicKey()
	target := solana.NewWallet().PublicKey()
	require.NoError(t, rt.Register(&probeProgram{id: id, fn: func(txn *Txn) error {
		return txn.SetAccountData(target, []byte{1})
	}}))

	tx := &types.Transaction{Instruction: types.Instruction{
		ProgramID: id,
		Accounts:  solana.AccountMetaSlice{solana.Meta(target)},
	}}
	_, err := rt.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ErrAccountReadOnly)
}

func TestRuntimeTransferRequiresSigner(t *testing.T) {
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	id := solana.NewWallet().PublicKey()
	victim := solana.NewWallet().PublicKey()
	thief := solana.NewWallet().PublicKey()
	_, err := rt.Airdrop(context.Background(), victim, 100)
	require.NoError(t, err)
	require.NoError(t, rt.Register(&probeProgram{id: id, fn: func(txn *Txn) error {
		return txn.Transfer(victim, thief, 50)
	}}))

	tx := &types.Transaction{Instruction: types.Instruction{
		ProgramID: id,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(victim).WRITE(),
			solana.Meta(thief).WRITE(),
		},
	}}
	_, err = rt.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ErrSourceNotSigner)
	balance, err := rt.Balance(victim)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)
}

func TestRuntimeLockWaitHonoursContext(t *testing.T) {
	rt, prog := newTestRuntime(t)
	target := solana.NewWallet().PublicKey()

	release, err := rt.locks.acquire(context.Background(), []types.AccountLock{{Address: target, Writable: true}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rt.Submit(ctx, counterTx(prog.id, target, solana.NewWallet().PublicKey(), nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	require.Zero(t, rt.locks.size())
}

func TestRuntimeUnknownProgram(t *testing.T) {
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	payer := solana.NewWallet().PublicKey()
	_, err := rt.Submit(context.Background(), counterTx(solana.NewWallet().PublicKey(), payer, payer, nil))
	require.ErrorIs(t, err, ErrUnknownProgram)
}

func TestRuntimeAirdropOverflow(t *testing.T) {
	rt := NewRuntime(state.NewManager(storage.NewMemDB()))
	addr := solana.NewWallet().PublicKey()
	_, err := rt.Airdrop(context.Background(), addr, ^uint64(0))
	require.NoError(t, err)
	_, err = rt.Airdrop(context.Background(), addr, 1)
	require.ErrorIs(t, err, ErrLamportOverflow)
}

type probeProgram struct {
	id solana.PublicKey
	fn func(*Txn) error
}

func (p *probeProgram) ID() solana.PublicKey           { return p.id }
func (p *probeProgram) Name() string                   { return "probe" }
func (p *probeProgram) InstructionName(_ []byte) string { return "probe" }
func (p *probeProgram) Execute(txn *Txn) error         { return p.fn(txn) }
