package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wotori/solana-donations/core/events"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/observability/metrics"
)

var (
	ErrUnknownProgram    = errors.New("ledger: unknown program")
	ErrProgramRegistered = errors.New("ledger: program already registered")
)

var tracer = otel.Tracer("github.com/wotori/solana-donations/core")

// Program executes instructions addressed to its id. Execute runs with every
// declared account locked and must not retain the Txn after returning.
type Program interface {
	ID() solana.PublicKey
	Name() string
	// InstructionName labels an instruction payload for logs and metrics.
	InstructionName(data []byte) string
	Execute(txn *Txn) error
}

// Receipt summarises a committed transaction.
type Receipt struct {
	ID          string         `json:"id"`
	Program     string         `json:"program"`
	Instruction string         `json:"instruction"`
	Events      []*types.Event `json:"events"`
	CommittedAt time.Time      `json:"committedAt"`
	Duration    time.Duration  `json:"duration"`
}

// Runtime is the host ledger: it serialises transactions that write the same
// account, executes programs against an overlay and commits each transaction
// atomically. Transactions with disjoint write sets run in parallel.
type Runtime struct {
	state   *state.Manager
	locks   *lockTable
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.LedgerMetrics

	mu       sync.RWMutex
	programs map[solana.PublicKey]Program
	emitter  events.Emitter
}

// NewRuntime constructs a runtime over the provided state manager.
func NewRuntime(st *state.Manager) *Runtime {
	return &Runtime{
		state:    st,
		locks:    newLockTable(),
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		metrics:  metrics.Ledger(),
		programs: make(map[solana.PublicKey]Program),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures where committed events are published. Passing nil
// resets the emitter to a no-op implementation.
func (r *Runtime) SetEmitter(emitter events.Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetLogger overrides the logger used for transaction outcomes.
func (r *Runtime) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetClock overrides the clock used for receipts, for deterministic testing.
func (r *Runtime) SetClock(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r.clock = clock
}

// Register makes a program callable by transactions.
func (r *Runtime) Register(p Program) error {
	if p == nil {
		return fmt.Errorf("ledger: nil program")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.programs[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrProgramRegistered, p.ID())
	}
	r.programs[p.ID()] = p
	return nil
}

func (r *Runtime) program(id solana.PublicKey) (Program, events.Emitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, r.emitter, ok
}

func (r *Runtime) currentEmitter() events.Emitter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emitter
}

// Account reads committed state without taking any lock.
func (r *Runtime) Account(addr solana.PublicKey) (*types.Account, bool, error) {
	return r.state.GetAccount(addr)
}

// Balance returns the committed lamport balance of addr.
func (r *Runtime) Balance(addr solana.PublicKey) (uint64, error) {
	acc, ok, err := r.state.GetAccount(addr)
	if err != nil || !ok {
		return 0, err
	}
	return acc.Lamports, nil
}

// Submit executes tx. Either every account change commits together and the
// receipt is returned, or nothing is written and the program's error is
// returned wrapped.
func (r *Runtime) Submit(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("ledger: nil transaction")
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	prog, emitter, ok := r.program(tx.Instruction.ProgramID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, tx.Instruction.ProgramID)
	}
	receiptID := uuid.NewString()
	instruction := prog.InstructionName(tx.Instruction.Data)

	ctx, span := tracer.Start(ctx, "ledger.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.program", prog.Name()),
		attribute.String("ledger.instruction", instruction),
		attribute.String("ledger.receipt", receiptID),
	)

	r.metrics.TrackInflight(1)
	defer r.metrics.TrackInflight(-1)

	waitStart := r.clock.Now()
	release, err := r.locks.acquire(ctx, tx.Locks())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock wait aborted")
		r.metrics.ObserveTransaction(prog.Name(), instruction, "cancelled", 0)
		return nil, fmt.Errorf("ledger: acquire locks: %w", err)
	}
	defer release()
	r.metrics.ObserveLockWait(r.clock.Since(waitStart))

	start := r.clock.Now()
	txn := newTxn(tx, r.state)
	if err := prog.Execute(txn); err != nil {
		took := r.clock.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		r.metrics.ObserveTransaction(prog.Name(), instruction, "rejected", took)
		r.logger.Info("tx rejected",
			slog.String("receipt", receiptID),
			slog.String("program", prog.Name()),
			slog.String("instruction", instruction),
			slog.Any("error", err))
		return nil, err
	}
	if err := r.state.PutAccounts(txn.changes()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		r.metrics.ObserveTransaction(prog.Name(), instruction, "failed", r.clock.Since(start))
		r.logger.Error("tx commit failed",
			slog.String("receipt", receiptID),
			slog.String("program", prog.Name()),
			slog.Any("error", err))
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}
	committed := txn.events.Events()
	txn.events.Flush(emitter)
	took := r.clock.Since(start)
	r.metrics.ObserveTransaction(prog.Name(), instruction, "committed", took)
	r.logger.Debug("tx committed",
		slog.String("receipt", receiptID),
		slog.String("program", prog.Name()),
		slog.String("instruction", instruction),
		slog.Duration("took", took))
	return &Receipt{
		ID:          receiptID,
		Program:     prog.Name(),
		Instruction: instruction,
		Events:      events.ToPayloads(committed),
		CommittedAt: r.clock.Now(),
		Duration:    took,
	}, nil
}

// Airdrop credits lamports to addr under an exclusive lock. It backs the dev
// faucet and genesis allocations.
func (r *Runtime) Airdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (*Receipt, error) {
	release, err := r.locks.acquire(ctx, []types.AccountLock{{Address: addr, Writable: true}})
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire locks: %w", err)
	}
	defer release()

	acc, ok, err := r.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		acc = &types.Account{}
	}
	credited, carry := bits.Add64(acc.Lamports, lamports, 0)
	if carry != 0 {
		return nil, ErrLamportOverflow
	}
	acc.Lamports = credited
	if err := r.state.PutAccounts(map[solana.PublicKey]*types.Account{addr: acc}); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}
	evt := events.Airdrop{To: addr, Amount: lamports}
	r.currentEmitter().Emit(evt)
	return &Receipt{
		ID:          uuid.NewString(),
		Program:     "system",
		Instruction: "airdrop",
		Events:      []*types.Event{evt.Event()},
		CommittedAt: r.clock.Now(),
	}, nil
}
