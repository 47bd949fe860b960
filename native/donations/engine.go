package donations

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/wotori/solana-donations/core/events"
	"github.com/wotori/solana-donations/core/types"
)

var errNilState = errors.New("donations engine: state not configured")

// engineState is the record and balance access the engine needs. Records are
// addressed by their derived address; the boolean reports existence.
type engineState interface {
	ConfigGet(addr solana.PublicKey) (*Config, bool, error)
	ConfigPut(addr solana.PublicKey, cfg *Config) error
	DonorGet(addr solana.PublicKey) (*Donor, bool, error)
	DonorPut(addr solana.PublicKey, donor *Donor) error
	DonorIndexGet(addr solana.PublicKey) (*DonorIndex, bool, error)
	DonorIndexPut(addr solana.PublicKey, index *DonorIndex) error
	Balance(addr solana.PublicKey) (uint64, error)
	Transfer(from, to solana.PublicKey, lamports uint64) error
}

// Engine applies registry instructions on top of an engineState. It holds no
// registry state of its own.
type Engine struct {
	programID  solana.PublicKey
	configAddr solana.PublicKey
	state      engineState
	emitter    events.Emitter
	clock      clockwork.Clock
}

// DonationResult is returned by Donate.
type DonationResult struct {
	Donor      *Donor
	Config     *Config
	CreatedNew bool
}

// RankedDonor is one leaderboard row joined with its donor record.
type RankedDonor struct {
	Rank           int              `json:"rank"`
	DonorID        uint64           `json:"donorId"`
	LifetimeAmount uint64           `json:"lifetimeAmount"`
	Wallet         solana.PublicKey `json:"wallet"`
	Nickname       string           `json:"nickname"`
}

// NewEngine constructs a registry engine for the program deployed at
// programID.
func NewEngine(programID solana.PublicKey) *Engine {
	return &Engine{
		programID:  programID,
		configAddr: MustConfigAddress(programID),
		emitter:    events.NoopEmitter{},
		clock:      clockwork.NewRealClock(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source used for donation timestamps.
func (e *Engine) SetClock(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e.clock = clock
}

// ProgramID returns the program the engine derives addresses for.
func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) loadConfig() (*Config, error) {
	cfg, ok, err := e.state.ConfigGet(e.configAddr)
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func checkField(name, value string, limit int) error {
	if len(value) > limit {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, name, len(value), limit)
	}
	return nil
}

// InitializeConfig creates the registry with admin as the administrator.
func (e *Engine) InitializeConfig(admin, treasury solana.PublicKey) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.ConfigGet(e.configAddr); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	cfg := &Config{
		Admin:       admin,
		Treasury:    treasury,
		NextDonorID: 1,
	}
	if err := e.state.ConfigPut(e.configAddr, cfg); err != nil {
		return nil, err
	}
	e.emit(InitializedEvent(cfg))
	return cfg.Clone(), nil
}

// Donate moves amount from wallet to the treasury and credits the donor
// record, creating it and its index on the wallet's first donation. A
// non-empty nickname is stored on the donor record. Every counter is computed
// with checked arithmetic before anything is written.
func (e *Engine) Donate(wallet solana.PublicKey, amount uint64, nickname *string) (*DonationResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, ErrPaused
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if nickname != nil {
		if err := checkField("nickname", *nickname, MaxNicknameLen); err != nil {
			return nil, err
		}
	}

	donorAddr, _, err := DonorAddress(e.programID, wallet)
	if err != nil {
		return nil, err
	}
	donor, exists, err := e.state.DonorGet(donorAddr)
	if err != nil {
		return nil, err
	}
	nextDonorID := cfg.NextDonorID
	var index *DonorIndex
	if exists {
		if err := e.checkIndex(donor, donorAddr); err != nil {
			return nil, err
		}
	} else {
		if nextDonorID, err = checkedAdd(cfg.NextDonorID, 1); err != nil {
			return nil, err
		}
		indexAddr, _, err := DonorIndexAddress(e.programID, cfg.NextDonorID)
		if err != nil {
			return nil, err
		}
		if _, taken, err := e.state.DonorIndexGet(indexAddr); err != nil {
			return nil, err
		} else if taken {
			return nil, fmt.Errorf("%w: id %d already indexed", ErrInvalidDonorIndex, cfg.NextDonorID)
		}
		donor = &Donor{Wallet: wallet, DonorID: cfg.NextDonorID}
		index = &DonorIndex{DonorID: donor.DonorID, Wallet: wallet, DonorAddress: donorAddr}
	}

	lifetime, err := checkedAdd(donor.LifetimeAmount, amount)
	if err != nil {
		return nil, err
	}
	count, err := checkedAdd(donor.DonationsCount, 1)
	if err != nil {
		return nil, err
	}
	total, err := checkedAdd(cfg.TotalDonated, amount)
	if err != nil {
		return nil, err
	}

	balance, err := e.state.Balance(wallet)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d, amount %d", ErrInsufficientFunds, balance, amount)
	}
	if err := e.state.Transfer(wallet, cfg.Treasury, amount); err != nil {
		return nil, err
	}

	if index != nil {
		indexAddr, _, err := DonorIndexAddress(e.programID, index.DonorID)
		if err != nil {
			return nil, err
		}
		if err := e.state.DonorIndexPut(indexAddr, index); err != nil {
			return nil, err
		}
	}
	donor.LifetimeAmount = lifetime
	donor.DonationsCount = count
	donor.LastDonationTs = e.clock.Now().Unix()
	if nickname != nil && *nickname != "" {
		donor.Nickname = *nickname
	}
	if err := e.state.DonorPut(donorAddr, donor); err != nil {
		return nil, err
	}

	cfg.NextDonorID = nextDonorID
	cfg.TotalDonated = total
	cfg.Top10 = cfg.Top10.Apply(donor.DonorID, donor.LifetimeAmount)
	if err := e.state.ConfigPut(e.configAddr, cfg); err != nil {
		return nil, err
	}
	e.emit(DonatedEvent(donor, amount, !exists, cfg))
	return &DonationResult{Donor: donor.Clone(), Config: cfg.Clone(), CreatedNew: !exists}, nil
}

func (e *Engine) checkIndex(donor *Donor, donorAddr solana.PublicKey) error {
	indexAddr, _, err := DonorIndexAddress(e.programID, donor.DonorID)
	if err != nil {
		return err
	}
	index, ok, err := e.state.DonorIndexGet(indexAddr)
	if err != nil {
		return err
	}
	if !ok || index == nil {
		return fmt.Errorf("%w: index for donor %d missing", ErrInvalidDonorIndex, donor.DonorID)
	}
	if index.DonorID != donor.DonorID || !index.Wallet.Equals(donor.Wallet) || !index.DonorAddress.Equals(donorAddr) {
		return fmt.Errorf("%w: index for donor %d points elsewhere", ErrInvalidDonorIndex, donor.DonorID)
	}
	return nil
}

// UpdateProfile overwrites the nickname and description of the donor record
// at donorAddr with the supplied values. Nil arguments leave the field as is.
func (e *Engine) UpdateProfile(caller, donorAddr solana.PublicKey, nickname, description *string) (*Donor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	donor, ok, err := e.state.DonorGet(donorAddr)
	if err != nil {
		return nil, err
	}
	if !ok || donor == nil {
		return nil, ErrNotFound
	}
	if !donor.Wallet.Equals(caller) {
		return nil, ErrNotAuthorized
	}
	if nickname != nil {
		if err := checkField("nickname", *nickname, MaxNicknameLen); err != nil {
			return nil, err
		}
	}
	if description != nil {
		if err := checkField("description", *description, MaxDescriptionLen); err != nil {
			return nil, err
		}
	}
	if nickname != nil {
		donor.Nickname = *nickname
	}
	if description != nil {
		donor.Description = *description
	}
	if err := e.state.DonorPut(donorAddr, donor); err != nil {
		return nil, err
	}
	e.emit(ProfileUpdatedEvent(donor))
	return donor.Clone(), nil
}

func (e *Engine) updateConfig(caller solana.PublicKey, field, value string, apply func(*Config)) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Admin.Equals(caller) {
		return nil, ErrNotAuthorized
	}
	apply(cfg)
	if err := e.state.ConfigPut(e.configAddr, cfg); err != nil {
		return nil, err
	}
	e.emit(ConfigUpdatedEvent(caller.String(), field, value))
	return cfg.Clone(), nil
}

// SetTreasury points future donations at treasury.
func (e *Engine) SetTreasury(caller, treasury solana.PublicKey) (*Config, error) {
	return e.updateConfig(caller, "treasury", treasury.String(), func(cfg *Config) {
		cfg.Treasury = treasury
	})
}

// SetPaused toggles whether donations are accepted.
func (e *Engine) SetPaused(caller solana.PublicKey, paused bool) (*Config, error) {
	return e.updateConfig(caller, "paused", strconv.FormatBool(paused), func(cfg *Config) {
		cfg.Paused = paused
	})
}

// SetAdmin hands the admin role to admin.
func (e *Engine) SetAdmin(caller, admin solana.PublicKey) (*Config, error) {
	return e.updateConfig(caller, "admin", admin.String(), func(cfg *Config) {
		cfg.Admin = admin
	})
}

// Config returns the registry config.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadConfig()
}

// Donor returns the donor record of wallet.
func (e *Engine) Donor(wallet solana.PublicKey) (*Donor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, _, err := DonorAddress(e.programID, wallet)
	if err != nil {
		return nil, err
	}
	donor, ok, err := e.state.DonorGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || donor == nil {
		return nil, ErrNotFound
	}
	return donor, nil
}

// DonorByID resolves a donor through its index record.
func (e *Engine) DonorByID(donorID uint64) (*Donor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	indexAddr, _, err := DonorIndexAddress(e.programID, donorID)
	if err != nil {
		return nil, err
	}
	index, ok, err := e.state.DonorIndexGet(indexAddr)
	if err != nil {
		return nil, err
	}
	if !ok || index == nil {
		return nil, ErrNotFound
	}
	donor, ok, err := e.state.DonorGet(index.DonorAddress)
	if err != nil {
		return nil, err
	}
	if !ok || donor == nil {
		return nil, ErrNotFound
	}
	if donor.DonorID != donorID {
		return nil, fmt.Errorf("%w: index %d resolves to donor %d", ErrInvalidDonorIndex, donorID, donor.DonorID)
	}
	return donor, nil
}

// Leaderboard returns the ranked donors joined with their records.
func (e *Engine) Leaderboard() ([]RankedDonor, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	entries := cfg.Top10.Entries()
	out := make([]RankedDonor, 0, len(entries))
	for i, entry := range entries {
		row := RankedDonor{Rank: i + 1, DonorID: entry.DonorID, LifetimeAmount: entry.LifetimeAmount}
		donor, err := e.DonorByID(entry.DonorID)
		switch {
		case err == nil:
			row.Wallet = donor.Wallet
			row.Nickname = donor.Nickname
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// DonorIDFor returns the id a donate instruction from wallet must reference:
// the existing donor id, or the next id to be allocated for a first donation.
func (e *Engine) DonorIDFor(wallet solana.PublicKey) (uint64, bool, error) {
	donor, err := e.Donor(wallet)
	switch {
	case err == nil:
		return donor.DonorID, false, nil
	case !errors.Is(err, ErrNotFound):
		return 0, false, err
	}
	cfg, err := e.Config()
	if err != nil {
		return 0, false, err
	}
	return cfg.NextDonorID, true, nil
}
