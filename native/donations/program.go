package donations

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/types"
)

// Program exposes the registry to the ledger runtime. It checks the account
// list of each instruction and hands the decoded arguments to an Engine bound
// to the executing transaction.
type Program struct {
	id         solana.PublicKey
	configAddr solana.PublicKey
	clock      clockwork.Clock
}

var _ core.Program = (*Program)(nil)

// NewProgram returns the registry program deployed at programID.
func NewProgram(programID solana.PublicKey) *Program {
	return &Program{
		id:         programID,
		configAddr: MustConfigAddress(programID),
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock overrides the time source used for donation timestamps.
func (p *Program) SetClock(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p.clock = clock
}

func (p *Program) ID() solana.PublicKey { return p.id }

func (p *Program) Name() string { return ModuleName }

func (p *Program) InstructionName(data []byte) string { return InstructionName(data) }

func (p *Program) engine(txn *core.Txn) *Engine {
	return &Engine{
		programID:  p.id,
		configAddr: p.configAddr,
		state:      txnStore(txn),
		emitter:    txn,
		clock:      p.clock,
	}
}

// Execute decodes and runs one registry instruction.
func (p *Program) Execute(txn *core.Txn) error {
	ix := txn.Instruction()
	name, args, err := DecodeInstruction(ix.Data)
	if err != nil {
		return err
	}
	engine := p.engine(txn)
	switch a := args.(type) {
	case *InitializeConfigArgs:
		admin, err := p.configAccounts(txn, ix, name)
		if err != nil {
			return err
		}
		_, err = engine.InitializeConfig(admin, a.Treasury)
		return err
	case *DonateArgs:
		wallet, err := p.donateAccounts(txn, ix, engine)
		if err != nil {
			return err
		}
		_, err = engine.Donate(wallet, a.Amount, a.Nickname)
		return err
	case *UpdateProfileArgs:
		if err := requireAccounts(ix, name, 2); err != nil {
			return err
		}
		donorAddr := ix.Accounts[0].PublicKey
		caller := ix.Accounts[1].PublicKey
		if err := requireSigner(txn, caller); err != nil {
			return err
		}
		if err := requireWritable(txn, donorAddr); err != nil {
			return err
		}
		_, err = engine.UpdateProfile(caller, donorAddr, a.Nickname, a.Description)
		return err
	case *SetTreasuryArgs:
		admin, err := p.configAccounts(txn, ix, name)
		if err != nil {
			return err
		}
		_, err = engine.SetTreasury(admin, a.Treasury)
		return err
	case *SetPausedArgs:
		admin, err := p.configAccounts(txn, ix, name)
		if err != nil {
			return err
		}
		_, err = engine.SetPaused(admin, a.Paused)
		return err
	case *SetAdminArgs:
		admin, err := p.configAccounts(txn, ix, name)
		if err != nil {
			return err
		}
		_, err = engine.SetAdmin(admin, a.Admin)
		return err
	}
	return ErrUnknownInstruction
}

func requireAccounts(ix types.Instruction, name string, n int) error {
	if len(ix.Accounts) < n {
		return fmt.Errorf("%w: %s expects %d accounts, got %d", ErrInvalidAccount, name, n, len(ix.Accounts))
	}
	for i := 0; i < n; i++ {
		if ix.Accounts[i] == nil {
			return fmt.Errorf("%w: %s account %d missing", ErrInvalidAccount, name, i)
		}
	}
	return nil
}

func requireSigner(txn *core.Txn, addr solana.PublicKey) error {
	if !txn.IsSigner(addr) {
		return fmt.Errorf("%w: %s did not sign", ErrNotAuthorized, addr)
	}
	return nil
}

func requireWritable(txn *core.Txn, addr solana.PublicKey) error {
	if !txn.IsWritable(addr) {
		return fmt.Errorf("%w: %s must be writable", ErrInvalidAccount, addr)
	}
	return nil
}

// configAccounts checks the [config, signer] prefix shared by
// initialize_config and the admin operations and returns the signer.
func (p *Program) configAccounts(txn *core.Txn, ix types.Instruction, name string) (solana.PublicKey, error) {
	if err := requireAccounts(ix, name, 2); err != nil {
		return solana.PublicKey{}, err
	}
	if !ix.Accounts[0].PublicKey.Equals(p.configAddr) {
		return solana.PublicKey{}, fmt.Errorf("%w: config must be %s", ErrInvalidAccount, p.configAddr)
	}
	if err := requireWritable(txn, p.configAddr); err != nil {
		return solana.PublicKey{}, err
	}
	caller := ix.Accounts[1].PublicKey
	if err := requireSigner(txn, caller); err != nil {
		return solana.PublicKey{}, err
	}
	return caller, nil
}

// donateAccounts checks [config, donor, donor_index, treasury, wallet]. The
// donor index must be the one for the id the donation will use: the donor's
// existing id, or the config's next id for a first donation.
func (p *Program) donateAccounts(txn *core.Txn, ix types.Instruction, engine *Engine) (solana.PublicKey, error) {
	if err := requireAccounts(ix, InstructionDonate, 5); err != nil {
		return solana.PublicKey{}, err
	}
	configAddr := ix.Accounts[0].PublicKey
	donorAddr := ix.Accounts[1].PublicKey
	indexAddr := ix.Accounts[2].PublicKey
	treasury := ix.Accounts[3].PublicKey
	wallet := ix.Accounts[4].PublicKey

	if !configAddr.Equals(p.configAddr) {
		return solana.PublicKey{}, fmt.Errorf("%w: config must be %s", ErrInvalidAccount, p.configAddr)
	}
	if err := requireSigner(txn, wallet); err != nil {
		return solana.PublicKey{}, err
	}
	for _, addr := range []solana.PublicKey{configAddr, donorAddr, indexAddr, treasury, wallet} {
		if err := requireWritable(txn, addr); err != nil {
			return solana.PublicKey{}, err
		}
	}
	expectedDonor, _, err := DonorAddress(p.id, wallet)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !donorAddr.Equals(expectedDonor) {
		return solana.PublicKey{}, fmt.Errorf("%w: donor record must be %s", ErrInvalidAccount, expectedDonor)
	}

	cfg, ok, err := engine.state.ConfigGet(p.configAddr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !ok {
		return solana.PublicKey{}, ErrNotInitialized
	}
	if !treasury.Equals(cfg.Treasury) {
		return solana.PublicKey{}, fmt.Errorf("%w: treasury must be %s", ErrInvalidAccount, cfg.Treasury)
	}
	donorID := cfg.NextDonorID
	donor, exists, err := engine.state.DonorGet(donorAddr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if exists {
		donorID = donor.DonorID
	}
	expectedIndex, _, err := DonorIndexAddress(p.id, donorID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !indexAddr.Equals(expectedIndex) {
		return solana.PublicKey{}, fmt.Errorf("%w: expected index %s for donor id %d", ErrInvalidDonorIndex, expectedIndex, donorID)
	}
	return wallet, nil
}
