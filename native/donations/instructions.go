package donations

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core/types"
)

const (
	InstructionInitializeConfig = "initialize_config"
	InstructionDonate           = "donate"
	InstructionUpdateProfile    = "update_profile"
	InstructionSetTreasury      = "set_treasury"
	InstructionSetPaused        = "set_paused"
	InstructionSetAdmin         = "set_admin"
)

var instructionNames = []string{
	InstructionInitializeConfig,
	InstructionDonate,
	InstructionUpdateProfile,
	InstructionSetTreasury,
	InstructionSetPaused,
	InstructionSetAdmin,
}

var instructionDiscriminators = func() map[[discriminatorLen]byte]string {
	out := make(map[[discriminatorLen]byte]string, len(instructionNames))
	for _, name := range instructionNames {
		out[instructionDiscriminator(name)] = name
	}
	return out
}()

func instructionDiscriminator(name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [discriminatorLen]byte
	copy(out[:], sum[:discriminatorLen])
	return out
}

// InstructionName returns the instruction a payload encodes, or "unknown".
func InstructionName(data []byte) string {
	if len(data) < discriminatorLen {
		return "unknown"
	}
	var disc [discriminatorLen]byte
	copy(disc[:], data[:discriminatorLen])
	if name, ok := instructionDiscriminators[disc]; ok {
		return name
	}
	return "unknown"
}

type InitializeConfigArgs struct {
	Treasury solana.PublicKey `json:"treasury"`
}

type DonateArgs struct {
	Amount   uint64  `json:"amount"`
	Nickname *string `json:"nickname,omitempty"`
}

type UpdateProfileArgs struct {
	Nickname    *string `json:"nickname,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SetTreasuryArgs struct {
	Treasury solana.PublicKey `json:"treasury"`
}

type SetPausedArgs struct {
	Paused bool `json:"paused"`
}

type SetAdminArgs struct {
	Admin solana.PublicKey `json:"admin"`
}

func writeOptionalString(enc *bin.Encoder, s *string) error {
	if s == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return writeString(enc, *s)
}

// readOptionalString accepts strings beyond the record limits so the handler
// can reject them with a field error rather than a decode error.
func readOptionalString(dec *bin.Decoder) (*string, error) {
	present, err := dec.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	s, err := readString(dec, maxArgumentStringLen)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const maxArgumentStringLen = 1024

func (a InitializeConfigArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return writePublicKey(enc, a.Treasury)
}

func (a *InitializeConfigArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Treasury, err = readPublicKey(dec)
	return err
}

func (a DonateArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(a.Amount, bin.LE); err != nil {
		return err
	}
	return writeOptionalString(enc, a.Nickname)
}

func (a *DonateArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	a.Nickname, err = readOptionalString(dec)
	return err
}

func (a UpdateProfileArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeOptionalString(enc, a.Nickname); err != nil {
		return err
	}
	return writeOptionalString(enc, a.Description)
}

func (a *UpdateProfileArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.Nickname, err = readOptionalString(dec); err != nil {
		return err
	}
	a.Description, err = readOptionalString(dec)
	return err
}

func (a SetTreasuryArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return writePublicKey(enc, a.Treasury)
}

func (a *SetTreasuryArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Treasury, err = readPublicKey(dec)
	return err
}

func (a SetPausedArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteBool(a.Paused)
}

func (a *SetPausedArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Paused, err = dec.ReadBool()
	return err
}

func (a SetAdminArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return writePublicKey(enc, a.Admin)
}

func (a *SetAdminArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Admin, err = readPublicKey(dec)
	return err
}

// EncodeInstructionData prefixes the Borsh encoding of args with the
// discriminator of the named instruction.
func EncodeInstructionData(name string, args bin.BinaryMarshaler) ([]byte, error) {
	return encodeRecord(instructionDiscriminator(name), args)
}

// DecodeInstruction parses an instruction payload into its name and typed
// arguments (one of the *Args structs).
func DecodeInstruction(data []byte) (string, interface{}, error) {
	name := InstructionName(data)
	var args bin.BinaryUnmarshaler
	switch name {
	case InstructionInitializeConfig:
		args = new(InitializeConfigArgs)
	case InstructionDonate:
		args = new(DonateArgs)
	case InstructionUpdateProfile:
		args = new(UpdateProfileArgs)
	case InstructionSetTreasury:
		args = new(SetTreasuryArgs)
	case InstructionSetPaused:
		args = new(SetPausedArgs)
	case InstructionSetAdmin:
		args = new(SetAdminArgs)
	default:
		return "", nil, ErrUnknownInstruction
	}
	dec := bin.NewBorshDecoder(data[discriminatorLen:])
	if err := args.UnmarshalWithDecoder(dec); err != nil {
		return "", nil, fmt.Errorf("donations: decode %s arguments: %w", name, err)
	}
	if dec.Remaining() != 0 {
		return "", nil, fmt.Errorf("donations: decode %s arguments: %d trailing bytes", name, dec.Remaining())
	}
	return name, args, nil
}

func newInstruction(programID solana.PublicKey, name string, args bin.BinaryMarshaler, metas solana.AccountMetaSlice) (types.Instruction, error) {
	data, err := EncodeInstructionData(name, args)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: programID, Accounts: metas, Data: data}, nil
}

// NewInitializeConfigInstruction builds initialize_config signed by admin.
func NewInitializeConfigInstruction(programID, admin, treasury solana.PublicKey) (types.Instruction, error) {
	configAddr, _, err := ConfigAddress(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(programID, InstructionInitializeConfig, InitializeConfigArgs{Treasury: treasury}, solana.AccountMetaSlice{
		solana.Meta(configAddr).WRITE(),
		solana.Meta(admin).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	})
}

// NewDonateInstruction builds donate for wallet. nextDonorID is the config's
// next_donor_id when wallet has no donor record yet, otherwise the wallet's
// existing donor id; it selects the donor index account.
func NewDonateInstruction(programID, wallet, treasury solana.PublicKey, donorID uint64, amount uint64, nickname *string) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID, wallet, donorID)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(programID, InstructionDonate, DonateArgs{Amount: amount, Nickname: nickname}, solana.AccountMetaSlice{
		solana.Meta(addrs.Config).WRITE(),
		solana.Meta(addrs.Donor).WRITE(),
		solana.Meta(addrs.DonorIndex).WRITE(),
		solana.Meta(treasury).WRITE(),
		solana.Meta(wallet).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	})
}

// NewUpdateProfileInstruction builds update_profile for wallet's own record.
func NewUpdateProfileInstruction(programID, wallet solana.PublicKey, nickname, description *string) (types.Instruction, error) {
	donorAddr, _, err := DonorAddress(programID, wallet)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(programID, InstructionUpdateProfile, UpdateProfileArgs{Nickname: nickname, Description: description}, solana.AccountMetaSlice{
		solana.Meta(donorAddr).WRITE(),
		solana.Meta(wallet).SIGNER(),
	})
}

func newAdminInstruction(programID, admin solana.PublicKey, name string, args bin.BinaryMarshaler) (types.Instruction, error) {
	configAddr, _, err := ConfigAddress(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	return newInstruction(programID, name, args, solana.AccountMetaSlice{
		solana.Meta(configAddr).WRITE(),
		solana.Meta(admin).WRITE().SIGNER(),
	})
}

func NewSetTreasuryInstruction(programID, admin, treasury solana.PublicKey) (types.Instruction, error) {
	return newAdminInstruction(programID, admin, InstructionSetTreasury, SetTreasuryArgs{Treasury: treasury})
}

func NewSetPausedInstruction(programID, admin solana.PublicKey, paused bool) (types.Instruction, error) {
	return newAdminInstruction(programID, admin, InstructionSetPaused, SetPausedArgs{Paused: paused})
}

func NewSetAdminInstruction(programID, admin, newAdmin solana.PublicKey) (types.Instruction, error) {
	return newAdminInstruction(programID, admin, InstructionSetAdmin, SetAdminArgs{Admin: newAdmin})
}
