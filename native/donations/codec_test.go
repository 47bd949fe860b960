package donations

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestConfigLayout(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()
	cfg := &Config{Admin: admin, Treasury: treasury, Paused: true, NextDonorID: 3, TotalDonated: 700}
	cfg.Top10 = cfg.Top10.Apply(2, 500).Apply(1, 200)

	data, err := EncodeConfig(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != ConfigSize {
		t.Fatalf("expected %d bytes, got %d", ConfigSize, len(data))
	}
	sum := sha256.Sum256([]byte("account:Config"))
	if !bytes.Equal(data[:8], sum[:8]) {
		t.Fatalf("unexpected discriminator %x", data[:8])
	}
	if !bytes.Equal(data[8:40], admin[:]) || !bytes.Equal(data[40:72], treasury[:]) {
		t.Fatalf("keys not at their offsets")
	}
	if data[72] != 1 {
		t.Fatalf("paused flag not encoded as one byte")
	}
	if binary.LittleEndian.Uint64(data[73:81]) != 3 || binary.LittleEndian.Uint64(data[81:89]) != 700 {
		t.Fatalf("counters not little-endian at their offsets")
	}
	if binary.LittleEndian.Uint64(data[89:97]) != 2 || binary.LittleEndian.Uint64(data[97:105]) != 500 {
		t.Fatalf("first leaderboard slot misplaced")
	}

	decoded, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *cfg {
		t.Fatalf("decoded config differs: %+v", decoded)
	}
}

func TestDonorLayout(t *testing.T) {
	donor := &Donor{
		Wallet:         solana.NewWallet().PublicKey(),
		DonorID:        9,
		LifetimeAmount: 1234,
		DonationsCount: 2,
		Nickname:       "tester",
		Description:    "likes lamports",
		LastDonationTs: 1_700_000_000,
	}
	data, err := EncodeDonor(donor)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// wallet + three u64 precede the nickname length prefix.
	offset := 8 + 32 + 24
	if got := binary.LittleEndian.Uint32(data[offset : offset+4]); got != uint32(len(donor.Nickname)) {
		t.Fatalf("nickname length prefix %d", got)
	}
	if string(data[offset+4:offset+4+len(donor.Nickname)]) != donor.Nickname {
		t.Fatalf("nickname bytes misplaced")
	}
	decoded, err := DecodeDonor(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *donor {
		t.Fatalf("decoded donor differs: %+v", decoded)
	}
}

func TestEncodeDonorRejectsLongFields(t *testing.T) {
	donor := &Donor{Nickname: string(make([]byte, MaxNicknameLen+1))}
	if _, err := EncodeDonor(donor); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestDecodeRejectsWrongRecordKind(t *testing.T) {
	index := &DonorIndex{DonorID: 1, Wallet: solana.NewWallet().PublicKey(), DonorAddress: solana.NewWallet().PublicKey()}
	data, err := EncodeDonorIndex(index)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != DonorIndexSize {
		t.Fatalf("expected %d bytes, got %d", DonorIndexSize, len(data))
	}
	if _, err := DecodeDonor(data); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if _, err := DecodeConfig(data[:4]); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount for short data, got %v", err)
	}
	decoded, err := DecodeDonorIndex(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *index {
		t.Fatalf("decoded index differs")
	}
}

func TestDecodeTruncatedRecord(t *testing.T) {
	data, err := EncodeConfig(&Config{NextDonorID: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeConfig(data[:len(data)-1]); err == nil {
		t.Fatalf("expected error decoding truncated config")
	}
}

func TestInstructionDecoding(t *testing.T) {
	nick := "tester"
	ix, err := NewDonateInstruction(DefaultProgramID, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 42, &nick)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sum := sha256.Sum256([]byte("global:donate"))
	if !bytes.Equal(ix.Data[:8], sum[:8]) {
		t.Fatalf("unexpected instruction discriminator")
	}
	name, args, err := DecodeInstruction(ix.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	donate, ok := args.(*DonateArgs)
	if name != InstructionDonate || !ok {
		t.Fatalf("unexpected decode %s %T", name, args)
	}
	if donate.Amount != 42 || donate.Nickname == nil || *donate.Nickname != nick {
		t.Fatalf("unexpected args %+v", donate)
	}
	if len(ix.Accounts) != 6 || !ix.Accounts[4].IsSigner {
		t.Fatalf("unexpected account metas")
	}

	ix, err = NewUpdateProfileInstruction(DefaultProgramID, solana.NewWallet().PublicKey(), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, args, err = DecodeInstruction(ix.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	profile := args.(*UpdateProfileArgs)
	if profile.Nickname != nil || profile.Description != nil {
		t.Fatalf("absent options decoded as present")
	}

	if _, _, err := DecodeInstruction([]byte{1, 2, 3}); !errors.Is(err, ErrUnknownInstruction) {
		t.Fatalf("expected ErrUnknownInstruction, got %v", err)
	}
	trailing := append(append([]byte(nil), ix.Data...), 0)
	if _, _, err := DecodeInstruction(trailing); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
}

func TestErrorCodes(t *testing.T) {
	code, name, ok := ErrorCode(ErrAlreadyInitialized)
	if !ok || code != ErrorCodeBase || name != "AlreadyInitialized" {
		t.Fatalf("unexpected code %d %s %v", code, name, ok)
	}
	wrapped := errors.Join(errors.New("context"), ErrFieldTooLong)
	if _, name, ok := ErrorCode(wrapped); !ok || name != "FieldTooLong" {
		t.Fatalf("wrapped error not mapped: %s %v", name, ok)
	}
	if _, _, ok := ErrorCode(errors.New("other")); ok {
		t.Fatalf("foreign error mapped")
	}
}
