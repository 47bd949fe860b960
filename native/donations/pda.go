package donations

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Addresses groups the records a wallet interacts with.
type Addresses struct {
	Config     solana.PublicKey `json:"config"`
	Donor      solana.PublicKey `json:"donor"`
	DonorIndex solana.PublicKey `json:"donorIndex,omitempty"`
}

// ConfigAddress derives the registry singleton address.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{configSeed}, programID)
}

// DonorAddress derives the donor record address of wallet.
func DonorAddress(programID, wallet solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{donorSeed, wallet.Bytes()}, programID)
}

// DonorIndexAddress derives the index record address of a donor id. The id
// is encoded as 8 little-endian bytes.
func DonorIndexAddress(programID solana.PublicKey, donorID uint64) (solana.PublicKey, uint8, error) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], donorID)
	return solana.FindProgramAddress([][]byte{donorIndexSeed, le[:]}, programID)
}

func MustConfigAddress(programID solana.PublicKey) solana.PublicKey {
	addr, _, err := ConfigAddress(programID)
	if err != nil {
		panic(fmt.Sprintf("donations: derive config address: %v", err))
	}
	return addr
}

func MustDonorAddress(programID, wallet solana.PublicKey) solana.PublicKey {
	addr, _, err := DonorAddress(programID, wallet)
	if err != nil {
		panic(fmt.Sprintf("donations: derive donor address: %v", err))
	}
	return addr
}

func MustDonorIndexAddress(programID solana.PublicKey, donorID uint64) solana.PublicKey {
	addr, _, err := DonorIndexAddress(programID, donorID)
	if err != nil {
		panic(fmt.Sprintf("donations: derive donor index address: %v", err))
	}
	return addr
}

// DeriveAddresses resolves the config and donor addresses for wallet. When
// donorID is non-zero the index address is filled in as well.
func DeriveAddresses(programID, wallet solana.PublicKey, donorID uint64) (Addresses, error) {
	var out Addresses
	var err error
	if out.Config, _, err = ConfigAddress(programID); err != nil {
		return Addresses{}, err
	}
	if !wallet.IsZero() {
		if out.Donor, _, err = DonorAddress(programID, wallet); err != nil {
			return Addresses{}, err
		}
	}
	if donorID != 0 {
		if out.DonorIndex, _, err = DonorIndexAddress(programID, donorID); err != nil {
			return Addresses{}, err
		}
	}
	return out, nil
}
