package donations

import "github.com/gagliardetto/solana-go"

// TopEntry is one leaderboard slot. A zero DonorID marks an empty slot;
// donor ids are allocated from 1.
type TopEntry struct {
	DonorID        uint64 `json:"donorId"`
	LifetimeAmount uint64 `json:"lifetimeAmount"`
}

// IsEmpty reports whether the slot is unused.
func (e TopEntry) IsEmpty() bool { return e.DonorID == 0 }

// Config is the registry singleton.
type Config struct {
	Admin        solana.PublicKey `json:"admin"`
	Treasury     solana.PublicKey `json:"treasury"`
	Paused       bool             `json:"paused"`
	NextDonorID  uint64           `json:"nextDonorId"`
	TotalDonated uint64           `json:"totalDonated"`
	Top10        Leaderboard      `json:"top10"`
}

// Donor is the per-wallet donation record.
type Donor struct {
	Wallet         solana.PublicKey `json:"wallet"`
	DonorID        uint64           `json:"donorId"`
	LifetimeAmount uint64           `json:"lifetimeAmount"`
	DonationsCount uint64           `json:"donationsCount"`
	Nickname       string           `json:"nickname"`
	Description    string           `json:"description"`
	// LastDonationTs is the unix timestamp of the latest accepted donation.
	LastDonationTs int64 `json:"lastDonationTs"`
}

// DonorIndex maps a donor id back to the wallet and donor record.
type DonorIndex struct {
	DonorID      uint64           `json:"donorId"`
	Wallet       solana.PublicKey `json:"wallet"`
	DonorAddress solana.PublicKey `json:"donorAddress"`
}

// Clone returns a copy of the config. Every field is a value type.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (d *Donor) Clone() *Donor {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

func (i *DonorIndex) Clone() *DonorIndex {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
