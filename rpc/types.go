package rpc

import (
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/native/donations"
)

// Amounts cross the wire as decimal strings so JavaScript clients keep full
// u64 precision.

type TopEntryJSON struct {
	DonorID        uint64 `json:"donorId"`
	LifetimeAmount string `json:"lifetimeAmount"`
}

type ConfigJSON struct {
	Address      string         `json:"address"`
	Admin        string         `json:"admin"`
	Treasury     string         `json:"treasury"`
	Paused       bool           `json:"paused"`
	NextDonorID  uint64         `json:"nextDonorId"`
	TotalDonated string         `json:"totalDonated"`
	Top10        []TopEntryJSON `json:"top10"`
}

type DonorJSON struct {
	Address        string `json:"address"`
	Wallet         string `json:"wallet"`
	DonorID        uint64 `json:"donorId"`
	LifetimeAmount string `json:"lifetimeAmount"`
	DonationsCount uint64 `json:"donationsCount"`
	Nickname       string `json:"nickname"`
	Description    string `json:"description"`
	LastDonationTs int64  `json:"lastDonationTs"`
}

type LeaderboardRowJSON struct {
	Rank           int    `json:"rank"`
	DonorID        uint64 `json:"donorId"`
	LifetimeAmount string `json:"lifetimeAmount"`
	Wallet         string `json:"wallet,omitempty"`
	Nickname       string `json:"nickname,omitempty"`
}

type AccountJSON struct {
	Address  string `json:"address"`
	Lamports string `json:"lamports"`
	Owner    string `json:"owner,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type ReceiptJSON struct {
	ID          string         `json:"id"`
	Program     string         `json:"program"`
	Instruction string         `json:"instruction"`
	Events      []*types.Event `json:"events"`
	CommittedAt time.Time      `json:"committedAt"`
}

type DonateResultJSON struct {
	Receipt    ReceiptJSON `json:"receipt"`
	Donor      *DonorJSON  `json:"donor,omitempty"`
	CreatedNew bool        `json:"createdNew"`
}

func formatAmount(v uint64) string { return strconv.FormatUint(v, 10) }

func parseAmount(raw string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

func configJSON(addr solana.PublicKey, cfg *donations.Config) *ConfigJSON {
	entries := cfg.Top10.Entries()
	top := make([]TopEntryJSON, 0, len(entries))
	for _, entry := range entries {
		top = append(top, TopEntryJSON{DonorID: entry.DonorID, LifetimeAmount: formatAmount(entry.LifetimeAmount)})
	}
	return &ConfigJSON{
		Address:      addr.String(),
		Admin:        cfg.Admin.String(),
		Treasury:     cfg.Treasury.String(),
		Paused:       cfg.Paused,
		NextDonorID:  cfg.NextDonorID,
		TotalDonated: formatAmount(cfg.TotalDonated),
		Top10:        top,
	}
}

func donorJSON(programID solana.PublicKey, donor *donations.Donor) *DonorJSON {
	if donor == nil {
		return nil
	}
	out := &DonorJSON{
		Wallet:         donor.Wallet.String(),
		DonorID:        donor.DonorID,
		LifetimeAmount: formatAmount(donor.LifetimeAmount),
		DonationsCount: donor.DonationsCount,
		Nickname:       donor.Nickname,
		Description:    donor.Description,
		LastDonationTs: donor.LastDonationTs,
	}
	if addr, _, err := donations.DonorAddress(programID, donor.Wallet); err == nil {
		out.Address = addr.String()
	}
	return out
}

func receiptJSON(receipt *core.Receipt) ReceiptJSON {
	if receipt == nil {
		return ReceiptJSON{}
	}
	evts := receipt.Events
	if evts == nil {
		evts = []*types.Event{}
	}
	return ReceiptJSON{
		ID:          receipt.ID,
		Program:     receipt.Program,
		Instruction: receipt.Instruction,
		Events:      evts,
		CommittedAt: receipt.CommittedAt.UTC(),
	}
}
