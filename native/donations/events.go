package donations

import (
	"strconv"

	"github.com/wotori/solana-donations/core/events"
	"github.com/wotori/solana-donations/core/types"
)

const (
	// EventTypeInitialized is emitted once when the registry config is created.
	EventTypeInitialized = "donations.config.initialized"
	// EventTypeDonated is emitted for every accepted donation.
	EventTypeDonated = "donations.donated"
	// EventTypeProfileUpdated is emitted when a donor edits their profile.
	EventTypeProfileUpdated = "donations.profile.updated"
	// EventTypeConfigUpdated is emitted by the admin operations.
	EventTypeConfigUpdated = "donations.config.updated"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// InitializedEvent announces the registry admin and treasury.
func InitializedEvent(cfg *Config) *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"admin":    cfg.Admin.String(),
			"treasury": cfg.Treasury.String(),
		},
	}
}

// DonatedEvent describes an accepted donation and the resulting totals.
func DonatedEvent(donor *Donor, amount uint64, createdNew bool, cfg *Config) *types.Event {
	rank := ""
	if pos, ok := cfg.Top10.Rank(donor.DonorID); ok {
		rank = strconv.Itoa(pos + 1)
	}
	return &types.Event{
		Type: EventTypeDonated,
		Attributes: map[string]string{
			"donor":           donor.Wallet.String(),
			"donorId":         strconv.FormatUint(donor.DonorID, 10),
			"amount":          strconv.FormatUint(amount, 10),
			"lifetimeAmount":  strconv.FormatUint(donor.LifetimeAmount, 10),
			"donationsCount":  strconv.FormatUint(donor.DonationsCount, 10),
			"nickname":        donor.Nickname,
			"createdNew":      strconv.FormatBool(createdNew),
			"totalDonated":    strconv.FormatUint(cfg.TotalDonated, 10),
			"treasury":        cfg.Treasury.String(),
			"rank":            rank,
			"leaderboardSize": strconv.Itoa(cfg.Top10.Len()),
			"timestamp":       strconv.FormatInt(donor.LastDonationTs, 10),
		},
	}
}

// ProfileUpdatedEvent carries the donor's profile after an update.
func ProfileUpdatedEvent(donor *Donor) *types.Event {
	return &types.Event{
		Type: EventTypeProfileUpdated,
		Attributes: map[string]string{
			"donor":       donor.Wallet.String(),
			"donorId":     strconv.FormatUint(donor.DonorID, 10),
			"nickname":    donor.Nickname,
			"description": donor.Description,
		},
	}
}

// ConfigUpdatedEvent records which config field an admin changed.
func ConfigUpdatedEvent(admin string, field string, value string) *types.Event {
	return &types.Event{
		Type: EventTypeConfigUpdated,
		Attributes: map[string]string{
			"admin": admin,
			"field": field,
			"value": value,
		},
	}
}
