package donations

import (
	"encoding/json"
	"fmt"
)

// Leaderboard is the fixed-capacity ranking stored inside Config. Occupied
// slots form a prefix sorted by LifetimeAmount descending; ties are broken by
// the lower donor id. Unused slots are zero.
type Leaderboard [TopSize]TopEntry

// ranksAbove reports whether a is ordered strictly before b.
func ranksAbove(a, b TopEntry) bool {
	if a.LifetimeAmount != b.LifetimeAmount {
		return a.LifetimeAmount > b.LifetimeAmount
	}
	return a.DonorID < b.DonorID
}

// Len returns the number of occupied slots.
func (l Leaderboard) Len() int {
	for i, entry := range l {
		if entry.IsEmpty() {
			return i
		}
	}
	return TopSize
}

// Entries returns the occupied slots in rank order.
func (l Leaderboard) Entries() []TopEntry {
	n := l.Len()
	out := make([]TopEntry, n)
	copy(out, l[:n])
	return out
}

// Rank returns the zero-based position of donorID, if ranked.
func (l Leaderboard) Rank(donorID uint64) (int, bool) {
	n := l.Len()
	for i := 0; i < n; i++ {
		if l[i].DonorID == donorID {
			return i, true
		}
	}
	return 0, false
}

// Apply returns the leaderboard after donorID's lifetime amount changed to
// amount. An existing entry for the donor is removed first; the donor is then
// inserted at its sorted position. On a full board a new donor only enters by
// ranking strictly above the last entry, which is evicted.
func (l Leaderboard) Apply(donorID, amount uint64) Leaderboard {
	if donorID == 0 {
		return l
	}
	n := l.Len()
	for i := 0; i < n; i++ {
		if l[i].DonorID != donorID {
			continue
		}
		copy(l[i:n-1], l[i+1:n])
		l[n-1] = TopEntry{}
		n--
		break
	}
	entry := TopEntry{DonorID: donorID, LifetimeAmount: amount}
	if n == TopSize {
		if !ranksAbove(entry, l[n-1]) {
			return l
		}
		n--
		l[n] = TopEntry{}
	}
	pos := n
	for pos > 0 && ranksAbove(entry, l[pos-1]) {
		l[pos] = l[pos-1]
		pos--
	}
	l[pos] = entry
	return l
}

// Validate checks the structural invariants: occupied slots are contiguous,
// strictly ordered and free of duplicate donor ids.
func (l Leaderboard) Validate() error {
	n := l.Len()
	seen := make(map[uint64]struct{}, n)
	for i := 0; i < n; i++ {
		if _, dup := seen[l[i].DonorID]; dup {
			return fmt.Errorf("leaderboard: duplicate donor %d", l[i].DonorID)
		}
		seen[l[i].DonorID] = struct{}{}
		if i > 0 && !ranksAbove(l[i-1], l[i]) {
			return fmt.Errorf("leaderboard: slot %d out of order", i)
		}
	}
	for i := n; i < TopSize; i++ {
		if l[i] != (TopEntry{}) {
			return fmt.Errorf("leaderboard: slot %d occupied after a gap", i)
		}
	}
	return nil
}

// MarshalJSON renders only the occupied slots.
func (l Leaderboard) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

func (l *Leaderboard) UnmarshalJSON(data []byte) error {
	var entries []TopEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if len(entries) > TopSize {
		return fmt.Errorf("leaderboard: %d entries exceed capacity", len(entries))
	}
	*l = Leaderboard{}
	copy(l[:], entries)
	return nil
}
