// Package donations implements the donation registry program: a singleton
// registry config holding the treasury and a top-10 leaderboard, one donor
// record per wallet, and a donor index keyed by the allocated donor id.
package donations

import "github.com/gagliardetto/solana-go"

const (
	// ModuleName labels the program in logs, metrics and receipts.
	ModuleName = "donations"

	// TopSize is the fixed capacity of the leaderboard.
	TopSize = 10
	// MaxNicknameLen bounds a donor nickname in bytes.
	MaxNicknameLen = 32
	// MaxDescriptionLen bounds a donor description in bytes.
	MaxDescriptionLen = 256
)

var (
	configSeed     = []byte("config")
	donorSeed      = []byte("donor")
	donorIndexSeed = []byte("donor_index")
)

// DefaultProgramID is the address the registry is deployed at unless the node
// configuration overrides it.
var DefaultProgramID = solana.MustPublicKeyFromBase58("7XhmW42LmPuk2gcHjjsDwGiTurWDrUFP9yff9AK4mkB4")
