package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/rpc"
	"github.com/wotori/solana-donations/sdk"
	"github.com/wotori/solana-donations/storage"
)

func TestCLIDonateAndLeaderboard(t *testing.T) {
	rt := core.NewRuntime(state.NewManager(storage.NewMemDB()))
	require.NoError(t, rt.Register(donations.NewProgram(donations.DefaultProgramID)))
	srv := rpc.NewServer(rt, donations.DefaultProgramID, rpc.ServerConfig{AuthToken: "cli", EnableFaucet: true})
	node := httptest.NewServer(srv.Router())
	defer node.Close()

	admin := solana.NewWallet().PublicKey().String()
	treasury := solana.NewWallet().PublicKey().String()
	wallet := solana.NewWallet().PublicKey().String()
	global := []string{"--rpc", node.URL, "--token", "cli"}

	var out bytes.Buffer
	require.NoError(t, run(append(global, "init", "--admin", admin, "--treasury", treasury), &out))
	require.NoError(t, run(append(global, "airdrop", wallet, "1000"), &out))
	require.NoError(t, run(append(global, "donate", "--wallet", wallet, "--amount", "400", "--nickname", "carol"), &out))

	out.Reset()
	require.NoError(t, run(append(global, "leaderboard"), &out))
	var rows []rpc.LeaderboardRowJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, wallet, rows[0].Wallet)
	require.Equal(t, "carol", rows[0].Nickname)

	err := run(append(global, "set-paused", "--admin", wallet), &out)
	name, ok := sdk.RegistryErrorName(err)
	require.True(t, ok)
	require.Equal(t, "NotAuthorized", name)
}

func TestCLIRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run([]string{"--rpc", "http://127.0.0.1:1", "frobnicate"}, &out))
	require.Error(t, run(nil, &out))
}
