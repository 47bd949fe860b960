package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/rpc"
	"github.com/wotori/solana-donations/storage"
)

const token = "sdk-test-token"

func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	rt := core.NewRuntime(state.NewManager(storage.NewMemDB()))
	program := donations.NewProgram(donations.DefaultProgramID)
	program.SetClock(clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)))
	require.NoError(t, rt.Register(program))
	srv := rpc.NewServer(rt, donations.DefaultProgramID, rpc.ServerConfig{AuthToken: token, EnableFaucet: true})
	node := httptest.NewServer(srv.Router())
	t.Cleanup(node.Close)
	return node
}

func TestClientScenario(t *testing.T) {
	node := newNode(t)
	client := NewClient(node.URL, WithAuthToken(token))
	ctx := context.Background()

	admin := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()
	_, err := client.InitializeConfig(ctx, admin, treasury)
	require.NoError(t, err)

	donors := make([]solana.PublicKey, 3)
	for i := range donors {
		donors[i] = solana.NewWallet().PublicKey()
		_, err := client.Airdrop(ctx, donors[i], 10_000)
		require.NoError(t, err)
	}
	for i, wallet := range donors {
		_, err := client.Donate(ctx, wallet, uint64(100*(i+1)), nil)
		require.NoError(t, err)
	}

	rows, err := client.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, donors[2].String(), rows[0].Wallet)
	require.Equal(t, "300", rows[0].LifetimeAmount)

	balance, err := client.Balance(ctx, treasury)
	require.NoError(t, err)
	require.Equal(t, uint64(600), balance)

	donor, err := client.DonorByID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, donors[1].String(), donor.Wallet)

	nextID, addrs, err := client.DeriveAddresses(ctx, donors[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1), nextID)
	require.Equal(t, donations.MustDonorAddress(donations.DefaultProgramID, donors[0]), addrs.Donor)
}

func TestClientSurfacesRegistryErrors(t *testing.T) {
	node := newNode(t)
	client := NewClient(node.URL, WithAuthToken(token))
	ctx := context.Background()

	admin := solana.NewWallet().PublicKey()
	_, err := client.InitializeConfig(ctx, admin, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	_, err = client.SetPaused(ctx, solana.NewWallet().PublicKey(), true)
	name, ok := RegistryErrorName(err)
	require.True(t, ok, "expected registry error, got %v", err)
	require.Equal(t, "NotAuthorized", name)

	result, err := client.SetPaused(ctx, admin, true)
	require.NoError(t, err)
	require.True(t, result.Config.Paused)
}

func TestClientWithoutTokenIsRejected(t *testing.T) {
	node := newNode(t)
	client := NewClient(node.URL)
	_, err := client.InitializeConfig(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	_, isRegistry := RegistryErrorName(err)
	require.False(t, isRegistry)
}
