package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/storage"
)

const testToken = "rpc-test-token"

type testResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type testEnv struct {
	handler  http.Handler
	admin    solana.PublicKey
	treasury solana.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rt := core.NewRuntime(state.NewManager(storage.NewMemDB()))
	program := donations.NewProgram(donations.DefaultProgramID)
	program.SetClock(clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)))
	if err := rt.Register(program); err != nil {
		t.Fatalf("register program: %v", err)
	}
	srv := NewServer(rt, donations.DefaultProgramID, ServerConfig{
		AuthToken:         testToken,
		EnableFaucet:      true,
		FaucetMaxLamports: 1_000_000,
	})
	return &testEnv{
		handler:  srv.Router(),
		admin:    solana.NewWallet().PublicKey(),
		treasury: solana.NewWallet().PublicKey(),
	}
}

func (e *testEnv) call(t *testing.T, method string, params interface{}, auth bool) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func (e *testEnv) mustCall(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	code, resp := e.call(t, method, params, true)
	if resp.Error != nil {
		t.Fatalf("%s: status %d error %+v", method, code, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("%s: decode result: %v", method, err)
		}
	}
}

func (e *testEnv) initialize(t *testing.T) {
	t.Helper()
	e.mustCall(t, "donations_initializeConfig", initializeConfigParams{
		Admin:    e.admin.String(),
		Treasury: e.treasury.String(),
	}, nil)
}

func (e *testEnv) fundedWallet(t *testing.T, lamports string) solana.PublicKey {
	t.Helper()
	wallet := solana.NewWallet().PublicKey()
	e.mustCall(t, "ledger_airdrop", airdropParams{Address: wallet.String(), Lamports: lamports}, nil)
	return wallet
}

func registryErrorName(t *testing.T, resp testResponse) string {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error response")
	}
	if resp.Error.Code != codeRegistryError {
		t.Fatalf("expected registry error code, got %d (%s)", resp.Error.Code, resp.Error.Message)
	}
	raw, err := json.Marshal(resp.Error.Data)
	if err != nil {
		t.Fatalf("marshal error data: %v", err)
	}
	var data RegistryErrorData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode error data: %v", err)
	}
	return data.Name
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.call(t, "donations_nope", nil, false)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.call(t, "donations_initializeConfig", initializeConfigParams{
		Admin:    env.admin.String(),
		Treasury: env.treasury.String(),
	}, false)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"ledger_getBalance","params":["` + strings.Repeat("a", maxRequestBytes) + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestDonateFlow(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	wallet := env.fundedWallet(t, "1000000")

	nickname := "alice"
	var result DonateResultJSON
	env.mustCall(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "500", Nickname: &nickname}, &result)
	if !result.CreatedNew {
		t.Fatalf("expected a new donor")
	}
	if result.Donor == nil || result.Donor.DonorID != 1 || result.Donor.LifetimeAmount != "500" {
		t.Fatalf("unexpected donor %+v", result.Donor)
	}
	if result.Receipt.Instruction != donations.InstructionDonate {
		t.Fatalf("unexpected instruction %q", result.Receipt.Instruction)
	}

	env.mustCall(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "250"}, &result)
	if result.CreatedNew {
		t.Fatalf("repeat donation must reuse the donor")
	}

	var donor DonorJSON
	env.mustCall(t, "donations_getDonor", walletParams{Wallet: wallet.String()}, &donor)
	if donor.LifetimeAmount != "750" || donor.DonationsCount != 2 || donor.Nickname != "alice" {
		t.Fatalf("unexpected donor %+v", donor)
	}
	if donor.LastDonationTs != 1_700_000_000 {
		t.Fatalf("unexpected timestamp %d", donor.LastDonationTs)
	}

	var byID DonorJSON
	env.mustCall(t, "donations_getDonorById", donorIDParams{DonorID: 1}, &byID)
	if byID.Wallet != wallet.String() {
		t.Fatalf("index resolved to %s", byID.Wallet)
	}

	var cfg ConfigJSON
	env.mustCall(t, "donations_getConfig", nil, &cfg)
	if cfg.TotalDonated != "750" || cfg.NextDonorID != 2 || len(cfg.Top10) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	var rows []LeaderboardRowJSON
	env.mustCall(t, "donations_getLeaderboard", nil, &rows)
	if len(rows) != 1 || rows[0].Rank != 1 || rows[0].Wallet != wallet.String() || rows[0].Nickname != "alice" {
		t.Fatalf("unexpected leaderboard %+v", rows)
	}

	var balance map[string]string
	env.mustCall(t, "ledger_getBalance", addressParams{Address: env.treasury.String()}, &balance)
	if balance["lamports"] != "750" {
		t.Fatalf("treasury holds %s", balance["lamports"])
	}
}

func TestDonateRegistryErrors(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	wallet := env.fundedWallet(t, "100")

	_, resp := env.call(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "0"}, true)
	if name := registryErrorName(t, resp); name != "InvalidAmount" {
		t.Fatalf("expected InvalidAmount, got %s", name)
	}

	_, resp = env.call(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "101"}, true)
	if name := registryErrorName(t, resp); name != "InsufficientFunds" {
		t.Fatalf("expected InsufficientFunds, got %s", name)
	}

	env.mustCall(t, "donations_setPaused", setPausedParams{Admin: env.admin.String(), Paused: true}, nil)
	_, resp = env.call(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "10"}, true)
	if name := registryErrorName(t, resp); name != "Paused" {
		t.Fatalf("expected Paused, got %s", name)
	}

	_, resp = env.call(t, "donations_getDonor", walletParams{Wallet: wallet.String()}, false)
	if name := registryErrorName(t, resp); name != "NotFound" {
		t.Fatalf("expected NotFound, got %s", name)
	}
}

func TestDonateRejectsNonNumericAmount(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	_, resp := env.call(t, "donations_donate", donateParams{Wallet: env.admin.String(), Amount: "-5"}, true)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}

func TestAdminMethods(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	stranger := solana.NewWallet().PublicKey()
	_, resp := env.call(t, "donations_setPaused", setPausedParams{Admin: stranger.String(), Paused: true}, true)
	if name := registryErrorName(t, resp); name != "NotAuthorized" {
		t.Fatalf("expected NotAuthorized, got %s", name)
	}

	newTreasury := solana.NewWallet().PublicKey()
	var updated struct {
		Config ConfigJSON `json:"config"`
	}
	env.mustCall(t, "donations_setTreasury", setTreasuryParams{Admin: env.admin.String(), Treasury: newTreasury.String()}, &updated)
	if updated.Config.Treasury != newTreasury.String() {
		t.Fatalf("treasury not updated: %+v", updated.Config)
	}

	newAdmin := solana.NewWallet().PublicKey()
	env.mustCall(t, "donations_setAdmin", setAdminParams{Admin: env.admin.String(), NewAdmin: newAdmin.String()}, &updated)
	if updated.Config.Admin != newAdmin.String() {
		t.Fatalf("admin not updated: %+v", updated.Config)
	}
	_, resp = env.call(t, "donations_setPaused", setPausedParams{Admin: env.admin.String(), Paused: true}, true)
	if name := registryErrorName(t, resp); name != "NotAuthorized" {
		t.Fatalf("previous admin kept authority: %s", name)
	}

	_, resp = env.call(t, "donations_initializeConfig", initializeConfigParams{
		Admin:    newAdmin.String(),
		Treasury: newTreasury.String(),
	}, true)
	if name := registryErrorName(t, resp); name != "AlreadyInitialized" {
		t.Fatalf("expected AlreadyInitialized, got %s", name)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	wallet := env.fundedWallet(t, "1000")

	description := "hello"
	_, resp := env.call(t, "donations_updateProfile", updateProfileParams{Wallet: wallet.String(), Description: &description}, true)
	if name := registryErrorName(t, resp); name != "NotFound" {
		t.Fatalf("expected NotFound before first donation, got %s", name)
	}

	env.mustCall(t, "donations_donate", donateParams{Wallet: wallet.String(), Amount: "10"}, nil)
	env.mustCall(t, "donations_updateProfile", updateProfileParams{Wallet: wallet.String(), Description: &description}, nil)

	tooLong := strings.Repeat("x", donations.MaxNicknameLen+1)
	_, resp = env.call(t, "donations_updateProfile", updateProfileParams{Wallet: wallet.String(), Nickname: &tooLong}, true)
	if name := registryErrorName(t, resp); name != "FieldTooLong" {
		t.Fatalf("expected FieldTooLong, got %s", name)
	}

	var donor DonorJSON
	env.mustCall(t, "donations_getDonor", walletParams{Wallet: wallet.String()}, &donor)
	if donor.Description != "hello" {
		t.Fatalf("unexpected description %q", donor.Description)
	}
}

func TestFaucetLimits(t *testing.T) {
	env := newTestEnv(t)
	wallet := solana.NewWallet().PublicKey()
	_, resp := env.call(t, "ledger_airdrop", airdropParams{Address: wallet.String(), Lamports: "1000001"}, true)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected faucet limit error, got %+v", resp.Error)
	}
	var account AccountJSON
	env.mustCall(t, "ledger_getAccount", addressParams{Address: wallet.String()}, &account)
	if account.Lamports != "0" {
		t.Fatalf("unexpected balance %s", account.Lamports)
	}
}

func TestSendInstruction(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	ix, err := donations.NewSetPausedInstruction(donations.DefaultProgramID, env.admin, true)
	if err != nil {
		t.Fatalf("build instruction: %v", err)
	}
	accounts := make([]accountMetaParams, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		accounts = append(accounts, accountMetaParams{
			Pubkey:     meta.PublicKey.String(),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	var receipt ReceiptJSON
	env.mustCall(t, "donations_sendInstruction", sendInstructionParams{
		Signers:  []string{env.admin.String()},
		Accounts: accounts,
		Data:     base58.Encode(ix.Data),
	}, &receipt)
	if receipt.Instruction != donations.InstructionSetPaused {
		t.Fatalf("unexpected instruction %q", receipt.Instruction)
	}

	var cfg ConfigJSON
	env.mustCall(t, "donations_getConfig", nil, &cfg)
	if !cfg.Paused {
		t.Fatalf("registry should be paused")
	}
}

func TestDeriveAddresses(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	wallet := solana.NewWallet().PublicKey()

	var out struct {
		DonorID   uint64              `json:"donorId"`
		Addresses donations.Addresses `json:"addresses"`
	}
	env.mustCall(t, "donations_deriveAddresses", deriveParams{Wallet: wallet.String()}, &out)
	if out.DonorID != 1 {
		t.Fatalf("expected next donor id 1, got %d", out.DonorID)
	}
	want, err := donations.DeriveAddresses(donations.DefaultProgramID, wallet, 1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if out.Addresses != want {
		t.Fatalf("unexpected addresses %+v", out.Addresses)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
