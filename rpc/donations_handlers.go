package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/native/donations"
)

// donateAttempts bounds the retries of a first donation that lost the race
// for the next donor id.
const donateAttempts = 3

type walletParams struct {
	Wallet string `json:"wallet"`
}

type donorIDParams struct {
	DonorID uint64 `json:"donorId"`
}

type deriveParams struct {
	Wallet  string  `json:"wallet"`
	DonorID *uint64 `json:"donorId,omitempty"`
}

type initializeConfigParams struct {
	Admin    string `json:"admin"`
	Treasury string `json:"treasury"`
}

type donateParams struct {
	Wallet   string  `json:"wallet"`
	Amount   string  `json:"amount"`
	Nickname *string `json:"nickname,omitempty"`
}

type updateProfileParams struct {
	Wallet      string  `json:"wallet"`
	Nickname    *string `json:"nickname,omitempty"`
	Description *string `json:"description,omitempty"`
}

type setTreasuryParams struct {
	Admin    string `json:"admin"`
	Treasury string `json:"treasury"`
}

type setPausedParams struct {
	Admin  string `json:"admin"`
	Paused bool   `json:"paused"`
}

type setAdminParams struct {
	Admin    string `json:"admin"`
	NewAdmin string `json:"newAdmin"`
}

func (s *Server) submit(ctx context.Context, signer solana.PublicKey, ix types.Instruction) (*core.Receipt, error) {
	return s.submitTx(ctx, &types.Transaction{
		Signers:     []solana.PublicKey{signer},
		Instruction: ix,
	})
}

func (s *Server) submitTx(ctx context.Context, tx *types.Transaction) (*core.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	return s.runtime.Submit(ctx, tx)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one parameter expected", nil)
		return
	}
	cfg, err := s.registry.Config()
	if err != nil {
		writeExecError(w, req.ID, "failed to load config", err)
		return
	}
	addr, _, err := donations.ConfigAddress(s.programID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive config address", err.Error())
		return
	}
	writeResult(w, req.ID, configJSON(addr, cfg))
}

func (s *Server) handleGetDonor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params walletParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	wallet, rpcErr := parseKey("wallet", params.Wallet)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	donor, err := s.registry.Donor(wallet)
	if err != nil {
		writeExecError(w, req.ID, "failed to load donor", err)
		return
	}
	writeResult(w, req.ID, donorJSON(s.programID, donor))
}

func (s *Server) handleGetDonorByID(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params donorIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	if params.DonorID == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "donorId must be positive", nil)
		return
	}
	donor, err := s.registry.DonorByID(params.DonorID)
	if err != nil {
		writeExecError(w, req.ID, "failed to load donor", err)
		return
	}
	writeResult(w, req.ID, donorJSON(s.programID, donor))
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	rows, err := s.registry.Leaderboard()
	if err != nil {
		writeExecError(w, req.ID, "failed to load leaderboard", err)
		return
	}
	out := make([]LeaderboardRowJSON, 0, len(rows))
	for _, row := range rows {
		entry := LeaderboardRowJSON{
			Rank:           row.Rank,
			DonorID:        row.DonorID,
			LifetimeAmount: formatAmount(row.LifetimeAmount),
			Nickname:       row.Nickname,
		}
		if !row.Wallet.IsZero() {
			entry.Wallet = row.Wallet.String()
		}
		out = append(out, entry)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleDeriveAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deriveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	wallet, rpcErr := parseKey("wallet", params.Wallet)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	var donorID uint64
	if params.DonorID != nil {
		donorID = *params.DonorID
	} else {
		resolved, _, err := s.registry.DonorIDFor(wallet)
		if err != nil {
			writeExecError(w, req.ID, "failed to resolve donor id", err)
			return
		}
		donorID = resolved
	}
	addrs, err := donations.DeriveAddresses(s.programID, wallet, donorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive addresses", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"donorId":   donorID,
		"addresses": addrs,
	})
}

func (s *Server) handleInitializeConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params initializeConfigParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	admin, rpcErr := parseKey("admin", params.Admin)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	treasury, rpcErr := parseKey("treasury", params.Treasury)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	ix, err := donations.NewInitializeConfigInstruction(s.programID, admin, treasury)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to build instruction", err.Error())
		return
	}
	receipt, err := s.submit(r.Context(), admin, ix)
	if err != nil {
		writeExecError(w, req.ID, "initialize_config failed", err)
		return
	}
	writeResult(w, req.ID, receiptJSON(receipt))
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params donateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	wallet, rpcErr := parseKey("wallet", params.Wallet)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a base-10 u64", err.Error())
		return
	}

	var (
		receipt    *core.Receipt
		createdNew bool
	)
	for attempt := 0; attempt < donateAttempts; attempt++ {
		var donorID uint64
		donorID, createdNew, err = s.registry.DonorIDFor(wallet)
		if err != nil {
			break
		}
		var cfg *donations.Config
		cfg, err = s.registry.Config()
		if err != nil {
			break
		}
		var ix types.Instruction
		ix, err = donations.NewDonateInstruction(s.programID, wallet, cfg.Treasury, donorID, amount, params.Nickname)
		if err != nil {
			break
		}
		receipt, err = s.submit(r.Context(), wallet, ix)
		if !errors.Is(err, donations.ErrInvalidDonorIndex) || !createdNew {
			break
		}
	}
	if err != nil {
		writeExecError(w, req.ID, "donate failed", err)
		return
	}
	result := DonateResultJSON{Receipt: receiptJSON(receipt), CreatedNew: createdNew}
	if donor, err := s.registry.Donor(wallet); err == nil {
		result.Donor = donorJSON(s.programID, donor)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params updateProfileParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	wallet, rpcErr := parseKey("wallet", params.Wallet)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	ix, err := donations.NewUpdateProfileInstruction(s.programID, wallet, params.Nickname, params.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to build instruction", err.Error())
		return
	}
	receipt, err := s.submit(r.Context(), wallet, ix)
	if err != nil {
		writeExecError(w, req.ID, "update_profile failed", err)
		return
	}
	writeResult(w, req.ID, receiptJSON(receipt))
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setTreasuryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	admin, rpcErr := parseKey("admin", params.Admin)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	treasury, rpcErr := parseKey("treasury", params.Treasury)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	ix, err := donations.NewSetTreasuryInstruction(s.programID, admin, treasury)
	s.submitAdmin(w, r, req, admin, ix, err, "set_treasury failed")
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setPausedParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	admin, rpcErr := parseKey("admin", params.Admin)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	ix, err := donations.NewSetPausedInstruction(s.programID, admin, params.Paused)
	s.submitAdmin(w, r, req, admin, ix, err, "set_paused failed")
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setAdminParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	admin, rpcErr := parseKey("admin", params.Admin)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	newAdmin, rpcErr := parseKey("newAdmin", params.NewAdmin)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	ix, err := donations.NewSetAdminInstruction(s.programID, admin, newAdmin)
	s.submitAdmin(w, r, req, admin, ix, err, "set_admin failed")
}

func (s *Server) submitAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest, admin solana.PublicKey, ix types.Instruction, buildErr error, message string) {
	if buildErr != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to build instruction", buildErr.Error())
		return
	}
	receipt, err := s.submit(r.Context(), admin, ix)
	if err != nil {
		writeExecError(w, req.ID, message, err)
		return
	}
	cfg, err := s.registry.Config()
	if err != nil {
		writeExecError(w, req.ID, "failed to load config", err)
		return
	}
	addr, _, _ := donations.ConfigAddress(s.programID)
	writeResult(w, req.ID, map[string]interface{}{
		"receipt": receiptJSON(receipt),
		"config":  configJSON(addr, cfg),
	})
}
