package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/wotori/solana-donations/core/types"
)

type addressParams struct {
	Address string `json:"address"`
}

type airdropParams struct {
	Address  string `json:"address"`
	Lamports string `json:"lamports"`
}

type accountMetaParams struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type sendInstructionParams struct {
	ProgramID string              `json:"programId,omitempty"`
	Signers   []string            `json:"signers"`
	Accounts  []accountMetaParams `json:"accounts"`
	// Data is the base58-encoded instruction payload.
	Data string `json:"data"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	addr, rpcErr := parseKey("account", params.Address)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	balance, err := s.runtime.Balance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load balance", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address":  addr.String(),
		"lamports": formatAmount(balance),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	addr, rpcErr := parseKey("account", params.Address)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	acc, ok, err := s.runtime.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	out := AccountJSON{Address: addr.String(), Lamports: "0"}
	if ok && acc != nil {
		out.Lamports = formatAmount(acc.Lamports)
		if !acc.Owner.IsZero() {
			out.Owner = acc.Owner.String()
		}
		out.Data = acc.Data
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.cfg.EnableFaucet {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "faucet disabled", nil)
		return
	}
	if !s.faucet.Allow(r) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeServerError, "faucet rate limit exceeded", nil)
		return
	}
	var params airdropParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	addr, rpcErr := parseKey("account", params.Address)
	if rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	lamports, err := parseAmount(params.Lamports)
	if err != nil || lamports == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "lamports must be a positive base-10 u64", nil)
		return
	}
	if s.cfg.FaucetMaxLamports > 0 && lamports > s.cfg.FaucetMaxLamports {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams,
			fmt.Sprintf("lamports exceeds faucet limit of %d", s.cfg.FaucetMaxLamports), nil)
		return
	}
	receipt, err := s.runtime.Airdrop(r.Context(), addr, lamports)
	if err != nil {
		writeExecError(w, req.ID, "airdrop failed", err)
		return
	}
	writeResult(w, req.ID, receiptJSON(receipt))
}

// handleSendInstruction submits a raw instruction, for clients that build
// their own account lists.
func (s *Server) handleSendInstruction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params sendInstructionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeParamError(w, req.ID, rpcErr)
		return
	}
	programID := s.programID
	if strings.TrimSpace(params.ProgramID) != "" {
		key, rpcErr := parseKey("program", params.ProgramID)
		if rpcErr != nil {
			writeParamError(w, req.ID, rpcErr)
			return
		}
		programID = key
	}
	data, err := base58.Decode(strings.TrimSpace(params.Data))
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "data must be non-empty base58", nil)
		return
	}
	metas := make(solana.AccountMetaSlice, 0, len(params.Accounts))
	for i, meta := range params.Accounts {
		key, rpcErr := parseKey(fmt.Sprintf("accounts[%d]", i), meta.Pubkey)
		if rpcErr != nil {
			writeParamError(w, req.ID, rpcErr)
			return
		}
		metas = append(metas, solana.NewAccountMeta(key, meta.IsWritable, meta.IsSigner))
	}
	signers := make([]solana.PublicKey, 0, len(params.Signers))
	for i, raw := range params.Signers {
		key, rpcErr := parseKey(fmt.Sprintf("signers[%d]", i), raw)
		if rpcErr != nil {
			writeParamError(w, req.ID, rpcErr)
			return
		}
		signers = append(signers, key)
	}
	tx := &types.Transaction{
		Signers:     signers,
		Instruction: types.Instruction{ProgramID: programID, Accounts: metas, Data: data},
	}
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction", err.Error())
		return
	}
	receipt, err := s.submitTx(r.Context(), tx)
	if err != nil {
		writeExecError(w, req.ID, "instruction rejected", err)
		return
	}
	writeResult(w, req.ID, receiptJSON(receipt))
}
