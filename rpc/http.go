package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/types"
	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRegistryError  = -32010
	codeLedgerRejected = -32011
)

// ServerConfig holds the runtime knobs of the JSON-RPC server.
type ServerConfig struct {
	// AuthToken guards every state-changing method. Empty disables them.
	AuthToken         string
	EnableFaucet      bool
	FaucetMaxLamports uint64
	// FaucetPerMinute throttles ledger_airdrop per client address. Zero
	// disables throttling.
	FaucetPerMinute float64
	FaucetBurst     int
	TxTimeout         time.Duration
	ReadHeaderTimeout time.Duration
	AllowedOrigins    []string
}

type Server struct {
	runtime   *core.Runtime
	registry  *donations.Engine
	programID solana.PublicKey
	cfg       ServerConfig
	logger    *slog.Logger
	faucet    *clientLimiter

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(runtime *core.Runtime, programID solana.PublicKey, cfg ServerConfig) *Server {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 10 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	s := &Server{
		runtime:   runtime,
		programID: programID,
		cfg:       cfg,
		logger:    slog.Default(),
		faucet:    newClientLimiter(cfg.FaucetPerMinute, cfg.FaucetBurst),
	}
	if runtime != nil {
		s.registry = donations.NewQueryEngine(programID, runtime)
	}
	return s
}

// SetLogger overrides the request logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Router exposes JSON-RPC at POST /, Prometheus metrics and a health probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(s.requestLogger)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "donations.rpc")
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// Serve blocks serving the router on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("rpc_address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RegistryErrorData is attached to codeRegistryError responses.
type RegistryErrorData struct {
	Code   uint32 `json:"code"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeExecError maps registry errors to codeRegistryError with their
// numeric code, ledger rejections to codeLedgerRejected, and anything else
// to a server error.
func writeExecError(w http.ResponseWriter, id interface{}, message string, err error) {
	if code, name, ok := donations.ErrorCode(err); ok {
		writeError(w, http.StatusBadRequest, id, codeRegistryError, message, RegistryErrorData{Code: code, Name: name, Detail: err.Error()})
		return
	}
	for _, ledgerErr := range []error{
		core.ErrAccountNotDeclared,
		core.ErrAccountReadOnly,
		core.ErrIllegalOwner,
		core.ErrInsufficientFunds,
		core.ErrLamportOverflow,
		core.ErrSourceNotSigner,
		core.ErrUnknownProgram,
		types.ErrEmptyInstruction,
		types.ErrMissingSigner,
	} {
		if errors.Is(err, ledgerErr) {
			writeError(w, http.StatusBadRequest, id, codeLedgerRejected, message, err.Error())
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, message, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, id, codeServerError, message, err.Error())
}

type methodHandler func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type method struct {
	handler methodHandler
	auth    bool
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"donations_getConfig":        {handler: s.handleGetConfig},
		"donations_getDonor":         {handler: s.handleGetDonor},
		"donations_getDonorById":     {handler: s.handleGetDonorByID},
		"donations_getLeaderboard":   {handler: s.handleGetLeaderboard},
		"donations_deriveAddresses":  {handler: s.handleDeriveAddresses},
		"donations_initializeConfig": {handler: s.handleInitializeConfig, auth: true},
		"donations_donate":           {handler: s.handleDonate, auth: true},
		"donations_updateProfile":    {handler: s.handleUpdateProfile, auth: true},
		"donations_setTreasury":      {handler: s.handleSetTreasury, auth: true},
		"donations_setPaused":        {handler: s.handleSetPaused, auth: true},
		"donations_setAdmin":         {handler: s.handleSetAdmin, auth: true},
		"donations_sendInstruction":  {handler: s.handleSendInstruction, auth: true},
		"ledger_getBalance":          {handler: s.handleGetBalance},
		"ledger_getAccount":          {handler: s.handleGetAccount},
		"ledger_airdrop":             {handler: s.handleAirdrop, auth: true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
		return
	}
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		module := req.Method
		if idx := strings.Index(module, "_"); idx > 0 {
			module = module[:idx]
		}
		observability.ModuleMetrics().Observe(module, req.Method, recorder.status, time.Since(start))
	}()
	if m.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	if s.runtime == nil {
		writeError(recorder, http.StatusServiceUnavailable, req.ID, codeServerError, "ledger not available", nil)
		return
	}
	m.handler(recorder, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// decodeParams unmarshals the single parameter object of req into dst.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter expected"}
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func writeParamError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	writeError(w, http.StatusBadRequest, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

func parseKey(field, raw string) (solana.PublicKey, *RPCError) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address", field), Data: err.Error()}
	}
	return key, nil
}
