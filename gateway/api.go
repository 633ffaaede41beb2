// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway is a development decryption gateway. It holds the secret
// key of a local encryption instance, accepts ciphertext registrations with
// an access list, and answers the /decrypt and /public-decrypt requests that
// fhevm clients send.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/crypto/fhe"
	"github.com/luxfi/fhevm/metrics"
	"github.com/luxfi/fhevm/utils"
)

const (
	CiphertextsPath = "/ciphertexts"
	HealthPath      = "/health"
	MetricsPath     = "/metrics"

	// Registrations carry whole ciphertexts; every other body is a handle
	// and a signature.
	maxRegisterBytes = 64 << 20
	maxRequestBytes  = 1 << 20
)

var _ Keyring = (*fhe.Keyring)(nil)

var errNoPublicKey = errors.New("no public key loaded")

// Keyring is the key material the gateway decrypts with.
type Keyring interface {
	ChainID() uint64
	ACLAddress() common.Address
	PublicKey() []byte
	Decrypt(ciphertext []byte, width fhevm.Width) (*big.Int, error)
}

// RegisterRequest is the body of POST /ciphertexts: an encrypted input and
// the access list its handles are stored under.
type RegisterRequest struct {
	ContractAddress common.Address   `json:"contractAddress"`
	Data            hexutil.Bytes    `json:"data"`
	Handles         []common.Hash    `json:"handles"`
	Proof           hexutil.Bytes    `json:"proof"`
	Allowed         []common.Address `json:"allowed"`
	Public          bool             `json:"public"`
}

type RegisterResponse struct {
	Handles []common.Hash `json:"handles"`
}

type Server struct {
	log     log.Logger
	keys    Keyring
	chainID *big.Int
	metrics *metrics.HTTPMetrics
	stored  prometheus.Gauge
	store   *store
	router  *mux.Router
}

// NewServer builds the gateway routes. Metrics are registered on registry
// and served from it.
func NewServer(logger log.Logger, keys Keyring, registry *prometheus.Registry) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		log:     logger,
		keys:    keys,
		chainID: new(big.Int).SetUint64(keys.ChainID()),
		metrics: metrics.NewHTTPMetrics(registry, "gateway"),
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_stored_handles",
			Help: "Number of ciphertext handles registered with the gateway",
		}),
		store:  newStore(),
		router: mux.NewRouter(),
	}
	registry.MustRegister(s.stored)

	s.router.Use(utils.WithRequestID)
	s.router.Handle(fhevm.DecryptPath, s.metrics.Instrument("decrypt", s.handleDecrypt)).Methods(http.MethodPost)
	s.router.Handle(fhevm.PublicDecryptPath, s.metrics.Instrument("public-decrypt", s.handlePublicDecrypt)).Methods(http.MethodPost)
	s.router.Handle(CiphertextsPath, s.metrics.Instrument("ciphertexts", s.handleRegister)).Methods(http.MethodPost)
	s.router.Handle(fhevm.KeysPath, s.metrics.Instrument("keys", s.handleKeys)).Methods(http.MethodGet)
	s.router.Handle(HealthPath, utils.HealthHandler("fhevm-gateway-health", s.healthCheck)).Methods(http.MethodGet)
	s.router.Handle(MetricsPath, metrics.Handler(registry)).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Register verifies input against the gateway's keys and stores each of its
// handles for contract. allowed lists the accounts that may request a user
// decryption; public makes the handles readable without a signature. Handles
// that are already registered are rejected and keep their access list.
func (s *Server) Register(
	contract common.Address,
	input *fhevm.EncryptResult,
	allowed []common.Address,
	public bool,
) error {
	ciphertexts, err := fhe.VerifyInput(input.Data, input.Handles, input.Proof, s.keys.ACLAddress(), s.keys.ChainID())
	if err != nil {
		return err
	}
	acl := set.NewSet[common.Address](len(allowed))
	acl.Add(allowed...)
	entries := make([]*entry, len(input.Handles))
	for idx, handle := range input.Handles {
		// VerifyInput rejects handles without a known width.
		width, _ := fhe.WidthFromHandle(handle)
		entries[idx] = &entry{
			contract:   contract,
			ciphertext: ciphertexts[idx],
			width:      width,
			allowed:    acl,
			public:     public,
		}
	}
	if err := s.store.add(input.Handles, entries); err != nil {
		return err
	}
	s.stored.Set(float64(s.store.len()))
	s.log.Debug("Registered ciphertexts",
		log.Stringer("contract", contract),
		log.Int("count", len(input.Handles)),
	)
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !utils.DecodeJSON(s.log, w, r, maxRegisterBytes, &req) {
		return
	}
	if len(req.Handles) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Must provide at least one handle")
		return
	}
	input := &fhevm.EncryptResult{Data: req.Data, Handles: req.Handles, Proof: req.Proof}
	err := s.Register(req.ContractAddress, input, req.Allowed, req.Public)
	if errors.Is(err, errHandleExists) {
		s.log.Warn("Rejected duplicate registration", log.Err(err))
		s.writeJSONError(w, http.StatusConflict, "Handle already registered")
		return
	}
	if err != nil {
		msg := "Invalid encrypted input"
		s.log.Warn(msg, log.Err(err))
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", msg, err))
		return
	}
	s.writeJSON(w, RegisterResponse{Handles: req.Handles})
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req fhevm.DecryptRequest
	if !utils.DecodeJSON(s.log, w, r, maxRequestBytes, &req) {
		return
	}
	e, ok := s.lookup(w, req.ContractAddress, req.Handle)
	if !ok {
		return
	}

	user, err := fhevm.RecoverReencryptSigner(s.chainID, req.ContractAddress, req.Handle, req.PublicKey, req.Signature)
	if err != nil {
		msg := "Invalid signature"
		s.log.Warn(msg, log.Err(err))
		s.writeJSONError(w, http.StatusUnauthorized, msg)
		return
	}
	if err := fhevm.VerifyPublicKey(user, req.PublicKey); err != nil {
		msg := "Invalid public key"
		s.log.Warn(msg, log.Stringer("user", user), log.Err(err))
		s.writeJSONError(w, http.StatusUnauthorized, msg)
		return
	}
	if !e.allowed.Contains(user) {
		s.log.Warn("Decryption denied",
			log.Stringer("user", user),
			log.Stringer("handle", req.Handle),
		)
		s.writeJSONError(w, http.StatusForbidden, "Account not allowed to decrypt handle")
		return
	}
	s.decrypt(w, e)
}

func (s *Server) handlePublicDecrypt(w http.ResponseWriter, r *http.Request) {
	var req fhevm.PublicDecryptRequest
	if !utils.DecodeJSON(s.log, w, r, maxRequestBytes, &req) {
		return
	}
	e, ok := s.lookup(w, req.ContractAddress, req.Handle)
	if !ok {
		return
	}
	if !e.public {
		s.writeJSONError(w, http.StatusForbidden, "Handle is not publicly decryptable")
		return
	}
	s.decrypt(w, e)
}

// lookup finds the entry for handle and checks it was registered for
// contract, writing the error response when it was not.
func (s *Server) lookup(w http.ResponseWriter, contract common.Address, handle common.Hash) (*entry, bool) {
	e, ok := s.store.get(handle)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "Unknown handle")
		return nil, false
	}
	if e.contract != contract {
		s.writeJSONError(w, http.StatusForbidden, "Handle is not bound to contract")
		return nil, false
	}
	return e, true
}

func (s *Server) decrypt(w http.ResponseWriter, e *entry) {
	value, err := s.keys.Decrypt(e.ciphertext, e.width)
	if err != nil {
		msg := "Failed to decrypt ciphertext"
		s.log.Error(msg, log.Err(err))
		s.writeJSONError(w, http.StatusInternalServerError, msg)
		return
	}
	s.writeJSON(w, fhevm.DecryptResponse{Value: value.String()})
}

func (s *Server) handleKeys(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, fhevm.KeysResponse{
		Success: true,
		Data: fhevm.KeysData{
			PublicKey:  s.keys.PublicKey(),
			ChainID:    s.keys.ChainID(),
			ACLAddress: s.keys.ACLAddress(),
		},
	})
}

func (s *Server) healthCheck(context.Context) error {
	if len(s.keys.PublicKey()) == 0 {
		return errNoPublicKey
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, body any) {
	utils.WriteJSON(s.log, w, body)
}

func (s *Server) writeJSONError(w http.ResponseWriter, httpStatusCode int, errorMsg string) {
	utils.WriteJSONError(s.log, w, httpStatusCode, errorMsg)
}
