// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server exposes an fhevm client's encryption over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/metrics"
	"github.com/luxfi/fhevm/utils"
)

const (
	EncryptPath = "/api/encrypt"
	HealthPath  = "/health"
	MetricsPath = "/metrics"

	missingParameterMsg = "Missing value or type parameter"
	maxRequestBytes     = 1 << 20
)

var (
	_ Encrypter = (*fhevm.Client)(nil)

	errInvalidValue = errors.New("invalid value")
)

// Encrypter is the part of a Client the service needs.
type Encrypter interface {
	IsInitialized() bool
	Encrypt(ctx context.Context, value *big.Int, width fhevm.Width) (*fhevm.EncryptResult, error)
}

// EncryptRequest is the body of POST /api/encrypt. Value is a JSON number or
// a decimal or 0x-prefixed hex string; Type is a width name such as "uint8"
// or "euint8".
type EncryptRequest struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

type EncryptResponse struct {
	Success bool        `json:"success"`
	Data    EncryptData `json:"data"`
}

type EncryptData struct {
	Encrypted *fhevm.EncryptResult `json:"encrypted"`
	Type      string               `json:"type"`
	Timestamp string               `json:"timestamp"`
}

type Server struct {
	log     log.Logger
	client  Encrypter
	metrics *metrics.HTTPMetrics
	router  *mux.Router
	now     func() time.Time
}

func NewServer(logger log.Logger, client Encrypter, registry *prometheus.Registry) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		log:     logger,
		client:  client,
		metrics: metrics.NewHTTPMetrics(registry, "encryption_service"),
		router:  mux.NewRouter(),
		now:     time.Now,
	}

	s.router.Use(utils.WithRequestID)
	s.router.Handle(EncryptPath, s.metrics.Instrument("encrypt", s.handleEncrypt)).Methods(http.MethodPost)
	s.router.Handle(HealthPath, utils.HealthHandler("fhevm-encryption-health", s.healthCheck)).Methods(http.MethodGet)
	s.router.Handle(MetricsPath, metrics.Handler(registry)).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if !utils.DecodeJSON(s.log, w, r, maxRequestBytes, &req) {
		return
	}
	if isMissing(req.Value) || req.Type == "" {
		utils.WriteJSONError(s.log, w, http.StatusBadRequest, missingParameterMsg)
		return
	}

	width, err := fhevm.ParseWidth(req.Type)
	if err != nil {
		utils.WriteJSONError(s.log, w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseValue(req.Value)
	if err != nil {
		utils.WriteJSONError(s.log, w, http.StatusBadRequest, err.Error())
		return
	}

	encrypted, err := s.client.Encrypt(r.Context(), value, width)
	if err != nil {
		s.log.Error("Encryption error", log.Err(err))
		utils.WriteJSONError(s.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(s.log, w, EncryptResponse{
		Success: true,
		Data: EncryptData{
			Encrypted: encrypted,
			Type:      req.Type,
			Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		},
	})
}

func (s *Server) healthCheck(context.Context) error {
	if !s.client.IsInitialized() {
		return fhevm.ErrNotInitialized
	}
	return nil
}

// isMissing reports an absent, null or empty-string value. Zero is a valid
// value.
func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == `""`
}

func parseValue(raw json.RawMessage) (*big.Int, error) {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidValue, err)
		}
	}
	value, err := fhevm.HexToBigInt(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidValue, err)
	}
	return value, nil
}
