// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Prove runs one submission through the pipeline.
	Prove(ctx context.Context, sub input.Submission, jobID string, fileID int64) (types.ProofDocument, error)
	// Lookup reads the ledger entry of a hashed identity.
	Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error)
	// ErrorKind classifies a fatal run error.
	ErrorKind(err error) string
}

// Error kinds mapped to HTTP statuses. Unknown kinds are server errors.
var kindStatus = map[string]int{
	"invalid_identity":       http.StatusUnprocessableEntity,
	"malformed_contribution": http.StatusUnprocessableEntity,
	"no_input":               http.StatusBadRequest,
	"provider_unavailable":   http.StatusBadGateway,
	"ledger_contention":      http.StatusServiceUnavailable,
	"timeout":                http.StatusGatewayTimeout,
}

// Server wires HTTP routes for the proof API.
type Server struct {
	healthHandler *HealthHandler
	proofsHandler *ProofsHandler
	ledgerHandler *LedgerHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		proofsHandler: NewProofsHandler(deps),
		ledgerHandler: NewLedgerHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/v1/proofs", MetricsMiddleware(s.proofsHandler.HandlePostProof, "proofs"))
	mux.HandleFunc("/v1/ledger/", MetricsMiddleware(s.ledgerHandler.HandleGetEntry, "ledger"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Kind: kind})
}
