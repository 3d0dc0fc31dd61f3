package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/listenproof/internal/domain/identity"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/types"
)

// LedgerHandler exposes ledger lookups by hashed identity.
type LedgerHandler struct {
	deps Dependencies
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(deps Dependencies) *LedgerHandler {
	return &LedgerHandler{deps: deps}
}

// HandleGetEntry handles GET /v1/ledger/{account_id_hash} requests.
func (h *LedgerHandler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ledger_entry"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /v1/ledger/
	id := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/v1/ledger/"))
	if _, err := hex.DecodeString(id); err != nil || len(id) != identity.DigestLength {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: expected a sha-256 hex digest", op, ErrBadRequest))
		return
	}

	e, ok, err := h.deps.Lookup(r.Context(), model.HashedIdentity(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", fmt.Errorf("%s: %w", op, err))
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%s: %w", op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, types.LedgerEntry{
		AccountIDHash: e.Identity.String(),
		TotalPoints:   e.TotalPoints,
		TimesRewarded: e.TimesRewarded,
		FirstSeen:     e.FirstSeen,
		LastSeen:      e.LastSeen,
	})
}
