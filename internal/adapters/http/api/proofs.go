package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/domain/model"
)

// ProofsHandler runs submitted contributions.
type ProofsHandler struct {
	deps Dependencies
}

// NewProofsHandler creates a new proofs handler.
func NewProofsHandler(deps Dependencies) *ProofsHandler {
	return &ProofsHandler{deps: deps}
}

// HandlePostProof handles POST /v1/proofs?job_id=&file_id= requests. The body
// is one contribution document. Failed checks still answer 200 with an
// invalid proof; only fatal run errors map to error statuses.
func (h *ProofsHandler) HandlePostProof(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_proof"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var fileID int64
	if v := r.URL.Query().Get("file_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: file_id must be a non-negative integer", op, ErrBadRequest))
			return
		}
		fileID = id
	}

	sub, err := input.Decode(r.Body, model.Credential{})
	if err != nil {
		h.fail(w, op, err)
		return
	}
	doc, err := h.deps.Prove(r.Context(), sub, r.URL.Query().Get("job_id"), fileID)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *ProofsHandler) fail(w http.ResponseWriter, op string, err error) {
	kind := h.deps.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeError(w, status, kind, fmt.Errorf("%s: %w", op, err))
}
