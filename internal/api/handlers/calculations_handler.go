package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/calctree/engine/internal/api/middleware"
	"github.com/calctree/engine/internal/api/types"
	"github.com/calctree/engine/internal/api/validators"
	"github.com/calctree/engine/internal/lineage"
	appErr "github.com/calctree/engine/pkg/errors"
	"github.com/calctree/engine/pkg/utils"
	"github.com/go-chi/chi/v5"
)

type CalculationsHandler struct {
	engine lineage.Service
}

func NewCalculationsHandler(engine lineage.Service) *CalculationsHandler {
	return &CalculationsHandler{engine: engine}
}

// Tree returns the whole forest, newest first. It is served to anonymous callers too.
func (h *CalculationsHandler) Tree(w http.ResponseWriter, r *http.Request) {
	var asOf int64
	if s := r.URL.Query().Get("as_of"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 {
			writeErrorStr(w, r, http.StatusBadRequest, "as_of must be a positive calculation id")
			return
		}
		asOf = v
	}

	forest, err := h.engine.MaterializeForest(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := json.Marshal(forest)
	if err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInternal, "encode forest failed"))
		return
	}
	etag := utils.ETag(body)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    json.RawMessage(body),
		Meta: &types.Meta{
			RequestID: middleware.GetRequestID(r.Context()),
			Total:     int64(lineage.Count(forest)),
			AsOf:      asOf,
		},
	})
}

// Start creates a root holding the starting number.
func (h *CalculationsHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeError(w, r, appErr.New(appErr.CodeUnauthorized, "authentication required"))
		return
	}

	var req types.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "starting number must be numeric")
		return
	}
	number, err := parseNumber(req.Number)
	if err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "starting number must be numeric")
		return
	}

	node, err := h.engine.CreateRoot(r.Context(), owner, number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: node})
}

// Operation applies an operator and operand to an existing calculation.
func (h *CalculationsHandler) Operation(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeError(w, r, appErr.New(appErr.CodeUnauthorized, "authentication required"))
		return
	}

	var req types.OperationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "operand must be numeric")
		return
	}
	operand, err := parseNumber(req.Operand)
	if err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "operand must be numeric")
		return
	}

	node, err := h.engine.ExtendNode(r.Context(), owner, req.ParentID, req.Operator, operand)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: node})
}

// Lineage returns the path from the root to the calculation in the URL.
func (h *CalculationsHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "id must be an integer")
		return
	}

	path, err := h.engine.Lineage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    path,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Total: int64(len(path))},
	})
}
