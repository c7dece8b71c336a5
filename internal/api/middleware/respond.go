package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/calctree/engine/internal/api/types"
	appErr "github.com/calctree/engine/pkg/errors"
)

func writeFailure(w http.ResponseWriter, r *http.Request, code appErr.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(types.APIResponse{
		Success: false,
		Error:   &types.APIError{Code: string(code), Message: msg},
		Meta:    &types.Meta{RequestID: GetRequestID(r.Context())},
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="calctree"`)
	writeFailure(w, r, appErr.CodeUnauthorized, "authentication required")
}
