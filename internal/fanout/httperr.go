package fanout

import (
	"encoding/json"
	"net/http"

	"github.com/meshim/imcore/internal/imerr"
)

// errorResponse is the REST error body §7 specifies: "HTTP status +
// {code, message, details?}".
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func statusFor(kind imerr.Kind) int {
	switch kind {
	case imerr.KindNotFound:
		return http.StatusNotFound
	case imerr.KindInvalidInput:
		return http.StatusBadRequest
	case imerr.KindUnauthorized:
		return http.StatusUnauthorized
	case imerr.KindConflict:
		return http.StatusConflict
	case imerr.KindTransportTransient, imerr.KindDatabase:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := imerr.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(errorResponse{Code: kind.String(), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
