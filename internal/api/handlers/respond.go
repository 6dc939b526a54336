package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse is the JSON error envelope
type errorResponse struct {
	Error  string                 `json:"error"`
	Kind   string                 `json:"kind,omitempty"`
	Fields []contracts.FieldError `json:"fields,omitempty"`
}

// respondError maps a domain error onto the HTTP status taxonomy
//
//	validation              → 400
//	not_found               → 404
//	invalid_transition      → 409
//	conflict                → 409
//	cancelled               → 499
//	dependency_unavailable  → 503
//	dependency_timeout      → 504
//	기타                     → 500
func respondError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Error: err.Error(),
		Kind:  contracts.ErrorKind(err),
	}

	var verr *contracts.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	respondJSON(w, statusFor(resp.Kind), resp)
}

// statusClientClosedRequest: 호출자가 요청을 중단한 경우 (nginx 499 관례)
const statusClientClosedRequest = 499

func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "invalid_transition", "conflict":
		return http.StatusConflict
	case "cancelled":
		return statusClientClosedRequest
	case "dependency_unavailable":
		return http.StatusServiceUnavailable
	case "dependency_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondMessage writes a plain error message with an explicit status
// (도메인 에러가 아닌 요청 문제용)
func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
