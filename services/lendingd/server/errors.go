package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"nftlend/native/assets"
	"nftlend/native/claims"
	"nftlend/native/lending"
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a failure onto an HTTP status by category.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch lending.KindOf(err) {
	case lending.KindAuthorization:
		return http.StatusForbidden
	case lending.KindStateGate, lending.KindLifecycle:
		return http.StatusConflict
	case lending.KindInputBounds:
		return http.StatusBadRequest
	case lending.KindResource:
		return http.StatusUnprocessableEntity
	case lending.KindStaleness:
		return http.StatusFailedDependency
	case lending.KindNotFound:
		return http.StatusNotFound
	}
	switch {
	case errors.Is(err, assets.ErrInsufficientBalance), errors.Is(err, assets.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assets.ErrTokenNotFound), errors.Is(err, claims.ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, assets.ErrNotOwnerOrApproved), errors.Is(err, claims.ErrNotOwnerOrApproved):
		return http.StatusForbidden
	case errors.Is(err, assets.ErrTokenExists):
		return http.StatusConflict
	case errors.Is(err, assets.ErrZeroAddress), errors.Is(err, assets.ErrInvalidAmount), errors.Is(err, assets.ErrInvalidPrice):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: lending.CodeOf(err)}
	if kind := lending.KindOf(err); kind != lending.KindUnknown {
		body.Kind = kind.String()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body = errorResponse{Error: "internal error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
