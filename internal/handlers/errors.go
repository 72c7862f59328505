package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"uchat/internal/auth"
	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/logging"
)

// ApiErr is an error with the status code it should be reported with.
type ApiErr struct {
	Code int
	Err  error
}

func NewApiErr(code int, msg string) *ApiErr {
	return &ApiErr{Code: code, Err: endpoint.RequestFailed{Msg: msg}}
}

func (e *ApiErr) Error() string { return e.Err.Error() }

func (e *ApiErr) Unwrap() error { return e.Err }

// ServerErr is a known failure with a fixed response.
type ServerErr struct {
	Code int
	Msg  string
}

func (e *ServerErr) Error() string { return e.Msg }

var (
	ErrMissingLogin  = &ServerErr{Code: http.StatusNotFound, Msg: "Missing login"}
	ErrWrongPassword = &ServerErr{Code: http.StatusBadRequest, Msg: "Invalid password"}
	ErrAccountExists = &ServerErr{Code: http.StatusConflict, Msg: "Account already exists"}
)

// errResponse maps err to a status and client-visible message. Anything not
// explicitly classified is reported as a bare server error.
func errResponse(err error) (int, string) {
	var apiErr *ApiErr
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Err.Error()
	}
	var serverErr *ServerErr
	if errors.As(err, &serverErr) {
		return serverErr.Code, serverErr.Msg
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Reason
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		return http.StatusUnauthorized, "unauthorized"
	}
	return http.StatusInternalServerError, "server error"
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code, msg := errResponse(err)
	if code >= http.StatusInternalServerError {
		logging.Ctx(ctx).Error().Err(err).Msg("request failed")
	} else {
		logging.Ctx(ctx).Debug().Err(err).Int("status", code).Msg("request rejected")
	}
	writeJSON(ctx, w, code, endpoint.RequestFailed{Msg: msg})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("write response")
	}
}

// decodeErr turns a request body decode failure into a 400. Validation
// messages from domain types are passed through as is.
func decodeErr(err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return &ApiErr{Code: http.StatusBadRequest, Err: ve}
	}
	return &ApiErr{Code: http.StatusBadRequest, Err: fmt.Errorf("invalid request: %w", err)}
}
