package credauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Handler is one workflow operation: a typed request in, a typed result or
// an error out. It knows nothing about HTTP.
type Handler[Req, Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f HandlerFunc[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Decoder fills req from an HTTP request
type Decoder[Req any] func(r *http.Request, req *Req) error

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

var errBadBody = NewAuthError(ErrCodeValidation, "Invalid request body", "")

// DecodeJSON reads req from a JSON body
func DecodeJSON[Req any](r *http.Request, req *Req) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

// DecodeForm accepts either a JSON body or url-encoded form fields, keyed by
// the request's json tags.
func DecodeForm[Req any](r *http.Request, req *Req) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return DecodeJSON(r, req)
	}
	if err := r.ParseForm(); err != nil {
		return errBadBody
	}
	fields := map[string]string{}
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return errBadBody
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return errBadBody
	}
	return nil
}

// JSONEndpoint serves h over HTTP. The request is decoded with decode, the
// result is written as JSON with the given success status, and errors are
// rendered by WriteError.
func JSONEndpoint[Req, Resp any](h Handler[Req, Resp], decode Decoder[Req], status int, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decode(r, &req); err != nil {
			WriteError(w, r, logger, err)
			return
		}
		resp, err := h.Handle(r.Context(), req)
		if err != nil {
			WriteError(w, r, logger, err)
			return
		}
		WriteJSON(w, status, resp)
	})
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("error writing response", "err", err)
	}
}

// WriteError renders err as {"error", "code", "field", "details"}. Internal
// causes are logged and never written.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	authErr := AsAuthError(err)
	status := authErr.Status()
	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "code", authErr.Code, "err", err)
	}
	if status == http.StatusUnauthorized && authErr.Code == ErrCodeUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="credauth"`)
	}
	WriteJSON(w, status, authErr.Public())
}

// Handler accessors for each workflow operation

func (s *Service) RegisterHandler() Handler[RegisterRequest, *MessageResponse] {
	return HandlerFunc[RegisterRequest, *MessageResponse](s.Register)
}

func (s *Service) AuthenticateHandler() Handler[AuthenticateRequest, *AccountSummary] {
	return HandlerFunc[AuthenticateRequest, *AccountSummary](s.Authenticate)
}

func (s *Service) PasswordResetRequestHandler() Handler[PasswordResetRequest, *MessageResponse] {
	return HandlerFunc[PasswordResetRequest, *MessageResponse](s.RequestPasswordReset)
}

func (s *Service) ResetPasswordHandler() Handler[ResetPasswordRequest, *MessageResponse] {
	return HandlerFunc[ResetPasswordRequest, *MessageResponse](s.ResetPassword)
}

func (s *Service) VerifyEmailHandler() Handler[VerifyEmailRequest, *MessageResponse] {
	return HandlerFunc[VerifyEmailRequest, *MessageResponse](s.VerifyEmail)
}
