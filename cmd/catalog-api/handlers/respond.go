// Package handlers provides HTTP handlers for the catalog API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps err onto an HTTP status and logs server-side failures.
func writeDomainError(w http.ResponseWriter, logger *observability.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeError(w, status, http.StatusText(status), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}

	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return http.StatusUnprocessableEntity
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Type {
		case domain.ErrorTypeValidation:
			return http.StatusBadRequest
		case domain.ErrorTypeConversion:
			return http.StatusUnprocessableEntity
		case domain.ErrorTypeWorkflow:
			return http.StatusConflict
		case domain.ErrorTypeConfig:
			return http.StatusServiceUnavailable
		case domain.ErrorTypeAPI, domain.ErrorTypeExtraction, domain.ErrorTypeCommit:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
