// Package handler implements the HTTP and websocket handlers for the chat API.
package handler

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/chat"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// errorStatus maps a chat pipeline error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var retrievalErr *service.RetrievalError
	var completionErr *service.CompletionError
	var discoveryErr *service.DiscoveryError
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrEmptyQuestion), errors.Is(err, chat.ErrInvalidSettings):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, chat.ErrTurnInFlight):
		return http.StatusConflict, "turn_in_flight"
	case errors.Is(err, chat.ErrConversationCleared):
		return http.StatusConflict, "conversation_cleared"
	case errors.Is(err, service.ErrNoSearchServices):
		return http.StatusServiceUnavailable, "no_search_services"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &discoveryErr):
		return http.StatusServiceUnavailable, "discovery_failed"
	case errors.As(err, &retrievalErr):
		return http.StatusBadGateway, "retrieval_failed"
	case errors.As(err, &completionErr):
		return http.StatusBadGateway, "completion_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// errorMessage is the user-facing text for err. Collaborator failures are not
// echoed verbatim.
func errorMessage(status int, code string, err error) string {
	switch code {
	case "retrieval_failed":
		return "search service request failed"
	case "completion_failed":
		return "completion request failed"
	case "discovery_failed":
		return "search services could not be listed"
	case "internal":
		return "internal error"
	}
	if status == http.StatusGatewayTimeout {
		return "request timed out"
	}
	return err.Error()
}

// writeChatError writes the standard error body for a chat pipeline error and
// returns the status it used.
func writeChatError(w http.ResponseWriter, err error) int {
	status, code := errorStatus(err)
	writeError(w, status, code, errorMessage(status, code, err))
	return status
}

// newValidator returns a validator that knows the chat_model tag.
func newValidator(models []string) *validator.Validate {
	allowed := make(map[string]bool, len(models))
	for _, m := range models {
		allowed[m] = true
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("chat_model", func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	}); err != nil {
		panic(fmt.Sprintf("register chat_model validation: %v", err))
	}
	return v
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "chat_model":
			parts = append(parts, fmt.Sprintf("%s %q is not an available model", fe.Field(), fmt.Sprint(fe.Value())))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// hashQuestion returns SHA-256 hex of the question.
func hashQuestion(question string) string {
	h := sha256.Sum256([]byte(question))
	return fmt.Sprintf("%x", h)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}
