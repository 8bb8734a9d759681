package model

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAPIErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want int
	}{
		{"auth error", NewAuthError(MsgInvalidToken), http.StatusUnauthorized},
		{"forbidden error", NewForbiddenError(MsgAdminRequired), http.StatusForbidden},
		{"validation error", NewValidationError("bad input"), http.StatusBadRequest},
		{"not found error", NewNotFoundError("User"), http.StatusNotFound},
		{"internal error", NewInternalError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewNotFoundErrorMessage(t *testing.T) {
	err := NewNotFoundError("Transaction")
	if err.Message != "Transaction not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Transaction not found")
	}
}

func TestAsAPIError(t *testing.T) {
	t.Run("direct APIError", func(t *testing.T) {
		apiErr, ok := AsAPIError(NewAuthError(MsgInvalidToken))
		if !ok {
			t.Fatal("AsAPIError should find APIError")
		}
		if apiErr.Kind != KindAuth {
			t.Errorf("Kind = %q, want %q", apiErr.Kind, KindAuth)
		}
	})

	t.Run("wrapped APIError", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", NewValidationError("bad"))
		apiErr, ok := AsAPIError(wrapped)
		if !ok {
			t.Fatal("AsAPIError should unwrap APIError")
		}
		if apiErr.Kind != KindValidation {
			t.Errorf("Kind = %q, want %q", apiErr.Kind, KindValidation)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if _, ok := AsAPIError(fmt.Errorf("plain")); ok {
			t.Error("AsAPIError should not match plain errors")
		}
	})
}
