package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceErrorIs(t *testing.T) {
	sentinel := Validation("amount must be > 0")

	wrapped := fmt.Errorf("deposit: %w", sentinel.WithDetails("participant", "alice"))
	assert.True(t, goerrors.Is(wrapped, sentinel))
	assert.False(t, goerrors.Is(wrapped, Validation("something else")))
	assert.False(t, goerrors.Is(wrapped, Conflict("amount must be > 0")))
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := Forbidden("caller is not the owner")
	withDetails := base.WithDetails("caller", "mallory")

	assert.Nil(t, base.Details)
	assert.Equal(t, "mallory", withDetails.Details["caller"])
}

func TestGetServiceError(t *testing.T) {
	cause := goerrors.New("disk full")
	err := fmt.Errorf("append: %w", Internal("store failure", cause))

	se := GetServiceError(err)
	if se == nil {
		t.Fatal("expected service error")
	}
	assert.Equal(t, CodeInternal, se.Code)
	assert.True(t, goerrors.Is(err, cause))
	assert.Nil(t, GetServiceError(cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"funding", InsufficientFunds("empty"), http.StatusPaymentRequired},
		{"out of range", OutOfRange("past end"), http.StatusNotFound},
		{"conflict", Conflict("busy"), http.StatusConflict},
		{"rate limited", RateLimitExceeded(10, "1s"), http.StatusTooManyRequests},
		{"plain error", goerrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("request: %w", InsufficientFunds("not enough funding"))
	assert.True(t, HasCode(err, CodeInsufficientFunds))
	assert.False(t, HasCode(err, CodeConflict))
}
