package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid", Invalid("page must be >= 1"), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("loading: %w", ErrNotFound), http.StatusNotFound},
		{"artifact missing", fmt.Errorf("barrel 3: %w", ErrArtifactMissing), http.StatusServiceUnavailable},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("handler: %w", Invalid("query is required"))
	assert.Equal(t, "query is required", Message(err))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
