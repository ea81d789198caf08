package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInvalidParam:     http.StatusBadRequest,
		CodeJobNotFound:      http.StatusNotFound,
		CodeQuotaExceeded:    http.StatusTooManyRequests,
		CodeTooManyRequests:  http.StatusTooManyRequests,
		CodeLLMProviderError: http.StatusServiceUnavailable,
		CodeDatabaseError:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, New(code, "x").HTTPStatus, "code %s", code)
	}
}

func TestWithDetail_DoesNotMutatePredefined(t *testing.T) {
	withDetail := ErrQuotaExceeded.WithDetail("used 10 of 10")

	assert.Equal(t, "used 10 of 10", withDetail.Detail)
	assert.Empty(t, ErrQuotaExceeded.Detail)
}

func TestAsAppError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrJobNotFound)

	require.True(t, IsAppError(wrapped))
	assert.Equal(t, CodeJobNotFound, AsAppError(wrapped).Code)

	plain := AsAppError(fmt.Errorf("boom"))
	assert.Equal(t, CodeUnknown, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.HTTPStatus)
}
