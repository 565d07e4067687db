package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("list credit: %w", ErrNotListable())
	assert.True(t, errors.Is(err, ErrNotListable()))
	assert.False(t, errors.Is(err, ErrNotRetireable()))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrInsufficientBalance()))
	assert.Equal(t, KindUpstreamTimeout, KindOf(fmt.Errorf("wrap: %w", ErrUpstreamTimeout(errors.New("deadline")))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindConflict))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindUnauthorized))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(KindUpstreamTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("chain down")
	err := ErrUpstreamMintFailure(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_MINT_FAILURE")
	assert.Contains(t, err.Error(), "chain down")
}
