package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestCloneMatchesPredefined(t *testing.T) {
	err := Clone(ErrSessionClosed, "session s-1 has ended")
	assert.True(t, stdErrors.Is(err, ErrSessionClosed))
	assert.False(t, stdErrors.Is(err, ErrDuplicateCheckIn))
	assert.Equal(t, "session s-1 has ended", err.Message)
	assert.Equal(t, "session has ended", ErrSessionClosed.Message)
}

func TestBackendKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Backend(cause, "failed to create session")
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("outer: %w", err), ErrBackendUnavailable)
}
