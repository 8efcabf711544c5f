package errutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("redeem: %w", Transient("backend unavailable"))
	require.Equal(t, StatusTransient, StatusOf(err))
	require.True(t, Retryable(err))
}

func TestTerminalNotRetryable(t *testing.T) {
	err := TerminalServer("Insufficient points")
	require.False(t, Retryable(err))
	require.Equal(t, "Insufficient points", UserMessage(err))
}

func TestUserMessageGenericForInternal(t *testing.T) {
	err := MalformedResponse("unexpected payload", WithErr(errors.New("EOF")))
	require.Equal(t, "Something went wrong. Please try again.", UserMessage(err))
}

func TestUnclassifiedNotRetryable(t *testing.T) {
	require.False(t, Retryable(errors.New("boom")))
	require.Equal(t, StatusUnknown, StatusOf(errors.New("boom")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("redeem failed", WithErr(cause))
	require.ErrorIs(t, err, cause)
}
