package liberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "mount not found: /live/a", ErrNotFound{Path: "/live/a"}.Error())
	require.Equal(t, "forbidden: no admission", ErrForbidden{Reason: "no admission"}.Error())
	require.Equal(t, `unauthorized (realm "rtsp")`, ErrUnauthorized{Realm: "rtsp"}.Error())
	require.Equal(t, "mount already active: /live/a", ErrConflict{Path: "/live/a"}.Error())
	require.Equal(t, "UDP port 6000 is not available", ErrPortUnavailable{Port: 6000}.Error())
	require.Equal(t, "port pool exhausted", ErrPoolExhausted{}.Error())
	require.Equal(t, "invalid transport: unsupported protocol", ErrTransportInvalid{Reason: "unsupported protocol"}.Error())
	require.Equal(t, "session not found", ErrSessionNotFound{}.Error())
	require.Equal(t, "method PLAY is not valid while session is init", ErrMethodNotValidInState{Method: "PLAY", State: "init"}.Error())
}

func TestErrInternalUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	wrapped := ErrInternal{Err: inner}

	require.Equal(t, "internal error: socket closed", wrapped.Error())
	require.ErrorIs(t, wrapped, inner)
}
