package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtsprelay/pkg/base"
)

func TestSessionReadWrite(t *testing.T) {
	timeout := uint(30)
	h := Session{Session: "abc123", Timeout: &timeout}

	encoded := h.Write()
	require.Equal(t, "abc123;timeout=30", encoded[0])

	var decoded Session
	require.NoError(t, decoded.Read(encoded))
	require.Equal(t, "abc123", decoded.Session)
	require.NotNil(t, decoded.Timeout)
	require.Equal(t, uint(30), *decoded.Timeout)
}

func TestSessionReadWithoutTimeout(t *testing.T) {
	var h Session
	require.NoError(t, h.Read(base.HeaderValue{"xyz"}))
	require.Equal(t, "xyz", h.Session)
	require.Nil(t, h.Timeout)
}

func TestSessionReadErrors(t *testing.T) {
	var h Session
	require.Error(t, h.Read(base.HeaderValue{}))
	require.Error(t, h.Read(base.HeaderValue{"a", "b"}))
	require.Error(t, h.Read(base.HeaderValue{"abc;badkv"}))
}
