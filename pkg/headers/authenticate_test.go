package headers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWWWAuthenticateWrite(t *testing.T) {
	h := WWWAuthenticate{Realm: "rtsp"}
	require.Equal(t, "Basic realm=\"rtsp\"", h.Write()[0])
}
