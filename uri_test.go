package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPathStreamID(t *testing.T) {
	for _, ca := range []struct {
		name     string
		path     string
		wantPath string
		wantID   int
	}{
		{"no suffix", "/live/cam1", "/live/cam1", 0},
		{"with suffix", "/live/cam1/streamid=1", "/live/cam1", 1},
		{"suffix zero", "/live/cam1/streamid=0", "/live/cam1", 0},
		{"malformed suffix ignored", "/live/cam1/streamid=x", "/live/cam1/streamid=x", 0},
	} {
		t.Run(ca.name, func(t *testing.T) {
			path, id := splitPathStreamID(ca.path)
			require.Equal(t, ca.wantPath, path)
			require.Equal(t, ca.wantID, id)
		})
	}
}
