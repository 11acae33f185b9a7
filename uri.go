package relay

import (
	"strconv"
	"strings"
)

const streamIDSuffix = "/streamid="

// splitPathStreamID peels a trailing "/streamid=N" suffix off an RTSP
// URI path, returning the mount path and the parsed stream id (0 if no
// suffix is present).
func splitPathStreamID(path string) (string, int) {
	i := strings.LastIndex(path, streamIDSuffix)
	if i < 0 {
		return path, 0
	}

	id, err := strconv.Atoi(path[i+len(streamIDSuffix):])
	if err != nil {
		return path, 0
	}

	return path[:i], id
}
