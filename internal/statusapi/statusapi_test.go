package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type snapshotPayload struct {
	Mounts int `json:"mounts"`
}

func TestHandleStatusServesJSON(t *testing.T) {
	srv := New(func() any {
		return snapshotPayload{Mounts: 3}
	}, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var got snapshotPayload
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, 3, got.Mounts)
}

func TestHandleStatusWSPushesSnapshot(t *testing.T) {
	srv := New(func() any {
		return snapshotPayload{Mounts: 7}
	}, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got snapshotPayload
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, 7, got.Mounts)
}
