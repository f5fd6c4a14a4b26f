package realtime

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_HandleWebSocket_AuthSuccessJoinsOrgRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	verify := func(token string) (HandshakeIdentity, error) {
		if token != "good-token" {
			return HandshakeIdentity{}, errors.New("bad token")
		}
		return HandshakeIdentity{OrgID: "org-1", UserID: "u1", Role: "admin"}, nil
	}

	server := httptest.NewServer(hub.HandleWebSocket(verify))
	defer server.Close()

	conn := dialHub(t, server, "good-token")
	defer conn.Close()

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "auth-success", evt.Type)
	require.Equal(t, "org-1", evt.OrgID)
}

func TestHub_HandleWebSocket_AuthErrorRejectsBadToken(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	verify := func(token string) (HandshakeIdentity, error) {
		return HandshakeIdentity{}, errors.New("bad token")
	}

	server := httptest.NewServer(hub.HandleWebSocket(verify))
	defer server.Close()

	conn := dialHub(t, server, "wrong-token")
	defer conn.Close()

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, "auth-error", evt.Type)
}

func TestHub_Broadcast_IsScopedToOrgRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	verify := func(token string) (HandshakeIdentity, error) {
		return HandshakeIdentity{OrgID: token, UserID: "u1", Role: "admin"}, nil
	}

	server := httptest.NewServer(hub.HandleWebSocket(verify))
	defer server.Close()

	connA := dialHub(t, server, "org-a")
	defer connA.Close()
	connB := dialHub(t, server, "org-b")
	defer connB.Close()

	var handshake Event
	require.NoError(t, connA.ReadJSON(&handshake))
	require.NoError(t, connB.ReadJSON(&handshake))

	// Give the hub's register events time to land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast("org-a", "execution.completed", map[string]interface{}{"taskId": "t1"})

	var received Event
	require.NoError(t, connA.ReadJSON(&received))
	require.Equal(t, "execution.completed", received.Type)
	require.Equal(t, "org-a", received.OrgID)

	connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	err := connB.ReadJSON(&received)
	require.Error(t, err, "org-b must not receive org-a's broadcast")
}

func TestHub_Broadcast_DropsMissingOrgID(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	// Must not panic or block even though no room exists for an empty orgId.
	hub.Broadcast("", "orphaned.event", nil)
}
