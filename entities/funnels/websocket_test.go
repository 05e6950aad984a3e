package funnels

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spacearena/lead-pipeline/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func dialHub(t *testing.T, srv *httptest.Server, campaignID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?campaignId=" + campaignID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) FunnelWSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg FunnelWSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubRoutesEventsByCampaign(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	campaignA, campaignB := bson.NewObjectID(), bson.NewObjectID()
	connA := dialHub(t, srv, campaignA.Hex())
	connB := dialHub(t, srv, campaignB.Hex())
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.TransitionApplied(context.Background(), schemas.TransitionOutcome{CampaignID: campaignA, NewStageID: bson.NewObjectID()})
	hub.TransitionApplied(context.Background(), schemas.TransitionOutcome{CampaignID: campaignB, NewStageID: bson.NewObjectID()})

	msgA := readMessage(t, connA)
	assert.Equal(t, WS_ACTION_STAGE_CHANGED, msgA.Action)
	assert.Equal(t, campaignA.Hex(), msgA.CampaignID)

	msgB := readMessage(t, connB)
	assert.Equal(t, campaignB.Hex(), msgB.CampaignID)
}

func TestHubBroadcastsBulkResults(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	campaign, other := bson.NewObjectID(), bson.NewObjectID()
	conn := dialHub(t, srv, campaign.Hex())
	otherConn := dialHub(t, srv, other.Hex())
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.BulkCompleted(context.Background(), schemas.BulkTransitionResult{JobID: "job-9", CampaignID: campaign.Hex(), SuccessCount: 2, TotalRequested: 2})

	msg := readMessage(t, conn)
	assert.Equal(t, WS_ACTION_BULK_FINISHED, msg.Action)
	assert.Equal(t, campaign.Hex(), msg.CampaignID)
	board, ok := msg.Board.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-9", board["jobId"])

	require.NoError(t, otherConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := otherConn.ReadMessage()
	assert.Error(t, err, "another campaign's board must not see the bulk result")
}

func TestHubDisconnectsClientThatStopsReading(t *testing.T) {
	hub := NewHub(nil, WithSendBuffer(4), WithWriteWait(100*time.Millisecond))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := strings.Repeat("x", 64<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			hub.Broadcast(FunnelWSMessage{Action: WS_ACTION_STAGE_CHANGED, Details: payload})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "broadcast blocked on a client that does not read")
	}
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
