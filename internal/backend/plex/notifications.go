package plex

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/fedsync/internal/logging"
)

// playSessionStateNotification mirrors Plex's websocket notification shape
// (grounded on other_examples' brw-go-plex-client websocket client), pared
// down to the fields the connection supervisor and progress view-models
// actually consume.
type playSessionStateNotification struct {
	RatingKey  string `json:"ratingKey"`
	State      string `json:"state"`
	ViewOffset int64  `json:"viewOffset"`
}

type notificationContainer struct {
	NotificationContainer struct {
		Type                         string                         `json:"type"`
		PlaySessionStateNotification []playSessionStateNotification `json:"PlaySessionStateNotification"`
	} `json:"NotificationContainer"`
}

// PlaybackNotification is the subset of a Plex websocket push this driver
// surfaces to callers, decoupled from the wire shape above.
type PlaybackNotification struct {
	MediaID    string
	State      string
	PositionMs int64
}

// Notifications opens Plex's /:/websockets/notifications stream and
// delivers parsed PlaySessionStateNotification events until ctx is
// cancelled or the connection drops. Optional real-time signal per
// spec.md §4.C3; the sync orchestrator and connection supervisor work
// correctly without it via their own poll cadence.
func (c *Client) Notifications(ctx context.Context) (<-chan PlaybackNotification, error) {
	wsURL := toWebsocketURL(c.baseURL) + "/:/websockets/notifications?X-Plex-Token=" + c.token

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &connError{sourceID: c.sourceID, err: err}
	}

	out := make(chan PlaybackNotification, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				logging.Debug().Str("component", "plex").Str("source_id", c.sourceID).Err(err).Msg("notification stream closed")
				return
			}
			var envelope notificationContainer
			if err := json.Unmarshal(data, &envelope); err != nil {
				continue
			}
			if envelope.NotificationContainer.Type != "playing" {
				continue
			}
			for _, n := range envelope.NotificationContainer.PlaySessionStateNotification {
				select {
				case out <- PlaybackNotification{MediaID: n.RatingKey, State: n.State, PositionMs: n.ViewOffset}:
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
					// slow consumer, drop rather than block the read loop
				}
			}
		}
	}()
	return out, nil
}

func toWebsocketURL(httpURL string) string {
	u := httpURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u
}
