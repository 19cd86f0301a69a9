package jellyfin

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

func (c *Client) FetchStreamInfo(ctx context.Context, mediaID, quality string) (backend.StreamInfo, error) {
	req := c.http.R().SetContext(ctx).
		SetQueryParam("Static", "true").
		SetQueryParam("api_key", c.apiKey)
	if quality != "" {
		req.SetQueryParam("MaxStreamingBitrate", quality)
	}

	url := fmt.Sprintf("%s/Videos/%s/stream", c.baseURL, mediaID)
	return backend.StreamInfo{
		URL:       url,
		Protocol:  "direct",
		Container: "mp4",
	}, nil
}

// PushProgress reports playback position via Jellyfin's PlayingStopped/
// PlayingProgress session endpoints, collapsed into one call here since the
// sync orchestrator already distinguishes watched-vs-in-progress upstream.
func (c *Client) PushProgress(ctx context.Context, mediaID string, positionMs, durationMs int64, watched bool) error {
	body := map[string]any{
		"ItemId":        mediaID,
		"PositionTicks": positionMs * ticksPerMillisecond,
		"IsPaused":      false,
	}
	path := "/Sessions/Playing/Progress"
	if watched {
		path = "/Sessions/Playing/Stopped"
	}
	_, err := c.do(ctx, c.http.R().SetContext(ctx).SetBody(body), "POST", path)
	return err
}

// MarkWatched flips mediaID's server-side watched flag via Jellyfin's
// PlayedItems endpoint (grounded on mmcdole-kino's MarkPlayed), distinct
// from PushProgress's session-timeline update.
func (c *Client) MarkWatched(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, c.http.R().SetContext(ctx), "POST", fmt.Sprintf("/Users/%s/PlayedItems/%s", c.userID, mediaID))
	return err
}

// MarkUnwatched reverses MarkWatched.
func (c *Client) MarkUnwatched(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, c.http.R().SetContext(ctx), "DELETE", fmt.Sprintf("/Users/%s/PlayedItems/%s", c.userID, mediaID))
	return err
}

// UpdatePlayQueueProgress has no PlayQueue-aware timeline call to route
// through on Jellyfin (CreatePlayQueue already synthesizes a client-local
// queue id with no server concept behind it), so this mirrors the
// threshold check PushProgress's caller would otherwise have to duplicate:
// crossing catalog.WatchedThreshold marks the item watched outright, and
// anything else falls back to the regular session progress update.
func (c *Client) UpdatePlayQueueProgress(ctx context.Context, p backend.PlayQueueProgress) error {
	if p.DurationMs > 0 && float64(p.PositionMs)/float64(p.DurationMs) >= catalog.WatchedThreshold {
		return c.MarkWatched(ctx, p.MediaID)
	}
	if err := c.PushProgress(ctx, p.MediaID, p.PositionMs, p.DurationMs, false); err != nil {
		logging.Warn().Err(err).Str("source_id", c.sourceID).Str("media_id", p.MediaID).
			Msg("jellyfin: PlayQueue-routed progress update failed")
		return err
	}
	return nil
}

// CreatePlayQueue has no Jellyfin server-side equivalent to Plex's
// PlayQueues, so this synthesizes a client-local queue id the playlist
// service can still key progress tracking on (spec.md §4.C8).
func (c *Client) CreatePlayQueue(ctx context.Context, itemIDs []string, startIndex int) (backend.PlayQueue, error) {
	items := make([]backend.PlayQueueItem, len(itemIDs))
	for i, id := range itemIDs {
		items[i] = backend.PlayQueueItem{ID: uuid.NewString(), MediaID: id}
	}
	selected := ""
	if startIndex >= 0 && startIndex < len(items) {
		selected = items[startIndex].ID
	}
	return backend.PlayQueue{ID: uuid.NewString(), Version: 1, Items: items, SelectedItem: selected}, nil
}
