package plex

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

func (c *Client) FetchStreamInfo(ctx context.Context, mediaID, quality string) (backend.StreamInfo, error) {
	// Direct play by default; a transcode-quality request rewrites onto
	// /video/:/transcode/universal/start.m3u8 the way the teacher's thumb
	// URL builders rewrite image paths (internal/sync/plex.go).
	if quality == "" {
		url := fmt.Sprintf("%s/library/parts/%s/file.mp4?X-Plex-Token=%s", c.baseURL, mediaID, c.token)
		return backend.StreamInfo{URL: url, Protocol: "direct", Container: "mp4"}, nil
	}

	url := fmt.Sprintf(
		"%s/video/:/transcode/universal/start.m3u8?path=/library/metadata/%s&X-Plex-Token=%s&maxVideoBitrate=%s",
		c.baseURL, mediaID, c.token, quality,
	)
	return backend.StreamInfo{URL: url, Protocol: "hls", Container: "mpegts"}, nil
}

// PushProgress reports playback position via Plex's /:/timeline endpoint.
// Crossing catalog.WatchedThreshold is the caller's job to detect and route
// to MarkWatched instead — this call only ever moves the position marker.
func (c *Client) PushProgress(ctx context.Context, mediaID string, positionMs, durationMs int64, watched bool) error {
	state := "playing"
	if watched {
		state = "stopped"
	}
	_, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("ratingKey", mediaID).
		SetQueryParam("key", fmt.Sprintf("/library/metadata/%s", mediaID)).
		SetQueryParam("identifier", "com.plexapp.plugins.library").
		SetQueryParam("time", fmt.Sprintf("%d", positionMs)).
		SetQueryParam("duration", fmt.Sprintf("%d", durationMs)).
		SetQueryParam("state", state), "GET", "/:/timeline")
	return err
}

// MarkWatched flips mediaID's server-side watched flag via Plex's
// /:/scrobble endpoint (grounded on mmcdole-kino's MarkPlayed), distinct from
// PushProgress's timeline position update.
func (c *Client) MarkWatched(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("identifier", "com.plexapp.plugins.library").
		SetQueryParam("key", fmt.Sprintf("/library/metadata/%s", mediaID)), "GET", "/:/scrobble")
	return err
}

// MarkUnwatched reverses MarkWatched via /:/unscrobble.
func (c *Client) MarkUnwatched(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("identifier", "com.plexapp.plugins.library").
		SetQueryParam("key", fmt.Sprintf("/library/metadata/%s", mediaID)), "GET", "/:/unscrobble")
	return err
}

// UpdatePlayQueueProgress reports position through the PlayQueue-aware
// /:/timeline call (playQueueID/playQueueVersion/playQueueItemID). Crossing
// catalog.WatchedThreshold short-circuits to MarkWatched instead of a
// timeline update, matching playqueue.rs's update_play_queue_progress. A
// failed timeline call falls back to the plain PushProgress path rather than
// losing the position update entirely.
func (c *Client) UpdatePlayQueueProgress(ctx context.Context, p backend.PlayQueueProgress) error {
	if p.DurationMs > 0 && float64(p.PositionMs)/float64(p.DurationMs) >= catalog.WatchedThreshold {
		return c.MarkWatched(ctx, p.MediaID)
	}

	_, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("ratingKey", p.MediaID).
		SetQueryParam("key", fmt.Sprintf("/library/metadata/%s", p.MediaID)).
		SetQueryParam("playQueueID", p.PlayQueueID).
		SetQueryParam("playQueueVersion", fmt.Sprintf("%d", p.PlayQueueVersion)).
		SetQueryParam("playQueueItemID", p.PlayQueueItemID).
		SetQueryParam("state", p.State).
		SetQueryParam("time", fmt.Sprintf("%d", p.PositionMs)).
		SetQueryParam("duration", fmt.Sprintf("%d", p.DurationMs)).
		SetQueryParam("playbackTime", fmt.Sprintf("%d", p.PositionMs)).
		SetQueryParam("identifier", "com.plexapp.plugins.library"), "GET", "/:/timeline")
	if err != nil {
		logging.Warn().Err(err).Str("source_id", c.sourceID).Str("media_id", p.MediaID).
			Msg("plex: PlayQueue timeline update failed, falling back to plain timeline")
		return c.PushProgress(ctx, p.MediaID, p.PositionMs, p.DurationMs, p.State == "stopped")
	}
	return nil
}

type playQueueResponse struct {
	MediaContainer struct {
		PlayQueueID             int            `json:"playQueueID"`
		PlayQueueVersion        int            `json:"playQueueVersion"`
		PlayQueueSelectedItemID int            `json:"playQueueSelectedItemID"`
		Metadata                []plexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// CreatePlayQueue builds a Plex server-side PlayQueue via POST /playQueues.
// The uri must resolve through the server's own machine identifier
// (server://{machineId}/com.plexapp.plugins.library/library/metadata/{id}) —
// a bare library:// uri is not resolvable by a real Plex server (grounded on
// playqueue.rs's create_play_queue).
func (c *Client) CreatePlayQueue(ctx context.Context, itemIDs []string, startIndex int) (backend.PlayQueue, error) {
	if len(itemIDs) == 0 {
		return backend.PlayQueue{}, fmt.Errorf("plex: CreatePlayQueue requires at least one item")
	}
	machineID, err := c.resolveMachineID(ctx)
	if err != nil {
		return backend.PlayQueue{}, err
	}
	uri := fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", machineID, strings.Join(itemIDs, ","))

	var result playQueueResponse
	_, err = c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("type", "video").
		SetQueryParam("uri", uri).
		SetQueryParam("continuous", "1").
		SetQueryParam("repeat", "0").
		SetQueryParam("includeChapters", "1").
		SetQueryParam("includeRelated", "1").
		SetResult(&result), "POST", "/playQueues")
	if err != nil {
		return backend.PlayQueue{}, err
	}

	items := make([]backend.PlayQueueItem, 0, len(result.MediaContainer.Metadata))
	selected := ""
	for _, meta := range result.MediaContainer.Metadata {
		itemID := fmt.Sprintf("%d", meta.PlayQueueItemID)
		items = append(items, backend.PlayQueueItem{ID: itemID, MediaID: meta.RatingKey})
		if meta.PlayQueueItemID == result.MediaContainer.PlayQueueSelectedItemID {
			selected = itemID
		}
	}
	if selected == "" && startIndex >= 0 && startIndex < len(items) {
		selected = items[startIndex].ID
	}

	return backend.PlayQueue{
		ID:           fmt.Sprintf("%d", result.MediaContainer.PlayQueueID),
		Version:      result.MediaContainer.PlayQueueVersion,
		Items:        items,
		SelectedItem: selected,
	}, nil
}
