package plex

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
)

// plexMarker mirrors one entry of Plex's metadata "Marker" array, used for
// the intro/credits chapter boundaries FetchMediaMarkers surfaces.
type plexMarker struct {
	Type            string `json:"type"`
	StartTimeOffset int64  `json:"startTimeOffset"`
	EndTimeOffset   int64  `json:"endTimeOffset"`
}

type metadataItemResponse struct {
	MediaContainer struct {
		Metadata []struct {
			plexMetadata
			Marker []plexMarker `json:"Marker"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// FetchMediaMarkers reads a media item's intro/credits chapter boundaries
// off its own /library/metadata/{id} response (best-effort: a server with
// no chapter detection simply returns an empty Marker array).
func (c *Client) FetchMediaMarkers(ctx context.Context, mediaID string) (backend.MediaMarkers, error) {
	var result metadataItemResponse
	_, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/library/metadata/%s", mediaID))
	if err != nil {
		return backend.MediaMarkers{}, err
	}
	if len(result.MediaContainer.Metadata) == 0 {
		return backend.MediaMarkers{}, nil
	}

	var markers backend.MediaMarkers
	for _, m := range result.MediaContainer.Metadata[0].Marker {
		start, end := m.StartTimeOffset, m.EndTimeOffset
		switch m.Type {
		case "intro":
			markers.IntroMarkerStartMs, markers.IntroMarkerEndMs = &start, &end
		case "credits":
			markers.CreditsMarkerStartMs, markers.CreditsMarkerEndMs = &start, &end
		}
	}
	return markers, nil
}

// FindNextEpisode resolves the current episode's show, fetches its full leaf
// list, and returns whichever episode immediately follows currentEpisodeID
// in season/episode order.
func (c *Client) FindNextEpisode(ctx context.Context, currentEpisodeID string) (catalog.MediaItem, bool, error) {
	var current metadataItemResponse
	_, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&current), "GET", fmt.Sprintf("/library/metadata/%s", currentEpisodeID))
	if err != nil {
		return catalog.MediaItem{}, false, err
	}
	if len(current.MediaContainer.Metadata) == 0 {
		return catalog.MediaItem{}, false, fmt.Errorf("plex: no metadata for episode %s", currentEpisodeID)
	}
	showID := current.MediaContainer.Metadata[0].GrandparentRatingKey
	if showID == "" {
		return catalog.MediaItem{}, false, nil
	}

	episodes, err := c.FetchEpisodes(ctx, showID)
	if err != nil {
		return catalog.MediaItem{}, false, err
	}
	sort.Slice(episodes, func(i, j int) bool {
		si, sj := episodeOrdinal(episodes[i]), episodeOrdinal(episodes[j])
		return si < sj
	})

	for i, ep := range episodes {
		if ep.ID == currentEpisodeID && i+1 < len(episodes) {
			return episodes[i+1], true, nil
		}
	}
	return catalog.MediaItem{}, false, nil
}

func episodeOrdinal(ep catalog.MediaItem) int {
	season, number := 0, 0
	if ep.SeasonNumber != nil {
		season = *ep.SeasonNumber
	}
	if ep.EpisodeNumber != nil {
		number = *ep.EpisodeNumber
	}
	return season*100000 + number
}

// Search queries Plex's legacy flat /search endpoint, which returns results
// across every library type in one MediaContainer.
func (c *Client) Search(ctx context.Context, query string) ([]catalog.MediaItem, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&result), "GET", "/search")
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapMetadataList(result.MediaContainer.Metadata, c.sourceID, c.baseURL, c.token), nil
}

// GetContinueWatching lists Plex's "on deck" items.
func (c *Client) GetContinueWatching(ctx context.Context) ([]catalog.MediaItem, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", "/library/onDeck")
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapMetadataList(result.MediaContainer.Metadata, c.sourceID, c.baseURL, c.token), nil
}

// GetRecentlyAdded lists the server's most recently added items, capped at
// limit via Plex's container-size paging header.
func (c *Client) GetRecentlyAdded(ctx context.Context, limit int) ([]catalog.MediaItem, error) {
	var result mediaContainer
	req := c.http.R().SetContext(ctx).SetResult(&result)
	if limit > 0 {
		req.SetQueryParam("X-Plex-Container-Size", fmt.Sprintf("%d", limit))
	}
	resp, err := c.do(ctx, req, "GET", "/library/recentlyAdded")
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	out := mapMetadataList(result.MediaContainer.Metadata, c.sourceID, c.baseURL, c.token)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetSeasons lists the seasons under showID via /library/metadata/{id}/children.
func (c *Client) GetSeasons(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/library/metadata/%s/children", showID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapMetadataList(result.MediaContainer.Metadata, c.sourceID, c.baseURL, c.token), nil
}

func mapMetadataList(metas []plexMetadata, sourceID, baseURL, token string) []catalog.MediaItem {
	out := make([]catalog.MediaItem, 0, len(metas))
	for _, meta := range metas {
		mt := plexTypeToMediaType(meta.Type)
		if mt == "" {
			continue
		}
		out = append(out, mapMetadata(meta, "", sourceID, mt, baseURL, token))
	}
	return out
}
