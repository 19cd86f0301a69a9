package jellyfin

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
)

// chapterMarker mirrors one entry of Jellyfin's Chapters array. Jellyfin has
// no dedicated intro/credits marker type the way Plex does; MarkerType
// carries whatever the server's chapter-detection plugin reports
// ("Intro"/"Outro" by convention).
type chapterMarker struct {
	StartPositionTicks int64  `json:"StartPositionTicks"`
	MarkerType         string `json:"MarkerType"`
}

type itemDetailResponse struct {
	baseItem
	Chapters []chapterMarker `json:"Chapters"`
}

// FetchMediaMarkers reads intro/outro chapter boundaries off a single item's
// detail response, best-effort since most servers have no chapter plugin.
func (c *Client) FetchMediaMarkers(ctx context.Context, mediaID string) (backend.MediaMarkers, error) {
	var item itemDetailResponse
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("Fields", "Chapters").
		SetResult(&item), "GET", fmt.Sprintf("/Users/%s/Items/%s", c.userID, mediaID))
	if err != nil {
		return backend.MediaMarkers{}, err
	}
	if resp.Result() == nil {
		return backend.MediaMarkers{}, nil
	}

	var markers backend.MediaMarkers
	for i, ch := range item.Chapters {
		startMs := ch.StartPositionTicks / ticksPerMillisecond
		switch ch.MarkerType {
		case "Intro":
			markers.IntroMarkerStartMs = &startMs
			if i+1 < len(item.Chapters) {
				end := item.Chapters[i+1].StartPositionTicks / ticksPerMillisecond
				markers.IntroMarkerEndMs = &end
			}
		case "Outro", "Credits":
			markers.CreditsMarkerStartMs = &startMs
		}
	}
	return markers, nil
}

// FindNextEpisode fetches currentEpisodeID's series, lists its episodes, and
// returns whichever immediately follows it in season/episode order.
func (c *Client) FindNextEpisode(ctx context.Context, currentEpisodeID string) (catalog.MediaItem, bool, error) {
	var current struct {
		baseItem
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&current), "GET", fmt.Sprintf("/Users/%s/Items/%s", c.userID, currentEpisodeID))
	if err != nil {
		return catalog.MediaItem{}, false, err
	}
	if resp.Result() == nil || current.SeriesID == "" {
		return catalog.MediaItem{}, false, nil
	}

	episodes, err := c.FetchEpisodes(ctx, current.SeriesID)
	if err != nil {
		return catalog.MediaItem{}, false, err
	}
	sort.Slice(episodes, func(i, j int) bool {
		return episodeOrdinal(episodes[i]) < episodeOrdinal(episodes[j])
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

// Search queries Jellyfin's user item search with SearchTerm.
func (c *Client) Search(ctx context.Context, query string) ([]catalog.MediaItem, error) {
	var result struct {
		Items []baseItem `json:"Items"`
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("SearchTerm", query).
		SetQueryParam("Recursive", "true").
		SetQueryParam("IncludeItemTypes", "Movie,Series,Episode").
		SetResult(&result), "GET", fmt.Sprintf("/Users/%s/Items", c.userID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapBaseItemList(result.Items, c.sourceID), nil
}

// GetContinueWatching lists Jellyfin's resumable items.
func (c *Client) GetContinueWatching(ctx context.Context) ([]catalog.MediaItem, error) {
	var result struct {
		Items []baseItem `json:"Items"`
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/Users/%s/Items/Resume", c.userID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapBaseItemList(result.Items, c.sourceID), nil
}

// GetRecentlyAdded lists the server's most recently added items, capped at
// limit.
func (c *Client) GetRecentlyAdded(ctx context.Context, limit int) ([]catalog.MediaItem, error) {
	var items []baseItem
	req := c.http.R().SetContext(ctx).SetResult(&items)
	if limit > 0 {
		req.SetQueryParam("Limit", fmt.Sprintf("%d", limit))
	}
	resp, err := c.do(ctx, req, "GET", fmt.Sprintf("/Users/%s/Items/Latest", c.userID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapBaseItemList(items, c.sourceID), nil
}

// GetSeasons lists the seasons under showID.
func (c *Client) GetSeasons(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	var result struct {
		Items []baseItem `json:"Items"`
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/Shows/%s/Seasons", showID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}
	return mapBaseItemList(result.Items, c.sourceID), nil
}

func mapBaseItemList(items []baseItem, sourceID string) []catalog.MediaItem {
	out := make([]catalog.MediaItem, 0, len(items))
	for _, item := range items {
		mt := jellyfinTypeToMediaType(item.Type)
		if mt == "" {
			continue
		}
		out = append(out, mapBaseItem(item, "", sourceID, mt))
	}
	return out
}
