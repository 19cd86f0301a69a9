package plex

import (
	"context"
	"fmt"

	"github.com/tomtom215/fedsync/internal/catalog"
)

// mediaContainer mirrors the subset of Plex's XML-via-JSON MediaContainer
// envelope this driver consumes from /library/sections and /library/*.
type mediaContainer struct {
	MediaContainer struct {
		Directory []plexDirectory `json:"Directory"`
		Metadata  []plexMetadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

type plexDirectory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type plexMetadata struct {
	RatingKey            string   `json:"ratingKey"`
	ParentRatingKey      string   `json:"parentRatingKey"`
	GrandparentRatingKey string   `json:"grandparentRatingKey"`
	Title                string   `json:"title"`
	Type                 string   `json:"type"`
	Year                 *int     `json:"year"`
	Duration             *int64   `json:"duration"`
	Rating               *float64 `json:"rating"`
	Thumb                string   `json:"thumb"`
	Art                  string   `json:"art"`
	Summary              *string  `json:"summary"`
	ParentIndex          *int     `json:"parentIndex"`
	Index                *int     `json:"index"`
	// PlayQueueItemID is only populated on /playQueues responses.
	PlayQueueItemID int `json:"playQueueItemID"`
	Genre           []struct {
		Tag string `json:"tag"`
	} `json:"Genre"`
}

func (c *Client) FetchLibraries(ctx context.Context) ([]catalog.Library, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", "/library/sections")
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.Library, 0, len(result.MediaContainer.Directory))
	for _, d := range result.MediaContainer.Directory {
		out = append(out, catalog.Library{
			ID:          d.Key,
			SourceID:    c.sourceID,
			Title:       d.Title,
			LibraryType: plexTypeToLibraryType(d.Type),
		})
	}
	return out, nil
}

func plexTypeToLibraryType(t string) catalog.LibraryType {
	switch t {
	case "movie":
		return catalog.LibraryMovies
	case "show":
		return catalog.LibraryShows
	case "artist":
		return catalog.LibraryMusic
	case "photo":
		return catalog.LibraryPhotos
	default:
		return catalog.LibraryMixed
	}
}

func (c *Client) FetchLibraryItems(ctx context.Context, libraryID string) ([]catalog.MediaItem, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/library/sections/%s/all", libraryID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.MediaItem, 0, len(result.MediaContainer.Metadata))
	for _, meta := range result.MediaContainer.Metadata {
		mt := plexTypeToMediaType(meta.Type)
		if mt == "" {
			continue
		}
		out = append(out, mapMetadata(meta, libraryID, c.sourceID, mt, c.baseURL, c.token))
	}
	return out, nil
}

func (c *Client) FetchEpisodes(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	var result mediaContainer
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&result), "GET", fmt.Sprintf("/library/metadata/%s/allLeaves", showID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.MediaItem, 0, len(result.MediaContainer.Metadata))
	for _, meta := range result.MediaContainer.Metadata {
		out = append(out, mapMetadata(meta, "", c.sourceID, catalog.MediaEpisode, c.baseURL, c.token))
	}
	return out, nil
}

func plexTypeToMediaType(t string) catalog.MediaType {
	switch t {
	case "movie":
		return catalog.MediaMovie
	case "show":
		return catalog.MediaShow
	case "season":
		return catalog.MediaSeason
	case "episode":
		return catalog.MediaEpisode
	case "artist":
		return catalog.MediaMusicAlbum
	case "track":
		return catalog.MediaMusicTrack
	case "photo":
		return catalog.MediaPhoto
	default:
		return ""
	}
}

// mapMetadata converts one Plex Metadata entry, rewriting thumb/art paths
// into absolute URLs with the server token appended as a query parameter
// (grounded on the teacher's Plex thumb URL builders, spec.md §4.C3).
func mapMetadata(meta plexMetadata, libraryID, sourceID string, mt catalog.MediaType, baseURL, token string) catalog.MediaItem {
	m := catalog.MediaItem{
		ID:         meta.RatingKey,
		LibraryID:  libraryID,
		SourceID:   sourceID,
		MediaType:  mt,
		Title:      meta.Title,
		Year:       meta.Year,
		DurationMs: meta.Duration,
		Rating:     meta.Rating,
		Overview:   meta.Summary,
	}
	if meta.Thumb != "" {
		url := resolveImageURL(baseURL, meta.Thumb, token)
		m.PosterURL = &url
	}
	if meta.Art != "" {
		url := resolveImageURL(baseURL, meta.Art, token)
		m.BackdropURL = &url
	}
	for _, g := range meta.Genre {
		m.Genres = append(m.Genres, g.Tag)
	}
	if mt == catalog.MediaEpisode {
		if meta.GrandparentRatingKey != "" {
			m.ParentID = &meta.GrandparentRatingKey
		} else if meta.ParentRatingKey != "" {
			m.ParentID = &meta.ParentRatingKey
		}
		m.SeasonNumber = meta.ParentIndex
		m.EpisodeNumber = meta.Index
	}
	return m
}

func resolveImageURL(baseURL, path, token string) string {
	return baseURL + path + "?X-Plex-Token=" + token
}
