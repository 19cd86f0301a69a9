package jellyfin

import (
	"context"
	"fmt"

	"github.com/tomtom215/fedsync/internal/catalog"
)

// virtualFolder mirrors the subset of Jellyfin's /Library/VirtualFolders
// response this driver consumes.
type virtualFolder struct {
	ItemID         string   `json:"ItemId"`
	Name           string   `json:"Name"`
	CollectionType string   `json:"CollectionType"`
	LibraryOptions struct{} `json:"LibraryOptions"`
}

func (c *Client) FetchLibraries(ctx context.Context) ([]catalog.Library, error) {
	var folders []virtualFolder
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&folders), "GET", "/Library/VirtualFolders")
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.Library, 0, len(folders))
	for _, f := range folders {
		out = append(out, catalog.Library{
			ID:          f.ItemID,
			SourceID:    c.sourceID,
			Title:       f.Name,
			LibraryType: collectionTypeToLibraryType(f.CollectionType),
		})
	}
	return out, nil
}

func collectionTypeToLibraryType(collectionType string) catalog.LibraryType {
	switch collectionType {
	case "movies":
		return catalog.LibraryMovies
	case "tvshows":
		return catalog.LibraryShows
	case "music":
		return catalog.LibraryMusic
	case "photos":
		return catalog.LibraryPhotos
	default:
		return catalog.LibraryMixed
	}
}

// baseItem mirrors the subset of Jellyfin's BaseItemDto this driver maps
// into catalog.MediaItem.
type baseItem struct {
	ID                string   `json:"Id"`
	Name              string   `json:"Name"`
	Type              string   `json:"Type"`
	ProductionYear    *int     `json:"ProductionYear"`
	RunTimeTicks      *int64   `json:"RunTimeTicks"`
	CommunityRating   *float64 `json:"CommunityRating"`
	Overview          *string  `json:"Overview"`
	Genres            []string `json:"Genres"`
	SeriesID          string   `json:"SeriesId"`
	ParentIndexNumber *int     `json:"ParentIndexNumber"`
	IndexNumber       *int     `json:"IndexNumber"`
}

const ticksPerMillisecond = 10_000

func (c *Client) FetchLibraryItems(ctx context.Context, libraryID string) ([]catalog.MediaItem, error) {
	var result struct {
		Items []baseItem `json:"Items"`
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("ParentId", libraryID).
		SetQueryParam("Recursive", "true").
		SetQueryParam("Fields", "Overview,Genres,CommunityRating").
		SetResult(&result), "GET", fmt.Sprintf("/Users/%s/Items", c.userID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.MediaItem, 0, len(result.Items))
	for _, item := range result.Items {
		mt := jellyfinTypeToMediaType(item.Type)
		if mt == "" {
			continue
		}
		out = append(out, mapBaseItem(item, libraryID, c.sourceID, mt))
	}
	return out, nil
}

func (c *Client) FetchEpisodes(ctx context.Context, showID string) ([]catalog.MediaItem, error) {
	var result struct {
		Items []baseItem `json:"Items"`
	}
	resp, err := c.do(ctx, c.http.R().SetContext(ctx).
		SetQueryParam("Fields", "Overview,Genres").
		SetResult(&result), "GET", fmt.Sprintf("/Shows/%s/Episodes", showID))
	if err != nil {
		return nil, err
	}
	if resp.Result() == nil {
		return nil, nil
	}

	out := make([]catalog.MediaItem, 0, len(result.Items))
	for _, item := range result.Items {
		out = append(out, mapBaseItem(item, "", c.sourceID, catalog.MediaEpisode))
	}
	return out, nil
}

func mapBaseItem(item baseItem, libraryID, sourceID string, mt catalog.MediaType) catalog.MediaItem {
	m := catalog.MediaItem{
		ID:        item.ID,
		LibraryID: libraryID,
		SourceID:  sourceID,
		MediaType: mt,
		Title:     item.Name,
		Year:      item.ProductionYear,
		Rating:    item.CommunityRating,
		Overview:  item.Overview,
		Genres:    item.Genres,
	}
	if item.RunTimeTicks != nil {
		ms := *item.RunTimeTicks / ticksPerMillisecond
		m.DurationMs = &ms
	}
	if mt == catalog.MediaEpisode {
		if item.SeriesID != "" {
			m.ParentID = &item.SeriesID
		}
		m.SeasonNumber = item.ParentIndexNumber
		m.EpisodeNumber = item.IndexNumber
	}
	return m
}

func jellyfinTypeToMediaType(t string) catalog.MediaType {
	switch t {
	case "Movie":
		return catalog.MediaMovie
	case "Series":
		return catalog.MediaShow
	case "Season":
		return catalog.MediaSeason
	case "Episode":
		return catalog.MediaEpisode
	case "MusicAlbum":
		return catalog.MediaMusicAlbum
	case "Audio":
		return catalog.MediaMusicTrack
	case "Photo":
		return catalog.MediaPhoto
	default:
		return ""
	}
}
