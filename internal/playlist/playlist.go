// Package playlist builds the ordered playback context the player UI drives
// from: either a single item, a show's local episode list, or a backend's
// server-side PlayQueue, and routes progress updates through whichever of
// those the active context carries (spec.md §4.C8).
package playlist

import (
	"context"
	"fmt"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

// ContextKind discriminates PlaylistContext's variant.
type ContextKind string

const (
	KindSingleItem ContextKind = "single_item"
	KindTvShow     ContextKind = "tv_show"
	KindPlayQueue  ContextKind = "play_queue"
)

// EpisodeInfo is one entry in a TvShow context's local episode list.
type EpisodeInfo struct {
	MediaID       string
	Title         string
	SeasonNumber  int
	EpisodeNumber int
}

// QueueItem is one entry in a PlayQueue context's item list.
type QueueItem struct {
	QueueItemID string
	MediaID     string
}

// PlayQueueInfo identifies a backend-side PlayQueue so progress updates can
// be routed through its timeline endpoint and so PlaybackProgress can
// persist resume state against it.
type PlayQueueInfo struct {
	PlayQueueID      string
	PlayQueueVersion int
	PlayQueueItemID  string
	SourceID         string
}

// PlaylistContext is the tagged union spec.md §4.C8 names: exactly one of
// the variant-specific fields is populated, selected by Kind.
type PlaylistContext struct {
	Kind ContextKind

	// SingleItem
	MediaID string

	// TvShow
	ShowID       string
	ShowTitle    string
	Episodes     []EpisodeInfo
	CurrentIndex int
	AutoPlayNext bool

	// PlayQueue
	Items []QueueItem

	// Present on TvShow when a Plex PlayQueue backed it, and always on
	// PlayQueue contexts.
	PlayQueueInfo *PlayQueueInfo
}

// Service builds PlaylistContexts and routes progress updates through them.
type Service struct {
	media    *catalog.MediaRepository
	progress *catalog.ProgressRepository
	sources  *catalog.SourceRepository
	backends BackendResolver
}

// BackendResolver looks up the live driver for a connected source.
type BackendResolver interface {
	Backend(sourceID string) (backend.Backend, bool)
}

func NewService(media *catalog.MediaRepository, progress *catalog.ProgressRepository, sources *catalog.SourceRepository, backends BackendResolver) *Service {
	return &Service{media: media, progress: progress, sources: sources, backends: backends}
}

// BuildShowContext resolves the playback context for episodeID. For a
// Plex-style source it tries a server-side PlayQueue first; any failure, or
// a non-Plex source, falls back to a local TvShow context built from the
// show's episode list (spec.md §4.C8 resolution order).
func (s *Service) BuildShowContext(ctx context.Context, episodeID string) (PlaylistContext, error) {
	item, err := s.findEpisode(ctx, episodeID)
	if err != nil {
		return PlaylistContext{}, err
	}
	if item.ParentID == nil {
		return PlaylistContext{Kind: KindSingleItem, MediaID: item.ID}, nil
	}
	showID := *item.ParentID

	src, err := s.sources.FindByID(ctx, item.SourceID)
	if err == nil && src.SourceType == catalog.SourceTypePlex {
		pqCtx, pqErr := s.buildPlexPlayQueueContext(ctx, item, showID)
		if pqErr == nil {
			return pqCtx, nil
		}
		logging.Warn().Err(pqErr).Str("episode_id", episodeID).Msg("playlist: PlayQueue creation failed, falling back to local context")
	}

	return s.buildLocalShowContext(ctx, showID, episodeID)
}

func (s *Service) findEpisode(ctx context.Context, episodeID string) (catalog.MediaItem, error) {
	return s.media.FindByItemID(ctx, episodeID)
}

// buildPlexPlayQueueContext posts a create request via the backend driver
// and converts the response into a TvShow context carrying PlayQueueInfo,
// persisting the queue identity onto PlaybackProgress for resume (spec.md
// §4.C8 point 1, §8 scenario S5).
func (s *Service) buildPlexPlayQueueContext(ctx context.Context, episode catalog.MediaItem, showID string) (PlaylistContext, error) {
	drv, ok := s.backends.Backend(episode.SourceID)
	if !ok {
		return PlaylistContext{}, fmt.Errorf("playlist: no connected backend for source %s", episode.SourceID)
	}

	queue, err := drv.CreatePlayQueue(ctx, []string{episode.ID}, 0)
	if err != nil {
		return PlaylistContext{}, err
	}
	if len(queue.Items) == 0 {
		return PlaylistContext{}, fmt.Errorf("playlist: empty PlayQueue response for episode %s", episode.ID)
	}

	currentIndex := 0
	selectedItemID := queue.SelectedItem
	for i, qi := range queue.Items {
		if qi.ID == queue.SelectedItem {
			currentIndex = i
			selectedItemID = qi.ID
			break
		}
	}

	info := &PlayQueueInfo{
		PlayQueueID:      queue.ID,
		PlayQueueVersion: queue.Version,
		PlayQueueItemID:  selectedItemID,
		SourceID:         episode.SourceID,
	}

	if err := s.persistPlayQueueResume(ctx, episode, info); err != nil {
		logging.Warn().Err(err).Str("episode_id", episode.ID).Msg("playlist: persist PlayQueue resume state")
	}

	episodes, err := s.episodeInfosForQueue(ctx, queue.Items)
	if err != nil || len(episodes) == 0 {
		// Not an episode-shaped queue (e.g. a single movie); surface it as a
		// generic PlayQueue context instead of TvShow.
		items := make([]QueueItem, len(queue.Items))
		for i, qi := range queue.Items {
			items[i] = QueueItem{QueueItemID: qi.ID, MediaID: qi.MediaID}
		}
		return PlaylistContext{
			Kind:          KindPlayQueue,
			Items:         items,
			CurrentIndex:  currentIndex,
			AutoPlayNext:  true,
			PlayQueueInfo: info,
		}, nil
	}

	return PlaylistContext{
		Kind:          KindTvShow,
		ShowID:        showID,
		ShowTitle:     episode.Title,
		Episodes:      episodes,
		CurrentIndex:  currentIndex,
		AutoPlayNext:  true,
		PlayQueueInfo: info,
	}, nil
}

func (s *Service) episodeInfosForQueue(ctx context.Context, items []backend.PlayQueueItem) ([]EpisodeInfo, error) {
	out := make([]EpisodeInfo, 0, len(items))
	for _, qi := range items {
		ep, err := s.media.FindByItemID(ctx, qi.MediaID)
		if err != nil || ep.SeasonNumber == nil || ep.EpisodeNumber == nil {
			return nil, fmt.Errorf("playlist: %s is not an episode", qi.MediaID)
		}
		out = append(out, EpisodeInfo{
			MediaID:       ep.ID,
			Title:         ep.Title,
			SeasonNumber:  *ep.SeasonNumber,
			EpisodeNumber: *ep.EpisodeNumber,
		})
	}
	return out, nil
}

func (s *Service) persistPlayQueueResume(ctx context.Context, episode catalog.MediaItem, info *PlayQueueInfo) error {
	existing, err := s.progress.FindByMedia(ctx, episode.ID, "")
	if err != nil {
		existing = catalog.PlaybackProgress{MediaID: episode.ID}
	}
	existing.PlayQueueID = &info.PlayQueueID
	existing.PlayQueueVersion = &info.PlayQueueVersion
	existing.PlayQueueItemID = &info.PlayQueueItemID
	existing.SourceID = &info.SourceID
	return s.progress.UpsertAndEnqueue(ctx, existing, catalog.ChangeProgressUpdate)
}

// buildLocalShowContext builds a TvShow context entirely from the catalog,
// used as the fallback for non-Plex sources and for Plex PlayQueue failures.
func (s *Service) buildLocalShowContext(ctx context.Context, showID, currentEpisodeID string) (PlaylistContext, error) {
	show, err := s.media.FindByItemID(ctx, showID)
	var showTitle string
	if err == nil {
		showTitle = show.Title
	}

	ordered, err := s.media.FindEpisodePlaylist(ctx, showID)
	if err != nil {
		return PlaylistContext{}, err
	}

	episodes := make([]EpisodeInfo, 0, len(ordered))
	currentIndex := 0
	for i, ep := range ordered {
		season, number := 0, 0
		if ep.SeasonNumber != nil {
			season = *ep.SeasonNumber
		}
		if ep.EpisodeNumber != nil {
			number = *ep.EpisodeNumber
		}
		episodes = append(episodes, EpisodeInfo{MediaID: ep.ID, Title: ep.Title, SeasonNumber: season, EpisodeNumber: number})
		if ep.ID == currentEpisodeID {
			currentIndex = i
		}
	}

	return PlaylistContext{
		Kind:         KindTvShow,
		ShowID:       showID,
		ShowTitle:    showTitle,
		Episodes:     episodes,
		CurrentIndex: currentIndex,
		AutoPlayNext: true,
	}, nil
}

// UpdateProgressWithQueue routes a progress update through the PlayQueue-
// aware path when ctx carries PlayQueueInfo; otherwise it degrades silently
// to the regular progress write (spec.md §4.C8). When PlayQueueInfo is
// present it also drives the backend's PlayQueue timeline call directly
// (playqueue.rs's update_play_queue_progress), best-effort: a failed driver
// call is logged but never blocks the local progress write.
func (s *Service) UpdateProgressWithQueue(ctx context.Context, pctx PlaylistContext, mediaID string, positionMs, durationMs int64, watched bool) error {
	sourceID := ""
	var pqID, pqItemID *string
	var pqVersion *int
	if pctx.PlayQueueInfo != nil {
		sourceID = pctx.PlayQueueInfo.SourceID
		pqID = &pctx.PlayQueueInfo.PlayQueueID
		pqVersion = &pctx.PlayQueueInfo.PlayQueueVersion
		pqItemID = &pctx.PlayQueueInfo.PlayQueueItemID

		state := "playing"
		if watched {
			state = "stopped"
		}
		if drv, ok := s.backends.Backend(sourceID); ok {
			err := drv.UpdatePlayQueueProgress(ctx, backend.PlayQueueProgress{
				PlayQueueID:      pctx.PlayQueueInfo.PlayQueueID,
				PlayQueueVersion: pctx.PlayQueueInfo.PlayQueueVersion,
				PlayQueueItemID:  pctx.PlayQueueInfo.PlayQueueItemID,
				MediaID:          mediaID,
				PositionMs:       positionMs,
				DurationMs:       durationMs,
				State:            state,
			})
			if err != nil {
				logging.Warn().Err(err).Str("media_id", mediaID).Msg("playlist: PlayQueue timeline update failed")
			}
		}
	}

	p := catalog.PlaybackProgress{
		MediaID:          mediaID,
		PositionMs:       positionMs,
		DurationMs:       durationMs,
		Watched:          watched,
		PlayQueueID:      pqID,
		PlayQueueVersion: pqVersion,
		PlayQueueItemID:  pqItemID,
	}
	if sourceID != "" {
		p.SourceID = &sourceID
	}

	changeType := catalog.ChangeProgressUpdate
	if watched {
		changeType = catalog.ChangeMarkWatched
	}
	return s.progress.UpsertAndEnqueue(ctx, p, changeType)
}
