package viewmodel

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/eventbus"
	"github.com/tomtom215/fedsync/internal/logging"
	"github.com/tomtom215/fedsync/internal/player"
	"github.com/tomtom215/fedsync/internal/playlist"
)

// PlaybackState is PlayerViewModel's transport state machine.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// progressWriteInterval throttles progress writes to at most one per this
// interval (spec.md §4.C9 PlayerViewModel).
const progressWriteInterval = 2 * time.Second

// NextEpisodeLoadState tracks LoadNextEpisodeMetadata's async progress,
// mirroring PlaybackState's pattern of a small closed string enum.
type NextEpisodeLoadState string

const (
	NextEpisodeIdle    NextEpisodeLoadState = "idle"
	NextEpisodeLoading NextEpisodeLoadState = "loading"
	NextEpisodeReady   NextEpisodeLoadState = "ready"
	NextEpisodeError   NextEpisodeLoadState = "error"
)

// QualityOption is one entry in a stream's selectable renditions.
type QualityOption struct {
	ID         string
	Name       string
	Bitrate    int
	Resolution string
}

// thumbnailFetcher is a bare, unauthenticated client for pulling poster/still
// images by URL; it carries none of the retry/breaker machinery the backend
// drivers use since a missed thumbnail is cosmetic, never worth retrying.
var thumbnailFetcher = resty.New().SetTimeout(10 * time.Second)

// BackendResolver looks up the live driver for a connected source, the same
// narrow contract internal/playlist depends on.
type BackendResolver interface {
	Backend(sourceID string) (backend.Backend, bool)
}

// PlayerViewModel drives the playback screen: loading stream info and
// playback context for a media item, tracking transport state, throttling
// progress writes upstream, and running the auto-play-next countdown
// (spec.md §4.C9).
type PlayerViewModel struct {
	media     *catalog.MediaRepository
	playlists *playlist.Service
	backends  BackendResolver
	bus       *eventbus.Bus

	CurrentMedia        *Property[*catalog.MediaItem]
	PlaybackState       *Property[PlaybackState]
	PositionMs          *Property[int64]
	DurationMs          *Property[int64]
	Volume              *Property[float64]
	PlaybackRate        *Property[float64]
	IsMuted             *Property[bool]
	IsFullscreen        *Property[bool]
	IsLoading           *Property[bool]
	Error               *Property[*string]
	StreamInfo          *Property[*backend.StreamInfo]
	Playlist            *Property[*playlist.PlaylistContext]
	PlaylistIndex       *Property[int]
	AutoPlayEnabled     *Property[bool]
	AutoPlayCountdownMs *Property[int64]
	ShowControls        *Property[bool]

	Markers               *Property[backend.MediaMarkers]
	NextEpisode           *Property[*catalog.MediaItem]
	NextEpisodeThumbnail  *Property[[]byte]
	NextEpisodeLoadState  *Property[NextEpisodeLoadState]
	AudioTracks           *Property[[]player.Track]
	SubtitleTracks        *Property[[]player.Track]
	SelectedAudioTrack    *Property[int32]
	SelectedSubtitleTrack *Property[int32]
	QualityOptions        *Property[[]QualityOption]

	mu                sync.Mutex
	lastProgressWrite time.Time
	pendingLoadID     string
	countdownCancel   context.CancelFunc
	adapter           player.Adapter

	sub *eventbus.Subscription
}

// AttachAdapter wires the UI's player.Adapter implementation in. The
// view-model is usable before this is called — LoadMedia still resolves
// stream info and playlist context — it just has nothing to hand the URL to
// until a UI surface exists.
func (vm *PlayerViewModel) AttachAdapter(a player.Adapter) {
	vm.mu.Lock()
	vm.adapter = a
	vm.mu.Unlock()
}

func (vm *PlayerViewModel) currentAdapter() player.Adapter {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.adapter
}

// NewPlayerViewModel constructs a PlayerViewModel and subscribes it to
// SourceOnlineStatusChanged so a pending load can retry on reconnect.
func NewPlayerViewModel(media *catalog.MediaRepository, playlists *playlist.Service, backends BackendResolver, bus *eventbus.Bus) *PlayerViewModel {
	vm := &PlayerViewModel{
		media:     media,
		playlists: playlists,
		backends:  backends,
		bus:       bus,

		CurrentMedia:        NewProperty[*catalog.MediaItem](nil, nil),
		PlaybackState:       NewProperty(StateStopped, func(a, b PlaybackState) bool { return a == b }),
		PositionMs:          NewProperty[int64](0, nil),
		DurationMs:          NewProperty[int64](0, nil),
		Volume:              NewProperty(1.0, func(a, b float64) bool { return a == b }),
		PlaybackRate:        NewProperty(1.0, func(a, b float64) bool { return a == b }),
		IsMuted:             NewProperty(false, func(a, b bool) bool { return a == b }),
		IsFullscreen:        NewProperty(false, func(a, b bool) bool { return a == b }),
		IsLoading:           NewProperty(false, func(a, b bool) bool { return a == b }),
		Error:               NewProperty[*string](nil, nil),
		StreamInfo:          NewProperty[*backend.StreamInfo](nil, nil),
		Playlist:            NewProperty[*playlist.PlaylistContext](nil, nil),
		PlaylistIndex:       NewProperty(0, func(a, b int) bool { return a == b }),
		AutoPlayEnabled:     NewProperty(true, func(a, b bool) bool { return a == b }),
		AutoPlayCountdownMs: NewProperty[int64](0, nil),
		ShowControls:        NewProperty(true, func(a, b bool) bool { return a == b }),

		Markers:               NewProperty(backend.MediaMarkers{}, nil),
		NextEpisode:           NewProperty[*catalog.MediaItem](nil, nil),
		NextEpisodeThumbnail:  NewProperty[[]byte](nil, nil),
		NextEpisodeLoadState:  NewProperty(NextEpisodeIdle, func(a, b NextEpisodeLoadState) bool { return a == b }),
		AudioTracks:           NewProperty[[]player.Track](nil, nil),
		SubtitleTracks:        NewProperty[[]player.Track](nil, nil),
		SelectedAudioTrack:    NewProperty[int32](-1, func(a, b int32) bool { return a == b }),
		SelectedSubtitleTrack: NewProperty[int32](-1, func(a, b int32) bool { return a == b }),
		QualityOptions:        NewProperty[[]QualityOption](nil, nil),
	}

	vm.sub = bus.SubscribeFiltered([]eventbus.EventType{eventbus.SourceOnlineStatusChanged}, 0)
	go vm.handleEvents(context.Background())

	return vm
}

// Close unsubscribes from the event bus and cancels any running countdown.
func (vm *PlayerViewModel) Close() {
	vm.sub.Close()
	vm.CancelAutoPlayCountdown()
}

// LoadMedia resolves mediaID, fetches its stream info from the owning
// backend, and builds its playback context (a TvShow/PlayQueue context for
// an episode, a single-item context otherwise).
func (vm *PlayerViewModel) LoadMedia(ctx context.Context, mediaID string) error {
	vm.IsLoading.Set(true)
	defer vm.IsLoading.Set(false)

	item, err := vm.media.FindByItemID(ctx, mediaID)
	if err != nil {
		vm.setError(err)
		vm.setPendingLoad(mediaID)
		return err
	}

	drv, ok := vm.backends.Backend(item.SourceID)
	if !ok {
		vm.setPendingLoad(mediaID)
		return nil
	}

	stream, err := drv.FetchStreamInfo(ctx, item.ID, "")
	if err != nil {
		vm.setError(err)
		vm.setPendingLoad(mediaID)
		return err
	}

	pctx, err := vm.playlists.BuildShowContext(ctx, item.ID)
	if err != nil {
		logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: playlist context build failed")
		pctx = playlist.PlaylistContext{Kind: playlist.KindSingleItem, MediaID: item.ID}
	}

	if adapter := vm.currentAdapter(); adapter != nil {
		if err := adapter.LoadMedia(ctx, stream.URL); err != nil {
			logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: adapter LoadMedia failed")
		}
	}

	vm.CurrentMedia.Set(&item)
	vm.StreamInfo.Set(&stream)
	vm.Playlist.Set(&pctx)
	vm.PlaylistIndex.Set(pctx.CurrentIndex)
	vm.DurationMs.Set(stream.DurationMs)
	vm.PositionMs.Set(stream.ResumeOffset)
	vm.Error.Set(nil)
	vm.setPendingLoad("")

	if markers, err := drv.FetchMediaMarkers(ctx, item.ID); err != nil {
		logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: fetch markers failed")
		vm.Markers.Set(backend.MediaMarkers{})
	} else {
		vm.Markers.Set(markers)
	}

	vm.NextEpisode.Set(nil)
	vm.NextEpisodeThumbnail.Set(nil)
	vm.NextEpisodeLoadState.Set(NextEpisodeIdle)

	if adapter := vm.currentAdapter(); adapter != nil {
		if err := vm.DiscoverTracks(ctx); err != nil {
			logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: track discovery failed")
		}
	}

	return nil
}

// DiscoverTracks queries the attached adapter for the loaded media's audio
// and subtitle tracks, publishes them, and auto-selects the first audio
// track if none is selected yet.
func (vm *PlayerViewModel) DiscoverTracks(ctx context.Context) error {
	adapter := vm.currentAdapter()
	if adapter == nil {
		return nil
	}

	audio, err := adapter.AudioTracks(ctx)
	if err != nil {
		return err
	}
	subs, err := adapter.SubtitleTracks(ctx)
	if err != nil {
		return err
	}

	vm.AudioTracks.Set(audio)
	vm.SubtitleTracks.Set(subs)

	if len(audio) > 0 {
		selected := audio[0].ID
		if err := adapter.SetAudioTrack(ctx, selected); err != nil {
			logging.Warn().Err(err).Msg("viewmodel: adapter SetAudioTrack failed")
		}
		vm.SelectedAudioTrack.Set(selected)
	}

	return nil
}

// FindNextEpisode resolves the episode following the currently loaded one
// through its owning backend and publishes it to NextEpisode. It is
// best-effort: a lookup failure is logged, clears NextEpisode, and is not
// returned as an error, mirroring load_next_episode_metadata's swallow in
// the original client.
func (vm *PlayerViewModel) FindNextEpisode(ctx context.Context) (*catalog.MediaItem, error) {
	item := vm.CurrentMedia.Get()
	if item == nil {
		vm.NextEpisode.Set(nil)
		return nil, nil
	}

	drv, ok := vm.backends.Backend(item.SourceID)
	if !ok {
		vm.NextEpisode.Set(nil)
		return nil, nil
	}

	next, found, err := drv.FindNextEpisode(ctx, item.ID)
	if err != nil {
		logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: find next episode failed")
		vm.NextEpisode.Set(nil)
		return nil, nil
	}
	if !found {
		vm.NextEpisode.Set(nil)
		return nil, nil
	}

	vm.NextEpisode.Set(&next)
	return &next, nil
}

// LoadNextEpisodeMetadata drives NextEpisodeLoadState through its
// idle/loading/ready/error states while resolving the next episode and
// preloading its thumbnail, so a "next episode" overlay can render without
// blocking on the lookup.
func (vm *PlayerViewModel) LoadNextEpisodeMetadata(ctx context.Context) {
	vm.NextEpisodeLoadState.Set(NextEpisodeLoading)

	next, err := vm.FindNextEpisode(ctx)
	if err != nil {
		vm.NextEpisodeLoadState.Set(NextEpisodeError)
		return
	}
	if next == nil {
		vm.NextEpisodeLoadState.Set(NextEpisodeIdle)
		return
	}

	vm.NextEpisodeThumbnail.Set(nil)
	if next.PosterURL != nil && *next.PosterURL != "" {
		resp, err := thumbnailFetcher.R().SetContext(ctx).Get(*next.PosterURL)
		if err != nil || resp.IsError() {
			logging.Warn().Err(err).Str("media_id", next.ID).Msg("viewmodel: next episode thumbnail fetch failed")
		} else {
			vm.NextEpisodeThumbnail.Set(resp.Body())
		}
	}

	vm.NextEpisodeLoadState.Set(NextEpisodeReady)
}

// Play/Pause/Stop drive the attached adapter (if any), transition
// PlaybackState, and publish the matching playback event.
func (vm *PlayerViewModel) Play(ctx context.Context) {
	if adapter := vm.currentAdapter(); adapter != nil {
		if err := adapter.Play(ctx); err != nil {
			logging.Warn().Err(err).Msg("viewmodel: adapter Play failed")
		}
	}
	vm.PlaybackState.Set(StatePlaying)
	vm.publishTransition(ctx, eventbus.PlaybackStarted)
}

func (vm *PlayerViewModel) Pause(ctx context.Context) {
	if adapter := vm.currentAdapter(); adapter != nil {
		if err := adapter.Pause(ctx); err != nil {
			logging.Warn().Err(err).Msg("viewmodel: adapter Pause failed")
		}
	}
	vm.PlaybackState.Set(StatePaused)
	vm.publishTransition(ctx, eventbus.PlaybackPaused)
}

func (vm *PlayerViewModel) Stop(ctx context.Context) {
	if adapter := vm.currentAdapter(); adapter != nil {
		if err := adapter.Stop(ctx); err != nil {
			logging.Warn().Err(err).Msg("viewmodel: adapter Stop failed")
		}
	}
	vm.PlaybackState.Set(StateStopped)
	vm.publishTransition(ctx, eventbus.PlaybackStopped)
}

// Seek drives the attached adapter to an absolute position; the resulting
// position is reflected via a subsequent UpdatePosition call from the UI,
// the same way every other position change flows through this view-model.
func (vm *PlayerViewModel) Seek(ctx context.Context, position time.Duration) error {
	adapter := vm.currentAdapter()
	if adapter == nil {
		return nil
	}
	return adapter.Seek(ctx, position)
}

func (vm *PlayerViewModel) publishTransition(ctx context.Context, t eventbus.EventType) {
	item := vm.CurrentMedia.Get()
	if item == nil {
		return
	}
	_ = vm.bus.Publish(ctx, eventbus.Event{
		Type: t,
		Payload: eventbus.PlaybackPayload{
			MediaID: item.ID, PositionMs: vm.PositionMs.Get(), DurationMs: vm.DurationMs.Get(),
		},
		Source: eventbus.EventSource{Kind: eventbus.SourceUI, Name: "player"},
	})
}

// UpdatePosition records a new playback position, throttled to at most one
// durable write per progressWriteInterval, and marks the item watched once
// playback crosses catalog.WatchedThreshold.
func (vm *PlayerViewModel) UpdatePosition(ctx context.Context, positionMs int64) {
	vm.PositionMs.Set(positionMs)

	item := vm.CurrentMedia.Get()
	if item == nil {
		return
	}
	durationMs := vm.DurationMs.Get()

	vm.mu.Lock()
	due := time.Since(vm.lastProgressWrite) >= progressWriteInterval
	if due {
		vm.lastProgressWrite = time.Now()
	}
	vm.mu.Unlock()
	if !due {
		return
	}

	watched := durationMs > 0 && float64(positionMs)/float64(durationMs) >= catalog.WatchedThreshold
	pctx := playlist.PlaylistContext{}
	if p := vm.Playlist.Get(); p != nil {
		pctx = *p
	}
	if err := vm.playlists.UpdateProgressWithQueue(ctx, pctx, item.ID, positionMs, durationMs, watched); err != nil {
		logging.Warn().Err(err).Str("media_id", item.ID).Msg("viewmodel: progress write failed")
	}
}

func (vm *PlayerViewModel) SetVolume(ctx context.Context, v float64) {
	vm.Volume.Set(v)
	if adapter := vm.currentAdapter(); adapter != nil {
		if err := adapter.SetVolume(ctx, v); err != nil {
			logging.Warn().Err(err).Msg("viewmodel: adapter SetVolume failed")
		}
	}
}

func (vm *PlayerViewModel) SetMuted(muted bool)          { vm.IsMuted.Set(muted) }
func (vm *PlayerViewModel) SetFullscreen(full bool)      { vm.IsFullscreen.Set(full) }
func (vm *PlayerViewModel) SetPlaybackRate(rate float64) { vm.PlaybackRate.Set(rate) }
func (vm *PlayerViewModel) SetShowControls(show bool)    { vm.ShowControls.Set(show) }

// StartAutoPlayCountdown counts down from duration to zero, then advances to
// the playlist's next item if one exists. It is cancellable via
// CancelAutoPlayCountdown or a subsequent call superseding it.
func (vm *PlayerViewModel) StartAutoPlayCountdown(ctx context.Context, duration time.Duration) {
	if !vm.AutoPlayEnabled.Get() {
		return
	}
	vm.CancelAutoPlayCountdown()

	countdownCtx, cancel := context.WithCancel(ctx)
	vm.mu.Lock()
	vm.countdownCancel = cancel
	vm.mu.Unlock()

	vm.AutoPlayCountdownMs.Set(duration.Milliseconds())

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.Now().Add(duration)
		for {
			select {
			case <-countdownCtx.Done():
				return
			case <-ticker.C:
				remaining := time.Until(deadline)
				if remaining <= 0 {
					vm.AutoPlayCountdownMs.Set(0)
					vm.advanceToNext(countdownCtx)
					return
				}
				vm.AutoPlayCountdownMs.Set(remaining.Milliseconds())
			}
		}
	}()
}

// CancelAutoPlayCountdown stops any running countdown without advancing.
func (vm *PlayerViewModel) CancelAutoPlayCountdown() {
	vm.mu.Lock()
	cancel := vm.countdownCancel
	vm.countdownCancel = nil
	vm.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (vm *PlayerViewModel) advanceToNext(ctx context.Context) {
	pctx := vm.Playlist.Get()
	if pctx == nil || pctx.Kind != playlist.KindTvShow {
		return
	}
	nextIndex := vm.PlaylistIndex.Get() + 1
	if nextIndex >= len(pctx.Episodes) {
		return
	}
	vm.PlaylistIndex.Set(nextIndex)
	_ = vm.LoadMedia(ctx, pctx.Episodes[nextIndex].MediaID)
}

func (vm *PlayerViewModel) setError(err error) {
	msg := err.Error()
	vm.Error.Set(&msg)
}

func (vm *PlayerViewModel) setPendingLoad(mediaID string) {
	vm.mu.Lock()
	vm.pendingLoadID = mediaID
	vm.mu.Unlock()
}

func (vm *PlayerViewModel) handleEvents(ctx context.Context) {
	for evt := range vm.sub.C {
		if evt.Type != eventbus.SourceOnlineStatusChanged {
			continue
		}
		payload, ok := evt.Payload.(eventbus.SourcePayload)
		if !ok || !payload.IsOnline {
			continue
		}
		vm.mu.Lock()
		pending := vm.pendingLoadID
		vm.mu.Unlock()
		if pending == "" {
			continue
		}
		_ = vm.LoadMedia(ctx, pending)
	}
}
