// Package player defines the contract the UI layer implements and the core
// calls to drive actual media playback. The core never touches a decoder,
// a video surface, or an audio device directly — it only ever talks to this
// interface, the same way internal/backend keeps every media origin behind
// one Backend contract.
package player

import (
	"context"
	"time"
)

// State is the playback state machine exposed to the core. ErrorMessage is
// only meaningful when State is StateError, giving the enum-with-payload
// shape a Go struct instead of an interface-based sum type, matching how
// internal/playlist.PlaylistContext carries its Kind discriminator.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// StateInfo pairs the current State with an error message, populated only
// when State is StateError.
type StateInfo struct {
	State        State
	ErrorMessage string
}

// Track identifies one selectable audio or subtitle track.
type Track struct {
	ID   int32
	Name string
}

// Adapter is implemented by the UI's player surface (e.g. a platform media
// view embedding an MPV or AVPlayer instance) and consumed by
// internal/viewmodel.PlayerViewModel. Every method takes a context so the
// view-model can cancel an in-flight call on teardown; implementations must
// be safe to call from any goroutine.
type Adapter interface {
	// LoadMedia opens the given playable URL for playback without starting
	// it.
	LoadMedia(ctx context.Context, url string) error

	// Play resumes or starts playback of the currently loaded media.
	Play(ctx context.Context) error

	// Pause suspends playback, retaining position.
	Pause(ctx context.Context) error

	// Stop halts playback and releases any decoder resources held for the
	// current media.
	Stop(ctx context.Context) error

	// Seek moves playback to an absolute position.
	Seek(ctx context.Context, position time.Duration) error

	// Position reports the current playback position.
	Position(ctx context.Context) (time.Duration, error)

	// Duration reports the total duration of the loaded media, if known.
	Duration(ctx context.Context) (time.Duration, error)

	// SetVolume sets output volume in the 0.0-1.0 range.
	SetVolume(ctx context.Context, volume float64) error

	// VideoDimensions reports the decoded frame size. ok is false for
	// audio-only media or before the first frame has decoded.
	VideoDimensions(ctx context.Context) (width, height int, ok bool, err error)

	// State reports the current playback state.
	State(ctx context.Context) (StateInfo, error)

	// AudioTracks lists the audio tracks available in the loaded media.
	AudioTracks(ctx context.Context) ([]Track, error)

	// SubtitleTracks lists the subtitle tracks available in the loaded
	// media.
	SubtitleTracks(ctx context.Context) ([]Track, error)

	// SetAudioTrack switches the active audio track.
	SetAudioTrack(ctx context.Context, id int32) error

	// SetSubtitleTrack switches the active subtitle track; -1 disables
	// subtitles.
	SetSubtitleTrack(ctx context.Context, id int32) error

	// CurrentAudioTrack reports the active audio track id.
	CurrentAudioTrack(ctx context.Context) (int32, error)

	// CurrentSubtitleTrack reports the active subtitle track id, or -1 if
	// subtitles are disabled.
	CurrentSubtitleTrack(ctx context.Context) (int32, error)

	// BufferPercentage reports how much of the stream is buffered ahead of
	// the current position, in the 0.0-100.0 range.
	BufferPercentage(ctx context.Context) (float64, error)
}
