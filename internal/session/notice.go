package session

import "github.com/google/uuid"

// NoticeKind identifies what happened to a session.
type NoticeKind int

const (
	NoticeCountdownStarted NoticeKind = iota + 1
	NoticeCountdown
	NoticeRecordingStarted
	NoticeRecordingProgress
	NoticeRecordingFinished
	NoticeRecordingCancelled
	NoticePlaybackStarted
	NoticePlaybackProgress
	NoticePlaybackFinished
	NoticePlaybackCancelled
	NoticePathShown
	NoticePathFinished
	NoticePathCancelled
)

var noticeNames = map[NoticeKind]string{
	NoticeCountdownStarted:   "countdown_started",
	NoticeCountdown:          "countdown",
	NoticeRecordingStarted:   "recording_started",
	NoticeRecordingProgress:  "recording_progress",
	NoticeRecordingFinished:  "recording_finished",
	NoticeRecordingCancelled: "recording_cancelled",
	NoticePlaybackStarted:    "playback_started",
	NoticePlaybackProgress:   "playback_progress",
	NoticePlaybackFinished:   "playback_finished",
	NoticePlaybackCancelled:  "playback_cancelled",
	NoticePathShown:          "path_shown",
	NoticePathFinished:       "path_finished",
	NoticePathCancelled:      "path_cancelled",
}

func (k NoticeKind) String() string {
	if name, ok := noticeNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notice is a user-facing event. Which fields are set depends on Kind:
// countdowns carry Seconds, progress carries Current and Total, a finished
// recording carries Total and, when it could not be stored, Err.
type Notice struct {
	Kind    NoticeKind
	Name    string
	Current int
	Total   int
	Seconds int
	Err     error
}

// Notifier delivers notices to actors. Implementations must not call back
// into the Coordinator synchronously.
type Notifier interface {
	Notify(actor uuid.UUID, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(actor uuid.UUID, n Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(actor uuid.UUID, n Notice) {
	f(actor, n)
}

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(uuid.UUID, Notice) {})
