package lifecycle

import (
	"time"

	"songify/internal/song"
	"songify/internal/textutil"
)

const maxStatusTitle = 60

// StatusFor renders the status string for req at now.
func StatusFor(req song.Request, now time.Time) string {
	title := textutil.Truncate(req.Title, maxStatusTitle)
	switch req.State {
	case song.StateWriting:
		if req.LastError != "" {
			return "Song error: " + req.LastError
		}
		elapsed := song.FormatElapsed(req.Elapsed(now))
		if title == "" {
			return "Writing song (" + elapsed + ")"
		}
		return "Writing song: " + title + " (" + elapsed + ")"
	case song.StatePlaying:
		if title == "" {
			return "Playing song"
		}
		return "Playing: " + title
	default:
		return "Songify"
	}
}

// BadgeFor renders the compact badge for req at now. It is empty outside writing.
func BadgeFor(req song.Request, now time.Time) string {
	if req.State != song.StateWriting || req.StartedAt.IsZero() {
		return ""
	}
	return song.FormatElapsed(req.Elapsed(now))
}

func renderAt(req song.Request, now time.Time, ticking bool) Render {
	r := Render{Status: StatusFor(req, now)}
	if ticking {
		r.Badge = BadgeFor(req, now)
	}
	return r
}
