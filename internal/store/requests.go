package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"songify/internal/song"
)

// SaveLastRequest replaces the stored request snapshot.
func (s *Store) SaveLastRequest(ctx context.Context, req song.Request) error {
	if req.ID == "" {
		return nil
	}
	updated := req.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return s.exec(ctx,
		`INSERT INTO last_request (
            slot, request_id, state, style, title, origin_tab_id,
            audio_url, lyrics, last_error, started_at, updated_at
        ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(slot) DO UPDATE SET
            request_id = excluded.request_id,
            state = excluded.state,
            style = excluded.style,
            title = excluded.title,
            origin_tab_id = excluded.origin_tab_id,
            audio_url = excluded.audio_url,
            lyrics = excluded.lyrics,
            last_error = excluded.last_error,
            started_at = excluded.started_at,
            updated_at = excluded.updated_at`,
		req.ID,
		string(req.State),
		nullString(string(req.Style)),
		nullString(req.Title),
		int64(req.OriginTabID),
		nullString(req.AudioURL),
		nullString(req.Lyrics),
		nullString(req.LastError),
		formatTime(req.StartedAt),
		formatTime(updated).String,
	)
}

// LastRequest loads the stored snapshot. ok is false when nothing was saved.
func (s *Store) LastRequest(ctx context.Context) (song.Request, bool, error) {
	var (
		req                                       song.Request
		state                                     string
		style, title, audioURL, lyrics, lastError sql.NullString
		tabID                                     sql.NullInt64
		startedRaw, updatedRaw                    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, state, style, title, origin_tab_id, audio_url,
                lyrics, last_error, started_at, updated_at
         FROM last_request WHERE slot = 1`,
	).Scan(&req.ID, &state, &style, &title, &tabID, &audioURL, &lyrics, &lastError, &startedRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return song.Idle(), false, nil
	}
	if err != nil {
		return song.Request{}, false, fmt.Errorf("read last request: %w", err)
	}
	req.State = song.State(state)
	req.Style = song.Style(style.String)
	req.Title = title.String
	req.OriginTabID = song.TabNone
	if tabID.Valid {
		req.OriginTabID = song.TabID(tabID.Int64)
	}
	req.AudioURL = audioURL.String
	req.Lyrics = lyrics.String
	req.LastError = lastError.String
	req.StartedAt = parseTime(startedRaw)
	req.UpdatedAt = parseTime(updatedRaw)
	return req, true, nil
}
