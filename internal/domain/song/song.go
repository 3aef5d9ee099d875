// Package song provides the SongRequest domain entity.
package song

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Request represents a resolved song waiting in (or playing from) a tenant queue.
type Request struct {
	ID            string        // Unique request ID
	Title         string        // Display name
	SourceURL     string        // Source URL (cache key)
	FilePath      string        // Local file to play
	Duration      time.Duration // Track duration (0 if unknown)
	RequestedBy   string        // Requester tag
	RequestedAt   time.Time     // Time when the request was accepted
	QueuePosition int           // Position in the queue when enqueued
}

// Persisted is the crash-recovery form of a Request.
type Persisted struct {
	ID              string    `json:"id" mapstructure:"id"`
	Title           string    `json:"title" mapstructure:"title"`
	URL             string    `json:"url" mapstructure:"url"`
	FilePath        string    `json:"filePath" mapstructure:"filePath"`
	RequestedBy     string    `json:"requestedBy" mapstructure:"requestedBy"`
	RequestedAt     time.Time `json:"requestedAt" mapstructure:"requestedAt"`
	Position        int       `json:"position" mapstructure:"position"`
	DurationSeconds float64   `json:"durationSeconds,omitempty" mapstructure:"durationSeconds"`
	StartedAt       time.Time `json:"startedAt,omitzero" mapstructure:"startedAt"`
}

// Persist converts the request to its persisted form at the given position.
func (r Request) Persist(position int) Persisted {
	return Persisted{
		ID:              r.ID,
		Title:           r.Title,
		URL:             r.SourceURL,
		FilePath:        r.FilePath,
		RequestedBy:     r.RequestedBy,
		RequestedAt:     r.RequestedAt,
		Position:        position,
		DurationSeconds: r.Duration.Seconds(),
	}
}

// Request converts a persisted entry back to a Request.
func (p Persisted) Request() Request {
	return Request{
		ID:            p.ID,
		Title:         p.Title,
		SourceURL:     p.URL,
		FilePath:      p.FilePath,
		Duration:      time.Duration(p.DurationSeconds * float64(time.Second)),
		RequestedBy:   p.RequestedBy,
		RequestedAt:   p.RequestedAt,
		QueuePosition: p.Position,
	}
}

// Decode decodes a generic document value (as returned by the persisted store)
// into out, converting RFC3339 strings to time.Time.
func Decode(value any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(value); err != nil {
		return errors.Wrap(err, "failed to decode value")
	}
	return nil
}

// DecodeList decodes a persisted queue array. A nil value yields an empty list.
func DecodeList(value any) ([]Persisted, error) {
	if value == nil {
		return nil, nil
	}
	var list []Persisted
	if err := Decode(value, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DecodeOne decodes a persisted current-song object. A nil value yields nil.
func DecodeOne(value any) (*Persisted, error) {
	if value == nil {
		return nil, nil
	}
	var p Persisted
	if err := Decode(value, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
