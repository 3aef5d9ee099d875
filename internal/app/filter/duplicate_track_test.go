package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/guildbox/internal/domain/song"
)

func TestDuplicateTrackFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		queued       song.Request
		requested    song.Request
		shouldReject bool
		description  string
	}{
		{
			name:         "Same source URL",
			queued:       song.Request{Title: "Bohemian Rhapsody", SourceURL: "https://www.youtube.com/watch?v=fJ9rUzIMcZQ"},
			requested:    song.Request{Title: "Queen - Bohemian Rhapsody", SourceURL: "https://www.youtube.com/watch?v=fJ9rUzIMcZQ"},
			shouldReject: true,
			description:  "Should detect the same URL as duplicate",
		},
		{
			name:         "Remastered in parentheses",
			queued:       song.Request{Title: "The Beatles - Yesterday", SourceURL: "u1"},
			requested:    song.Request{Title: "The Beatles - Yesterday (Remastered 2023)", SourceURL: "u2"},
			shouldReject: true,
			description:  "Should detect '(Remastered 2023)' as duplicate",
		},
		{
			name:         "Official video upload",
			queued:       song.Request{Title: "Queen - Don't Stop Me Now", SourceURL: "u1"},
			requested:    song.Request{Title: "Queen - Don't Stop Me Now (Official Video)", SourceURL: "u2"},
			shouldReject: true,
			description:  "Should detect an official video upload as duplicate",
		},
		{
			name:         "Lyrics upload",
			queued:       song.Request{Title: "Eagles - Hotel California [Lyrics]", SourceURL: "u1"},
			requested:    song.Request{Title: "Eagles - Hotel California - Live", SourceURL: "u2"},
			shouldReject: true,
			description:  "Should detect lyric and live uploads as duplicate",
		},
		{
			name:         "Different songs - similar names",
			queued:       song.Request{Title: "John Lennon - Love", SourceURL: "u1"},
			requested:    song.Request{Title: "John Lennon - Love Song", SourceURL: "u2"},
			shouldReject: false,
			description:  "Should allow different songs",
		},
		{
			name:         "Cover song - different artist",
			queued:       song.Request{Title: "The Beatles - Yesterday", SourceURL: "u1"},
			requested:    song.Request{Title: "Paul McCartney - Yesterday", SourceURL: "u2"},
			shouldReject: false,
			description:  "Should allow cover by different artist",
		},
		{
			name:         "Remix version - should be allowed",
			queued:       song.Request{Title: "CHIC - Le Freak", SourceURL: "u1"},
			requested:    song.Request{Title: "CHIC - Le Freak (Oliver Heldens Remix)", SourceURL: "u2"},
			shouldReject: false,
			description:  "Should allow remix version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDuplicateTrackFilter()
			result := f.Check(
				context.Background(),
				Request{TenantID: "g1", RequestedBy: "alice"},
				tt.requested,
				Snapshot{Queued: []song.Request{tt.queued}},
			)

			if tt.shouldReject {
				assert.False(t, result.Accepted, tt.description)
				assert.Equal(t, "duplicate_track", result.Code)
			} else {
				assert.True(t, result.Accepted, tt.description)
			}
		})
	}
}

func TestDuplicateTrackFilter_ChecksCurrentSong(t *testing.T) {
	f := NewDuplicateTrackFilter()
	current := song.Request{Title: "Song A", SourceURL: "u1"}

	result := f.Check(context.Background(), Request{}, song.Request{Title: "Other", SourceURL: "u1"}, Snapshot{Current: &current})

	assert.False(t, result.Accepted)
	assert.Equal(t, "duplicate_track", result.Code)
}

func TestDuplicateTrackFilter_EmptyQueue(t *testing.T) {
	f := NewDuplicateTrackFilter()

	result := f.Check(context.Background(), Request{}, song.Request{Title: "Any Song", SourceURL: "u1"}, Snapshot{})

	assert.True(t, result.Accepted, "Should accept any song when queue is empty")
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Yesterday (Remastered 2023)", "yesterday"},
		{"Hotel California [Remastered]", "hotel california"},
		{"Stairway to Heaven (Radio Edit)", "stairway to heaven"},
		{"Imagine - Live", "imagine"},
		{"Imagine - Live at Madison Square Garden", "imagine"},
		{"Let It Be (Single Version)", "let it be"},
		{"Hey Jude - Remastered Version", "hey jude"},
		{"Come Together (2019 Mix)", "come together (2019 mix)"},
		{"Queen - Bohemian Rhapsody (Official Video)", "queen - bohemian rhapsody"},
		{"YOASOBI - Idol [Official Music Video]", "yoasobi - idol"},
		{"Adele - Hello (Lyrics)", "adele - hello"},
		{"Olive", "olive"},
		{"Song (Remix) (Radio Edit)", "song (remix)"},
		{"   Extra   Spaces   ", "extra spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTitle(tt.input))
		})
	}
}
