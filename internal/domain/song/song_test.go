package song

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Persist(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Request{
		ID:          "id-1",
		Title:       "Song A",
		SourceURL:   "https://www.youtube.com/watch?v=abc",
		FilePath:    "/tmp/a.mp3",
		Duration:    3*time.Minute + 30*time.Second,
		RequestedBy: "alice",
		RequestedAt: at,
	}

	p := r.Persist(2)

	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", p.URL)
	assert.Equal(t, 2, p.Position)
	assert.Equal(t, 210.0, p.DurationSeconds)

	back := p.Request()
	assert.Equal(t, r.Duration, back.Duration)
	assert.Equal(t, r.SourceURL, back.SourceURL)
	assert.Equal(t, 2, back.QueuePosition)
}

func TestDecodeList_FromJSONDocument(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	list := []Persisted{
		{ID: "1", Title: "A", URL: "u1", FilePath: "/a", RequestedBy: "x", RequestedAt: at, Position: 0},
		{ID: "2", Title: "B", URL: "u2", FilePath: "/b", RequestedBy: "y", RequestedAt: at, Position: 1, DurationSeconds: 61},
	}

	// Simulate what the store hands back: a generic JSON value.
	data, err := json.Marshal(list)
	require.NoError(t, err)
	var generic any
	require.NoError(t, json.Unmarshal(data, &generic))

	decoded, err := DecodeList(generic)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "B", decoded[1].Title)
	assert.Equal(t, 1, decoded[1].Position)
	assert.True(t, at.Equal(decoded[1].RequestedAt))
	assert.Equal(t, 61*time.Second, decoded[1].Request().Duration)
}

func TestDecodeList_Nil(t *testing.T) {
	decoded, err := DecodeList(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	one, err := DecodeOne(nil)
	require.NoError(t, err)
	assert.Nil(t, one)
}

func TestDecodeOne_InvalidShape(t *testing.T) {
	_, err := DecodeOne("not an object")
	assert.Error(t, err)
}
