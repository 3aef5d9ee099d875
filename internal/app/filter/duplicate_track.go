package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/guildbox/internal/domain/song"
)

// DuplicateTrackFilter rejects songs that are already playing or queued.
// Detects:
// - Same source URL
// - Same title once upload decorations and version suffixes are removed
// Remixes and covers keep their distinguishing words and are allowed.
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects songs already playing or queued, including remasters and re-uploads of the same title"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the song is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request, s song.Request, snap Snapshot) Result {
	title := normalizeTitle(s.Title)

	for _, queued := range snap.All() {
		if s.SourceURL != "" && queued.SourceURL == s.SourceURL {
			return Reject("duplicate_track")
		}
		if title != "" && normalizeTitle(queued.Title) == title {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

var (
	// Remaster annotations.
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?\b`),        // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),         // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),         // "[Remastered]"
		regexp.MustCompile(`\s*\([^)]*remaster[^)]*\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[[^\]]*remaster[^\]]*\]`),            // "[Any Remaster text]"
		regexp.MustCompile(`\s*-?\s*\bremaster(ed)?(\s+version)?\b`), // "- Remastered"
	}

	// Upload decorations and version indicators.
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]\s*official\s*(music\s*)?(video|audio|mv|lyric video)\s*[\)\]]`), // "(Official Video)"
		regexp.MustCompile(`\s*[\(\[]\s*(lyrics?|lyric video|audio|mv|m/v|hd|4k)\s*[\)\]]`),           // "[Lyrics]", "(MV)"
		regexp.MustCompile(`\s*\([^)]*version\)`),                                                     // "(Single Version)"
		regexp.MustCompile(`\s*\([^)]*edit\)`),                                                        // "(Radio Edit)"
		regexp.MustCompile(`\s*[\(\[]live[\)\]]`),                                                     // "(Live)"
		regexp.MustCompile(`\s*-\s*live(\s+(at|in|from)\b.*)?$`),                                      // "- Live at ..."
		regexp.MustCompile(`\s*-?\s*\bradio\s+edit\b`),                                                // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*\bsingle\s+version\b`),                                            // "- Single Version"
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes remaster information, upload decorations and
// version details.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
