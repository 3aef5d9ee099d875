package spotify

import "strings"

// LinkKind classifies a Spotify link.
type LinkKind int

const (
	KindNone LinkKind = iota
	KindTrack
	KindPlaylist
	KindAlbum
)

var linkKinds = []struct {
	kind LinkKind
	name string
}{
	{KindTrack, "track"},
	{KindPlaylist, "playlist"},
	{KindAlbum, "album"},
}

// Kind returns what input links to. Plain text is KindNone.
func Kind(input string) LinkKind {
	input = strings.TrimSpace(input)
	for _, k := range linkKinds {
		if strings.HasPrefix(input, "spotify:"+k.name+":") {
			return k.kind
		}
		if isOpenURL(input) && strings.Contains(input, "/"+k.name+"/") {
			return k.kind
		}
	}
	return KindNone
}

// IsCollection reports whether input is a playlist or album link.
func IsCollection(input string) bool {
	k := Kind(input)
	return k == KindPlaylist || k == KindAlbum
}

func isOpenURL(input string) bool {
	return strings.HasPrefix(input, "https://open.spotify.com/") ||
		strings.HasPrefix(input, "http://open.spotify.com/")
}

// extractID extracts the ID from a Spotify URL or URI of the given kind
// ("track", "playlist", "album"). Anything else is assumed to be a bare ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already an ID
	return input
}
