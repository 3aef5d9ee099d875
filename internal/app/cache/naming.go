package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const hashLength = 12

// FileName builds the cached file name for key:
// <sanitized title>_<unix millis>_<hash(key)><ext>.
func FileName(key, title string, at time.Time, ext string, maxTitle int) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])[:hashLength]
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%d_%s%s", SanitizeTitle(title, maxTitle), at.UnixMilli(), hash, ext)
}

// SanitizeTitle replaces characters that are unsafe in file names and
// truncates the result to max runes.
func SanitizeTitle(title string, max int) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if max > 0 && n >= max {
			break
		}
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r < 0x20, r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
		n++
	}
	if b.Len() == 0 {
		return "audio"
	}
	return b.String()
}
