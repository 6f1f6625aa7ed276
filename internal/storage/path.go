package storage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxNameLen caps sanitized filenames so keys stay well under object-store
// limits even after prefixing.
const maxNameLen = 80

// SanitizeFilename rewrites name into a key-safe form: anything outside
// [A-Za-z0-9._-] becomes "_", runs collapse, and overlong names are truncated
// with a short content hash of the original so distinct inputs stay distinct.
func SanitizeFilename(name string) string {
	if name == "" {
		return "unnamed"
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	safe := strings.Trim(b.String(), "._")
	if safe == "" {
		safe = "unnamed"
	}

	if len(safe) <= maxNameLen {
		return safe
	}

	sum := md5.Sum([]byte(name))
	tag := hex.EncodeToString(sum[:])[:8]
	ext := filepath.Ext(safe)
	if len(ext) > 10 {
		ext = ""
	}
	keep := maxNameLen - len(tag) - len(ext) - 1
	return safe[:keep] + "-" + tag + ext
}

// DocumentKey is the object key for an ingested document:
// receipts/<user>/<timestamp>/<sanitized filename>.
func DocumentKey(userID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("receipts/%s/%s/%s",
		userID, now.UTC().Format("20060102T150405"), SanitizeFilename(filename))
}

// ArchiveKey is the object key for an export archive:
// summary/<user>/<timestamp>/<name>.zip.
func ArchiveKey(userID uuid.UUID, name string, now time.Time) string {
	safe := SanitizeFilename(name)
	safe = strings.TrimSuffix(safe, ".zip")
	return fmt.Sprintf("summary/%s/%s/%s.zip",
		userID, now.UTC().Format("20060102T150405"), safe)
}
