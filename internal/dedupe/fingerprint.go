// Package dedupe computes the stable content fingerprint (hash_id) used to
// flag repeat submissions of the same physical document. The fingerprint is
// advisory: the pipeline surfaces it, policy on duplicates lives upstream.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

var reDateChars = regexp.MustCompile(`^[\d\s\-\/\.]+$`)

var knownDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01-02-2006",
	"2006-02-01",
}

// NormalizeDate converts common invoice date spellings (Y-M-D, D-M-Y, M-D-Y,
// Y-D-M with -, / or . separators) to "YYYY-MM-DD". Returns "" for empty,
// malformed or impossible dates so noisy OCR dates never destabilize the
// fingerprint with partial parses.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !reDateChars.MatchString(raw) {
		return ""
	}
	raw = strings.NewReplacer("/", "-", ".", "-").Replace(raw)
	for _, layout := range knownDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// Canonical is the subset of extracted fields the fingerprint is computed
// over. OCR noise outside these fields does not change the hash.
type Canonical struct {
	Total         string
	Buyer         string
	Seller        string
	InvoiceDate   string
	InvoiceNumber string
}

// Fingerprint returns the hex digest over the canonical fields for one user.
// Pure function: identical inputs always produce the same hash_id.
func Fingerprint(userID string, c Canonical) string {
	input := strings.Join([]string{
		userID,
		c.Total,
		c.Buyer,
		c.Seller,
		NormalizeDate(c.InvoiceDate),
		c.InvoiceNumber,
	}, "|")
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
