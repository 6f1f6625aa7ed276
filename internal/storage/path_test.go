package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already safe", "invoice-2025.pdf", "invoice-2025.pdf"},
		{"spaces", "my receipt scan.jpg", "my_receipt_scan.jpg"},
		{"non ascii", "facture café 2025.pdf", "facture_caf_2025.pdf"},
		{"cjk", "发票.pdf", "pdf"},
		{"runs collapse", "a   b///c.png", "a_b_c.png"},
		{"empty", "", "unnamed"},
		{"only symbols", "///***", "unnamed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.in))
		})
	}
}

func TestSanitizeFilename_LongNamesCappedButDistinct(t *testing.T) {
	a := SanitizeFilename(strings.Repeat("a", 300) + "-one.pdf")
	b := SanitizeFilename(strings.Repeat("a", 300) + "-two.pdf")

	assert.LessOrEqual(t, len(a), 80)
	assert.LessOrEqual(t, len(b), 80)
	assert.NotEqual(t, a, b, "hash tag keeps distinct originals distinct")
	assert.True(t, strings.HasSuffix(a, ".pdf"), "extension survives truncation")
}

func TestDocumentKeyLayout(t *testing.T) {
	user := uuid.MustParse("7f9c24e8-3b1a-4b6e-9d2f-111111111111")
	ts := time.Date(2025, 6, 23, 10, 30, 0, 0, time.UTC)

	key := DocumentKey(user, "receipt one.jpg", ts)
	assert.Equal(t, "receipts/7f9c24e8-3b1a-4b6e-9d2f-111111111111/20250623T103000/receipt_one.jpg", key)
}

func TestArchiveKeyLayout(t *testing.T) {
	user := uuid.MustParse("7f9c24e8-3b1a-4b6e-9d2f-111111111111")
	ts := time.Date(2025, 6, 23, 10, 30, 0, 0, time.UTC)

	key := ArchiveKey(user, "june summary.zip", ts)
	assert.Equal(t, "summary/7f9c24e8-3b1a-4b6e-9d2f-111111111111/20250623T103000/june_summary.zip", key)
}
