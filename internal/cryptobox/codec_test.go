package cryptobox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey([]byte("secret-one"))
	k2 := DeriveKey([]byte("secret-one"))
	k3 := DeriveKey([]byte("secret-two"))

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 32)
}

func TestCodec_RoundTrip(t *testing.T) {
	c, err := New("unit-test-secret")
	require.NoError(t, err)

	cases := []string{
		"",
		"Widget Inc",
		"INV-20250623-001",
		`{"nested":"already-serialized structure","n":42}`,
		"unicode: 发票 – reçu – квитанция",
		"123 Main St, Springfield",
	}
	for _, plain := range cases {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		if plain != "" {
			assert.NotEqual(t, plain, enc)
		}
		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, dec)
	}
}

func TestCodec_NonDeterministicCiphertext(t *testing.T) {
	c, err := New("unit-test-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same value")
	require.NoError(t, err)
	b, err := c.Encrypt("same value")
	require.NoError(t, err)

	// fresh nonce per seal
	assert.NotEqual(t, a, b)
}

func TestCodec_WrongKeyFailsLoudly(t *testing.T) {
	c1, err := New("key-one")
	require.NoError(t, err)
	c2, err := New("key-two")
	require.NoError(t, err)

	enc, err := c1.Encrypt("sensitive")
	require.NoError(t, err)

	_, err = c2.Decrypt(enc)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrEncryptionFault)
}

func TestCodec_CorruptCiphertext(t *testing.T) {
	c, err := New("unit-test-secret")
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, common.ErrEncryptionFault)

	_, err = c.Decrypt("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.ErrorIs(t, err, common.ErrEncryptionFault)
}

func TestCodec_ReceiptFieldSet(t *testing.T) {
	c, err := New("unit-test-secret")
	require.NoError(t, err)

	rec := entity.ReceiptRecord{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Buyer:         "Acme Corp",
		Seller:        "Widget Inc",
		InvoiceNumber: "INV-1",
		Address:       "123 Main St",
		FileURL:       "receipts/abc.pdf",
		OriginalInfo:  "upload",
		OCRText:       "raw ocr text",
		Category:      "Travel",
		Total:         "100.00",
		Currency:      "USD",
	}
	require.NoError(t, c.EncryptReceipt(&rec))

	// sensitive fields are ciphertext, non-sensitive untouched
	assert.NotEqual(t, "Acme Corp", rec.Buyer)
	assert.NotEqual(t, "raw ocr text", rec.OCRText)
	assert.Equal(t, "Travel", rec.Category)
	assert.Equal(t, "100.00", rec.Total)
	assert.Equal(t, "USD", rec.Currency)

	require.NoError(t, c.DecryptReceipt(&rec))
	assert.Equal(t, "Acme Corp", rec.Buyer)
	assert.Equal(t, "Widget Inc", rec.Seller)
	assert.Equal(t, "raw ocr text", rec.OCRText)
}
