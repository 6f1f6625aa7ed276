// Package cryptobox provides the field-level encryption codec applied at the
// record serialization boundary: every persistence path encrypts through it
// and every read path decrypts through it.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
)

// keySalt is a fixed application salt so the same secret always derives the
// same key across processes. Key material is initialized once at startup and
// never rotated mid-process.
var keySalt = []byte("receipt-processing-center.fields.v1")

// Codec encrypts and decrypts individual field values with AES-256-GCM.
// Each field is sealed independently so a single field can be updated
// without re-encrypting the whole record.
type Codec struct {
	aead cipher.AEAD
}

// DeriveKey derives the 32-byte field-encryption key from the process-wide
// secret using argon2id. Deterministic: same secret, same key.
func DeriveKey(secret []byte) []byte {
	return argon2.IDKey(secret, keySalt, 1, 64*1024, 4, 32)
}

// New builds a Codec from the process-wide secret.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, common.NewAppError("CRYPTO_INIT", "empty encryption secret", common.ErrEncryptionFault)
	}
	block, err := aes.NewCipher(DeriveKey([]byte(secret)))
	if err != nil {
		return nil, common.NewAppError("CRYPTO_INIT", "cipher init", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, common.NewAppError("CRYPTO_INIT", "gcm init", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals a single field value. Empty values pass through unchanged so
// optional fields stay recognizably absent in the store.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", common.ErrEncryptionFault, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Ciphertext produced under a different key, or any
// tampered/corrupt input, fails with ErrEncryptionFault rather than returning
// garbage.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", common.ErrEncryptionFault, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", common.ErrEncryptionFault)
	}
	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: open: %v", common.ErrEncryptionFault, err)
	}
	return string(plaintext), nil
}

// EncryptAll seals every value in place, failing on the first error so a
// record is never left partially encrypted.
func (c *Codec) EncryptAll(fields map[string]*string) error {
	for name, v := range fields {
		enc, err := c.Encrypt(*v)
		if err != nil {
			return common.WrapError(err, "encrypt "+name)
		}
		*v = enc
	}
	return nil
}

// DecryptAll opens every value in place.
func (c *Codec) DecryptAll(fields map[string]*string) error {
	for name, v := range fields {
		dec, err := c.Decrypt(*v)
		if err != nil {
			return common.WrapError(err, "decrypt "+name)
		}
		*v = dec
	}
	return nil
}
