package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	headerLen  = 16
	ivSize     = 16
	keySize    = 32
	iterations = 1000
)

var magic = []byte("FINANCES")

// salt is baked into the format. Changing it would orphan every backup
// ever written.
var salt = []byte("63468D4A7232221586C7B820888B269C384741C86D473B2923FA91CBCCF79863")

// formatV1 is the original envelope: 16-byte header, 16-byte random
// IV, AES-256-GCM ciphertext with the 128-bit tag appended. The key is
// PBKDF2-SHA256 over the password with the fixed salt.
type formatV1 struct{}

func (formatV1) header() []byte {
	h := make([]byte, 0, headerLen)
	h = append(h, magic...)
	return append(h, 0xff, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0xff)
}

func (f formatV1) encrypt(password string, plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	aead, err := f.aead(password)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, headerLen+ivSize+len(plaintext)+aead.Overhead())
	out = append(out, f.header()...)
	out = append(out, iv...)
	return aead.Seal(out, iv, plaintext, nil), nil
}

func (f formatV1) decrypt(password string, data []byte) ([]byte, error) {
	aead, err := f.aead(password)
	if err != nil {
		return nil, err
	}
	if len(data) < headerLen+ivSize+aead.Overhead() {
		return nil, ErrAuthentication
	}
	iv := data[headerLen : headerLen+ivSize]
	ciphertext := data[headerLen+ivSize:]
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// Wrong key and flipped bits fail the same tag check.
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func (formatV1) aead(password string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return aead, nil
}
