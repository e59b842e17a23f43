// Package backup turns the serialized dataset into a self-describing
// encrypted envelope and back. Every envelope starts with a versioned
// magic header so that historical formats keep decrypting; encryption
// always uses the newest registered format.
package backup

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrWeakPassword rejects passwords shorter than MinPasswordLen
	// before any key derivation runs.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrUnsupportedFormat means no registered format recognizes the
	// data: it is not a valid backup.
	ErrUnsupportedFormat = errors.New("backup format not supported")
	// ErrAmbiguousFormat means more than one format claimed the data.
	// It is reported rather than resolved silently.
	ErrAmbiguousFormat = errors.New("more than one backup format matched the data")
	// ErrAuthentication covers both a wrong password and corrupted
	// bytes; the two are indistinguishable because the cipher's tag
	// check is the only password verification there is.
	ErrAuthentication = errors.New("backup authentication failed")
	// ErrUnavailable is reported when no encryption format is
	// registered in this build.
	ErrUnavailable = errors.New("encryption is not available")
)

const MinPasswordLen = 6

// format is one versioned envelope layout: a fixed magic header plus
// whatever the version puts after it.
type format interface {
	header() []byte
	encrypt(password string, plaintext []byte) ([]byte, error)
	decrypt(password string, data []byte) ([]byte, error)
}

// formats is ordered oldest to newest. Decryption sniffs across all of
// them; encryption uses the last entry.
var formats = []format{formatV1{}}

// Encrypt wraps the plaintext in the newest envelope format.
func Encrypt(password string, plaintext []byte) ([]byte, error) {
	if len(formats) == 0 {
		return nil, ErrUnavailable
	}
	if len(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	return formats[len(formats)-1].encrypt(password, plaintext)
}

// Decrypt sniffs the envelope format from its header and decrypts with
// the matching decoder. Zero matching formats and multiple matching
// formats are both explicit errors.
func Decrypt(password string, data []byte) ([]byte, error) {
	if len(formats) == 0 {
		return nil, ErrUnavailable
	}
	var matched []format
	for _, f := range formats {
		if bytes.HasPrefix(data, f.header()) {
			matched = append(matched, f)
		}
	}
	switch len(matched) {
	case 0:
		return nil, ErrUnsupportedFormat
	case 1:
		return matched[0].decrypt(password, data)
	default:
		return nil, ErrAmbiguousFormat
	}
}

// Version reads the dotted version string out of an envelope header
// without touching the payload.
func Version(data []byte) (string, error) {
	if len(data) < headerLen || !bytes.HasPrefix(data, magic) {
		return "", ErrUnsupportedFormat
	}
	if data[8] != 0xff || data[15] != 0xff {
		return "", ErrUnsupportedFormat
	}
	var version string
	for b := 10; b < 15; b++ {
		if data[b] == 0x00 && version == "" {
			continue
		}
		if version != "" {
			version += "."
		}
		version += fmt.Sprintf("%d", data[b])
	}
	if version == "" {
		return "", ErrUnsupportedFormat
	}
	return version, nil
}
