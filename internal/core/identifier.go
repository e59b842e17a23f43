package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidID         = errors.New("invalid identifier")
	ErrRandomUnavailable = errors.New("secure random source unavailable")
)

// ID is a 128-bit random identifier rendered in the canonical lowercase
// hyphenated form (8-4-4-4-12). The zero value is the empty sentinel: a
// payment carrying it is not linked to any template.
type ID struct {
	value uuid.UUID
}

// EmptyID marks "not linked to a template".
var EmptyID = ID{}

// NewID generates a random identifier. It fails only when the platform
// has no secure random source.
func NewID() (ID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}
	return ID{value: u}, nil
}

// ParseID accepts the canonical hyphenated form, case-insensitively.
func ParseID(s string) (ID, error) {
	if len(s) != 36 {
		return ID{}, ErrInvalidID
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	return ID{value: u}, nil
}

func (id ID) IsEmpty() bool {
	return id.value == uuid.Nil
}

func (id ID) String() string {
	return id.value.String()
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidID
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
