package phrase

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IdentifierSize is the fixed width of a tag identifier in bytes.
const IdentifierSize = 16

// Identifier is the one-way lookup key derived from a normalized phrase.
// It never reveals the phrase and is safe to log in hex form.
type Identifier [IdentifierSize]byte

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identifier) Bytes() []byte {
	return id[:]
}

// ParseIdentifier decodes the hex form produced by String.
func ParseIdentifier(s string) (Identifier, error) {
	var id Identifier
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decoding identifier: %w", err)
	}
	if len(b) != IdentifierSize {
		return id, fmt.Errorf("identifier must be %d bytes, got %d", IdentifierSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// IdentifierFromBytes copies b into an Identifier, rejecting wrong widths.
func IdentifierFromBytes(b []byte) (Identifier, error) {
	var id Identifier
	if len(b) != IdentifierSize {
		return id, fmt.Errorf("identifier must be %d bytes, got %d", IdentifierSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// TagIdentifier derives identifiers with a keyed BLAKE2b MAC truncated to
// IdentifierSize. The derivation is deterministic, one-way, and runs in
// time independent of the phrase content.
type TagIdentifier struct {
	key []byte
}

// NewTagIdentifier builds a deriver from the server's identifier key.
// The key must satisfy BLAKE2b's limits (1..64 bytes).
func NewTagIdentifier(key []byte) (*TagIdentifier, error) {
	if len(key) == 0 || len(key) > 64 {
		return nil, fmt.Errorf("identifier key must be 1..64 bytes, got %d", len(key))
	}
	// Fail early if blake2b rejects the key for any other reason.
	if _, err := blake2b.New(IdentifierSize, key); err != nil {
		return nil, err
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &TagIdentifier{key: k}, nil
}

// Identify maps a normalized phrase to its fixed-width identifier.
func (t *TagIdentifier) Identify(normalized string) Identifier {
	h, err := blake2b.New(IdentifierSize, t.key)
	if err != nil {
		// Key was validated in the constructor.
		panic(err)
	}
	h.Write([]byte(normalized))

	var id Identifier
	copy(id[:], h.Sum(nil))
	return id
}
