// Package ginternals contains the core types used to represent a git
// repository: object ids, references, and path helpers.
package ginternals

import (
	"encoding/hex"

	"gitgo/ginternals/githash"
)

// hasher is the hash algorithm used to address every object and is kept
// as a package-level value so every helper in this file can share it
// without threading it through every call.
var hasher = githash.NewSHA1()

// OidSize is the length, in bytes, of an Oid
const OidSize = 20

// NullOid is the value of an empty Oid, or one that's all 0s
var NullOid = Oid{}

// Oid represents a git Object ID
type Oid [OidSize]byte

// Bytes returns the raw, binary form of the Oid
func (o Oid) Bytes() []byte {
	return o[:]
}

// String returns the lowercase hex form of the Oid
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero returns whether the oid has the zero value (NullOid)
func (o Oid) IsZero() bool {
	return o == NullOid
}

// NewOidFromContent returns the Oid of the given content, i.e. the
// hash of the content
func NewOidFromContent(content []byte) Oid {
	return fromHash(hasher.Sum(content))
}

// NewOidFromHex returns an Oid from the provided binary-encoded oid
func NewOidFromHex(id []byte) (Oid, error) {
	h, err := hasher.ConvertFromBytes(id)
	if err != nil {
		return NullOid, err
	}
	return fromHash(h), nil
}

// NewOidFromChars creates an Oid from the given char bytes
// For the SHA {'9', 'b', '9', '1', 'd', 'a', ...}
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromChars(id []byte) (Oid, error) {
	h, err := hasher.ConvertFromChars(id)
	if err != nil {
		return NullOid, err
	}
	return fromHash(h), nil
}

// NewOidFromStr creates an Oid from the given hex string
// For the SHA 9b91da06e69613397b38e0808e0ba5ee6983251b
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromStr(id string) (Oid, error) {
	h, err := hasher.ConvertFromString(id)
	if err != nil {
		return NullOid, err
	}
	return fromHash(h), nil
}

func fromHash(h githash.Oid) Oid {
	var oid Oid
	copy(oid[:], h.Bytes())
	return oid
}
