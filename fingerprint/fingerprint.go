// Package fingerprint derives reference values from a portal's canonical fields.
//
// The canonical message is
//
//	<latE6>|<lngE6>|<name>|<id>
//
// with coordinates as base-10 integers and the name as UTF-8. The index server
// hashes the same message, so client and server agree on what "unchanged" means.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/portaldiscoverer/discoverer/common/types"
)

// Computer derives a fingerprint. Implementations must be deterministic and
// collision resistant.
type Computer interface {
	Compute(id types.EntityID, c types.Coordinate, name string) types.Fingerprint
}

// Message returns the canonical message for the given fields.
func Message(id types.EntityID, c types.Coordinate, name string) []byte {
	buf := make([]byte, 0, 24+len(name)+len(id))
	buf = strconv.AppendInt(buf, int64(c.LatE6), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(c.LngE6), 10)
	buf = append(buf, '|')
	buf = append(buf, name...)
	buf = append(buf, '|')
	buf = append(buf, id...)
	return buf
}

// SHA1 is the fingerprint used by the index server.
type SHA1 struct{}

// Compute implements Computer.
func (SHA1) Compute(id types.EntityID, c types.Coordinate, name string) types.Fingerprint {
	sum := sha1.Sum(Message(id, c, name))
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}

// Default returns the computer matching the index server.
func Default() Computer {
	return SHA1{}
}

// ByName returns a computer by its configuration name.
func ByName(name string) (Computer, bool) {
	switch name {
	case "", "sha1":
		return SHA1{}, true
	case "blake3":
		return Blake3{}, true
	}
	return nil, false
}
