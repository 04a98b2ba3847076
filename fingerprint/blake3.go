package fingerprint

import (
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/portaldiscoverer/discoverer/common/types"
)

// pool amortizes allocations of blake3 hashers. Hashers are Reset before
// they are put back.
var pool = &sync.Pool{
	New: func() any {
		return blake3.New()
	},
}

// Blake3 fingerprints with a 32-byte blake3 digest. Only usable against an
// index server configured with the same algorithm.
type Blake3 struct{}

// Compute implements Computer.
func (Blake3) Compute(id types.EntityID, c types.Coordinate, name string) types.Fingerprint {
	h := pool.Get().(*blake3.Hasher)
	defer func() {
		h.Reset()
		pool.Put(h)
	}()
	h.Write(Message(id, c, name))
	return types.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
