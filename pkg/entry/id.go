package entry

import (
	"fmt"
	"hash/fnv"
	"io"
)

// maxIDProbes bounds the linear probe when a hashed local id collides.
const maxIDProbes = 64

// LocalID derives a deterministic negative id for a locally created entry
// from its characters and type. On collision it probes -(h+1), -(h+2), ...
// so creation stays reproducible. taken reports whether an id is in use.
func LocalID(characters string, t Type, taken func(int64) bool) (int64, error) {
	h := fnv.New32a()
	io.WriteString(h, characters)
	h.Write([]byte{0})
	io.WriteString(h, string(t))

	base := int64(h.Sum32())
	if base == 0 {
		base = 1
	}
	for probe := int64(0); probe < maxIDProbes; probe++ {
		id := -(base + probe)
		if !taken(id) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no free local id for %q/%s after %d probes", characters, t, maxIDProbes)
}
