package hatvec

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// IDSize is the byte length of an Id.
const IDSize = 16

// Id is a 128-bit time-ordered identifier: a 64-bit monotonic millisecond
// timestamp in the high bytes, followed by 64 bits of randomness in the
// low bytes. Two ids generated in the same process compare by time first,
// which keeps pre-order tree dumps and CLI listings roughly chronological
// without a secondary sort.
type Id [IDSize]byte

// idClockBase anchors NewId's time component: the wall-clock time at
// process start, advanced by the monotonic clock reading since then.
var idClockBase = time.Now()

// NewId generates a fresh Id: the current time in milliseconds since the
// Unix epoch, big-endian, followed by 8 random bytes. The time is
// idClockBase advanced by the monotonic elapsed time, so a wall-clock step
// never moves later ids backward. The random half is sourced from
// uuid.New() rather than a hand-rolled PRNG — the corpus already vets
// google/uuid's process-seeded generator for this purpose.
func NewId() Id {
	return newIdAt(idClockBase.Add(time.Since(idClockBase)))
}

func newIdAt(t time.Time) Id {
	var id Id
	binary.BigEndian.PutUint64(id[:8], uint64(t.UnixMilli()))
	u := uuid.New()
	copy(id[8:], u[8:16])
	return id
}

// TimeMillis returns the millisecond timestamp encoded in the id's high bytes.
func (id Id) TimeMillis() int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// Time returns the id's timestamp component as a time.Time in UTC.
func (id Id) Time() time.Time {
	return time.UnixMilli(id.TimeMillis()).UTC()
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater
// than other, comparing byte-for-byte (time bytes first, so it orders by
// time then by the random suffix).
func (id Id) Compare(other Id) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts before other under the byte-order tie-break
// rule used by every ranked query in this package.
func (id Id) Less(other Id) bool {
	return id.Compare(other) < 0
}

// IsZero reports whether id is the zero value (used to mark "no parent").
func (id Id) IsZero() bool {
	return id == Id{}
}

// String returns the lowercase 32-hex textual form of id.
func (id Id) String() string {
	return hex.EncodeToString(id[:])
}

// ParseId parses a 32-character hex string (case-insensitive) into an Id.
func ParseId(s string) (Id, error) {
	if len(s) != IDSize*2 {
		return Id{}, ErrInvalidHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Id{}, ErrInvalidHex
	}
	var id Id
	copy(id[:], b)
	return id, nil
}

// Bytes returns a copy of the id's 16 little-endian-irrelevant raw bytes
// (the id is a fixed byte sequence, not itself a multi-byte integer).
func (id Id) Bytes() []byte {
	out := make([]byte, IDSize)
	copy(out, id[:])
	return out
}

// IdFromBytes reconstructs an Id from exactly 16 bytes.
func IdFromBytes(b []byte) (Id, error) {
	if len(b) != IDSize {
		return Id{}, ErrFormat
	}
	var id Id
	copy(id[:], b)
	return id, nil
}
