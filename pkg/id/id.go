package id

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrMalformed is returned by Parse for strings not shaped "<ms>-<seq>".
var ErrMalformed = errors.New("id: malformed")

// ID orders by Ms, then Seq.
type ID struct {
	Ms  int64
	Seq uint32
}

// Zero reports whether the ID is unset.
func (i ID) Zero() bool { return i.Ms == 0 && i.Seq == 0 }

func (i ID) String() string {
	return strconv.FormatInt(i.Ms, 10) + "-" + strconv.FormatUint(uint64(i.Seq), 10)
}

// Less reports whether i sorts before other.
func (i ID) Less(other ID) bool {
	if i.Ms != other.Ms {
		return i.Ms < other.Ms
	}
	return i.Seq < other.Seq
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	msPart, seqPart, ok := strings.Cut(s, "-")
	if !ok {
		return ID{}, ErrMalformed
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms < 0 {
		return ID{}, ErrMalformed
	}
	seq, err := strconv.ParseUint(seqPart, 10, 32)
	if err != nil {
		return ID{}, ErrMalformed
	}
	return ID{Ms: ms, Seq: uint32(seq)}, nil
}

// Generator hands out increasing IDs. The zero value uses the wall clock.
type Generator struct {
	mu    sync.Mutex
	now   func() time.Time
	last  ID
	begun bool
}

// NewGenerator returns a generator reading time from now; nil means time.Now.
func NewGenerator(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next returns an ID greater than every ID previously returned by g.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	ms := now().UnixMilli()

	switch {
	case !g.begun || ms > g.last.Ms:
		g.last = ID{Ms: ms}
	case g.last.Seq == ^uint32(0):
		// sequence exhausted within this millisecond: borrow the next one
		g.last = ID{Ms: g.last.Ms + 1}
	default:
		g.last.Seq++
	}
	g.begun = true
	return g.last
}
