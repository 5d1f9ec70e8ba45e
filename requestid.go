package gateway

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// sequenceModulus bounds request sequence numbers to 8 decimal digits.
const sequenceModulus = 100_000_000

// Sequence yields request sequence numbers in [0, 100000000).
type Sequence interface {
	Next() uint64
}

// atomicSequence is a wrapping counter safe for concurrent use.
type atomicSequence struct {
	n atomic.Uint64
}

// NewSequence returns a Sequence starting at 1. Clients that share one
// Sequence share one numbering.
func NewSequence() Sequence {
	return &atomicSequence{}
}

func (s *atomicSequence) Next() uint64 {
	return s.n.Add(1) % sequenceModulus
}

// requestIDs formats request-tracking identifiers:
//
//	{8 hex random}-{client id}-{seq high 4}-{seq low 4}-{unix millis}
type requestIDs struct {
	clientID string
	seq      Sequence
	now      func() time.Time
}

func newRequestIDs(clientID string, seq Sequence) *requestIDs {
	return &requestIDs{clientID: clientID, seq: seq, now: time.Now}
}

func (g *requestIDs) next() string {
	n := g.seq.Next() % sequenceModulus
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%04d-%04d-%d",
		random, g.clientID, n/10000, n%10000, g.now().UnixMilli())
}
