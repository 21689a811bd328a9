package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewThreadID returns the correlation id used by stateful connectors
func NewThreadID() string {
	return uuid.New().String()
}

// NewMessageID returns a lexically sortable message id, ids generated later sort after earlier ones
func NewMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "msg_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
