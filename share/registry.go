package share

import (
	"github.com/google/uuid"

	"github.com/cppla/sharedrop/models"
)

// Registry mints session identifiers. Nothing is written anywhere: a room only
// materializes when a file is announced to it.
type Registry struct {
	clock Clock
}

// NewRegistry returns a registry stamping sessions with clock.
func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = RealClock
	}
	return &Registry{clock: clock}
}

// Create returns a new session with a random v4 UUID.
func (r *Registry) Create() models.Session {
	return models.Session{
		SessionID: uuid.NewString(),
		CreatedAt: models.MilliOf(r.clock.Now()),
	}
}

// ValidSessionID reports whether id looks like something Create produced.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
