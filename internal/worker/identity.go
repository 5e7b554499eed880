package worker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// identityRegistry hands out stable short worker labels, one per
// execution slot. A slot keeps its label for the life of the process so
// log lines and traces correlate to one concurrent executor. First
// assignment is guarded: concurrent first-touches from multiple slots
// must not race.
type identityRegistry struct {
	mu    sync.Mutex
	slots map[int]string
}

func newIdentityRegistry() *identityRegistry {
	return &identityRegistry{slots: make(map[int]string)}
}

// For returns the label for a slot, assigning one on first use.
func (r *identityRegistry) For(slot int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.slots[slot]; ok {
		return id
	}
	id := fmt.Sprintf("W-%s", uuid.New().String()[:6])
	r.slots[slot] = id
	return id
}
