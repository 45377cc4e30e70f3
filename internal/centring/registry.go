package centring

import (
	"strconv"
	"sync"

	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

// CentredPosition is a named snapshot of the motors that define a centred
// sample.
type CentredPosition struct {
	Name           string                   `json:"name"`
	MotorPositions diffractometer.Positions `json:"motorPositions"`
}

func (p CentredPosition) clone() CentredPosition {
	return CentredPosition{Name: p.Name, MotorPositions: p.MotorPositions.Clone()}
}

// Registry is the ordered list of saved centred positions. Insertion order
// is preserved. All methods are safe for concurrent use and return copies.
type Registry struct {
	mu      sync.RWMutex
	entries []CentredPosition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends positions under the generated name pos<len+1> and returns
// the name.
func (r *Registry) Add(positions diffractometer.Positions) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := "pos" + strconv.Itoa(len(r.entries)+1)
	r.entries = append(r.entries, CentredPosition{Name: name, MotorPositions: positions.Clone()})
	return name
}

// Delete removes every entry named name and returns how many were removed.
func (r *Registry) Delete(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	removed := len(r.entries) - len(kept)
	// Clear the tail so dropped maps can be collected.
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = CentredPosition{}
	}
	r.entries = kept
	return removed
}

// Rename sets the name of every entry named oldName to newName and returns
// how many were renamed. newName may already be in use.
func (r *Registry) Rename(oldName, newName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.entries {
		if r.entries[i].Name == oldName {
			r.entries[i].Name = newName
			n++
		}
	}
	return n
}

// Lookup returns every entry named name, in registry order.
func (r *Registry) Lookup(name string) []CentredPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []CentredPosition
	for _, e := range r.entries {
		if e.Name == name {
			out = append(out, e.clone())
		}
	}
	return out
}

// List returns all entries in registry order.
func (r *Registry) List() []CentredPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CentredPosition, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
