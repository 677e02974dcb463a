package supervisor

import "sync"

// Registry is a thread-safe name -> Supervisor map, so operational endpoints
// can inspect subsystem supervisors created at different times.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]*Supervisor{}}
}

// Set registers (or replaces) a supervisor under name. A nil sup deletes.
func (r *Registry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *Registry) Delete(name string) { r.Set(name, nil) }

// Snapshots returns the debug snapshot of every registered supervisor.
func (r *Registry) Snapshots() map[string]Snapshot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.m))
	for k, v := range r.m {
		out[k] = v.Snapshot()
	}
	return out
}
