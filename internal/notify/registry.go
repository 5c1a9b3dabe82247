package notify

import "sort"

// Registry maps a client address to its current observer. It is not safe for
// concurrent use; the scheduling loop owns it.
type Registry struct {
	observers map[string]Observer
}

func NewRegistry() *Registry {
	return &Registry{observers: make(map[string]Observer)}
}

// Set registers o for client, silently replacing any previous observer.
func (r *Registry) Set(client string, o Observer) {
	r.observers[client] = o
}

func (r *Registry) Get(client string) (Observer, bool) {
	o, ok := r.observers[client]
	return o, ok
}

// Remove drops client's observer if it is still o. A nil o removes
// unconditionally. Reports whether anything was removed.
func (r *Registry) Remove(client string, o Observer) bool {
	cur, ok := r.observers[client]
	if !ok {
		return false
	}
	if o != nil && cur != o {
		return false
	}
	delete(r.observers, client)
	return true
}

// Clients returns the registered addresses, sorted.
func (r *Registry) Clients() []string {
	out := make([]string, 0, len(r.observers))
	for c := range r.observers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int { return len(r.observers) }
