package live

import "sync"

// LiveUser is the display metadata broadcast for an active stream.
type LiveUser struct {
	UserID         uint   `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Registry tracks who is currently live. The state is process-local and
// rebuilt empty on restart; it represents transient presence, not
// durable data.
type Registry struct {
	mu    sync.RWMutex
	order []uint
	users map[uint]LiveUser
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[uint]LiveUser)}
}

// Start marks a user live. Returns false if they already were, in which
// case nothing changes and no event should be emitted.
func (r *Registry) Start(user LiveUser) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.UserID]; exists {
		return false
	}
	r.users[user.UserID] = user
	r.order = append(r.order, user.UserID)
	return true
}

// Stop removes a user from the live list. Stopping a user who is not
// live is a no-op.
func (r *Registry) Stop(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[userID]; !exists {
		return
	}
	delete(r.users, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(userID uint) (LiveUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	return user, ok
}

// Active returns the live users in the order they went live.
func (r *Registry) Active() []LiveUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]LiveUser, 0, len(r.order))
	for _, id := range r.order {
		active = append(active, r.users[id])
	}
	return active
}
