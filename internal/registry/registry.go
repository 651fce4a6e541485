package registry

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// Registry tracks which live connection handles belong to which user. It is
// sharded by user id so that operations on unrelated users never contend on
// the same lock, and it keeps an inverse handle→users index so that a handle
// can be purged exactly even when the disconnecting session's user identity
// is unknown.
type Registry struct {
	users   [shardCount]userShard
	handles [shardCount]handleShard
}

type userShard struct {
	mu      sync.RWMutex
	entries map[int64]map[string]struct{}
}

type handleShard struct {
	mu      sync.Mutex
	entries map[string]map[int64]struct{}
}

// New constructs an empty connection registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.users {
		r.users[i].entries = make(map[int64]map[string]struct{})
	}
	for i := range r.handles {
		r.handles[i].entries = make(map[string]map[int64]struct{})
	}
	return r
}

func (r *Registry) userShardFor(userID int64) *userShard {
	return &r.users[uint64(userID)%shardCount]
}

func (r *Registry) handleShardFor(handle string) *handleShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(handle))
	return &r.handles[hasher.Sum32()%shardCount]
}

// Join adds a handle to the user's connection set, creating the set when the
// user has no other live connections. Joining an already joined pair is a
// no-op.
func (r *Registry) Join(userID int64, handle string) {
	inverse := r.handleShardFor(handle)
	inverse.mu.Lock()
	if _, ok := inverse.entries[handle]; !ok {
		inverse.entries[handle] = make(map[int64]struct{})
	}
	inverse.entries[handle][userID] = struct{}{}
	inverse.mu.Unlock()

	shard := r.userShardFor(userID)
	shard.mu.Lock()
	if _, ok := shard.entries[userID]; !ok {
		shard.entries[userID] = make(map[string]struct{})
	}
	shard.entries[userID][handle] = struct{}{}
	shard.mu.Unlock()
}

// Leave removes a handle from the user's connection set. The user's entry is
// pruned as soon as its set becomes empty. Leaving a pair that was never
// joined is a no-op, not an error.
func (r *Registry) Leave(userID int64, handle string) {
	shard := r.userShardFor(userID)
	shard.mu.Lock()
	if handles, ok := shard.entries[userID]; ok {
		delete(handles, handle)
		if len(handles) == 0 {
			delete(shard.entries, userID)
		}
	}
	shard.mu.Unlock()

	inverse := r.handleShardFor(handle)
	inverse.mu.Lock()
	if owners, ok := inverse.entries[handle]; ok {
		delete(owners, userID)
		if len(owners) == 0 {
			delete(inverse.entries, handle)
		}
	}
	inverse.mu.Unlock()
}

// ConnectionsFor returns a snapshot of the user's live handles. The returned
// slice does not alias registry state, so callers may iterate it while joins
// and leaves proceed concurrently.
func (r *Registry) ConnectionsFor(userID int64) []string {
	shard := r.userShardFor(userID)
	shard.mu.RLock()
	handles := shard.entries[userID]
	if len(handles) == 0 {
		shard.mu.RUnlock()
		return nil
	}
	snapshot := make([]string, 0, len(handles))
	for handle := range handles {
		snapshot = append(snapshot, handle)
	}
	shard.mu.RUnlock()
	return snapshot
}

// LeaveAll removes a handle from every user's set it participates in, used on
// abrupt disconnects. Safe to call for a handle joined under zero or many
// users.
func (r *Registry) LeaveAll(handle string) {
	inverse := r.handleShardFor(handle)
	inverse.mu.Lock()
	owners := inverse.entries[handle]
	delete(inverse.entries, handle)
	inverse.mu.Unlock()

	for userID := range owners {
		shard := r.userShardFor(userID)
		shard.mu.Lock()
		if handles, ok := shard.entries[userID]; ok {
			delete(handles, handle)
			if len(handles) == 0 {
				delete(shard.entries, userID)
			}
		}
		shard.mu.Unlock()
	}
}
