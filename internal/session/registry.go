// registry.go
//
// Registry of live session cores
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Factory builds a Core with its own identity handle
type Factory func() (*Core, error)

type entry struct {
	core     *Core
	lastSeen time.Time
}

// Registry maps opaque session ids (the session cookie) to Cores
type Registry struct {
	factory Factory
	log     *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry(factory Factory, log *zap.Logger) *Registry {
	return &Registry{factory: factory, log: log, entries: make(map[string]*entry)}
}

// Create starts a new Core under a fresh id
func (r *Registry) Create() (string, *Core, error) {
	core, err := r.factory()
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = &entry{core: core, lastSeen: time.Now()}
	r.mu.Unlock()
	return id, core, nil
}

// Get returns the Core for id and marks it used
func (r *Registry) Get(id string) (*Core, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.core, true
}

// Remove closes and forgets the Core for id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.core.Close()
	}
}

// Len is the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes sessions unused for longer than maxIdle and returns how many it closed
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Core
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.core)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, core := range stale {
		core.Close()
	}
	if len(stale) > 0 {
		r.log.Info("closed idle sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Close closes every session
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.core.Close()
	}
}
