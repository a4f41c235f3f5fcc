package main

import (
	"context"
	"sync"
	"time"
)

// Registry is the process-wide mapping from bot name to running bot
// instance. Registration happens once per name at process start; a second
// registration with the same name is a no-op.
type Registry struct {
	mutex sync.RWMutex
	bots  map[string]*Bot
}

// NewRegistry creates an empty fleet registry
func NewRegistry() *Registry {
	return &Registry{
		bots: make(map[string]*Bot),
	}
}

// Register inserts the bot under its name. Returns true when the bot was
// inserted, false when the name was already taken (the existing instance
// stays live).
func (r *Registry) Register(bot *Bot) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.bots[bot.Name]; exists {
		return false
	}
	r.bots[bot.Name] = bot
	return true
}

// Get returns the bot registered under name, or nil
func (r *Registry) Get(name string) *Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.bots[name]
}

// First returns any registered bot, or nil when the registry is empty.
// Iteration order is arbitrary; callers must not rely on it.
func (r *Registry) First() *Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, bot := range r.bots {
		return bot
	}
	return nil
}

// All returns a snapshot of every registered bot
func (r *Registry) All() []*Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	bots := make([]*Bot, 0, len(r.bots))
	for _, bot := range r.bots {
		bots = append(bots, bot)
	}
	return bots
}

// Count returns the number of registered bots
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.bots)
}

// FindBySteamID returns the bot whose resolved platform identity matches id,
// or nil
func (r *Registry) FindBySteamID(id uint64) *Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, bot := range r.bots {
		if bot.SteamID64() == id {
			return bot
		}
	}
	return nil
}

// LoginThrottle is the fleet-wide single-slot gate in front of logon
// handshakes. Acquiring takes the slot; the slot re-arms itself a fixed
// delay after acquisition regardless of how the handshake went, which bounds
// the fleet-wide logon rate no matter how many bots exist.
type LoginThrottle struct {
	slot  chan struct{}
	delay time.Duration
}

// NewLoginThrottle creates an armed throttle with the given re-arm delay
func NewLoginThrottle(delay time.Duration) *LoginThrottle {
	t := &LoginThrottle{
		slot:  make(chan struct{}, 1),
		delay: delay,
	}
	t.slot <- struct{}{}
	return t
}

// Acquire blocks until the slot is free or ctx is cancelled. On success the
// slot is scheduled to re-arm after the configured delay.
func (t *LoginThrottle) Acquire(ctx context.Context) error {
	select {
	case <-t.slot:
		time.AfterFunc(t.delay, func() {
			t.slot <- struct{}{}
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
