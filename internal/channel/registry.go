// Package channel keeps the named channel aliases and the last command seen on
// each channel.
package channel

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound indicates a requested alias was not found.
var ErrNotFound = errors.New("NOT_FOUND")

// ErrInvalidAlias indicates a bad alias name or target.
var ErrInvalidAlias = errors.New("INVALID_ALIAS")

// Channel is one addressable motor channel.
type Channel struct {
	Number     string    `json:"number"`
	Aliases    []string  `json:"aliases,omitempty"`
	LastAction string    `json:"lastAction,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty"`
	LastSeen   time.Time `json:"lastSeen,omitempty"`
}

// ChannelList represents the response format for GET /channels.
type ChannelList struct {
	MaxChannel int       `json:"maxChannel"`
	Items      []Channel `json:"items"`
}

// Registry maps aliases to channel numbers. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	maxChannel int
	aliases    map[string]string
	channels   map[string]*Channel
}

// NewRegistry creates a registry for channels 1..maxChannel.
func NewRegistry(maxChannel int) *Registry {
	return &Registry{
		maxChannel: maxChannel,
		aliases:    make(map[string]string),
		channels:   make(map[string]*Channel),
	}
}

// Register adds alias for channel number n.
func (r *Registry) Register(alias string, n int) error {
	key := normalize(alias)
	if key == "" {
		return fmt.Errorf("%w: empty alias", ErrInvalidAlias)
	}
	if _, err := strconv.Atoi(key); err == nil {
		return fmt.Errorf("%w: alias %q shadows a channel number", ErrInvalidAlias, alias)
	}
	if n < 1 || n > r.maxChannel {
		return fmt.Errorf("%w: alias %q targets channel %d, valid range is 1-%d", ErrInvalidAlias, alias, n, r.maxChannel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	number := strconv.Itoa(n)
	if prev, ok := r.aliases[key]; ok && prev != number {
		return fmt.Errorf("%w: alias %q already targets channel %s", ErrInvalidAlias, alias, prev)
	}
	r.aliases[key] = number
	ch := r.channelLocked(number)
	if !containsString(ch.Aliases, key) {
		ch.Aliases = append(ch.Aliases, key)
		sort.Strings(ch.Aliases)
	}
	return nil
}

// LoadAliases registers every entry of aliases, stopping at the first error.
func (r *Registry) LoadAliases(aliases map[string]int) error {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.Register(name, aliases[name]); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the channel number for an alias. Unknown names are reported
// as not found so callers can pass them through unchanged.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	number, ok := r.aliases[normalize(name)]
	return number, ok
}

// Lookup returns the channel an alias or number refers to.
func (r *Registry) Lookup(name string) (Channel, error) {
	number, ok := r.Resolve(name)
	if !ok {
		number = strings.TrimSpace(name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[number]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return ch.snapshot(), nil
}

// Record stores the latest command seen on channel number.
func (r *Registry) Record(number, action, status string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.channelLocked(number)
	ch.LastAction = action
	ch.LastStatus = status
	ch.LastSeen = at
}

// List returns all known channels ordered by number.
func (r *Registry) List() ChannelList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		items = append(items, ch.snapshot())
	}
	sort.Slice(items, func(i, j int) bool {
		a, errA := strconv.Atoi(items[i].Number)
		b, errB := strconv.Atoi(items[j].Number)
		if errA != nil || errB != nil {
			return items[i].Number < items[j].Number
		}
		return a < b
	})

	return ChannelList{MaxChannel: r.maxChannel, Items: items}
}

func (r *Registry) channelLocked(number string) *Channel {
	ch, ok := r.channels[number]
	if !ok {
		ch = &Channel{Number: number}
		r.channels[number] = ch
	}
	return ch
}

func (c *Channel) snapshot() Channel {
	out := *c
	out.Aliases = append([]string(nil), c.Aliases...)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
