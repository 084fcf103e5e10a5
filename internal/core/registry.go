// Package core holds the channel registry and broadcast engine: the single
// shared mutable state of the relay, accessed by every session goroutine.
package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/proto"
)

// DefaultChannel is the well-known channel that exists for the lifetime of
// the server and doubles as the directory for channel-list broadcasts.
const DefaultChannel = "default"

// ChannelSeed describes a channel created at registry construction.
type ChannelSeed struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Cover string `mapstructure:"cover" yaml:"cover"`
}

// ChannelInfo is a read-only view of one channel for introspection.
type ChannelInfo struct {
	Name     string `json:"name"`
	Cover    string `json:"cover,omitempty"`
	Members  int    `json:"members"`
	Messages int    `json:"messages"`
}

type channel struct {
	name     string
	cover    string
	messages []proto.Message
	members  map[string]*Outbox
}

func (ch *channel) snapshot() proto.Channel {
	var history []proto.Message
	if len(ch.messages) > 0 {
		history = make([]proto.Message, len(ch.messages))
		copy(history, ch.messages)
	}
	return proto.Channel{Name: ch.name, Cover: ch.cover, Messages: history}
}

// broadcast pushes f to every member except sender. Pushes never block, so
// this is safe to run while holding the registry lock.
func (ch *channel) broadcast(sender string, f *proto.Frame) {
	for identity, out := range ch.members {
		if identity != sender {
			out.Push(f)
		}
	}
}

// Registry is the authoritative map from channel name to channel state. A
// single mutex serializes every mutation, which is what gives broadcasts
// their per-channel total order; no I/O happens while the lock is held.
type Registry struct {
	mu           sync.Mutex
	channels     map[string]*channel
	defaultName  string
	historyLimit int
	log          *zerolog.Logger
}

// NewRegistry builds a registry seeded with the given channels. The first
// seed becomes the directory channel; with no seeds a single DefaultChannel
// is created. historyLimit caps per-channel history, 0 means unbounded.
func NewRegistry(logger *zerolog.Logger, historyLimit int, seeds ...ChannelSeed) *Registry {
	if len(seeds) == 0 {
		seeds = []ChannelSeed{{Name: DefaultChannel}}
	}

	r := &Registry{
		channels:     make(map[string]*channel, len(seeds)),
		defaultName:  seeds[0].Name,
		historyLimit: historyLimit,
		log:          logger,
	}
	for _, seed := range seeds {
		if _, ok := r.channels[seed.Name]; ok {
			continue
		}
		r.channels[seed.Name] = &channel{
			name:    seed.Name,
			cover:   seed.Cover,
			members: make(map[string]*Outbox),
		}
	}
	return r
}

// Snapshot returns every channel's metadata and history, sorted by name.
// This is the payload of the Bulk frame sent after authorization.
func (r *Registry) Snapshot() []proto.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []proto.Channel {
	channels := make([]proto.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch.snapshot())
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels
}

// Register joins the identity to every channel and returns the snapshot the
// membership is consistent with. Done under one lock acquisition: every
// broadcast committed after the returned snapshot reaches the new member's
// outbox, and none is duplicated into both snapshot and outbox.
func (r *Registry) Register(identity string, out *Outbox) []proto.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		ch.members[identity] = out
	}
	return r.snapshotLocked()
}

// Join registers the identity's outbox with a single named channel.
func (r *Registry) Join(name, identity string, out *Outbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		return ErrChannelNotFound
	}
	ch.members[identity] = out
	return nil
}

// Leave removes the identity from every channel's member set. Idempotent;
// broadcasts committed after this call will not reach the identity.
func (r *Registry) Leave(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		delete(ch.members, identity)
	}
}

// IsMember reports whether identity is currently in the named channel.
func (r *Registry) IsMember(name, identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	_, ok = ch.members[identity]
	return ok
}

// Publish appends msg to the channel's history and pushes a Message frame to
// every member except the sender, atomically under the registry lock. A
// missing channel returns ErrChannelNotFound and leaves no trace; the caller
// reports it to the sender only.
func (r *Registry) Publish(name, sender string, msg proto.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return ErrChannelNotFound
	}

	if r.historyLimit > 0 && len(ch.messages) >= r.historyLimit {
		ch.messages = ch.messages[1:]
	}
	ch.messages = append(ch.messages, msg)
	ch.broadcast(sender, proto.MessageFrame(msg))
	return nil
}

// Broadcast pushes f to every member of the named channel except sender,
// without touching history.
func (r *Registry) Broadcast(name, sender string, f *proto.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return ErrChannelNotFound
	}
	ch.broadcast(sender, f)
	return nil
}

// BroadcastAll pushes f to every member of every channel except sender; each
// identity receives at most one copy. Used for Disconnect announcements.
func (r *Registry) BroadcastAll(sender string, f *proto.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	for _, ch := range r.channels {
		for identity, out := range ch.members {
			if identity == sender {
				continue
			}
			if _, dup := seen[identity]; dup {
				continue
			}
			seen[identity] = struct{}{}
			out.Push(f)
		}
	}
}

// CreateChannel inserts a new channel. Duplicate names are rejected with
// ErrChannelExists. The new channel inherits the directory channel's current
// members, and the refreshed channel list is broadcast to directory members
// except the creator, whose copy is returned for a direct reply.
func (r *Registry) CreateChannel(ch proto.Channel, creator string) ([]proto.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[ch.Name]; ok {
		return nil, ErrChannelExists
	}

	members := make(map[string]*Outbox)
	dir := r.channels[r.defaultName]
	if dir != nil {
		for identity, out := range dir.members {
			members[identity] = out
		}
	}

	r.channels[ch.Name] = &channel{
		name:    ch.Name,
		cover:   ch.Cover,
		members: members,
	}
	r.log.Info().Str("channel", ch.Name).Int("members", len(members)).Msg("channel created")

	snapshot := r.snapshotLocked()
	if dir != nil {
		dir.broadcast(creator, proto.BulkFrame(nil, snapshot))
	}
	return snapshot, nil
}

// Channels returns per-channel member and message counts, sorted by name.
func (r *Registry) Channels() []ChannelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]ChannelInfo, 0, len(r.channels))
	for _, ch := range r.channels {
		infos = append(infos, ChannelInfo{
			Name:     ch.name,
			Cover:    ch.cover,
			Members:  len(ch.members),
			Messages: len(ch.messages),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
