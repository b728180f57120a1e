package ws

import (
	"context"
	"errors"
	"sort"
	"sync"

	"chat-engine/internal/logging"
	"chat-engine/internal/observability"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

// Conn is a registered connection endpoint. Send must not block.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Registry maps rooms to their live connections. Each room has its own
// bucket and lock; there is no registry-wide lock on the broadcast path.
type Registry struct {
	rooms sync.Map // int64 -> *bucket

	mu     sync.Mutex
	byConn map[string]map[int64]struct{}
}

type bucket struct {
	mu     sync.RWMutex
	conns  map[string]entry
	closed bool
}

type entry struct {
	conn     Conn
	memberID int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]map[int64]struct{})}
}

// Register adds conn, owned by memberID, to the room's broadcast set.
func (r *Registry) Register(roomID, memberID int64, conn Conn) {
	for {
		v, _ := r.rooms.LoadOrStore(roomID, &bucket{conns: make(map[string]entry)})
		b := v.(*bucket)
		b.mu.Lock()
		if b.closed {
			// lost a race with the last unregister of this room
			b.mu.Unlock()
			continue
		}
		b.conns[conn.ID()] = entry{conn: conn, memberID: memberID}
		b.mu.Unlock()
		break
	}

	r.mu.Lock()
	rooms, ok := r.byConn[conn.ID()]
	if !ok {
		rooms = make(map[int64]struct{})
		r.byConn[conn.ID()] = rooms
	}
	rooms[roomID] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes conn from every room. Rooms left empty are dropped.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	rooms := r.byConn[conn.ID()]
	delete(r.byConn, conn.ID())
	r.mu.Unlock()

	for roomID := range rooms {
		v, ok := r.rooms.Load(roomID)
		if !ok {
			continue
		}
		b := v.(*bucket)
		b.mu.Lock()
		delete(b.conns, conn.ID())
		r.dropIfEmpty(roomID, b)
		b.mu.Unlock()
	}
}

// Evict removes the member's connections from one room and returns them.
// The connections stay registered in any other room.
func (r *Registry) Evict(roomID, memberID int64) []Conn {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return nil
	}
	b := v.(*bucket)
	var evicted []Conn
	b.mu.Lock()
	for id, e := range b.conns {
		if e.memberID == memberID {
			evicted = append(evicted, e.conn)
			delete(b.conns, id)
		}
	}
	r.dropIfEmpty(roomID, b)
	b.mu.Unlock()

	r.mu.Lock()
	for _, c := range evicted {
		if rooms, ok := r.byConn[c.ID()]; ok {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(r.byConn, c.ID())
			}
		}
	}
	r.mu.Unlock()
	return evicted
}

// dropIfEmpty must be called with b.mu held.
func (r *Registry) dropIfEmpty(roomID int64, b *bucket) {
	if len(b.conns) == 0 && !b.closed {
		b.closed = true
		r.rooms.CompareAndDelete(roomID, b)
	}
}

// Broadcast sends payload to every connection of the room and returns how
// many accepted it. Failures are logged and never returned.
func (r *Registry) Broadcast(ctx context.Context, roomID int64, payload []byte) int {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns))
	for _, e := range b.conns {
		targets = append(targets, e.conn)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Int64(logging.FieldRoomID, roomID).
				Str(logging.FieldConnID, c.ID()).
				Msg("broadcast delivery failed")
			continue
		}
		delivered++
	}
	observability.AddBroadcastDeliveries(delivered, len(targets)-delivered)
	return delivered
}

// Count returns the number of connections registered to the room.
func (r *Registry) Count(roomID int64) int {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Rooms lists rooms that currently have connections.
func (r *Registry) Rooms() []int64 {
	var ids []int64
	r.rooms.Range(func(key, _ any) bool {
		ids = append(ids, key.(int64))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Shutdown closes every registered connection. Their read loops then run the
// normal disconnect path.
func (r *Registry) Shutdown() {
	r.rooms.Range(func(_, v any) bool {
		b := v.(*bucket)
		b.mu.RLock()
		conns := make([]Conn, 0, len(b.conns))
		for _, e := range b.conns {
			conns = append(conns, e.conn)
		}
		b.mu.RUnlock()
		for _, c := range conns {
			_ = c.Close()
		}
		return true
	})
}
