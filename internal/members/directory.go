// Package members resolves member profiles owned by the user service.
package members

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chat-engine/internal/cache"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/models"
)

// Directory looks up member profiles.
type Directory interface {
	GetMember(ctx context.Context, memberID int64) (models.Member, error)
	BulkMembers(ctx context.Context, memberIDs []int64) (map[int64]models.Member, error)
}

// Source is the upstream of a CachedDirectory, normally the user service.
type Source interface {
	BulkMembers(ctx context.Context, memberIDs []int64) (map[int64]models.Member, error)
}

// CachedDirectory fronts a Source with a member cache. Concurrent misses for
// the same id collapse into one upstream call.
type CachedDirectory struct {
	source Source
	cache  cache.MemberCache
	ttl    time.Duration
	sf     singleflight.Group
}

// NewCachedDirectory builds a directory. A nil cache disables caching.
func NewCachedDirectory(source Source, c cache.MemberCache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{source: source, cache: c, ttl: ttl}
}

func (d *CachedDirectory) GetMember(ctx context.Context, memberID int64) (models.Member, error) {
	if m, ok := d.fromCache(ctx, memberID); ok {
		return m, nil
	}

	result, err, _ := d.sf.Do(strconv.FormatInt(memberID, 10), func() (interface{}, error) {
		found, err := d.source.BulkMembers(ctx, []int64{memberID})
		if err != nil {
			return nil, err
		}
		m, ok := found[memberID]
		if !ok {
			return nil, chaterr.ErrMemberNotFound
		}
		d.store(ctx, m)
		return m, nil
	})
	if err != nil {
		return models.Member{}, err
	}
	return result.(models.Member), nil
}

func (d *CachedDirectory) BulkMembers(ctx context.Context, memberIDs []int64) (map[int64]models.Member, error) {
	out := make(map[int64]models.Member, len(memberIDs))
	var missing []int64
	for _, id := range memberIDs {
		if _, seen := out[id]; seen {
			continue
		}
		if m, ok := d.fromCache(ctx, id); ok {
			out[id] = m
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := d.source.BulkMembers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, m := range found {
		out[id] = m
		d.store(ctx, m)
	}
	return out, nil
}

func (d *CachedDirectory) fromCache(ctx context.Context, memberID int64) (models.Member, bool) {
	if d.cache == nil {
		return models.Member{}, false
	}
	m, err := d.cache.Get(ctx, memberID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logging.Ctx(ctx).Warn().Err(err).Int64(logging.FieldMemberID, memberID).Msg("member cache read failed")
		}
		return models.Member{}, false
	}
	return m, true
}

func (d *CachedDirectory) store(ctx context.Context, m models.Member) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, m, d.ttl); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64(logging.FieldMemberID, m.ID).Msg("member cache write failed")
	}
}

// StaticDirectory serves a fixed set of members. It backs the memory driver
// and tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[int64]models.Member
}

// NewStaticDirectory seeds a directory with members.
func NewStaticDirectory(members ...models.Member) *StaticDirectory {
	d := &StaticDirectory{members: make(map[int64]models.Member, len(members))}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

// Put adds or replaces a member.
func (d *StaticDirectory) Put(m models.Member) {
	d.mu.Lock()
	d.members[m.ID] = m
	d.mu.Unlock()
}

func (d *StaticDirectory) GetMember(_ context.Context, memberID int64) (models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[memberID]
	if !ok {
		return models.Member{}, chaterr.ErrMemberNotFound
	}
	return m, nil
}

func (d *StaticDirectory) BulkMembers(_ context.Context, memberIDs []int64) (map[int64]models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int64]models.Member, len(memberIDs))
	for _, id := range memberIDs {
		if m, ok := d.members[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}
