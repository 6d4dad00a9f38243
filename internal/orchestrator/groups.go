package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/shiftsync/internal/model"
)

// groupResolver maps department names to destination scheduling groups,
// creating groups on first use. Resolved ids are cached per team under the
// normalised department name.
type groupResolver struct {
	dest    Destination
	rec     Recorder
	log     *slog.Logger
	cache   *expirable.LRU[string, string]
	flight  singleflight.Group
	retries int
	backoff time.Duration
}

func newGroupResolver(dest Destination, rec Recorder, log *slog.Logger, s Settings) *groupResolver {
	return &groupResolver{
		dest:    dest,
		rec:     rec,
		log:     log,
		cache:   expirable.NewLRU[string, string](max(s.GroupCacheSize, 1), nil, s.GroupCacheTTL),
		retries: max(s.GroupConflictRetries, 0),
		backoff: s.GroupConflictBackoff,
	}
}

func groupCacheKey(teamID, department string) string {
	return teamID + "|" + model.NormalizeName(department)
}

// resolve returns the group id for department. known holds ids already
// recorded in the tracked snapshot, keyed by normalised name; it is
// consulted before the destination.
func (g *groupResolver) resolve(ctx context.Context, teamID, department string, known map[string]string) (string, error) {
	key := groupCacheKey(teamID, department)
	if id, ok := g.cache.Get(key); ok {
		g.rec.GroupCacheLookup(true)
		return id, nil
	}
	g.rec.GroupCacheLookup(false)

	if id := known[model.NormalizeName(department)]; id != "" {
		g.cache.Add(key, id)
		return id, nil
	}

	v, err, _ := g.flight.Do(key, func() (any, error) {
		id, err := g.getOrCreate(ctx, teamID, strings.TrimSpace(department))
		if err != nil {
			return "", err
		}
		g.cache.Add(key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *groupResolver) getOrCreate(ctx context.Context, teamID, name string) (string, error) {
	id, err := g.dest.GetSchedulingGroupIDByName(ctx, teamID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("get scheduling group %q: %w", name, err)
	}

	id, err = g.dest.CreateSchedulingGroup(ctx, teamID, name)
	if errors.Is(err, ErrConflict) {
		// Another cycle created it between our read and write.
		id, err = g.dest.GetSchedulingGroupIDByName(ctx, teamID, name)
	}
	if err != nil {
		return "", fmt.Errorf("create scheduling group %q: %w", name, err)
	}
	g.log.Info("scheduling group created", "team", teamID, "group", name, "group_id", id)
	return id, nil
}

// addMembers adds users to a group, retrying conflicting writes with a
// fixed backoff. Running out of retries is fatal for the week.
func (g *groupResolver) addMembers(ctx context.Context, teamID, groupID string, userIDs []string) error {
	var err error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff):
			}
		}
		err = g.dest.AddUsersToSchedulingGroup(ctx, teamID, groupID, userIDs)
		if !errors.Is(err, ErrConflict) {
			if err != nil {
				return fmt.Errorf("add users to scheduling group %s: %w", groupID, err)
			}
			return nil
		}
		g.log.Warn("scheduling group conflict, retrying", "team", teamID, "group_id", groupID, "attempt", attempt+1)
	}
	return fmt.Errorf("add users to scheduling group %s after %d attempts: %w", groupID, g.retries+1, err)
}

// forget drops the cached groups of a team.
func (g *groupResolver) forget(teamID string) {
	prefix := teamID + "|"
	for _, key := range g.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			g.cache.Remove(key)
		}
	}
}
