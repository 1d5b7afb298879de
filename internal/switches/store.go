package switches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
)

var venueRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps venue switches in Redis: one JSON value per venue plus a set
// indexing the venues that have one.
type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateVenueID(id string) error {
	if !venueRe.MatchString(id) {
		return fmt.Errorf("invalid venue id")
	}
	return nil
}

// Disable turns a venue off until Enable is called.
func (s *Store) Disable(ctx context.Context, venueID, reason string) (*Switch, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return nil, err
	}

	sw := &Switch{VenueID: venueID, Disabled: true, Reason: reason, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(sw)
	if err != nil {
		return nil, fmt.Errorf("marshal switch: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, switchKey(venueID), b, 0)
	pipe.SAdd(ctx, constants.RedisKeySwitchIndex, venueID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("disable venue: %w", err)
	}
	return sw, nil
}

// Enable removes a venue's switch. Enabling an enabled venue is a no-op.
func (s *Store) Enable(ctx context.Context, venueID string) error {
	if err := ValidateVenueID(venueID); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, switchKey(venueID))
	pipe.SRem(ctx, constants.RedisKeySwitchIndex, venueID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enable venue: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, venueID string) (*Switch, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, switchKey(venueID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get switch: %w", err)
	}

	var sw Switch
	if err := json.Unmarshal([]byte(val), &sw); err != nil {
		return nil, fmt.Errorf("unmarshal switch: %w", err)
	}
	return &sw, nil
}

// IsDisabled reports whether the venue is switched off.
func (s *Store) IsDisabled(ctx context.Context, venueID string) (bool, error) {
	sw, err := s.Get(ctx, venueID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sw.Disabled, nil
}

// List returns every switched venue, sorted by id.
func (s *Store) List(ctx context.Context) ([]*Switch, error) {
	ids, err := s.client.SMembers(ctx, constants.RedisKeySwitchIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list switch index: %w", err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if ValidateVenueID(id) != nil {
			continue
		}
		keys = append(keys, switchKey(id))
	}
	if len(keys) == 0 {
		return []*Switch{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget switches: %w", err)
	}

	out := make([]*Switch, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var sw Switch
		if err := json.Unmarshal([]byte(str), &sw); err != nil {
			continue
		}
		out = append(out, &sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VenueID < out[j].VenueID })
	return out, nil
}

func switchKey(venueID string) string {
	return constants.RedisKeySwitchPrefix + venueID
}
