package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ivr:session:"

// saveScript writes ARGV[1] with a PX of ARGV[2] unless the stored session
// is ended. Returns 0 when the write was refused.
var saveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and doc.state == 'ended' then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RedisStore keeps sessions as JSON values with a TTL so abandoned calls
// expire without a sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, callID string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", callID, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", callID, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", sess.CallID, err)
	}
	written, err := saveScript.Run(ctx, s.client, []string{keyPrefix + sess.CallID}, raw, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("session: save %s: %w", sess.CallID, err)
	}
	if written == 0 {
		return ErrEnded
	}
	return nil
}

func (s *RedisStore) End(ctx context.Context, callID string) error {
	raw, err := json.Marshal(tombstone(callID, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", callID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+callID, raw, TombstoneTTL).Err(); err != nil {
		return fmt.Errorf("session: end %s: %w", callID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	if err := s.client.Del(ctx, keyPrefix+callID).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", callID, err)
	}
	return nil
}
