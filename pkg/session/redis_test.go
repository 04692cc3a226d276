package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/troikatech/voice-ivr/pkg/ai"
)

// Requires a reachable Redis; set IVR_TEST_REDIS_URL to run.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("IVR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("IVR_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, time.Minute)
	callID := "CA-test-" + time.Now().Format("150405.000000")

	if err := store.Save(ctx, &Session{
		CallID:  callID,
		State:   StateListening,
		History: []ai.Message{{Role: ai.RoleSystem, Content: "policy"}},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ttl, err := client.TTL(ctx, keyPrefix+callID).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected ttl %v (err %v)", ttl, err)
	}

	got, err := store.Get(ctx, callID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateListening || len(got.History) != 1 {
		t.Errorf("unexpected session %+v", got)
	}

	if err := store.End(ctx, callID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := store.Save(ctx, &Session{CallID: callID, State: StateListening}); !errors.Is(err, ErrEnded) {
		t.Fatalf("Save after End = %v, want ErrEnded", err)
	}
	got, err = store.Get(ctx, callID)
	if err != nil || got.State != StateEnded {
		t.Fatalf("tombstone = %+v, %v", got, err)
	}
	ttl, err = client.TTL(ctx, keyPrefix+callID).Result()
	if err != nil || ttl <= 0 || ttl > TombstoneTTL {
		t.Errorf("unexpected tombstone ttl %v (err %v)", ttl, err)
	}

	if err := store.Delete(ctx, callID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, callID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
