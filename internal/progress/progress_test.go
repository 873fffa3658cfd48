package progress_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/taxdraft/internal/progress"
	"github.com/JaimeStill/taxdraft/pkg/engine"
)

type fakeRedis struct {
	mu        sync.Mutex
	hashes    map[string]map[string]string
	published map[string][]string
	expiries  map[string]time.Duration
	fail      error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes:    make(map[string]map[string]string),
		published: make(map[string][]string),
		expiries:  make(map[string]time.Duration),
	}
}

func str(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	return ""
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	f.published[channel] = append(f.published[channel], str(message))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[str(values[i])] = str(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries[key] = d
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewMapStringStringResult(nil, f.fail)
	}
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

// fakePipe applies queued commands to the fake directly.
type fakePipe struct {
	redis.Pipeliner
	f *fakeRedis
}

func (p fakePipe) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	return p.f.HSet(ctx, key, values...)
}

func (p fakePipe) Expire(ctx context.Context, key string, d time.Duration) *redis.BoolCmd {
	return p.f.Expire(ctx, key, d)
}

func (p fakePipe) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	return p.f.Publish(ctx, channel, message)
}

func (f *fakeRedis) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	if err := fn(fakePipe{f: f}); err != nil {
		return nil, err
	}
	return nil, f.fail
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.fail)
}

func newSystem(t *testing.T, client progress.Client) *progress.System {
	t.Helper()
	cfg := &progress.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	return progress.New(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublisherStoresAndPublishes(t *testing.T) {
	rdb := newFakeRedis()
	sys := newSystem(t, rdb)
	pub := sys.Publisher("run-1")
	ctx := context.Background()

	d := 1500 * time.Millisecond
	pub.Publish(ctx, engine.Event{Step: "DraftForms", Number: 2, Total: 4, Status: engine.StatusRunning})
	pub.Publish(ctx, engine.Event{Step: "ExtractData", Number: 1, Total: 4, Status: engine.StatusCompleted, ExecutionTime: &d})
	pub.Publish(ctx, engine.Event{Step: "DraftForms", Number: 2, Total: 4, Status: engine.StatusFailed, Error: "model offline"})

	if got := len(rdb.published[sys.Channel("run-1")]); got != 3 {
		t.Errorf("published = %d, want 3", got)
	}
	if rdb.expiries["taxdraft:progress:run-1:steps"] != 24*time.Hour {
		t.Errorf("ttl = %v", rdb.expiries["taxdraft:progress:run-1:steps"])
	}

	events, err := sys.Snapshot(ctx, "run-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want latest per step", len(events))
	}

	if events[0].Step != "ExtractData" || events[0].ExecutionTime == nil || *events[0].ExecutionTime != d {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Status != engine.StatusFailed || events[1].Error != "model offline" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestPublisherReset(t *testing.T) {
	rdb := newFakeRedis()
	sys := newSystem(t, rdb)
	pub := sys.Publisher("run-2")

	pub.Publish(context.Background(), engine.Event{Step: "Diagnostics", Number: 3, Total: 4, Status: engine.StatusCompleted})
	pub.Reset()

	events, err := sys.Snapshot(context.Background(), "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("events after reset = %v", events)
	}
}

func TestPublisherSwallowsRedisErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.fail = errors.New("connection refused")
	sys := newSystem(t, rdb)

	sys.Publisher("run-3").Publish(context.Background(), engine.Event{Step: "Adjustments", Status: engine.StatusRunning})

	if _, err := sys.Snapshot(context.Background(), "run-3"); err == nil {
		t.Error("expected snapshot error")
	}
}

// slowRedis blocks every pipeline until its context ends.
type slowRedis struct {
	*fakeRedis
}

func (s slowRedis) TxPipelined(ctx context.Context, _ func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPublisherBoundsSlowRedis(t *testing.T) {
	cfg := &progress.Config{PublishTimeout: "20ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	sys := progress.New(slowRedis{newFakeRedis()}, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pub := sys.Publisher("run-4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	for _, status := range []engine.Status{engine.StatusRunning, engine.StatusCompleted} {
		pub.Publish(ctx, engine.Event{Step: "ExtractData", Number: 1, Total: 4, Status: status})
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("two publishes took %s, want each bounded by 20ms", elapsed)
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_PROGRESS_ADDR", "redis:6380")
	t.Setenv("TEST_PROGRESS_DB", "2")

	env := &progress.Env{Addr: "TEST_PROGRESS_ADDR", DB: "TEST_PROGRESS_DB", TTL: "TEST_PROGRESS_TTL"}

	cfg := &progress.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if cfg.Addr != "redis:6380" || cfg.DB != 2 || cfg.Prefix != "taxdraft:progress" {
		t.Errorf("cfg = %+v", cfg)
	}

	if cfg.PublishTimeoutDuration() != 500*time.Millisecond {
		t.Errorf("publish timeout = %s, want 500ms", cfg.PublishTimeoutDuration())
	}

	t.Setenv("TEST_PROGRESS_TTL", "-1h")
	if err := (&progress.Config{}).Finalize(env); err == nil {
		t.Error("expected negative ttl to fail")
	}

	if err := (&progress.Config{PublishTimeout: "soon"}).Finalize(nil); err == nil {
		t.Error("expected invalid publish_timeout to fail")
	}
}
