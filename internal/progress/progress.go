// Package progress publishes workflow step events to Redis so that run
// progress can be followed live and read back while a run executes.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/lifecycle"
)

// Client is the subset of the go-redis API used for progress events.
type Client interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewClient creates a go-redis client from cfg. No connection is made
// until the first command.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// System hands out per-run publishers and reads stored progress.
type System struct {
	client  Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	ready   atomic.Bool
}

func New(client Client, cfg *Config, logger *slog.Logger) *System {
	return &System{
		client:  client,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTLDuration(),
		timeout: cfg.PublishTimeoutDuration(),
		logger:  logger.With("system", "progress"),
	}
}

// Channel is the pub/sub channel carrying events for runID.
func (s *System) Channel(runID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, runID)
}

func (s *System) stepsKey(runID string) string {
	return s.Channel(runID) + ":steps"
}

// Ready reports whether the last ping succeeded.
func (s *System) Ready() bool {
	return s.ready.Load()
}

// Start pings Redis during startup and closes the client on shutdown when
// it supports closing. An unreachable Redis leaves the system not ready
// but does not stop the service.
func (s *System) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting progress system")

	lc.OnStartup(func() {
		if err := s.client.Ping(lc.Context()).Err(); err != nil {
			s.logger.Error("redis ping failed", "error", err)
			return
		}
		s.ready.Store(true)
		s.logger.Info("redis connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.ready.Store(false)

		closer, ok := s.client.(interface{ Close() error })
		if !ok {
			return
		}
		if err := closer.Close(); err != nil {
			s.logger.Error("redis close failed", "error", err)
			return
		}
		s.logger.Info("redis connection closed")
	})

	return nil
}

// Snapshot returns the latest stored event of every step of runID, ordered
// by step number.
func (s *System) Snapshot(ctx context.Context, runID string) ([]engine.Event, error) {
	fields, err := s.client.HGetAll(ctx, s.stepsKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	events := make([]engine.Event, 0, len(fields))
	for step, raw := range fields {
		var ev engine.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode progress for %s: %w", step, err)
		}
		events = append(events, ev)
	}

	slices.SortFunc(events, func(a, b engine.Event) int {
		return a.Number - b.Number
	})
	return events, nil
}

// Publisher returns an engine observer bound to runID.
func (s *System) Publisher(runID string) *Publisher {
	return &Publisher{system: s, runID: runID}
}

// Observer is Publisher typed as engine.Observer.
func (s *System) Observer(runID string) engine.Observer {
	return s.Publisher(runID)
}

// Publisher sends engine events for one run. Each event is written in a
// single pipeline bounded by the publish timeout. Redis failures are logged
// and never reach the engine.
type Publisher struct {
	system *System
	runID  string
}

func (p *Publisher) Publish(ctx context.Context, ev engine.Event) {
	s := p.system

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode progress event failed", "run_id", p.runID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	key := s.stepsKey(p.runID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, ev.Step, data)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Publish(ctx, s.Channel(p.runID), data)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "publish progress event failed",
			"run_id", p.runID,
			"step", ev.Step,
			"error", err,
		)
	}
}

// Reset deletes the stored events of the run.
func (p *Publisher) Reset() {
	s := p.system
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.stepsKey(p.runID)).Err(); err != nil {
		s.logger.WarnContext(ctx, "reset progress failed", "run_id", p.runID, "error", err)
	}
}

var (
	_ engine.Observer            = (*Publisher)(nil)
	_ engine.Resetter            = (*Publisher)(nil)
	_ lifecycle.ReadinessChecker = (*System)(nil)
)
