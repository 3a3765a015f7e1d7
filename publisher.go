package pojie

import (
	"context"
	"time"

	ikeys "github.com/Pojie/pojie-go/internal/keys"
	"github.com/Pojie/pojie-go/internal/mirror"
	"github.com/redis/go-redis/v9"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Session namespaces the Redis keys; several engines can share a server.
	Session string
	// TTL refreshes the expiry of the mirrored hashes on every write. Zero keeps them.
	TTL time.Duration
	// MinInterval coalesces bursts of changes. Zero writes every snapshot.
	MinInterval time.Duration
	Logger      Logger
}

// Publisher mirrors an engine's progress and results into Redis and announces
// every snapshot on a pub/sub channel.
type Publisher struct {
	rdb    redis.UniversalClient
	engine *Engine
	keys   ikeys.Session
	cfg    PublisherConfig
	log    Logger
}

// NewPublisher creates a publisher for engine.
func NewPublisher(rdb redis.UniversalClient, engine *Engine, cfg PublisherConfig) *Publisher {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	l := cfg.Logger
	if l == nil {
		l = noopLogger{}
	}
	return &Publisher{rdb: rdb, engine: engine, keys: ikeys.For(cfg.Session), cfg: cfg, log: l}
}

// Publish writes the current state once.
func (p *Publisher) Publish(ctx context.Context) error {
	u := mirror.FromSnapshot(p.engine.store.Snapshot(), p.engine.store.Results())
	return mirror.WriteSnapshot(ctx, p.rdb, p.keys, u, p.cfg.TTL)
}

// Run publishes every change until ctx is done. Write errors are logged and
// the next change is tried again.
func (p *Publisher) Run(ctx context.Context) error {
	p.log.Infof("progress publisher running: session=%s", p.cfg.Session)
	var last time.Time
	for snap := range p.engine.store.Changes(ctx) {
		if p.cfg.MinInterval > 0 {
			if wait := time.Until(last.Add(p.cfg.MinInterval)); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
				snap = p.engine.store.Snapshot()
			}
		}
		last = time.Now()
		u := mirror.FromSnapshot(snap, p.engine.store.Results())
		if err := mirror.WriteSnapshot(ctx, p.rdb, p.keys, u, p.cfg.TTL); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Warnf("publish failed: session=%s version=%d err=%v", p.cfg.Session, snap.Version, err)
		}
	}
	return ctx.Err()
}

// ProgressReader follows a session mirrored by a Publisher, possibly from
// another process.
type ProgressReader struct {
	rdb     redis.UniversalClient
	keys    ikeys.Session
	encoder Encoder
}

// NewProgressReader creates a reader for session.
func NewProgressReader(rdb redis.UniversalClient, session string) *ProgressReader {
	if session == "" {
		session = "default"
	}
	return &ProgressReader{rdb: rdb, keys: ikeys.For(session), encoder: &JSONEncoder{}}
}

// List returns the mirrored progress ordered by target.
func (r *ProgressReader) List(ctx context.Context) ([]Progress, error) {
	recs, err := mirror.ReadProgress(ctx, r.rdb, r.keys)
	if err != nil {
		return nil, err
	}
	return progressFromRecs(recs), nil
}

// Results returns the mirrored results ordered by target.
func (r *ProgressReader) Results(ctx context.Context) ([]Result, error) {
	recs, err := mirror.ReadResults(ctx, r.rdb, r.keys)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Result{
			Target:     rec.Target,
			Tip:        rec.Tip,
			Credential: rec.Credential,
			Outcome:    Outcome(rec.Outcome),
			Cursor:     rec.Cursor,
			At:         fromMillis(rec.AtMs),
		})
	}
	return out, nil
}

// Subscribe streams every published snapshot until ctx is done. Undecodable
// messages are skipped.
func (r *ProgressReader) Subscribe(ctx context.Context) (<-chan []Progress, error) {
	sub := r.rdb.Subscribe(ctx, r.keys.Updates)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan []Progress, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u mirror.Update
				if err := r.encoder.Decode([]byte(msg.Payload), &u); err != nil {
					continue
				}
				select {
				case out <- progressFromRecs(u.Progress):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func progressFromRecs(recs []mirror.ProgressRec) []Progress {
	out := make([]Progress, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Progress{
			Target:      rec.Target,
			Cursor:      rec.Cursor,
			Total:       rec.Total,
			Retry:       rec.Retry,
			Status:      Status(rec.Status),
			Tip:         rec.Tip,
			Attempts:    rec.Attempts,
			LastAttempt: fromMillis(rec.LastAttemptMs),
			CreatedAt:   fromMillis(rec.CreatedAt),
		})
	}
	return out
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
