// Package mirror writes store snapshots into Redis so other processes can
// follow a session, and reads them back.
package mirror

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Pojie/pojie-go/internal/keys"
	"github.com/Pojie/pojie-go/internal/store"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// ProgressRec is the wire form of one task.
type ProgressRec struct {
	Target        string `json:"target"`
	Cursor        int    `json:"cursor"`
	Total         int    `json:"total"`
	Retry         int    `json:"retry"`
	Status        string `json:"status"`
	Tip           string `json:"tip,omitempty"`
	Attempts      int    `json:"attempts"`
	CreatedAt     int64  `json:"created_at,omitempty"`
	LastAttemptMs int64  `json:"last_attempt_ms,omitempty"`
}

// ResultRec is the wire form of a finished target.
type ResultRec struct {
	Target     string `json:"target"`
	Tip        string `json:"tip"`
	Credential string `json:"credential,omitempty"`
	Outcome    string `json:"outcome"`
	Cursor     int    `json:"cursor"`
	AtMs       int64  `json:"at_ms"`
}

// Update is the message published on the updates channel.
type Update struct {
	Version  uint64        `json:"version"`
	AtMs     int64         `json:"at_ms"`
	Progress []ProgressRec `json:"progress"`
	Results  []ResultRec   `json:"results,omitempty"`
}

// FromSnapshot converts a store snapshot and the current results.
func FromSnapshot(snap store.Snapshot, results []store.Result) *Update {
	u := &Update{Version: snap.Version, AtMs: time.Now().UnixMilli()}
	u.Progress = make([]ProgressRec, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		u.Progress = append(u.Progress, ProgressRec{
			Target:        t.Target,
			Cursor:        t.Cursor,
			Total:         len(t.Candidates),
			Retry:         t.Retry,
			Status:        string(t.Status),
			Tip:           t.Tip,
			Attempts:      t.Attempts,
			CreatedAt:     unixMilli(t.CreatedAt),
			LastAttemptMs: unixMilli(t.LastAttempt),
		})
	}
	for _, r := range results {
		u.Results = append(u.Results, ResultRec{
			Target:     r.Target,
			Tip:        r.Tip,
			Credential: r.Credential,
			Outcome:    string(r.Outcome),
			Cursor:     r.Cursor,
			AtMs:       unixMilli(r.At),
		})
	}
	return u
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// WriteSnapshot replaces the progress hash, merges the results hash and
// publishes u, all in one transaction. A positive ttl refreshes the expiry of
// both hashes.
func WriteSnapshot(ctx context.Context, rdb redis.UniversalClient, k keys.Session, u *Update, ttl time.Duration) error {
	progress := make([]any, 0, 2*len(u.Progress))
	for i := range u.Progress {
		progress = append(progress, u.Progress[i].Target, encodeJSON(&u.Progress[i]))
	}
	results := make([]any, 0, 2*len(u.Results))
	for i := range u.Results {
		results = append(results, u.Results[i].Target, encodeJSON(&u.Results[i]))
	}
	msg := encodeJSON(u)

	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k.Progress)
		if len(progress) > 0 {
			p.HSet(ctx, k.Progress, progress...)
		}
		if len(results) > 0 {
			p.HSet(ctx, k.Results, results...)
		}
		if ttl > 0 {
			p.Expire(ctx, k.Progress, ttl)
			p.Expire(ctx, k.Results, ttl)
		}
		p.Publish(ctx, k.Updates, msg)
		return nil
	})
	return err
}

// ReadProgress returns the mirrored tasks ordered by target. Undecodable
// entries are skipped.
func ReadProgress(ctx context.Context, rdb redis.UniversalClient, k keys.Session) ([]ProgressRec, error) {
	m, err := rdb.HGetAll(ctx, k.Progress).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ProgressRec, 0, len(m))
	for _, v := range m {
		var rec ProgressRec
		if sonic.UnmarshalString(v, &rec) != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

// ReadResults returns the mirrored results ordered by target.
func ReadResults(ctx context.Context, rdb redis.UniversalClient, k keys.Session) ([]ResultRec, error) {
	m, err := rdb.HGetAll(ctx, k.Results).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ResultRec, 0, len(m))
	for _, v := range m {
		var rec ResultRec
		if sonic.UnmarshalString(v, &rec) != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

// DecodeUpdate parses a message received on the updates channel.
func DecodeUpdate(raw string) (*Update, error) {
	u := new(Update)
	if err := sonic.UnmarshalString(raw, u); err != nil {
		return nil, err
	}
	return u, nil
}

// encodeJSON encodes value using stdlib json.Marshal for lower latency in encoding.
func encodeJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
