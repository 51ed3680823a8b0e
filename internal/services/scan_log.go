package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"njoy-gate/models"
)

const DefaultScanLogCap = 200

// LogSink receives a copy of every scan log entry.
type LogSink interface {
	Write(ctx context.Context, e models.ScanLogEntry) error
}

// ScanLog is the session-scoped audit trail of a gate, newest first and
// bounded to the last limit entries. Entries are copied to the sinks by a
// background worker in append order.
type ScanLog struct {
	mu    sync.RWMutex
	buf   []models.ScanLogEntry
	head  int // next write position
	count int

	sinks       []LogSink
	sinkTimeout time.Duration
	mirror      chan models.ScanLogEntry
	mirrorDone  chan struct{}
	closed      bool
}

// mirrorQueue bounds the entries waiting for the sinks. Entries beyond it
// are kept locally and not mirrored.
const mirrorQueue = 256

func NewScanLog(limit int, sinks ...LogSink) *ScanLog {
	if limit <= 0 {
		limit = DefaultScanLogCap
	}
	l := &ScanLog{
		buf:         make([]models.ScanLogEntry, limit),
		sinks:       sinks,
		sinkTimeout: 2 * time.Second,
	}
	if len(sinks) > 0 {
		l.mirror = make(chan models.ScanLogEntry, mirrorQueue)
		l.mirrorDone = make(chan struct{})
		go l.runMirror()
	}
	return l
}

// Append records e and queues it for the sinks. It never waits on a sink,
// and sink failures never lose the local entry.
func (l *ScanLog) Append(e models.ScanLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}

	if l.mirror == nil || l.closed {
		return
	}
	select {
	case l.mirror <- e:
	default:
		log.WithField("code", e.Code).Warn("Scan log mirror queue full, entry kept locally only")
	}
}

func (l *ScanLog) runMirror() {
	defer close(l.mirrorDone)
	for e := range l.mirror {
		for _, s := range l.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), l.sinkTimeout)
			if err := s.Write(ctx, e); err != nil {
				log.WithError(err).WithField("code", e.Code).Warn("Failed to mirror scan log entry")
			}
			cancel()
		}
	}
}

// Close waits for queued entries to reach the sinks. Entries appended
// afterwards are kept locally only.
func (l *ScanLog) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.mirror != nil {
		close(l.mirror)
	}
	l.mu.Unlock()

	if l.mirrorDone != nil {
		<-l.mirrorDone
	}
}

// Entries returns a copy of the log, newest first.
func (l *ScanLog) Entries() []models.ScanLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.ScanLogEntry, 0, l.count)
	for i := 1; i <= l.count; i++ {
		idx := (l.head - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *ScanLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

func (l *ScanLog) Cap() int { return len(l.buf) }

// RedisLogSink mirrors the scan log into a capped Redis list so entries
// survive a restart of the gate.
type RedisLogSink struct {
	Redis *redis.Client
	key   string
	limit int
}

func NewRedisLogSink(redisClient *redis.Client, key string, limit int) *RedisLogSink {
	if limit <= 0 {
		limit = DefaultScanLogCap
	}
	return &RedisLogSink{Redis: redisClient, key: key, limit: limit}
}

func (s *RedisLogSink) Write(ctx context.Context, e models.ScanLogEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("RedisLogSink.Write: json.Marshal: %w", err)
	}
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, string(b))
		pipe.LTrim(ctx, s.key, 0, int64(s.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("RedisLogSink.Write: %w", err)
	}
	return nil
}

// Recent reads back up to n mirrored entries, newest first. Unreadable
// entries are skipped.
func (s *RedisLogSink) Recent(ctx context.Context, n int) ([]models.ScanLogEntry, error) {
	if n <= 0 || n > s.limit {
		n = s.limit
	}
	raw, err := s.Redis.LRange(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("RedisLogSink.Recent: %w", err)
	}
	out := make([]models.ScanLogEntry, 0, len(raw))
	for _, r := range raw {
		var e models.ScanLogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			log.WithError(err).Debug("Skipping unreadable scan log entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
