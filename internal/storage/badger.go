package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

const (
	credKeyPrefix   = "cred/"
	maxTxnConflicts = 8
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// SyncWrites fsyncs after each write.
	// Default: true (credential writes are rare and must survive a crash)
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

// badgerBackend stores credential records in Badger under cred/<identity>.
type badgerBackend struct {
	db       *badger.DB
	cfg      BadgerConfig
	inMemory bool
	logger   *slog.Logger

	gcRuns prometheus.Counter

	// Shutdown
	stopCh chan struct{}
	doneCh chan struct{}
}

// openBadger opens (or creates) a Badger database at dir.
// An empty dir opens an in-memory database.
func openBadger(dir string, cfg BadgerConfig, logger *slog.Logger) (*badgerBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inMemory := dir == ""
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.SyncWrites = cfg.SyncWrites && !inMemory
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	b := &badgerBackend{
		db:       db,
		cfg:      cfg,
		inMemory: inMemory,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if inMemory || cfg.GCInterval <= 0 {
		close(b.doneCh)
	} else {
		go b.gcLoop()
	}

	logger.Info("badger backend opened",
		"dir", dir,
		"in_memory", inMemory,
		"gc_interval", cfg.GCInterval)

	return b, nil
}

func credKey(identity string) []byte {
	return []byte(credKeyPrefix + identity)
}

// Get retrieves the record for identity.
func (b *badgerBackend) Get(ctx context.Context, identity string) (*domain.CredentialRecord, error) {
	var rec *domain.CredentialRecord

	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Update runs fn inside a read-write transaction, retrying on conflict.
func (b *badgerBackend) Update(ctx context.Context, identity string, fn UpdateFunc) error {
	var err error
	for attempt := 0; attempt < maxTxnConflicts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = b.db.Update(func(txn *badger.Txn) error {
			cur, err := readRecord(txn, identity)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil || next == nil {
				return err
			}
			value, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			return txn.Set(credKey(identity), value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Delete removes the record for identity.
func (b *badgerBackend) Delete(ctx context.Context, identity string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(credKey(identity))
	})
}

// ActiveIdentities scans every record and returns the active ones, sorted.
func (b *badgerBackend) ActiveIdentities(ctx context.Context) ([]string, error) {
	var ids []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(credKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec domain.CredentialRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				b.logger.Warn("skipping unreadable credential record",
					"key", string(it.Item().Key()),
					"error", err)
				continue
			}
			if rec.Active {
				ids = append(ids, rec.Identity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)
	return ids, nil
}

// GC runs value-log garbage collection until nothing is left to rewrite.
func (b *badgerBackend) GC() error {
	if b.inMemory {
		return nil
	}

	runs := 0
	for {
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("gc: %w", err)
		}
		runs++
		if b.gcRuns != nil {
			b.gcRuns.Inc()
		}
	}

	b.logger.Debug("badger gc completed", "rewrites", runs)
	return nil
}

// Close stops the GC loop and closes the database.
func (b *badgerBackend) Close() error {
	select {
	case <-b.stopCh:
		return nil
	default:
	}
	close(b.stopCh)
	<-b.doneCh

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	b.logger.Info("badger backend closed")
	return nil
}

// RegisterMetrics registers Badger size gauges and the GC counter.
func (b *badgerBackend) RegisterMetrics(reg prometheus.Registerer) error {
	b.gcRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pairmesh",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by Badger garbage collection",
	})

	lsmSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pairmesh",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	}, func() float64 {
		lsm, _ := b.db.Size()
		return float64(lsm)
	})

	vlogSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pairmesh",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	}, func() float64 {
		_, vlog := b.db.Size()
		return float64(vlog)
	})

	for _, c := range []prometheus.Collector{b.gcRuns, lsmSize, vlogSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// gcLoop runs periodic garbage collection.
func (b *badgerBackend) gcLoop() {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.GC(); err != nil {
				b.logger.Error("auto gc failed", "error", err)
			}

		case <-b.stopCh:
			return
		}
	}
}

func readRecord(txn *badger.Txn, identity string) (*domain.CredentialRecord, error) {
	item, err := txn.Get(credKey(identity))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	rec := &domain.CredentialRecord{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
