package clickhouse

import (
	"context"
	"sync"
	"time"

	"erpinsight/pkg/logger"
)

// FlushFunc writes one batch. It is never called with an empty batch.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter buffers rows in memory and hands them to FlushFunc when
// MaxBatchSize rows arrived since the last attempt or on the MaxAge tick.
// Rows of a failed flush are kept for the next attempt as long as the buffer
// stays under MaxBuffered; beyond that the oldest rows are dropped. A failed
// flush never makes the next Add flush inline.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	log       *logger.Logger

	maxBatchSize int
	maxBuffered  int
	maxAge       time.Duration
	tableName    string

	mu        sync.Mutex
	buffer    []T
	pending   int // rows added since the last flush attempt
	lastFlush time.Time
	dropped   int
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxBuffered  int           // Default: 10 * MaxBatchSize
	MaxAge       time.Duration // Default: 5s
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxBuffered < cfg.MaxBatchSize {
		cfg.MaxBuffered = 10 * cfg.MaxBatchSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &BatchWriter[T]{
		flushFunc:    cfg.FlushFunc,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize: cfg.MaxBatchSize,
		maxBuffered:  cfg.MaxBuffered,
		maxAge:       cfg.MaxAge,
		tableName:    cfg.TableName,
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush loop. Calling it twice is a no-op.
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infof("BatchWriter started (maxBatchSize=%d, maxAge=%v)", bw.maxBatchSize, bw.maxAge)
}

// Add buffers a row and flushes synchronously once a full batch of new rows
// has arrived
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = bw.trim(append(bw.buffer, item))
	bw.pending++
	shouldFlush := bw.pending >= bw.maxBatchSize
	bw.mu.Unlock()

	if shouldFlush {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.pending = 0
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	start := time.Now()
	err := bw.flushFunc(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		bw.requeue(batch)
		bw.log.Errorf("Failed to flush %d items to %s: %v (took %v)", len(batch), bw.tableName, err, duration)
		return err
	}

	bw.log.Debugf("Flushed %d items to %s (took %v)", len(batch), bw.tableName, duration)
	return nil
}

// requeue puts a failed batch back in front of rows added meanwhile
func (bw *BatchWriter[T]) requeue(batch []T) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	bw.buffer = bw.trim(append(batch, bw.buffer...))
}

// trim drops the oldest rows beyond MaxBuffered. Caller holds mu.
func (bw *BatchWriter[T]) trim(rows []T) []T {
	over := len(rows) - bw.maxBuffered
	if over <= 0 {
		return rows
	}
	bw.dropped += over
	bw.log.Warnf("Dropped %d buffered items for %s", over, bw.tableName)
	return rows[over:]
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush("context cancelled")
			return

		case <-bw.stopCh:
			bw.finalFlush("stop requested")
			return

		case <-ticker.C:
			bw.mu.Lock()
			pending := len(bw.buffer)
			bw.mu.Unlock()

			if pending > 0 {
				if err := bw.Flush(ctx); err != nil {
					bw.log.Errorf("Periodic flush failed: %v", err)
				}
			}
		}
	}
}

func (bw *BatchWriter[T]) finalFlush(reason string) {
	bw.log.Infof("BatchWriter stopping (%s), performing final flush", reason)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bw.Flush(ctx); err != nil {
		bw.log.Errorf("Final flush failed: %v", err)
	}
}

// Stop flushes what is buffered and waits for the loop to exit or ctx to
// expire
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("BatchWriter stopped gracefully")
		return nil
	case <-ctx.Done():
		bw.log.Warn("BatchWriter stop timed out")
		return ctx.Err()
	}
}

// BatchWriterStats is a snapshot for monitoring
type BatchWriterStats struct {
	BufferSize   int
	Dropped      int
	LastFlushAge time.Duration
	MaxBatchSize int
	MaxAge       time.Duration
	Running      bool
}

// Stats returns current statistics
func (bw *BatchWriter[T]) Stats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Dropped:      bw.dropped,
		LastFlushAge: time.Since(bw.lastFlush),
		MaxBatchSize: bw.maxBatchSize,
		MaxAge:       bw.maxAge,
		Running:      bw.running,
	}
}
