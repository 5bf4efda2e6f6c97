package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "erpinsight/internal/adapters/clickhouse"
	"erpinsight/internal/adapters/kafka"
	pgclient "erpinsight/internal/adapters/postgres"
	redisclient "erpinsight/internal/adapters/redis"
	"erpinsight/internal/api"
	chrepo "erpinsight/internal/repository/clickhouse"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// ShutdownTargets lists what Shutdown closes. Nil members are skipped.
type ShutdownTargets struct {
	WG            *sync.WaitGroup
	HTTPServer    *api.Server
	UsageWriter   *chrepo.AIUsageRepository
	KafkaProducer *kafka.Producer
	PG            *pgclient.Client
	CH            *chclient.Client
	Redis         *redisclient.Client
	ErrorTracker  errors.Tracker
}

// Shutdown closes components in order:
// 1. No new requests accepted
// 2. In-flight handlers and consumers finish
// 3. Buffered usage rows flushed to ClickHouse
// 4. Producer closed after the last event is published
// 5. Logs and errors flushed
// 6. Database connections last (other components may need them)
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server
	// ========================================
	log.Info("[1/6] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Wait for goroutines
	// ========================================
	log.Info("[2/6] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 15*time.Second, log)
	}

	// ========================================
	// Step 3: Flush AI usage
	// ========================================
	log.Info("[3/6] Flushing AI usage...")
	if t.UsageWriter != nil {
		usageCtx, usageCancel := context.WithTimeout(shutdownCtx, 15*time.Second)
		if err := t.UsageWriter.Stop(usageCtx); err != nil {
			log.Errorw("AI usage flush failed", "error", err)
		} else {
			log.Info("✓ AI usage flushed")
		}
		usageCancel()
	}

	// ========================================
	// Step 4: Close Kafka Producer
	// ========================================
	log.Info("[4/6] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 5: Flush error tracker and logs
	// ========================================
	log.Info("[5/6] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 6: Close Database Connections
	// ========================================
	log.Info("[6/6] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
