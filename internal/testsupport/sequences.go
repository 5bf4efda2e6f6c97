package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// seeded from the clock so reruns against a shared database do not collide
var idSequence atomic.Uint64

func init() {
	idSequence.Store(uint64(time.Now().UnixNano() % 1_000_000))
}

// NextSequence returns the next id suffix
func NextSequence() uint64 {
	return idSequence.Add(1)
}

// UniqueName returns prefix_N
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, NextSequence())
}

func UniqueString() string {
	return uuid.NewString()
}

// UniqueUserID scopes knowledge base and query log rows to one test
func UniqueUserID() string {
	return UniqueName("user")
}

// UniqueRealmID returns a QuickBooks company id that no other test uses
func UniqueRealmID() string {
	return UniqueName("realm")
}

// UniqueQueryID mirrors the ids the HTTP layer assigns to queries
func UniqueQueryID() string {
	return "q_" + uuid.NewString()[:8] + fmt.Sprintf("_%d", NextSequence())
}

// UniqueEventID is unique across runs so ReplacingMergeTree never merges test rows
func UniqueEventID() string {
	return fmt.Sprintf("event_%d_%s", NextSequence(), uuid.NewString()[:8])
}
