package logging

import (
	"strings"
	"sync"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when jobs or percentage buckets change. It is safe for concurrent use so one
// sampler can be shared by all workers of a pool.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize int
	lastBucket map[string]int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 25%) for a given job.
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 25
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: make(map[string]int)}
}

// ShouldLog reports whether a progress event for jobID should be logged. The
// first event of a job always logs; 100 always logs once.
func (s *ProgressSampler) ShouldLog(jobID string, percent int) bool {
	if s == nil {
		return true
	}
	jobID = strings.TrimSpace(jobID)
	if percent > 100 {
		percent = 100
	}
	bucket := percent / s.bucketSize
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastBucket[jobID]
	if seen && bucket <= last {
		return false
	}
	s.lastBucket[jobID] = bucket
	return true
}

// Forget drops state for a finished job.
func (s *ProgressSampler) Forget(jobID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.lastBucket, strings.TrimSpace(jobID))
	s.mu.Unlock()
}
