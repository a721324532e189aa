package window

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const testWindow = time.Minute

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) TestHit() {
	s.Run("first hit opens a window", func() {
		e, err := s.store.Hit(s.ctx, "k:first", testWindow, s.now)
		s.Require().NoError(err)
		s.Equal(1, e.Count)
		s.Equal(s.now, e.WindowStart)
	})

	s.Run("hits inside the window increment", func() {
		var last int
		for i := range 5 {
			e, err := s.store.Hit(s.ctx, "k:inc", testWindow, s.now.Add(time.Duration(i)*time.Second))
			s.Require().NoError(err)
			last = e.Count
			s.Equal(s.now, e.WindowStart)
		}
		s.Equal(5, last)
	})

	s.Run("hit exactly at the window edge still increments", func() {
		_, _ = s.store.Hit(s.ctx, "k:edge", testWindow, s.now)
		e, err := s.store.Hit(s.ctx, "k:edge", testWindow, s.now.Add(testWindow))
		s.Require().NoError(err)
		s.Equal(2, e.Count)
	})

	s.Run("hit after the window restarts the count", func() {
		_, _ = s.store.Hit(s.ctx, "k:expire", testWindow, s.now)
		_, _ = s.store.Hit(s.ctx, "k:expire", testWindow, s.now)
		later := s.now.Add(testWindow + time.Millisecond)
		e, err := s.store.Hit(s.ctx, "k:expire", testWindow, later)
		s.Require().NoError(err)
		s.Equal(1, e.Count)
		s.Equal(later, e.WindowStart)
	})

	s.Run("keys are independent", func() {
		_, _ = s.store.Hit(s.ctx, "k:a", testWindow, s.now)
		e, err := s.store.Hit(s.ctx, "k:b", testWindow, s.now)
		s.Require().NoError(err)
		s.Equal(1, e.Count)
	})
}

func (s *MemoryStoreSuite) TestSweep() {
	_, _ = s.store.Hit(s.ctx, "old", testWindow, s.now.Add(-3*testWindow))
	_, _ = s.store.Hit(s.ctx, "recent", testWindow, s.now.Add(-testWindow))
	_, _ = s.store.Hit(s.ctx, "fresh", testWindow, s.now)

	removed, err := s.store.Sweep(s.ctx, s.now.Add(-2*testWindow))
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal(2, s.store.Len())

	_, ok := s.store.Get("old")
	s.False(ok)
	_, ok = s.store.Get("recent")
	s.True(ok)
}

func (s *MemoryStoreSuite) TestReset() {
	_, _ = s.store.Hit(s.ctx, "k", testWindow, s.now)
	_, _ = s.store.Hit(s.ctx, "k", testWindow, s.now)

	s.Require().NoError(s.store.Reset(s.ctx, "k"))

	e, err := s.store.Hit(s.ctx, "k", testWindow, s.now)
	s.Require().NoError(err)
	s.Equal(1, e.Count)
}

func (s *MemoryStoreSuite) TestConcurrentHitsSameKey() {
	const workers, perWorker = 20, 50

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for range perWorker {
				_, err := s.store.Hit(s.ctx, "shared", testWindow, s.now)
				s.NoError(err)
			}
		})
	}
	wg.Wait()

	e, ok := s.store.Get("shared")
	s.Require().True(ok)
	s.Equal(workers*perWorker, e.Count, "no increments lost")
}

func (s *MemoryStoreSuite) TestConcurrentHitsManyKeys() {
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Go(func() {
			key := fmt.Sprintf("ip-%d", i)
			for range 10 {
				_, _ = s.store.Hit(s.ctx, key, testWindow, s.now)
			}
		})
	}
	wg.Wait()

	s.Equal(64, s.store.Len())
	for i := range 64 {
		e, _ := s.store.Get(fmt.Sprintf("ip-%d", i))
		s.Equal(10, e.Count)
	}
}
