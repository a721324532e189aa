//go:build integration

package window

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quiz/internal/platform/postgres"
	"quiz/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.ctx, s.postgres.DB))
	s.store = NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(s.ctx, `TRUNCATE rate_limit_windows`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestHitResetsAfterWindow() {
	now := time.UnixMilli(1_700_000_000_000)

	e, err := s.store.Hit(s.ctx, "k", testWindow, now)
	s.Require().NoError(err)
	s.Equal(1, e.Count)

	e, err = s.store.Hit(s.ctx, "k", testWindow, now.Add(testWindow))
	s.Require().NoError(err)
	s.Equal(2, e.Count)
	s.True(e.WindowStart.Equal(now))

	later := now.Add(testWindow + time.Millisecond)
	e, err = s.store.Hit(s.ctx, "k", testWindow, later)
	s.Require().NoError(err)
	s.Equal(1, e.Count)
	s.True(e.WindowStart.Equal(later))
}

func (s *PostgresStoreSuite) TestConcurrentHits() {
	now := time.Now()
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := s.store.Hit(s.ctx, "shared", testWindow, now)
			s.NoError(err)
		})
	}
	wg.Wait()

	e, err := s.store.Hit(s.ctx, "shared", testWindow, now)
	s.Require().NoError(err)
	s.Equal(21, e.Count)
}

func (s *PostgresStoreSuite) TestSweepAndReset() {
	now := time.Now()
	_, _ = s.store.Hit(s.ctx, "old", testWindow, now.Add(-3*testWindow))
	_, _ = s.store.Hit(s.ctx, "fresh", testWindow, now)

	removed, err := s.store.Sweep(s.ctx, now.Add(-2*testWindow))
	s.Require().NoError(err)
	s.Equal(1, removed)

	s.Require().NoError(s.store.Reset(s.ctx, "fresh"))
	e, err := s.store.Hit(s.ctx, "fresh", testWindow, now)
	s.Require().NoError(err)
	s.Equal(1, e.Count)
}
