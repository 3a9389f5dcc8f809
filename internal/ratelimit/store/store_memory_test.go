package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"webdir/pkg/requestcontext"
)

const (
	testLimit  = 3
	testWindow = time.Minute
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	start time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.start = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.start.Add(offset))
}

func (s *InMemorySuite) TestAllow() {
	s.Run("allows up to the limit then denies", func() {
		for i := range testLimit {
			result, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "k:limit", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
			s.Equal(testLimit-i-1, result.Remaining)
		}
		result, err := s.store.Allow(s.at(10*time.Second), "k:limit", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(50*time.Second, result.RetryAfter)
	})

	s.Run("window slides past the oldest event", func() {
		for i := range testLimit {
			_, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "k:slide", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.at(testWindow), "k:slide", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, err := s.store.Allow(s.at(0), "k:a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.at(0), "k:b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("reset clears the window", func() {
		for range testLimit {
			_, err := s.store.Allow(s.at(0), "k:reset", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.Require().NoError(s.store.Reset(context.Background(), "k:reset"))
		result, err := s.store.Allow(s.at(0), "k:reset", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemorySuite) TestIdleKeysAreEvicted() {
	for _, key := range []string{"k:idle-1", "k:idle-2", "k:busy"} {
		_, err := s.store.Allow(s.at(0), key, testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Len(s.store.windows, 3)

	_, err := s.store.Allow(s.at(testWindow+30*time.Second), "k:busy", testLimit, testWindow)
	s.Require().NoError(err)
	s.Len(s.store.windows, 1)
	s.Contains(s.store.windows, "k:busy")

	// a key still inside its window survives the sweep
	_, err = s.store.Allow(s.at(140*time.Second), "k:fresh", testLimit, testWindow)
	s.Require().NoError(err)
	_, err = s.store.Allow(s.at(160*time.Second), "k:other", testLimit, testWindow)
	s.Require().NoError(err)
	s.NotContains(s.store.windows, "k:busy")
	s.Contains(s.store.windows, "k:fresh")
	s.Contains(s.store.windows, "k:other")
}

func (s *InMemorySuite) TestConcurrentCallersNeverOvershoot() {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Go(func() {
			result, err := s.store.Allow(s.at(0), "k:race", 10, testWindow)
			s.NoError(err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	s.Equal(10, allowed)
}
