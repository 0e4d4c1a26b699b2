//go:build integration

package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/events"
	"vendcore/pkg/domain"
	"vendcore/pkg/testutil/containers"
)

type RedisDedupeSuite struct {
	suite.Suite
	ctx   context.Context
	rc    *containers.RedisContainer
	store *RedisStore
}

func TestRedisDedupeSuite(t *testing.T) {
	suite.Run(t, new(RedisDedupeSuite))
}

func (s *RedisDedupeSuite) SetupSuite() {
	s.ctx = context.Background()
	s.rc = containers.GetRedis(s.T())

	var err error
	s.store, err = NewRedisStore(s.rc.Client, "dedupe-test:seen", time.Minute)
	s.Require().NoError(err)
}

func (s *RedisDedupeSuite) SetupTest() {
	s.Require().NoError(s.rc.FlushAll(s.ctx))
}

func (s *RedisDedupeSuite) TestFirstSeenExactlyOnce() {
	id := domain.NewEventID()

	first, err := s.store.FirstSeen(s.ctx, id)
	s.Require().NoError(err)
	s.True(first)

	again, err := s.store.FirstSeen(s.ctx, id)
	s.Require().NoError(err)
	s.False(again)

	other, err := s.store.FirstSeen(s.ctx, domain.NewEventID())
	s.Require().NoError(err)
	s.True(other)
}

func (s *RedisDedupeSuite) TestConcurrentDeliveriesAdmitOne() {
	id := domain.NewEventID()

	const workers = 16
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.store.FirstSeen(s.ctx, id)
			if err == nil && first {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)
	s.Len(admitted, 1)
}

func (s *RedisDedupeSuite) TestMiddlewareSkipsRedelivery() {
	var handled int
	handler := Middleware(s.store, nil, nil)(events.HandlerFunc(
		func(ctx context.Context, event domain.Event) error {
			handled++
			return nil
		}))

	event := domain.NewEvent("OrderPlaced", "order-1", "order", time.Now().UTC(), nil)
	s.Require().NoError(handler.Handle(s.ctx, event))
	s.Require().NoError(handler.Handle(s.ctx, event))
	s.Equal(1, handled)
}

func (s *RedisDedupeSuite) TestForgetReleasesClaim() {
	id := domain.NewEventID()

	first, err := s.store.FirstSeen(s.ctx, id)
	s.Require().NoError(err)
	s.True(first)

	s.Require().NoError(s.store.Forget(s.ctx, id))

	again, err := s.store.FirstSeen(s.ctx, id)
	s.Require().NoError(err)
	s.True(again)
}
