package webchat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/socratic/pkg/tutor"
	"github.com/go-go-golems/socratic/pkg/tutor/scripted"
)

func TestConvManagerEvictIdleOnce(t *testing.T) {
	cm := NewConvManager(ConvManagerOptions{BaseCtx: context.Background()})
	cm.SetEvictionConfig(10*time.Second, time.Second)

	conv := &Conversation{
		ID:           "c1",
		lastActivity: time.Now().Add(-time.Hour),
		pool:         NewConnectionPool("c1", 0, nil),
	}

	cm.mu.Lock()
	cm.conns["c1"] = conv
	cm.mu.Unlock()

	evicted := cm.evictIdleOnce(time.Now())
	require.Equal(t, 1, evicted)

	_, ok := cm.GetConversation("c1")
	require.False(t, ok)
}

func TestConvManagerEvictIdleOnce_SkipsRecentAndAttached(t *testing.T) {
	cm := NewConvManager(ConvManagerOptions{BaseCtx: context.Background()})
	cm.SetEvictionConfig(10*time.Second, time.Second)

	recent := &Conversation{ID: "recent", lastActivity: time.Now(), pool: NewConnectionPool("recent", 0, nil)}
	attached := &Conversation{ID: "attached", lastActivity: time.Now().Add(-time.Hour), pool: NewConnectionPool("attached", 0, nil)}
	attached.pool.Add(newStubConn(false))

	cm.mu.Lock()
	cm.conns["recent"] = recent
	cm.conns["attached"] = attached
	cm.mu.Unlock()

	require.Equal(t, 0, cm.evictIdleOnce(time.Now()))
	require.Equal(t, 2, cm.Count())
}

type evictionStubSubscriber struct {
	mu         sync.Mutex
	ch         chan *message.Message
	closeCalls int
}

func (s *evictionStubSubscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return s.ch, nil
}

func (s *evictionStubSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
	return nil
}

func (s *evictionStubSubscriber) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func TestCleanupConversation_ClosesOwnedSubscriberOnce(t *testing.T) {
	sub := &evictionStubSubscriber{ch: make(chan *message.Message)}
	cm := NewConvManager(ConvManagerOptions{
		BaseCtx:       context.Background(),
		Backend:       scripted.New(),
		SessionConfig: tutor.DefaultConfig(),
		BuildSubscriber: func(context.Context, string) (message.Subscriber, bool, error) {
			return sub, true, nil
		},
	})
	conv, err := cm.GetOrCreate("c1")
	require.NoError(t, err)

	cm.Close()
	require.Equal(t, 1, sub.calls())
	require.Equal(t, 0, cm.Count())
	require.Eventually(t, func() bool {
		conv.mu.Lock()
		defer conv.mu.Unlock()
		return !conv.reading
	}, time.Second, 5*time.Millisecond)
}

func TestIdlePoolEvictsConversation(t *testing.T) {
	cm := NewConvManager(ConvManagerOptions{
		BaseCtx:       context.Background(),
		Backend:       scripted.New(),
		SessionConfig: tutor.DefaultConfig(),
		IdleTimeout:   20 * time.Millisecond,
	})
	conv, err := cm.GetOrCreate("c1")
	require.NoError(t, err)

	conn := newStubConn(false)
	conv.pool.Add(conn)
	conv.pool.Remove(conn)

	require.Eventually(t, func() bool { return cm.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGetOrCreateAssignsID(t *testing.T) {
	cm := NewConvManager(ConvManagerOptions{
		BaseCtx:       context.Background(),
		Backend:       scripted.New(),
		SessionConfig: tutor.DefaultConfig(),
	})
	conv, err := cm.GetOrCreate("")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	again, err := cm.GetOrCreate(conv.ID)
	require.NoError(t, err)
	require.Same(t, conv, again)
}
