package webchat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/chatrunner"
	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

// Conversation holds per-conversation state and streaming attachments.
type Conversation struct {
	ID     string
	Runner *chatrunner.Runner

	pool     *ConnectionPool
	sub      message.Subscriber
	subClose bool

	mu           sync.Mutex
	stopRead     context.CancelFunc
	reading      bool
	lastActivity time.Time
}

func (c *Conversation) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// BuildSubscriber returns the subscriber for a conversation topic and whether
// the caller owns (and must close) it.
type BuildSubscriber func(ctx context.Context, convID string) (message.Subscriber, bool, error)

type ConvManagerOptions struct {
	BaseCtx         context.Context
	Backend         tutor.Backend
	SessionConfig   tutor.Config
	Publisher       message.Publisher
	BuildSubscriber BuildSubscriber
	IdleTimeout     time.Duration
}

// ConvManager stores all live conversations.
type ConvManager struct {
	baseCtx         context.Context
	backend         tutor.Backend
	sessionConfig   tutor.Config
	sink            events.Sink
	buildSubscriber BuildSubscriber
	idleTimeout     time.Duration

	mu            sync.Mutex
	conns         map[string]*Conversation
	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewConvManager(opts ConvManagerOptions) *ConvManager {
	if opts.BaseCtx == nil {
		panic("webchat: NewConvManager requires non-nil BaseCtx")
	}
	var sink events.Sink = events.NopSink{}
	if opts.Publisher != nil {
		sink = events.NewWatermillSink(opts.Publisher)
	}
	return &ConvManager{
		baseCtx:         opts.BaseCtx,
		backend:         opts.Backend,
		sessionConfig:   opts.SessionConfig,
		sink:            sink,
		buildSubscriber: opts.BuildSubscriber,
		idleTimeout:     opts.IdleTimeout,
		conns:           map[string]*Conversation{},
	}
}

// GetConversation returns the live conversation with the given id, if any.
func (cm *ConvManager) GetConversation(convID string) (*Conversation, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c, ok := cm.conns[convID]
	return c, ok
}

// GetOrCreate returns the conversation for convID, creating it (with a fresh
// id when convID is empty) and opening its first session.
func (cm *ConvManager) GetOrCreate(convID string) (*Conversation, error) {
	convID = strings.TrimSpace(convID)
	if convID == "" {
		convID = uuid.NewString()
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if c, ok := cm.conns[convID]; ok {
		c.touch()
		return c, nil
	}
	if cm.backend == nil {
		return nil, errors.New("conversation backend is not configured")
	}

	conv := &Conversation{ID: convID, lastActivity: time.Now()}
	conv.pool = NewConnectionPool(convID, cm.idleTimeout, func() { cm.evictIfIdle(conv) })
	conv.Runner = chatrunner.NewRunner(convID, tutor.NewManager(cm.backend, cm.sessionConfig), chatrunner.WithSink(cm.sink))

	if cm.buildSubscriber != nil {
		sub, owned, err := cm.buildSubscriber(cm.baseCtx, convID)
		if err != nil {
			return nil, errors.Wrapf(err, "subscribe conversation %s", convID)
		}
		conv.sub, conv.subClose = sub, owned
		if err := cm.startReader(conv); err != nil {
			if owned && sub != nil {
				_ = sub.Close()
			}
			return nil, err
		}
	}

	conv.Runner.Start(cm.baseCtx)
	cm.conns[convID] = conv
	log.Info().Str("component", "webchat").Str("conv_id", convID).Msg("conversation created")
	return conv, nil
}

// startReader subscribes to the per-conversation topic and forwards events to websocket clients.
func (cm *ConvManager) startReader(conv *Conversation) error {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.reading || conv.sub == nil {
		return nil
	}
	readCtx, readCancel := context.WithCancel(cm.baseCtx)
	ch, err := conv.sub.Subscribe(readCtx, events.TopicForConv(conv.ID))
	if err != nil {
		readCancel()
		return errors.Wrapf(err, "subscribe %s", events.TopicForConv(conv.ID))
	}
	conv.stopRead = readCancel
	conv.reading = true
	log.Debug().Str("component", "webchat").Str("conv_id", conv.ID).Str("topic", events.TopicForConv(conv.ID)).Msg("starting conversation reader")

	go func() {
		for msg := range ch {
			if _, err := events.Decode(msg); err != nil {
				log.Warn().Err(err).Str("component", "webchat").Str("conv_id", conv.ID).Msg("failed to decode event json")
				msg.Ack()
				continue
			}
			conv.pool.Broadcast(msg.Payload)
			msg.Ack()
		}
		conv.mu.Lock()
		conv.reading = false
		conv.stopRead = nil
		conv.mu.Unlock()
		log.Debug().Str("component", "webchat").Str("conv_id", conv.ID).Msg("conversation reader stopped")
	}()
	return nil
}

// Count returns the number of live conversations.
func (cm *ConvManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// Close drops every conversation.
func (cm *ConvManager) Close() {
	cm.mu.Lock()
	convs := make([]*Conversation, 0, len(cm.conns))
	for id, c := range cm.conns {
		convs = append(convs, c)
		delete(cm.conns, id)
	}
	cm.mu.Unlock()
	for _, c := range convs {
		cm.cleanupConversation(c)
	}
}
