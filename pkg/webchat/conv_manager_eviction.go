package webchat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

func (cm *ConvManager) SetEvictionConfig(idle, interval time.Duration) {
	if cm == nil {
		return
	}
	cm.mu.Lock()
	cm.evictIdle = idle
	cm.evictInterval = interval
	cm.mu.Unlock()
}

func (cm *ConvManager) StartEvictionLoop(ctx context.Context) {
	if cm == nil {
		return
	}
	if ctx == nil {
		panic("webchat: StartEvictionLoop requires non-nil ctx")
	}
	cm.mu.Lock()
	if cm.evictRunning {
		cm.mu.Unlock()
		return
	}
	idle := cm.evictIdle
	interval := cm.evictInterval
	if idle <= 0 || interval <= 0 {
		cm.mu.Unlock()
		return
	}
	cm.evictRunning = true
	cm.mu.Unlock()

	go cm.runEvictionLoop(ctx, interval)
}

func (cm *ConvManager) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cm.mu.Lock()
			cm.evictRunning = false
			cm.mu.Unlock()
			return
		case now := <-ticker.C:
			if n := cm.evictIdleOnce(now); n > 0 {
				log.Info().Str("component", "webchat").Int("evicted", n).Msg("evicted idle conversations")
			}
		}
	}
}

func (cm *ConvManager) evictIdleOnce(now time.Time) int {
	if cm == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	cm.mu.Lock()
	idle := cm.evictIdle
	if idle <= 0 {
		cm.mu.Unlock()
		return 0
	}
	convs := make([]*Conversation, 0, len(cm.conns))
	for _, conv := range cm.conns {
		convs = append(convs, conv)
	}
	cm.mu.Unlock()

	evicted := 0
	for _, conv := range convs {
		if conv == nil || !cm.shouldEvictConversation(now, idle, conv) {
			continue
		}
		if cm.remove(conv) {
			cm.cleanupConversation(conv)
			evicted++
		}
	}
	return evicted
}

// evictIfIdle drops conv once its last websocket client is gone, unless a
// reply is still streaming.
func (cm *ConvManager) evictIfIdle(conv *Conversation) {
	if !cm.shouldEvictConversation(time.Now(), 0, conv) {
		return
	}
	if cm.remove(conv) {
		log.Info().Str("component", "webchat").Str("conv_id", conv.ID).Msg("evicting conversation without clients")
		cm.cleanupConversation(conv)
	}
}

func (cm *ConvManager) remove(conv *Conversation) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	current, ok := cm.conns[conv.ID]
	if !ok || current != conv {
		return false
	}
	delete(cm.conns, conv.ID)
	return true
}

func (cm *ConvManager) shouldEvictConversation(now time.Time, idle time.Duration, conv *Conversation) bool {
	if conv.pool != nil && !conv.pool.IsEmpty() {
		return false
	}
	if conv.Runner != nil && conv.Runner.Loading() {
		return false
	}
	conv.mu.Lock()
	last := conv.lastActivity
	conv.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= idle
}

func (cm *ConvManager) cleanupConversation(conv *Conversation) {
	if conv == nil {
		return
	}
	if conv.pool != nil {
		conv.pool.CloseAll()
	}
	conv.mu.Lock()
	stop := conv.stopRead
	conv.stopRead = nil
	conv.mu.Unlock()
	if stop != nil {
		stop()
	}
	if conv.sub != nil && conv.subClose {
		if err := conv.sub.Close(); err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("conv_id", conv.ID).Msg("subscriber close failed")
		}
	}
}
