package snapshot

import (
	"sync"
	"time"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	notifyLimit    = 50
	notifyCooldown = time.Minute
)

// Notifier is the bounded dashboard notification buffer. Every
// notification type is published; there is no per-type opt-out. A
// per-(type, symbol) cooldown suppresses repeats, and once the buffer
// is full the oldest entry is dropped.
type Notifier struct {
	clock drepo.Clock

	mu    sync.Mutex
	queue []models.Notification
	last  map[string]time.Time
}

func NewNotifier(clock drepo.Clock) *Notifier {
	return &Notifier{
		clock: clock,
		last:  make(map[string]time.Time),
	}
}

// Push enqueues one notification. It reports false when the entry was
// suppressed by the cooldown.
func (n *Notifier) Push(typ, symbol, message, level string) bool {
	now := n.clock.Now()
	key := typ + "|" + symbol

	n.mu.Lock()
	defer n.mu.Unlock()

	if sent, ok := n.last[key]; ok && now.Sub(sent) < notifyCooldown {
		return false
	}
	n.last[key] = now

	n.queue = append(n.queue, models.Notification{
		Type:      typ,
		Symbol:    symbol,
		Message:   message,
		Level:     level,
		Timestamp: now,
	})
	if len(n.queue) > notifyLimit {
		n.queue = append(n.queue[:0:0], n.queue[len(n.queue)-notifyLimit:]...)
	}
	return true
}

// Drain returns the queued notifications and empties the buffer.
func (n *Notifier) Drain() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.queue
	n.queue = nil

	// cooldown entries older than the window are dead weight
	cutoff := n.clock.Now().Add(-notifyCooldown)
	for key, sent := range n.last {
		if sent.Before(cutoff) {
			delete(n.last, key)
		}
	}
	return out
}

// Pending reports how many notifications await the next drain.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
