package queue

import "sync"

// notifier fans enqueue events out to idle workers without blocking.
// Each stage gets a channel with a buffer of one so repeated signals
// collapse while nobody is listening.
type notifier struct {
	mu       sync.Mutex
	channels map[string]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{channels: make(map[string]chan struct{})}
}

func (n *notifier) channel(stage string) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.channels[stage]
	if !ok {
		ch = make(chan struct{}, 1)
		n.channels[stage] = ch
	}
	return ch
}

func (n *notifier) Wakeups(stage string) <-chan struct{} {
	return n.channel(stage)
}

func (n *notifier) Notify(stage string) {
	select {
	case n.channel(stage) <- struct{}{}:
	default:
	}
}
