package connection

import "time"

// Observer receives connection lifecycle events, typically to feed metrics.
// Methods are called with the connection lock held: they must return quickly
// and must not call back into the connection.
type Observer interface {
	// StateChanged is called whenever the health value changes.
	StateChanged(kind Kind, from, to Health)
	// ConnectFinished is called after every handshake, successful or not.
	ConnectFinished(kind Kind, took time.Duration, err error)
	// ReconnectScheduled is called when a reconnect timer is armed.
	ReconnectScheduled(kind Kind, attempt int, delay time.Duration)
	// RetryExhausted is called when the reconnect loop gives up.
	RetryExhausted(kind Kind)
	// ChunkDelivered is called for each chunk handed to the message handler.
	ChunkDelivered(kind Kind, size int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(Kind, Health, Health)           {}
func (NopObserver) ConnectFinished(Kind, time.Duration, error)  {}
func (NopObserver) ReconnectScheduled(Kind, int, time.Duration) {}
func (NopObserver) RetryExhausted(Kind)                         {}
func (NopObserver) ChunkDelivered(Kind, int)                    {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) StateChanged(kind Kind, from, to Health) {
	for _, o := range m {
		o.StateChanged(kind, from, to)
	}
}

func (m MultiObserver) ConnectFinished(kind Kind, took time.Duration, err error) {
	for _, o := range m {
		o.ConnectFinished(kind, took, err)
	}
}

func (m MultiObserver) ReconnectScheduled(kind Kind, attempt int, delay time.Duration) {
	for _, o := range m {
		o.ReconnectScheduled(kind, attempt, delay)
	}
}

func (m MultiObserver) RetryExhausted(kind Kind) {
	for _, o := range m {
		o.RetryExhausted(kind)
	}
}

func (m MultiObserver) ChunkDelivered(kind Kind, size int) {
	for _, o := range m {
		o.ChunkDelivered(kind, size)
	}
}
