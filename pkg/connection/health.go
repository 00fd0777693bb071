package connection

// Health is the caller-observable lifecycle phase of a connection.
type Health int32

const (
	// HealthClosed is both the initial and the terminal state.
	HealthClosed Health = iota
	// HealthConnecting means a handshake is in flight.
	HealthConnecting
	// HealthConnected means the transport is open and delivering chunks.
	HealthConnected
	// HealthError means the last attempt ended in a transport fault.
	HealthError
)

// String returns the lowercase name of the health value.
func (h Health) String() string {
	switch h {
	case HealthClosed:
		return "closed"
	case HealthConnecting:
		return "connecting"
	case HealthConnected:
		return "connected"
	case HealthError:
		return "error"
	default:
		return "unknown"
	}
}

// AllHealth lists every health value, in declaration order.
var AllHealth = []Health{HealthClosed, HealthConnecting, HealthConnected, HealthError}

// State is the immutable record behind a connection. A connection replaces
// its State wholesale through the transition methods below; none of them
// mutate the receiver.
type State struct {
	Health      Health `json:"health"`
	RetryCount  int    `json:"retry_count"`
	ShouldRetry bool   `json:"should_retry"`
}

// InitialState returns the state of a freshly constructed connection.
func InitialState(autoReconnect bool) State {
	return State{Health: HealthClosed, ShouldRetry: autoReconnect}
}

// Connecting marks the start of a handshake (closed|error -> connecting).
func (s State) Connecting() State {
	s.Health = HealthConnecting
	return s
}

// Opened marks a successful handshake and clears the retry counter.
func (s State) Opened() State {
	s.Health = HealthConnected
	s.RetryCount = 0
	return s
}

// Streaming marks a successful handshake without touching the retry counter.
// Push-stream restarts keep growing their delay toward the cap.
func (s State) Streaming() State {
	s.Health = HealthConnected
	return s
}

// Ended marks a graceful end of the transport.
func (s State) Ended() State {
	s.Health = HealthClosed
	return s
}

// Failed marks a transport fault.
func (s State) Failed() State {
	s.Health = HealthError
	return s
}

// RetryScheduled records that a reconnect attempt has been queued.
func (s State) RetryScheduled() State {
	s.RetryCount++
	return s
}

// Closed is the transition taken by an explicit Close: retries are disabled
// and the connection settles in the terminal state.
func (s State) Closed() State {
	s.Health = HealthClosed
	s.ShouldRetry = false
	return s
}

// Reopened is the transition taken by an explicit Connect after the
// connection was closed or exhausted its retries.
func (s State) Reopened(autoReconnect bool) State {
	s.ShouldRetry = autoReconnect
	s.RetryCount = 0
	return s
}

// Live reports whether the connection holds, or is acquiring, a transport.
func (s State) Live() bool {
	return s.Health == HealthConnecting || s.Health == HealthConnected
}
