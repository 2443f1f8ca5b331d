package machinetalk

import "sync"

// ConnectionState is the public, application-observable connection label.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "Disconnected"
	StateConnecting   ConnectionState = "Connecting"
	StateTrying       ConnectionState = "Trying"
	StateConnected    ConnectionState = "Connected"
	StateTimeout      ConnectionState = "Timeout"
)

// SocketState is the internal wire-progress label, decoupled from the
// public ConnectionState so applications never observe it directly.
type SocketState string

const (
	SocketDown   SocketState = "Down"
	SocketTrying SocketState = "Trying"
	SocketUp     SocketState = "Up"
)

// connState is the small piece of state-machine bookkeeping every
// endpoint embeds: the public/internal state pair, their guarding mutex,
// and the started flag that makes ready() idempotent.
type connState struct {
	mu          sync.RWMutex
	state       ConnectionState
	socketState SocketState
	started     bool
}

func newConnState() connState {
	return connState{state: StateDisconnected, socketState: SocketDown}
}

func (c *connState) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *connState) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

func (c *connState) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *connState) SocketState() SocketState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketState
}

func (c *connState) setSocketState(s SocketState) {
	c.mu.Lock()
	c.socketState = s
	c.mu.Unlock()
}

// markStarted returns true if this call transitioned started from false to
// true, i.e. the caller is responsible for actually starting the endpoint.
func (c *connState) markStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	c.started = true
	return true
}

func (c *connState) markStopped() {
	c.mu.Lock()
	c.started = false
	c.state = StateDisconnected
	c.socketState = SocketDown
	c.mu.Unlock()
}

func (c *connState) isStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}
