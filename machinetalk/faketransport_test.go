package machinetalk

import (
	"sync"
	"time"
)

// fakeStatusTransport is an in-memory StatusTransport for tests: the test
// pushes onto inbox, the client's I/O worker drains it via Recv.
type fakeStatusTransport struct {
	mu         sync.Mutex
	connected  bool
	subscribed map[string]bool
	inbox      chan fakeStatusMsg
}

type fakeStatusMsg struct {
	topic   string
	payload []byte
}

func newFakeStatusTransport() *fakeStatusTransport {
	return &fakeStatusTransport{
		subscribed: make(map[string]bool),
		inbox:      make(chan fakeStatusMsg, 64),
	}
}

func (f *fakeStatusTransport) Connect(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeStatusTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeStatusTransport) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = true
	return nil
}

func (f *fakeStatusTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, topic)
	return nil
}

func (f *fakeStatusTransport) isSubscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[topic]
}

func (f *fakeStatusTransport) subscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *fakeStatusTransport) Recv(timeout time.Duration) (string, []byte, bool, error) {
	select {
	case m := <-f.inbox:
		return m.topic, m.payload, true, nil
	case <-time.After(timeout):
		return "", nil, false, nil
	}
}

func (f *fakeStatusTransport) push(topic string, c *Container) {
	payload, err := (JSONCodec{}).Encode(c)
	if err != nil {
		panic(err)
	}
	f.inbox <- fakeStatusMsg{topic: topic, payload: payload}
}

// fakeCommandTransport is an in-memory CommandTransport for tests.
type fakeCommandTransport struct {
	mu        sync.Mutex
	connected bool
	identity  string
	sent      []Container
	inbox     chan []byte
}

func newFakeCommandTransport() *fakeCommandTransport {
	return &fakeCommandTransport{inbox: make(chan []byte, 64)}
}

func (f *fakeCommandTransport) Connect(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeCommandTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeCommandTransport) SetIdentity(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = id
	return nil
}

func (f *fakeCommandTransport) Send(payload []byte) error {
	var c Container
	if err := (JSONCodec{}).Decode(payload, &c); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.mu.Unlock()
	return nil
}

func (f *fakeCommandTransport) Recv(timeout time.Duration) ([]byte, bool, error) {
	select {
	case m := <-f.inbox:
		return m, true, nil
	case <-time.After(timeout):
		return nil, false, nil
	}
}

func (f *fakeCommandTransport) push(c *Container) {
	payload, err := (JSONCodec{}).Encode(c)
	if err != nil {
		panic(err)
	}
	f.inbox <- payload
}

func (f *fakeCommandTransport) sentMessages() []Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Container, len(f.sent))
	copy(out, f.sent)
	return out
}

// sentCommands returns the sent messages other than PINGs, which the client
// sends on its own from start() and on every heartbeat tick.
func (f *fakeCommandTransport) sentCommands() []Container {
	var out []Container
	for _, c := range f.sentMessages() {
		if c.Type != MTPing {
			out = append(out, c)
		}
	}
	return out
}
