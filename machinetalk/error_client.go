package machinetalk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/buildkite/roko"

	"github.com/cerna/pymachinetalk/logger"
	"github.com/cerna/pymachinetalk/metrics"
	"github.com/cerna/pymachinetalk/status"
)

var errorTopics = [...]string{"error", "text", "display"}

// ErrorEntry is one buffered notification: the notification kind and the
// note strings that arrived with it.
type ErrorEntry struct {
	Type  MessageType
	Notes []string
}

// ErrorClient subscribes to the controller's three notification topics
// and buffers incoming notifications for pull-based delivery via
// GetMessages.
type ErrorClient struct {
	logger  logger.Logger
	metrics *metrics.Scope
	codec   Codec
	tport   StatusTransport

	uri         string
	pollTimeout time.Duration

	conn connState

	bufMu  sync.Mutex
	buffer []ErrorEntry

	subMu      sync.Mutex
	subscribed map[string]bool

	keepaliveDuration time.Duration
	keepalive         *keepaliveTimer

	container Container

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewErrorClient constructs an ErrorClient around the given transport and
// codec. The caller must set a URI with SetURI before calling Ready or
// Start.
func NewErrorClient(tport StatusTransport, codec Codec, log logger.Logger, scope *metrics.Scope) *ErrorClient {
	if log == nil {
		log = logger.Discard
	}
	log = log.WithFields(logger.StringField("endpoint", "error"))
	return &ErrorClient{
		logger:      log,
		metrics:     scope,
		codec:       codec,
		tport:       tport,
		pollTimeout: 200 * time.Millisecond,
		conn:        newConnState(),
		subscribed:  make(map[string]bool, len(errorTopics)),
		keepalive:   newKeepaliveTimer(),
	}
}

func (e *ErrorClient) SetURI(uri string)      { e.uri = uri }
func (e *ErrorClient) State() ConnectionState { return e.conn.State() }
func (e *ErrorClient) Connected() bool        { return e.conn.Connected() }

// GetMessages atomically returns a copy of the buffered notifications and
// replaces the buffer with an empty one. Calling it twice in a row with
// no intervening message returns an empty slice the second time.
func (e *ErrorClient) GetMessages() []ErrorEntry {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	out := e.buffer
	e.buffer = nil
	if out == nil {
		return []ErrorEntry{}
	}
	return out
}

func (e *ErrorClient) Ready() error {
	if !e.conn.markStarted() {
		return nil
	}
	if err := e.start(); err != nil {
		e.conn.markStopped()
		return err
	}
	return nil
}

func (e *ErrorClient) Start() error { return e.Ready() }

func (e *ErrorClient) start() error {
	if e.uri == "" {
		return errors.New("machinetalk: error client URI not set")
	}

	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.conn.setState(StateConnecting)
	e.conn.setSocketState(SocketDown)

	retrier := roko.NewRetrier(
		roko.WithMaxAttempts(5),
		roko.WithStrategy(roko.ExponentialSubsecond(250*time.Millisecond)),
	)
	err := retrier.DoWithContext(context.Background(), func(r *roko.Retrier) error {
		if err := e.tport.Connect(e.uri); err != nil {
			e.logger.Warn("connect attempt %d to %s failed: %v", r.AttemptCount(), e.uri, err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("machinetalk: error connect: %w", err)
	}

	e.conn.setSocketState(SocketTrying)
	e.subscribeAll()

	_, setStat, done := status.AddSimpleItem(context.Background(), "Error I/O worker")
	go func() {
		defer done()
		e.runWorker(setStat)
	}()
	return nil
}

// Stop signals the I/O worker to exit, unsubscribes, disconnects, and
// returns the client to Disconnected. Calling Stop twice is a no-op. The
// buffer is left as-is: draining is an application policy, not a
// lifecycle side effect.
func (e *ErrorClient) Stop() error {
	if !e.conn.isStarted() {
		return nil
	}
	close(e.stopCh)
	<-e.doneCh

	e.unsubscribeAll()
	if err := e.tport.Disconnect(); err != nil {
		e.logger.Warn("disconnect error: %v", err)
	}
	e.keepalive.stop()
	e.conn.markStopped()
	return nil
}

func (e *ErrorClient) scope() *metrics.Scope {
	if e.metrics == nil {
		return (&metrics.Collector{}).Scope(nil)
	}
	return e.metrics
}

func (e *ErrorClient) subscribeAll() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, topic := range errorTopics {
		if err := e.tport.Subscribe(topic); err != nil {
			e.logger.Warn("subscribe %q failed: %v", topic, err)
			continue
		}
		e.subscribed[topic] = true
	}
}

func (e *ErrorClient) unsubscribeAll() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for topic := range e.subscribed {
		if err := e.tport.Unsubscribe(topic); err != nil {
			e.logger.Warn("unsubscribe %q failed: %v", topic, err)
		}
	}
	e.subscribed = make(map[string]bool, len(errorTopics))
}

func (e *ErrorClient) runWorker(setStatus func(string)) {
	defer close(e.doneCh)
	setStatus("😴 Sleeping for a bit")
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.keepalive.c():
			e.handleKeepaliveExpiry()
			continue
		default:
		}

		topic, payload, ok, err := e.tport.Recv(e.pollTimeout)
		if err != nil {
			e.logger.Error("recv error: %v", err)
			continue
		}
		if !ok {
			continue
		}

		setStatus(fmt.Sprintf("📨 Dispatching %s", topic))
		e.container.Clear()
		if err := e.codec.Decode(payload, &e.container); err != nil {
			e.logger.Warn("could not decode payload on topic %q: %v", topic, err)
			continue
		}
		e.dispatch(&e.container)
		setStatus("😴 Sleeping for a bit")
	}
}

// handleKeepaliveExpiry declares a timeout and resubscribes to solicit a
// fresh PING from the peer, which re-establishes Connected in dispatch.
func (e *ErrorClient) handleKeepaliveExpiry() {
	e.logger.Warn("keepalive expired, declaring timeout")
	e.conn.setSocketState(SocketDown)
	e.conn.setState(StateTimeout)
	e.scope().Count("error.timeout", 1)
	e.unsubscribeAll()
	e.subscribeAll()
}

// dispatch handles one decoded notification or PING. Each of the six
// notification kinds produces exactly one buffered entry per message,
// regardless of how many notes the message carries.
func (e *ErrorClient) dispatch(c *Container) {
	switch c.Type {
	case MTNmlError, MTNmlText, MTNmlDisplay, MTOperatorError, MTOperatorText, MTOperatorDisplay:
		entry := ErrorEntry{Type: c.Type, Notes: append([]string(nil), c.Notes...)}
		e.bufMu.Lock()
		e.buffer = append(e.buffer, entry)
		e.bufMu.Unlock()
		e.scope().Gauge("error.buffer_depth", float64(e.bufferLen()))
		e.refreshKeepalive()
	case MTPing:
		if e.conn.SocketState() == SocketUp {
			if c.HasPParams() {
				e.keepaliveDuration = time.Duration(c.PParams.KeepaliveTimer) * time.Millisecond * 2
			}
			e.refreshKeepalive()
			return
		}
		e.logger.Notice("ping received, connected")
		e.conn.setSocketState(SocketUp)
		e.conn.setState(StateConnected)
		if c.HasPParams() {
			e.keepaliveDuration = time.Duration(c.PParams.KeepaliveTimer) * time.Millisecond * 2
		}
		e.refreshKeepalive()
	default:
		e.logger.Debug("unrecognized message type %s", c.Type)
	}
}

func (e *ErrorClient) refreshKeepalive() {
	if e.keepaliveDuration > 0 {
		e.keepalive.arm(e.keepaliveDuration)
	}
}

func (e *ErrorClient) bufferLen() int {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	return len(e.buffer)
}
