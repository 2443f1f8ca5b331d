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

var statusChannels = [...]string{"motion", "config", "io", "task", "interp"}

// StatusClient maintains a read-only replica of the controller's five
// status channels over a subscribe transport, and exposes connection
// health alongside the replica.
type StatusClient struct {
	logger  logger.Logger
	metrics *metrics.Scope
	codec   Codec
	tport   StatusTransport

	uri         string
	pollTimeout time.Duration

	conn connState

	motion   StatusMotion
	motionMu sync.RWMutex
	config   StatusConfig
	configMu sync.RWMutex
	io       StatusIo
	ioMu     sync.RWMutex
	task     StatusTask
	taskMu   sync.RWMutex
	interp   StatusInterp
	interpMu sync.RWMutex

	syncMu  sync.Mutex
	syncSet map[string]bool

	subMu      sync.Mutex
	subscribed map[string]bool

	keepaliveDuration time.Duration
	keepalive         *keepaliveTimer

	container Container

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStatusClient constructs a StatusClient around the given transport and
// codec. The caller must set a URI with SetURI before calling Ready or
// Start.
func NewStatusClient(tport StatusTransport, codec Codec, log logger.Logger, scope *metrics.Scope) *StatusClient {
	if log == nil {
		log = logger.Discard
	}
	log = log.WithFields(logger.StringField("endpoint", "status"))
	return &StatusClient{
		logger:      log,
		metrics:     scope,
		codec:       codec,
		tport:       tport,
		pollTimeout: 200 * time.Millisecond,
		conn:        newConnState(),
		syncSet:     make(map[string]bool, len(statusChannels)),
		subscribed:  make(map[string]bool, len(statusChannels)),
		keepalive:   newKeepaliveTimer(),
	}
}

// SetURI sets the status subscribe endpoint. Must be called before Ready
// or Start.
func (s *StatusClient) SetURI(uri string) { s.uri = uri }

// State returns the current public connection state.
func (s *StatusClient) State() ConnectionState { return s.conn.State() }

// Connected reports whether state is currently Connected.
func (s *StatusClient) Connected() bool { return s.conn.Connected() }

// Synced reports whether every channel has received at least one full
// update since the last clear.
func (s *StatusClient) Synced() bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return len(s.syncSet) == len(statusChannels)
}

// Running reports the derived run flag: task mode is AUTO or MDI and the
// interpreter is idle.
func (s *StatusClient) Running() bool {
	s.taskMu.RLock()
	mode := s.task.TaskMode
	s.taskMu.RUnlock()

	s.interpMu.RLock()
	state := s.interp.InterpState
	s.interpMu.RUnlock()

	if mode == nil || state == nil {
		return false
	}
	return (*mode == TaskModeAuto || *mode == TaskModeMDI) && *state == InterpStateIdle
}

// Motion returns a copy of the current motion channel mirror.
func (s *StatusClient) Motion() StatusMotion {
	s.motionMu.RLock()
	defer s.motionMu.RUnlock()
	return s.motion
}

// Config returns a copy of the current config channel mirror.
func (s *StatusClient) Config() StatusConfig {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// Io returns a copy of the current io channel mirror.
func (s *StatusClient) Io() StatusIo {
	s.ioMu.RLock()
	defer s.ioMu.RUnlock()
	return s.io
}

// Task returns a copy of the current task channel mirror.
func (s *StatusClient) Task() StatusTask {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()
	return s.task
}

// Interp returns a copy of the current interp channel mirror.
func (s *StatusClient) Interp() StatusInterp {
	s.interpMu.RLock()
	defer s.interpMu.RUnlock()
	return s.interp
}

// Ready is the idempotent first-call trigger: the first call runs Start,
// every subsequent call (until Stop) is a no-op.
func (s *StatusClient) Ready() error {
	if !s.conn.markStarted() {
		return nil
	}
	if err := s.start(); err != nil {
		s.conn.markStopped()
		return err
	}
	return nil
}

// Start behaves like Ready. It is exposed separately so a stopped client
// can be restarted explicitly.
func (s *StatusClient) Start() error { return s.Ready() }

func (s *StatusClient) start() error {
	if s.uri == "" {
		return errors.New("machinetalk: status client URI not set")
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.conn.setState(StateConnecting)
	s.conn.setSocketState(SocketDown)

	retrier := roko.NewRetrier(
		roko.WithMaxAttempts(5),
		roko.WithStrategy(roko.ExponentialSubsecond(250*time.Millisecond)),
	)
	err := retrier.DoWithContext(context.Background(), func(r *roko.Retrier) error {
		if err := s.tport.Connect(s.uri); err != nil {
			s.logger.Warn("connect attempt %d to %s failed: %v", r.AttemptCount(), s.uri, err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("machinetalk: status connect: %w", err)
	}

	s.conn.setSocketState(SocketTrying)
	s.subscribeAll()
	s.scope().Count("status.connect", 1)

	_, setStat, done := status.AddSimpleItem(context.Background(), "Status I/O worker")
	go func() {
		defer done()
		s.runWorker(setStat)
	}()
	return nil
}

// Stop signals the I/O worker to exit, unsubscribes, disconnects, and
// returns the client to Disconnected. Calling Stop twice is a no-op.
func (s *StatusClient) Stop() error {
	if !s.conn.isStarted() {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	s.unsubscribeAll()
	if err := s.tport.Disconnect(); err != nil {
		s.logger.Warn("disconnect error: %v", err)
	}
	s.keepalive.stop()

	s.motionMu.Lock()
	s.motion.Clear()
	s.motionMu.Unlock()
	s.configMu.Lock()
	s.config.Clear()
	s.configMu.Unlock()
	s.ioMu.Lock()
	s.io.Clear()
	s.ioMu.Unlock()
	s.taskMu.Lock()
	s.task.Clear()
	s.taskMu.Unlock()
	s.interpMu.Lock()
	s.interp.Clear()
	s.interpMu.Unlock()

	s.syncMu.Lock()
	s.syncSet = make(map[string]bool, len(statusChannels))
	s.syncMu.Unlock()

	s.conn.markStopped()
	return nil
}

func (s *StatusClient) scope() *metrics.Scope {
	if s.metrics == nil {
		return (&metrics.Collector{}).Scope(nil)
	}
	return s.metrics
}

func (s *StatusClient) subscribeAll() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range statusChannels {
		if err := s.tport.Subscribe(ch); err != nil {
			s.logger.Warn("subscribe %q failed: %v", ch, err)
			continue
		}
		s.subscribed[ch] = true
	}
}

func (s *StatusClient) unsubscribeAll() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribed {
		if err := s.tport.Unsubscribe(ch); err != nil {
			s.logger.Warn("unsubscribe %q failed: %v", ch, err)
		}
	}
	s.subscribed = make(map[string]bool, len(statusChannels))
}

func (s *StatusClient) runWorker(setStatus func(string)) {
	defer close(s.doneCh)
	setStatus("😴 Sleeping for a bit")
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.keepalive.c():
			s.handleKeepaliveExpiry()
			continue
		default:
		}

		topic, payload, ok, err := s.tport.Recv(s.pollTimeout)
		if err != nil {
			s.logger.Error("recv error: %v", err)
			continue
		}
		if !ok {
			continue
		}

		setStatus(fmt.Sprintf("📨 Dispatching %s", topic))
		s.container.Clear()
		if err := s.codec.Decode(payload, &s.container); err != nil {
			s.logger.Warn("could not decode payload on topic %q: %v", topic, err)
			continue
		}
		s.dispatch(topic, &s.container)
		setStatus("😴 Sleeping for a bit")
	}
}

func (s *StatusClient) handleKeepaliveExpiry() {
	s.logger.Warn("keepalive expired, declaring timeout")
	s.conn.setSocketState(SocketDown)
	s.conn.setState(StateTimeout)
	s.clearSyncSet()
	s.scope().Count("status.timeout", 1)
}

func (s *StatusClient) clearSyncSet() {
	s.syncMu.Lock()
	s.syncSet = make(map[string]bool, len(statusChannels))
	s.syncMu.Unlock()
}

func (s *StatusClient) dispatch(topic string, c *Container) {
	switch c.Type {
	case MTEmcstatFullUpdate:
		if !hasChannelPayload(topic, c) {
			s.logger.Debug("full update on topic %q carried no payload, ignoring", topic)
			return
		}
		s.mergeChannel(topic, c)
		s.markSynced(topic)
		if s.conn.SocketState() != SocketUp {
			s.logger.Notice("first full update received, connected")
			s.conn.setSocketState(SocketUp)
			s.conn.setState(StateConnected)
		}
		if c.HasPParams() {
			s.keepaliveDuration = time.Duration(c.PParams.KeepaliveTimer) * time.Millisecond * 2
			s.keepalive.arm(s.keepaliveDuration)
		}
	case MTEmcstatIncrementalUpdate:
		s.mergeChannel(topic, c)
		if s.keepaliveDuration > 0 {
			s.keepalive.arm(s.keepaliveDuration)
		}
	case MTPing:
		if s.conn.SocketState() == SocketUp {
			if s.keepaliveDuration > 0 {
				s.keepalive.arm(s.keepaliveDuration)
			}
			return
		}
		s.conn.setState(StateConnecting)
		s.unsubscribeAll()
		s.subscribeAll()
	default:
		s.logger.Debug("unrecognized message type %s on topic %q", c.Type, topic)
	}
}

// hasChannelPayload reports whether c carries the sub-payload expected for
// topic. A FULL_UPDATE without it must not merge or mark the topic synced.
func hasChannelPayload(topic string, c *Container) bool {
	switch topic {
	case "motion":
		return c.HasStatusMotion()
	case "config":
		return c.HasStatusConfig()
	case "io":
		return c.HasStatusIo()
	case "task":
		return c.HasStatusTask()
	case "interp":
		return c.HasStatusInterp()
	default:
		return false
	}
}

func (s *StatusClient) mergeChannel(topic string, c *Container) {
	switch topic {
	case "motion":
		s.motionMu.Lock()
		s.motion.MergeFrom(c.StatusMotion)
		s.motionMu.Unlock()
	case "config":
		s.configMu.Lock()
		s.config.MergeFrom(c.StatusConfig)
		s.configMu.Unlock()
	case "io":
		s.ioMu.Lock()
		s.io.MergeFrom(c.StatusIo)
		s.ioMu.Unlock()
	case "task":
		s.taskMu.Lock()
		s.task.MergeFrom(c.StatusTask)
		s.taskMu.Unlock()
	case "interp":
		s.interpMu.Lock()
		s.interp.MergeFrom(c.StatusInterp)
		s.interpMu.Unlock()
	default:
		s.logger.Debug("merge on unknown topic %q", topic)
	}
}

func (s *StatusClient) markSynced(topic string) {
	s.syncMu.Lock()
	s.syncSet[topic] = true
	s.syncMu.Unlock()
}
