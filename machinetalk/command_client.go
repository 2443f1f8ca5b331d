package machinetalk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/buildkite/roko"
	"github.com/google/uuid"

	"github.com/cerna/pymachinetalk/logger"
	"github.com/cerna/pymachinetalk/metrics"
	"github.com/cerna/pymachinetalk/status"
)

const (
	defaultHeartbeatPeriod    = 3000 * time.Millisecond
	defaultPingErrorThreshold = 2
)

// CommandClient sends typed commands to the controller over a
// request/reply dealer socket and tracks liveness via ping/pong. It never
// delivers command responses to the caller; connection health is the only
// observable signal.
type CommandClient struct {
	logger  logger.Logger
	metrics *metrics.Scope
	codec   Codec
	tport   CommandTransport

	uri         string
	identity    string
	pollTimeout time.Duration

	heartbeatPeriod    time.Duration
	pingErrorThreshold int

	conn connState

	pingMu         sync.Mutex
	pingErrorCount int

	txMu sync.Mutex
	tx   Container
	rx   Container

	callbackMu     sync.RWMutex
	onServiceError func(notes []string)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCommandClient constructs a CommandClient with a freshly generated
// `<host>-<uuid>` dealer identity. The caller must set a URI with SetURI
// before calling Ready or Start.
func NewCommandClient(tport CommandTransport, codec Codec, log logger.Logger, scope *metrics.Scope) *CommandClient {
	if log == nil {
		log = logger.Discard
	}
	log = log.WithFields(logger.StringField("endpoint", "command"))
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return &CommandClient{
		logger:             log,
		metrics:            scope,
		codec:              codec,
		tport:              tport,
		identity:           fmt.Sprintf("%s-%s", host, uuid.NewString()),
		pollTimeout:        200 * time.Millisecond,
		heartbeatPeriod:    defaultHeartbeatPeriod,
		pingErrorThreshold: defaultPingErrorThreshold,
		conn:               newConnState(),
	}
}

// SetURI sets the command dealer endpoint. Must be called before Ready or
// Start.
func (c *CommandClient) SetURI(uri string) { c.uri = uri }

// SetHeartbeatPeriod overrides the default 3000ms ping period. A period of
// 0 disables the heartbeat entirely.
func (c *CommandClient) SetHeartbeatPeriod(d time.Duration) { c.heartbeatPeriod = d }

// SetPingErrorThreshold overrides the default threshold of 2 missed pings
// before a timeout is declared.
func (c *CommandClient) SetPingErrorThreshold(n int) { c.pingErrorThreshold = n }

// SetOnServiceError installs a callback invoked whenever the controller
// reports a service-level error on the command channel. It is never
// invoked concurrently.
func (c *CommandClient) SetOnServiceError(fn func(notes []string)) {
	c.callbackMu.Lock()
	c.onServiceError = fn
	c.callbackMu.Unlock()
}

// Identity returns the dealer-socket identity assigned at construction.
func (c *CommandClient) Identity() string { return c.identity }

func (c *CommandClient) State() ConnectionState { return c.conn.State() }
func (c *CommandClient) Connected() bool        { return c.conn.Connected() }

// PingErrorCount returns the current consecutive missed-ping count.
func (c *CommandClient) PingErrorCount() int {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.pingErrorCount
}

// Ready is the idempotent first-call trigger: the first call runs Start,
// every subsequent call (until Stop) is a no-op.
func (c *CommandClient) Ready() error {
	if !c.conn.markStarted() {
		return nil
	}
	if err := c.start(); err != nil {
		c.conn.markStopped()
		return err
	}
	return nil
}

// Start behaves like Ready. Exposed separately so a stopped client can be
// restarted explicitly.
func (c *CommandClient) Start() error { return c.Ready() }

func (c *CommandClient) start() error {
	if c.uri == "" {
		return errors.New("machinetalk: command client URI not set")
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.conn.setState(StateConnecting)
	c.conn.setSocketState(SocketDown)

	retrier := roko.NewRetrier(
		roko.WithMaxAttempts(5),
		roko.WithStrategy(roko.ExponentialSubsecond(250*time.Millisecond)),
	)
	err := retrier.DoWithContext(context.Background(), func(r *roko.Retrier) error {
		if err := c.tport.Connect(c.uri); err != nil {
			c.logger.Warn("connect attempt %d to %s failed: %v", r.AttemptCount(), c.uri, err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("machinetalk: command connect: %w", err)
	}
	if err := c.tport.SetIdentity(c.identity); err != nil {
		return fmt.Errorf("machinetalk: command set identity: %w", err)
	}

	c.conn.setSocketState(SocketTrying)
	c.pingMu.Lock()
	c.pingErrorCount = 0
	c.pingMu.Unlock()

	_, setStat, done := status.AddSimpleItem(context.Background(), "Command I/O worker")
	go func() {
		defer done()
		c.runWorker(setStat)
	}()
	c.sendPing()
	return nil
}

// Stop signals the I/O worker to exit, disconnects, and returns the
// client to Disconnected. Calling Stop twice is a no-op.
func (c *CommandClient) Stop() error {
	if !c.conn.isStarted() {
		return nil
	}
	close(c.stopCh)
	<-c.doneCh

	if err := c.tport.Disconnect(); err != nil {
		c.logger.Warn("disconnect error: %v", err)
	}
	c.pingMu.Lock()
	c.pingErrorCount = 0
	c.pingMu.Unlock()
	c.conn.markStopped()
	return nil
}

func (c *CommandClient) scope() *metrics.Scope {
	if c.metrics == nil {
		return (&metrics.Collector{}).Scope(nil)
	}
	return c.metrics
}

func (c *CommandClient) runWorker(setStatus func(string)) {
	defer close(c.doneCh)

	var heartbeatC <-chan time.Time
	if c.heartbeatPeriod > 0 {
		ticker := time.NewTicker(c.heartbeatPeriod)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	setStatus("😴 Sleeping for a bit")
	for {
		select {
		case <-c.stopCh:
			return
		case <-heartbeatC:
			setStatus("📡 Pinging for PING_ACKNOWLEDGE")
			c.heartbeatTick()
			setStatus("😴 Sleeping for a bit")
			continue
		default:
		}

		payload, ok, err := c.tport.Recv(c.pollTimeout)
		if err != nil {
			c.logger.Error("recv error: %v", err)
			continue
		}
		if !ok {
			continue
		}

		c.rx.Clear()
		if err := c.codec.Decode(payload, &c.rx); err != nil {
			c.logger.Warn("could not decode payload: %v", err)
			continue
		}
		c.dispatch(&c.rx)
	}
}

func (c *CommandClient) heartbeatTick() {
	c.pingMu.Lock()
	c.pingErrorCount++
	count := c.pingErrorCount
	c.pingMu.Unlock()

	if count > c.pingErrorThreshold {
		c.conn.setSocketState(SocketTrying)
		c.conn.setState(StateTimeout)
		c.scope().Count("command.timeout", 1)
		c.logger.Warn("%d consecutive missed pings, declaring timeout", count)
	}
	c.sendPing()
}

func (c *CommandClient) sendPing() {
	c.txMu.Lock()
	c.tx.Type = MTPing
	payload, err := c.codec.Encode(&c.tx)
	c.tx.Clear()
	c.txMu.Unlock()

	if err != nil {
		c.logger.Error("could not encode ping: %v", err)
		return
	}
	if err := c.tport.Send(payload); err != nil {
		c.logger.Warn("ping send failed: %v", err)
	}
	c.scope().Count("command.ping_sent", 1)
}

// dispatch handles an inbound message on the command channel. MT_ERROR is
// its own top-level branch, sibling to PING_ACKNOWLEDGE, so a service error
// is never masked by a pending heartbeat reply.
func (c *CommandClient) dispatch(rx *Container) {
	switch rx.Type {
	case MTPingAcknowledge:
		c.pingMu.Lock()
		c.pingErrorCount = 0
		c.pingMu.Unlock()
		if c.conn.SocketState() != SocketUp {
			c.logger.Notice("ping acknowledged, connected")
			c.conn.setSocketState(SocketUp)
			c.conn.setState(StateConnected)
		}
	case MTError:
		c.logger.Warn("service reported error: %v", rx.Notes)
		c.callbackMu.RLock()
		cb := c.onServiceError
		c.callbackMu.RUnlock()
		if cb != nil {
			cb(append([]string(nil), rx.Notes...))
		}
	default:
		c.logger.Debug("unrecognized message type %s", rx.Type)
	}
}

// send builds a command under the tx lock, sends it, and clears the
// container. It is a silent no-op when the client is not Connected.
func (c *CommandClient) send(msgType MessageType, interp string, build func(p *CommandParams)) {
	if !c.conn.Connected() {
		return
	}
	c.txMu.Lock()
	defer func() {
		c.tx.Clear()
		c.txMu.Unlock()
	}()

	c.tx.Type = msgType
	c.tx.InterpName = interp
	if build != nil {
		c.tx.CommandParams = &CommandParams{}
		build(c.tx.CommandParams)
	}

	payload, err := c.codec.Encode(&c.tx)
	if err != nil {
		c.logger.Error("could not encode %s: %v", msgType, err)
		return
	}
	if err := c.tport.Send(payload); err != nil {
		c.logger.Warn("send %s failed: %v", msgType, err)
	}
}

// clearTx clears the tx container without sending, used for caller-misuse
// paths (unknown enum values).
func (c *CommandClient) clearTx() {
	c.txMu.Lock()
	c.tx.Clear()
	c.txMu.Unlock()
}

func (c *CommandClient) Abort(interp string) { c.send(MTTaskAbort, interp, nil) }

func (c *CommandClient) RunProgram(interp string, line int32) {
	c.send(MTTaskPlanRun, interp, func(p *CommandParams) { p.LineNumber = line })
}

func (c *CommandClient) PauseProgram(interp string)  { c.send(MTTaskPlanPause, interp, nil) }
func (c *CommandClient) StepProgram(interp string)   { c.send(MTTaskPlanStep, interp, nil) }
func (c *CommandClient) ResumeProgram(interp string) { c.send(MTTaskResume, interp, nil) }
func (c *CommandClient) ResetProgram(interp string)  { c.send(MTTaskPlanInit, interp, nil) }

func (c *CommandClient) SetTaskMode(interp string, mode TaskMode) {
	c.send(MTTaskSetMode, interp, func(p *CommandParams) { p.TaskMode = mode })
}

func (c *CommandClient) SetTaskState(interp string, state TaskState) {
	c.send(MTTaskSetState, interp, func(p *CommandParams) { p.TaskState = state })
}

func (c *CommandClient) OpenProgram(interp, path string) {
	c.send(MTTaskPlanOpen, interp, func(p *CommandParams) { p.Path = path })
}

func (c *CommandClient) ExecuteMDI(interp, command string) {
	c.send(MTTaskPlanExecute, interp, func(p *CommandParams) { p.Command = command })
}

func (c *CommandClient) SetSpindleBrake(brake SpindleBrake) {
	switch brake {
	case SpindleBrakeEngage:
		c.send(MTSpindleBrakeEngage, "", nil)
	case SpindleBrakeRelease:
		c.send(MTSpindleBrakeRelease, "", nil)
	default:
		c.clearTx()
	}
}

// SetSpindle chooses among SPINDLE_ON (forward/reverse, reverse negates
// velocity), SPINDLE_OFF, SPINDLE_INCREASE, SPINDLE_DECREASE, and
// SPINDLE_CONSTANT by mode. An unrecognized mode is a caller-misuse no-op.
func (c *CommandClient) SetSpindle(mode SpindleMode, velocity float64) {
	switch mode {
	case SpindleForward:
		c.send(MTSpindleOn, "", func(p *CommandParams) { p.Velocity = velocity })
	case SpindleReverse:
		c.send(MTSpindleOn, "", func(p *CommandParams) { p.Velocity = -velocity })
	case SpindleOffMode:
		c.send(MTSpindleOff, "", nil)
	case SpindleIncreaseMode:
		c.send(MTSpindleIncrease, "", nil)
	case SpindleDecreaseMode:
		c.send(MTSpindleDecrease, "", nil)
	case SpindleConstantMode:
		c.send(MTSpindleConstant, "", nil)
	default:
		c.clearTx()
	}
}

func (c *CommandClient) SetSpindleOverride(scale float64) {
	c.send(MTTrajSetSpindleScale, "", func(p *CommandParams) { p.Scale = scale })
}

func (c *CommandClient) SetFeedOverride(scale float64) {
	c.send(MTTrajSetScale, "", func(p *CommandParams) { p.Scale = scale })
}

func (c *CommandClient) SetFeedOverrideEnabled(enable bool) {
	c.send(MTSetFeedOverrideEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetSpindleOverrideEnabled(enable bool) {
	c.send(MTSetSpindleOverrideEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetFeedHoldEnabled(enable bool) {
	c.send(MTSetFeedHoldEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetAdaptiveFeedEnabled(enable bool) {
	c.send(MTSetAdaptiveFeedEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetBlockDeleteEnabled(enable bool) {
	c.send(MTSetBlockDeleteEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetOptionalStopEnabled(enable bool) {
	c.send(MTSetOptionalStopEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetTeleopEnabled(enable bool) {
	c.send(MTSetTeleopEnable, "", func(p *CommandParams) { p.Enable = enable })
}

func (c *CommandClient) SetFloodEnabled(enable bool) {
	if enable {
		c.send(MTCoolantFloodOn, "", nil)
		return
	}
	c.send(MTCoolantFloodOff, "", nil)
}

func (c *CommandClient) SetMistEnabled(enable bool) {
	if enable {
		c.send(MTCoolantMistOn, "", nil)
		return
	}
	c.send(MTCoolantMistOff, "", nil)
}

func (c *CommandClient) HomeAxis(index int32) {
	c.send(MTAxisHome, "", func(p *CommandParams) { p.Index = index })
}

func (c *CommandClient) UnhomeAxis(index int32) {
	c.send(MTAxisUnhome, "", func(p *CommandParams) { p.Index = index })
}

func (c *CommandClient) OverrideLimits() { c.send(MTAxisOverrideLimits, "", nil) }

// Jog chooses among AXIS_ABORT, AXIS_JOG, and AXIS_INCR_JOG by kind. An
// unrecognized kind is a caller-misuse no-op.
func (c *CommandClient) Jog(kind JogKind, axis int32, velocity, distance float64) {
	switch kind {
	case JogStop:
		c.send(MTAxisAbort, "", func(p *CommandParams) { p.Index = axis })
	case JogContinuous:
		c.send(MTAxisJog, "", func(p *CommandParams) {
			p.Index = axis
			p.Velocity = velocity
		})
	case JogIncrement:
		c.send(MTAxisIncrJog, "", func(p *CommandParams) {
			p.Index = axis
			p.Velocity = velocity
			p.Distance = distance
		})
	default:
		c.clearTx()
	}
}

func (c *CommandClient) SetMaximumVelocity(v float64) {
	c.send(MTTrajSetMaxVelocity, "", func(p *CommandParams) { p.Velocity = v })
}

func (c *CommandClient) SetAxisMinPositionLimit(axis int32, value float64) {
	c.send(MTAxisSetMinPositionLimit, "", func(p *CommandParams) {
		p.Index = axis
		p.Value = value
	})
}

func (c *CommandClient) SetAxisMaxPositionLimit(axis int32, value float64) {
	c.send(MTAxisSetMaxPositionLimit, "", func(p *CommandParams) {
		p.Index = axis
		p.Value = value
	})
}

func (c *CommandClient) LoadToolTable() { c.send(MTToolLoadToolTable, "", nil) }

func (c *CommandClient) SetToolOffset(index int32, zOffset, xOffset, diameter, frontAngle, backAngle float64, orientation int32) {
	c.send(MTToolSetOffset, "", func(p *CommandParams) {
		p.ToolData = ToolData{
			Index:       index,
			ZOffset:     zOffset,
			XOffset:     xOffset,
			Diameter:    diameter,
			FrontAngle:  frontAngle,
			BackAngle:   backAngle,
			Orientation: orientation,
		}
	})
}

func (c *CommandClient) SetAnalogOutput(index int32, value float64) {
	c.send(MTMotionSetAout, "", func(p *CommandParams) {
		p.Index = index
		p.Value = value
	})
}

func (c *CommandClient) SetDigitalOutput(index int32, enable bool) {
	c.send(MTMotionSetDout, "", func(p *CommandParams) {
		p.Index = index
		p.Enable = enable
	})
}

func (c *CommandClient) SetTrajectoryMode(mode int32) {
	c.send(MTTrajSetMode, "", func(p *CommandParams) { p.TrajMode = mode })
}

func (c *CommandClient) SetTeleopVector(a, b, cc, u, v, w float64) {
	c.send(MTTrajSetTeleopVector, "", func(p *CommandParams) {
		p.Pose = Pose{A: a, B: b, C: cc, U: u, V: v, W: w}
	})
}

// SetDebugLevel sets the controller debug level for interp: interp_name
// is set from interp and the level goes on DebugLevel.
func (c *CommandClient) SetDebugLevel(interp string, level int32) {
	c.send(MTSetDebug, interp, func(p *CommandParams) { p.DebugLevel = level })
}

func (c *CommandClient) Shutdown() { c.send(MTShutdown, "", nil) }
