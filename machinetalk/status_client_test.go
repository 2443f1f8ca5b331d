package machinetalk

import (
	"testing"
	"time"

	"github.com/cerna/pymachinetalk/logger"
)

func boolPtr(b bool) *bool             { return &b }
func float64Ptr(f float64) *float64    { return &f }
func taskModePtr(m TaskMode) *TaskMode { return &m }
func interpStatePtr(s InterpState) *InterpState {
	return &s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestStatusClient() (*StatusClient, *fakeStatusTransport) {
	tport := newFakeStatusTransport()
	sc := NewStatusClient(tport, JSONCodec{}, logger.NewBuffer(), nil)
	sc.SetURI("inproc://status")
	return sc, tport
}

// S1 — Clean connect.
func TestStatusClientCleanConnect(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer sc.Stop()

	if sc.State() != StateConnecting {
		t.Fatalf("state after Ready = %v, want %v", sc.State(), StateConnecting)
	}

	tport.push("motion", &Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{Enabled: boolPtr(true)},
		PParams:      &PParams{KeepaliveTimer: 1000},
	})
	tport.push("config", &Container{Type: MTEmcstatFullUpdate, StatusConfig: &StatusConfig{AxisMask: nil}})
	tport.push("io", &Container{Type: MTEmcstatFullUpdate, StatusIo: &StatusIo{EstopOk: boolPtr(true)}})

	waitFor(t, time.Second, func() bool { return sc.State() == StateConnected })
	if sc.Synced() {
		t.Fatal("synced should still be false after only three of five channels")
	}

	tport.push("task", &Container{Type: MTEmcstatFullUpdate, StatusTask: &StatusTask{TaskMode: taskModePtr(TaskModeAuto)}})
	tport.push("interp", &Container{Type: MTEmcstatFullUpdate, StatusInterp: &StatusInterp{InterpState: interpStatePtr(InterpStateIdle)}})

	waitFor(t, time.Second, sc.Synced)
	waitFor(t, time.Second, sc.Running)
}

// S2 — Peer restart: a PING while socket_state is down drives the state
// machine through Connecting and a resubscribe; the next FULL_UPDATE
// restores Connected.
func TestStatusClientPeerRestart(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer sc.Stop()

	tport.push("motion", &Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{Enabled: boolPtr(true)},
		PParams:      &PParams{KeepaliveTimer: 50},
	})
	waitFor(t, time.Second, func() bool { return sc.State() == StateConnected })

	// Simulate a missed heartbeat: force the socket back down without
	// going through the real timer, then deliver a recovery PING.
	sc.conn.setSocketState(SocketDown)
	sc.conn.setState(StateTimeout)

	tport.push("motion", &Container{Type: MTPing})
	waitFor(t, time.Second, func() bool { return sc.State() == StateConnecting })

	tport.push("motion", &Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{Enabled: boolPtr(true)},
		PParams:      &PParams{KeepaliveTimer: 1000},
	})
	waitFor(t, time.Second, func() bool { return sc.State() == StateConnected })
}

// S6 — Timeout preserves mirror contents and clears the sync set.
func TestStatusClientTimeoutPreservesMirrors(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer sc.Stop()

	tport.push("motion", &Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{Enabled: boolPtr(true)},
		PParams:      &PParams{KeepaliveTimer: 20},
	})
	waitFor(t, time.Second, func() bool { return sc.State() == StateConnected })

	waitFor(t, time.Second, func() bool { return sc.State() == StateTimeout })

	if sc.Synced() {
		t.Fatal("synced should be false after timeout")
	}
	motion := sc.Motion()
	if motion.Enabled == nil || !*motion.Enabled {
		t.Fatal("motion mirror should be retained across a Timeout transition")
	}
}

func TestStatusClientStopClearsMirrorsAndUnsubscribes(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	tport.push("motion", &Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{Enabled: boolPtr(true)},
	})
	waitFor(t, time.Second, func() bool { return sc.Motion().Enabled != nil })

	if err := sc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if tport.subscribedCount() != 0 {
		t.Fatalf("expected all topics unsubscribed, got %d still subscribed", tport.subscribedCount())
	}
	if sc.Motion().Enabled != nil {
		t.Fatal("motion mirror should be cleared on an explicit stop")
	}
	if sc.State() != StateDisconnected {
		t.Fatalf("state after Stop = %v, want %v", sc.State(), StateDisconnected)
	}
}

// A FULL_UPDATE on a topic missing its expected sub-payload must not merge
// or mark that topic synced.
func TestStatusClientFullUpdateWithoutPayloadDoesNotSync(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer sc.Stop()

	tport.push("motion", &Container{Type: MTEmcstatFullUpdate})
	time.Sleep(20 * time.Millisecond)

	if sc.Synced() {
		t.Fatal("a payload-less full update must not mark any channel synced")
	}
	if sc.Motion().Enabled != nil {
		t.Fatal("a payload-less full update must not merge into the mirror")
	}
}

func TestStatusClientReadyIsIdempotent(t *testing.T) {
	sc, tport := newTestStatusClient()
	if err := sc.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := sc.Ready(); err != nil {
		t.Fatalf("second Ready: %v", err)
	}
	if err := sc.Ready(); err != nil {
		t.Fatalf("third Ready: %v", err)
	}
	defer sc.Stop()

	if tport.subscribedCount() != len(statusChannels) {
		t.Fatalf("expected a single subscribe pass, got %d subscriptions", tport.subscribedCount())
	}
}
