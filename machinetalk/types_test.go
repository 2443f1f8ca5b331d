package machinetalk

import "testing"

func TestStatusMotionMergeFromLeavesUnsetFieldsIntact(t *testing.T) {
	var m StatusMotion
	m.MergeFrom(&StatusMotion{Enabled: boolPtr(true)})
	m.MergeFrom(&StatusMotion{CurrentVel: float64Ptr(12.5)})

	if m.Enabled == nil || !*m.Enabled {
		t.Fatal("Enabled should have survived the second merge untouched")
	}
	if m.CurrentVel == nil || *m.CurrentVel != 12.5 {
		t.Fatalf("CurrentVel = %v, want 12.5", m.CurrentVel)
	}
}

func TestStatusMotionClear(t *testing.T) {
	m := StatusMotion{Enabled: boolPtr(true)}
	m.Clear()
	if m.Enabled != nil {
		t.Fatal("Clear should reset every field")
	}
}

func TestContainerHasAccessorsAndClear(t *testing.T) {
	c := Container{
		Type:         MTEmcstatFullUpdate,
		StatusMotion: &StatusMotion{},
		PParams:      &PParams{KeepaliveTimer: 500},
	}
	if !c.HasStatusMotion() || !c.HasPParams() {
		t.Fatal("expected HasStatusMotion and HasPParams to be true")
	}
	if c.HasStatusTask() || c.HasCommandParams() {
		t.Fatal("unset sub-payloads should report false")
	}

	c.Clear()
	if c.Type != MTUnknown || c.StatusMotion != nil || c.PParams != nil {
		t.Fatal("Clear should zero every field")
	}
}

func TestMessageTypeStringUnknown(t *testing.T) {
	var mt MessageType = 9999
	if mt.String() != "UNKNOWN" {
		t.Fatalf("String() = %q, want UNKNOWN", mt.String())
	}
}
