package status

import (
	"context"
	"testing"
)

func TestAddSimpleItemAndSnapshot(t *testing.T) {
	ctx := context.Background()
	cctx, setStat, done := AddSimpleItem(ctx, "Status I/O worker")
	defer done()
	setStat("😴 Sleeping for a bit")

	_, setStat2, done2 := AddSimpleItem(cctx, "Status keepalive timer")
	defer done2()
	setStat2("⏳ Armed")

	snap := Snapshot()
	if got, want := snap["Status I/O worker"], "😴 Sleeping for a bit"; got != want {
		t.Errorf("Snapshot()[%q] = %q, want %q", "Status I/O worker", got, want)
	}
}

func TestDoneRemovesItem(t *testing.T) {
	ctx := context.Background()
	_, setStat, done := AddSimpleItem(ctx, "Command I/O worker")
	setStat("📡 Connecting")

	if _, ok := Snapshot()["Command I/O worker"]; !ok {
		t.Fatal("expected item to be present before done()")
	}
	done()
	if _, ok := Snapshot()["Command I/O worker"]; ok {
		t.Fatal("expected item to be removed after done()")
	}
}
