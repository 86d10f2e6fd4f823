package ctxswitch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/varunaditya27/nexakernel/task"
)

func TestSwitchHandsOffAndParksCaller(t *testing.T) {
	sw := NewSwitcher()
	boot := &task.TCB{}
	worker := &task.TCB{}
	sw.Bind(boot)

	done := make(chan struct{})
	sw.Spawn(worker, func() {
		close(done)
		sw.Switch(worker, boot) // hand control back to boot
	})

	sw.Switch(boot, worker)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker never ran")
	}
}

func TestMultipleTasksRunInHandoffOrder(t *testing.T) {
	sw := NewSwitcher()
	boot := &task.TCB{}
	a := &task.TCB{}
	b := &task.TCB{}
	sw.Bind(boot)

	var order []string
	aDone := make(chan struct{})
	sw.Spawn(a, func() {
		order = append(order, "a")
		sw.Switch(a, b)
	})
	sw.Spawn(b, func() {
		order = append(order, "b")
		close(aDone)
		sw.Switch(b, boot)
	})

	sw.Switch(boot, a)

	select {
	case <-aDone:
	case <-time.After(time.Second):
		t.Fatal("handoff chain never completed")
	}
	require.Equal(t, []string{"a", "b"}, order)
}

func TestDropRemovesRendezvousChannel(t *testing.T) {
	sw := NewSwitcher()
	tcb := &task.TCB{}
	sw.Bind(tcb)
	sw.Drop(tcb)
	require.NotContains(t, sw.turns, tcb)
}
