package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
)

func TestSendRequiresSendBit(t *testing.T) {
	senderTable := capability.NewTable()
	receiverTable := capability.NewTable()
	recvMB := New(receiverTable)

	v := recvMB.MakeCapability(capability.Kill)
	h := senderTable.Import(v)

	if err := Send(senderTable, h, []byte("hi"), nil); !errors.Is(err, herr.PermissionDenied) {
		t.Fatalf("Send() without SEND bit = %v, want herr.PermissionDenied", err)
	}
}

func TestSendDeliversMessageInOrder(t *testing.T) {
	senderTable := capability.NewTable()
	receiverTable := capability.NewTable()
	recvMB := New(receiverTable)

	v := recvMB.MakeCapability(capability.Send)
	h := senderTable.Import(v)

	if err := Send(senderTable, h, []byte("first"), nil); err != nil {
		t.Fatalf("Send(first) error = %v", err)
	}
	if err := Send(senderTable, h, []byte("second"), nil); err != nil {
		t.Fatalf("Send(second) error = %v", err)
	}

	ctx := context.Background()
	sig1, err := recvMB.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() #1 error = %v", err)
	}
	sig2, err := recvMB.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() #2 error = %v", err)
	}

	m1, ok := sig1.(Message)
	if !ok || string(m1.Payload) != "first" {
		t.Errorf("Recv() #1 = %#v, want Message{Payload: \"first\"}", sig1)
	}
	m2, ok := sig2.(Message)
	if !ok || string(m2.Payload) != "second" {
		t.Errorf("Recv() #2 = %#v, want Message{Payload: \"second\"}", sig2)
	}
}

func TestSendTransfersCapabilities(t *testing.T) {
	senderTable := capability.NewTable()
	receiverTable := capability.NewTable()
	recvMB := New(receiverTable)
	cargoMB := New(senderTable)

	targetCap := recvMB.MakeCapability(capability.Send)
	targetHandle := senderTable.Import(targetCap)

	cargoCap := cargoMB.MakeCapability(capability.Send | capability.Monitor)
	cargoHandle := senderTable.Import(cargoCap)

	if err := Send(senderTable, targetHandle, []byte("payload"), []capability.Handle{cargoHandle}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sig, err := recvMB.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	msg, ok := sig.(Message)
	if !ok {
		t.Fatalf("Recv() = %#v, want Message", sig)
	}
	if len(msg.Caps) != 1 {
		t.Fatalf("Recv() carried %d caps, want 1", len(msg.Caps))
	}

	route, perms, err := receiverTable.Resolve(msg.Caps[0])
	if err != nil {
		t.Fatalf("receiverTable.Resolve() error = %v", err)
	}
	if perms != capability.Send|capability.Monitor {
		t.Errorf("transferred permissions = %s, want SEND|MONITOR", perms)
	}
	if _, ok := route.(*LocalRoute); !ok {
		t.Errorf("transferred route type = %T, want *LocalRoute", route)
	}
}

func TestMonitorFiresDownOnTerminate(t *testing.T) {
	subjectTable := capability.NewTable()
	subjectMB := New(subjectTable)

	watcherTable := capability.NewTable()
	watcherMB := New(watcherTable)

	subjectCap := subjectMB.MakeCapability(capability.Monitor | capability.Kill)
	subjectHandle := watcherTable.Import(subjectCap)

	if err := Monitor(watcherMB, watcherTable, subjectHandle); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}

	route, _, err := watcherTable.Resolve(subjectHandle)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := route.Terminate(); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}

	sig, err := watcherMB.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	down, ok := sig.(Down)
	if !ok {
		t.Fatalf("Recv() = %#v, want Down", sig)
	}
	if down.Subject != subjectHandle {
		t.Errorf("Down.Subject = %v, want %v", down.Subject, subjectHandle)
	}
}

func TestMonitorOnAlreadyDeadRouteFiresImmediately(t *testing.T) {
	subjectTable := capability.NewTable()
	subjectMB := New(subjectTable)
	subjectCap := subjectMB.MakeCapability(capability.Monitor)

	watcherTable := capability.NewTable()
	watcherMB := New(watcherTable)
	subjectHandle := watcherTable.Import(subjectCap)

	route, _, _ := watcherTable.Resolve(subjectHandle)
	route.Terminate()

	if err := Monitor(watcherMB, watcherTable, subjectHandle); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}

	sig, ok := watcherMB.TryRecv()
	if !ok {
		t.Fatal("TryRecv() found nothing, want an immediate Down")
	}
	if _, ok := sig.(Down); !ok {
		t.Errorf("TryRecv() = %#v, want Down", sig)
	}
}

func TestRecvBlocksUntilSendOrCancel(t *testing.T) {
	table := capability.NewTable()
	mb := New(table)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := mb.Recv(ctx); err == nil {
		t.Fatal("Recv() on empty mailbox with no sender returned nil error")
	}
}

func TestRecvAfterTerminateReturnsClosed(t *testing.T) {
	table := capability.NewTable()
	mb := New(table)
	route := &LocalRoute{mailbox: mb}
	route.Terminate()

	if _, err := mb.Recv(context.Background()); !errors.Is(err, herr.Closed) {
		t.Errorf("Recv() after terminate error = %v, want herr.Closed", err)
	}
}

func TestPollReturnsFromReadyMailbox(t *testing.T) {
	tableA := capability.NewTable()
	mbA := New(tableA)
	tableB := capability.NewTable()
	mbB := New(tableB)

	senderTable := capability.NewTable()
	h := senderTable.Import(mbB.MakeCapability(capability.Send))
	if err := Send(senderTable, h, []byte("for B"), nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	idx, sig, err := Poll(context.Background(), []*Mailbox{mbA, mbB})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if idx != 1 {
		t.Errorf("Poll() index = %d, want 1", idx)
	}
	msg, ok := sig.(Message)
	if !ok || string(msg.Payload) != "for B" {
		t.Errorf("Poll() signal = %#v, want Message{Payload: \"for B\"}", sig)
	}
}
