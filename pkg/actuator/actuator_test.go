package actuator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// fakePort records writes to a serial port.
type fakePort struct {
	bytes.Buffer
	writes int
	err    error
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.writes++
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestMaestro_CompactFrames(t *testing.T) {
	port := &fakePort{}
	m := NewMaestro(port, 0, nil)

	if err := m.SetChannels(context.Background(), robot.Command{10: 662, 9: 212}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}

	want := []byte{
		0x84, 9, 0x54, 0x01,
		0x84, 10, 0x16, 0x05,
	}
	if diff := cmp.Diff(want, port.Bytes()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if port.writes != 1 {
		t.Errorf("batch took %d writes, want 1", port.writes)
	}
}

func TestMaestro_PololuFrames(t *testing.T) {
	port := &fakePort{}
	m := NewMaestro(port, 12, nil)

	if err := m.SetChannels(context.Background(), robot.Command{3: 6000}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	// 6000 = 0b101110_1110000
	want := []byte{0xaa, 12, 0x04, 3, 0x70, 0x2e}
	if diff := cmp.Diff(want, port.Bytes()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestMaestro_ClampsTargets(t *testing.T) {
	port := &fakePort{}
	m := NewMaestro(port, 0, nil)

	if err := m.SetChannels(context.Background(), robot.Command{0: -88, 1: 40000}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	want := []byte{
		0x84, 0, 0x00, 0x00,
		0x84, 1, 0x7f, 0x7f,
	}
	if diff := cmp.Diff(want, port.Bytes()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestMaestro_ReleaseAndErrors(t *testing.T) {
	port := &fakePort{}
	m := NewMaestro(port, 0, nil)
	ctx := context.Background()

	if err := m.Release(ctx); err != nil || port.Len() != 0 {
		t.Fatalf("Release before any batch: err=%v wrote=%d", err, port.Len())
	}
	if err := m.SetChannels(ctx, robot.Command{5: 100}); err != nil {
		t.Fatal(err)
	}
	port.Reset()
	if err := m.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if diff := cmp.Diff([]byte{0x84, 5, 0, 0}, port.Bytes()); diff != "" {
		t.Errorf("release frames mismatch (-want +got):\n%s", diff)
	}

	if err := m.SetChannels(ctx, robot.Command{200: 1}); err == nil {
		t.Error("expected error for channel beyond 127")
	}

	port.err = errors.New("unplugged")
	if err := m.SetChannels(ctx, robot.Command{1: 1}); !errors.Is(err, port.err) {
		t.Errorf("SetChannels error = %v, want wrapped port error", err)
	}

	if err := m.Close(); err != nil || !port.closed {
		t.Errorf("Close: err=%v closed=%v", err, port.closed)
	}
}

type register struct {
	addr, value uint16
}

type fakeRegisters struct {
	writes []register
	fail   map[uint16]bool
}

func (f *fakeRegisters) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.fail[address] {
		return nil, errors.New("slave device failure")
	}
	f.writes = append(f.writes, register{address, value})
	return []byte{byte(value >> 8), byte(value)}, nil
}

func TestModbus_WritesRegistersInOrder(t *testing.T) {
	regs := &fakeRegisters{}
	m := NewModbus(regs, nil, nil)

	if err := m.SetChannels(context.Background(), robot.Command{12: 512, 11: 212, 9: -5}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	want := []register{{9, 0}, {11, 212}, {12, 512}}
	if diff := cmp.Diff(want, regs.writes, cmp.AllowUnexported(register{})); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestModbus_CombinesFailures(t *testing.T) {
	regs := &fakeRegisters{fail: map[uint16]bool{9: true, 12: true}}
	m := NewModbus(regs, nil, nil)

	err := m.SetChannels(context.Background(), robot.Command{9: 1, 10: 2, 11: 3, 12: 4})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := len(regs.writes); got != 2 {
		t.Errorf("wrote %d registers, want the 2 healthy ones", got)
	}
	for _, want := range []string{"register 9", "register 12"} {
		if !bytes.Contains([]byte(err.Error()), []byte(want)) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDryRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDryRun(zap.New(core))
	ctx := context.Background()

	cmd := robot.Command{9: 212, 10: 512}
	if err := d.SetChannels(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	cmd[9] = 0

	if diff := cmp.Diff(robot.Command{9: 212, 10: 512}, d.Last()); diff != "" {
		t.Errorf("Last mismatch (-want +got):\n%s", diff)
	}
	if d.Batches() != 1 {
		t.Errorf("Batches = %d, want 1", d.Batches())
	}

	entries := logs.FilterMessage("batch").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d batches, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["ch9"] != int64(212) || fields["ch10"] != int64(512) {
		t.Errorf("batch fields = %v", fields)
	}

	if err := d.Release(ctx); err != nil || !d.Released() {
		t.Errorf("Release: err=%v released=%v", err, d.Released())
	}
}

func TestOpen(t *testing.T) {
	act, err := Open(robot.BusConfig{Driver: DriverDryRun}, []int{9, 10}, nil)
	if err != nil {
		t.Fatalf("Open dryrun: %v", err)
	}
	if _, ok := act.(*DryRun); !ok {
		t.Errorf("Open dryrun returned %T", act)
	}
	if _, ok := act.(robot.Releaser); !ok {
		t.Error("dry run should be a Releaser")
	}

	if _, err := Open(robot.BusConfig{Driver: "pwm", Port: "/dev/null"}, nil, nil); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("unknown driver: got %v, want ErrUnknownDriver", err)
	}
	for _, driver := range []string{DriverFeetech, DriverMaestro, DriverModbus} {
		if _, err := Open(robot.BusConfig{Driver: driver}, nil, nil); !errors.Is(err, ErrNoPort) {
			t.Errorf("%s without port: got %v, want ErrNoPort", driver, err)
		}
	}
}
