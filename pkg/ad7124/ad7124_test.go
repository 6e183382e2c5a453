package ad7124

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/sample"
)

// recordingBus records every transmitted buffer and answers with reply.
type recordingBus struct {
	writes [][]byte
	reply  func(w, r []byte)
	err    error
}

func (b *recordingBus) Tx(w, r []byte) error {
	if len(w) != len(r) {
		return errors.New("buffer length mismatch")
	}
	b.writes = append(b.writes, append([]byte(nil), w...))
	if b.err != nil {
		return b.err
	}
	if b.reply != nil {
		b.reply(w, r)
	}
	return nil
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestWordEncoding(t *testing.T) {
	setup := DefaultSetup()
	assert.Equal(t, uint32(0x8001), ChannelWord(0))
	assert.Equal(t, uint32(0x9043), ChannelWord(1))
	assert.Equal(t, uint32(0x0872), setup.ConfigWord())
	assert.Equal(t, uint32(0x0D00), Control{}.ControlWord())
	assert.Equal(t, 4.0, setup.Gain())
}

func TestDriver_Reset(t *testing.T) {
	bus := &recordingBus{}
	require.NoError(t, New(bus, DefaultOptions()).Reset())

	want := [][]byte{{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}
	if diff := cmp.Diff(want, bus.writes); diff != "" {
		t.Errorf("reset bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestDriver_RegisterAccess(t *testing.T) {
	tests := []struct {
		name  string
		op    func(d *Driver) error
		wantW []byte
	}{
		{
			name:  "read status",
			op:    func(d *Driver) error { _, err := d.ReadStatus(); return err },
			wantW: []byte{0x40, 0x00},
		},
		{
			name:  "write channel 1",
			op:    func(d *Driver) error { return d.WriteRegister(ChannelReg(1), 0x9043) },
			wantW: []byte{0x0A, 0x90, 0x43},
		},
		{
			name:  "read filter 0",
			op:    func(d *Driver) error { _, err := d.ReadRegister(FilterReg(0)); return err },
			wantW: []byte{0x61, 0x00, 0x00, 0x00},
		},
		{
			name:  "write control",
			op:    func(d *Driver) error { return d.WriteRegister(ControlReg, 0x0D00) },
			wantW: []byte{0x01, 0x0D, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &recordingBus{}
			require.NoError(t, tt.op(New(bus, DefaultOptions())))
			require.Len(t, bus.writes, 1)
			assert.Equal(t, tt.wantW, bus.writes[0])
		})
	}
}

func TestDriver_ReadRegisterDecodesMSBFirst(t *testing.T) {
	bus := &recordingBus{reply: func(w, r []byte) {
		copy(r[1:], []byte{0x06, 0x01, 0x80})
	}}
	v, err := New(bus, DefaultOptions()).ReadRegister(FilterReg(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x060180), v)
}

func TestDriver_InitSequence(t *testing.T) {
	bus := &recordingBus{}
	report, err := New(bus, DefaultOptions()).Init([sample.NumChannels]bool{true, true})
	require.NoError(t, err)

	want := [][]byte{
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0x40, 0x00},
		{0x49, 0x00, 0x00}, {0x09, 0x80, 0x01}, {0x49, 0x00, 0x00},
		{0x4A, 0x00, 0x00}, {0x0A, 0x90, 0x43}, {0x4A, 0x00, 0x00},
		{0x59, 0x00, 0x00}, {0x19, 0x08, 0x72}, {0x59, 0x00, 0x00},
		{0x61, 0x00, 0x00, 0x00}, {0x21, 0x00, 0x00, 0x00}, {0x61, 0x00, 0x00, 0x00},
		{0x5A, 0x00, 0x00}, {0x1A, 0x08, 0x72}, {0x5A, 0x00, 0x00},
		{0x62, 0x00, 0x00, 0x00}, {0x22, 0x00, 0x00, 0x00}, {0x62, 0x00, 0x00, 0x00},
		{0x41, 0x00, 0x00}, {0x01, 0x0D, 0x00}, {0x41, 0x00, 0x00},
	}
	if diff := cmp.Diff(want, bus.writes); diff != "" {
		t.Errorf("init bytes mismatch (-want +got):\n%s", diff)
	}

	// A silent bus reads back zeros: every non-zero word is a mismatch, but
	// initialization still completes.
	assert.Len(t, report.Checks, 7)
	assert.Len(t, report.Mismatches(), 5)
}

func TestDriver_InitSingleChannel(t *testing.T) {
	bus := &recordingBus{}
	_, err := New(bus, DefaultOptions()).Init([sample.NumChannels]bool{false, true})
	require.NoError(t, err)

	for _, w := range bus.writes {
		assert.NotEqual(t, byte(0x09), w[0], "channel 0 must not be written")
		assert.NotEqual(t, byte(0x19), w[0], "setup 0 must not be written")
	}
}

func TestDriver_BusErrorSurfaces(t *testing.T) {
	boom := errors.New("bus down")
	bus := &recordingBus{err: boom}
	d := New(bus, DefaultOptions())

	_, err := d.Init([sample.NumChannels]bool{true, true})
	assert.ErrorIs(t, err, boom)

	_, err = d.ReadConversion()
	assert.ErrorIs(t, err, boom)
}

func TestDriver_ReadConversion(t *testing.T) {
	bus := &recordingBus{reply: func(w, r []byte) {
		copy(r, []byte{0x12, 0x34, 0x56, 0x81})
	}}
	c, err := New(bus, DefaultOptions()).ReadConversion()
	require.NoError(t, err)

	assert.Equal(t, sample.Code{0x12, 0x34, 0x56}, c.Code)
	assert.Equal(t, 1, c.Channel())
	assert.Equal(t, [][]byte{{0, 0, 0, 0}}, bus.writes)
}
