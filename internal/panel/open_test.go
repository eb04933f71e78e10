package panel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// fakePort is an spi.PortCloser whose connection records every write.
type fakePort struct {
	name       string
	rec        conntest.Record
	failTx     bool
	connectErr error

	freq   physic.Frequency
	mode   spi.Mode
	closed int
}

func (f *fakePort) String() string { return f.name }

func (f *fakePort) Close() error {
	f.closed++
	return nil
}

func (f *fakePort) LimitSpeed(physic.Frequency) error { return nil }

func (f *fakePort) Connect(freq physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.freq, f.mode = freq, mode
	return &fakeConn{port: f}, nil
}

type fakeConn struct {
	port *fakePort
}

func (c *fakeConn) String() string { return c.port.name }

func (c *fakeConn) Duplex() conn.Duplex { return conn.Half }

func (c *fakeConn) Tx(w, r []byte) error {
	if c.port.failTx {
		return errors.New("no device")
	}
	return c.port.rec.Tx(w, r)
}

func (c *fakeConn) TxPackets(p []spi.Packet) error {
	for _, pk := range p {
		if err := c.Tx(pk.W, pk.R); err != nil {
			return err
		}
	}
	return nil
}

func register(t *testing.T, f *fakePort) {
	t.Helper()
	require.NoError(t, spireg.Register(f.name, nil, -1, func() (spi.PortCloser, error) { return f, nil }))
	t.Cleanup(func() { _ = spireg.Unregister(f.name) })
}

func TestOpen(t *testing.T) {
	l := &fakePort{name: "TESTOPENL"}
	r := &fakePort{name: "TESTOPENR"}
	register(t, l)
	register(t, r)

	p, err := Open(&Opts{LeftPort: l.name, RightPort: r.name, SpeedHz: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, physic.MegaHertz, l.freq)
	assert.Equal(t, spi.Mode0, r.mode)
	assert.Len(t, l.rec.Ops, initWrites)
	assert.Len(t, r.rec.Ops, initWrites)

	require.NoError(t, p.Close())
	assert.Equal(t, 1, l.closed)
	assert.Equal(t, 1, r.closed)
	assert.Len(t, l.rec.Ops, initWrites+3)

	require.NoError(t, p.Close())
	assert.Equal(t, 1, l.closed)
}

func TestOpenUnknownPort(t *testing.T) {
	l := &fakePort{name: "TESTUNKNOWNL"}
	register(t, l)

	_, err := Open(&Opts{LeftPort: l.name, RightPort: "TESTDOESNOTEXIST"})
	require.Error(t, err)
	assert.Equal(t, 1, l.closed)
}

func TestOpenRightInitFails(t *testing.T) {
	l := &fakePort{name: "TESTFAILL"}
	r := &fakePort{name: "TESTFAILR", failTx: true}
	register(t, l)
	register(t, r)

	_, err := Open(&Opts{LeftPort: l.name, RightPort: r.name})
	require.Error(t, err)
	// left was initialized, then blanked again
	assert.Len(t, l.rec.Ops, initWrites+3)
	assert.Equal(t, 1, l.closed)
	assert.Equal(t, 1, r.closed)
}

func TestOpenConnectFails(t *testing.T) {
	l := &fakePort{name: "TESTCONNL", connectErr: errors.New("bad mode")}
	register(t, l)

	_, err := Open(&Opts{LeftPort: l.name, RightPort: "unused"})
	require.Error(t, err)
	assert.Equal(t, 1, l.closed)
}
