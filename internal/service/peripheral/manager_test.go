package peripheral

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/slot"
)

var (
	errTestActuation = errors.New("mosfet stuck")
	errTestHCI       = errors.New("hci busy")
)

// fakeDevice records services and advertising sessions.
type fakeDevice struct {
	services []*ble.Service
	name     string
	uuids    []ble.UUID
	sessions int
	stopped  bool
	addErr   error
	mu       sync.Mutex
}

func (d *fakeDevice) AddService(svc *ble.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.addErr != nil {
		return d.addErr
	}

	d.services = append(d.services, svc)

	return nil
}

func (d *fakeDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	d.mu.Lock()
	d.name = name
	d.uuids = uuids
	d.sessions++
	d.mu.Unlock()

	<-ctx.Done()

	return ctx.Err()
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	return nil
}

func (d *fakeDevice) advertisingSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.sessions
}

// characteristic finds a registered characteristic by UUID.
func (d *fakeDevice) characteristic(t *testing.T, u ble.UUID) *ble.Characteristic {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, svc := range d.services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(u) {
				return c
			}
		}
	}

	require.FailNow(t, "characteristic not registered", u.String())

	return nil
}

// fakeAddr is a printable central address.
type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

// fakeConn is a central connection that drops when done is closed.
type fakeConn struct {
	ble.Conn

	addr fakeAddr
	done chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: fakeAddr(addr), done: make(chan struct{})}
}

func (c *fakeConn) RemoteAddr() ble.Addr { return c.addr }
func (c *fakeConn) Disconnected() <-chan struct{} { return c.done }

// fakeRequest is an ATT request from a central.
type fakeRequest struct {
	ble.Request

	conn   ble.Conn
	data   []byte
	offset int
}

func (r *fakeRequest) Conn() ble.Conn { return r.conn }
func (r *fakeRequest) Data() []byte { return r.data }
func (r *fakeRequest) Offset() int { return r.offset }

// fakeResponse captures the response to a request.
type fakeResponse struct {
	ble.ResponseWriter

	buf    bytes.Buffer
	status ble.ATTError
}

func (r *fakeResponse) Write(b []byte) (int, error) { return r.buf.Write(b) }
func (r *fakeResponse) Status() ble.ATTError { return r.status }
func (r *fakeResponse) SetStatus(status ble.ATTError) { r.status = status }

// fakeCommands records deployment writes.
type fakeCommands struct {
	origin  string
	payload []byte
	err     error
}

func (f *fakeCommands) HandleWrite(_ context.Context, origin string, payload []byte) (*deployment.State, error) {
	f.origin = origin
	f.payload = payload

	if f.err != nil {
		return nil, f.err
	}

	return &deployment.State{Phase: deployment.ArmedDeployed}, nil
}

// recordingObserver records connection events.
type recordingObserver struct {
	connected    []string
	disconnected []string
	restarts     []string
	mu           sync.Mutex
}

func (o *recordingObserver) CentralConnected(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.connected = append(o.connected, addr)
}

func (o *recordingObserver) CentralDisconnected(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.disconnected = append(o.disconnected, addr)
}

func (o *recordingObserver) AdvertisingRestarted(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.restarts = append(o.restarts, reason)
}

func (o *recordingObserver) snapshot() (connected, disconnected, restarts []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.connected...),
		append([]string(nil), o.disconnected...),
		append([]string(nil), o.restarts...)
}

// read serves a read request on c.
func read(c *ble.Characteristic, conn ble.Conn, offset int) *fakeResponse {
	rsp := new(fakeResponse)
	c.ReadHandler.ServeRead(&fakeRequest{conn: conn, offset: offset}, rsp)

	return rsp
}

// write serves a write request on c.
func write(c *ble.Characteristic, conn ble.Conn, data []byte) *fakeResponse {
	rsp := new(fakeResponse)
	c.WriteHandler.ServeWrite(&fakeRequest{conn: conn, data: data}, rsp)

	return rsp
}

// TestBindings checks the static GATT topology.
func TestBindings(t *testing.T) {
	t.Parallel()

	bindings := Bindings()
	require.Len(t, bindings, 7)

	services := ServiceUUIDs(bindings)
	require.Len(t, services, 4)
	require.True(t, services[0].Equal(AltitudeServiceUUID))
	require.True(t, services[1].Equal(AccelerationServiceUUID))
	require.True(t, services[2].Equal(ElapsedServiceUUID))
	require.True(t, services[3].Equal(DeploymentServiceUUID))

	seen := make(map[string]bool)

	for _, b := range bindings {
		require.False(t, seen[b.Characteristic.String()], b.Signal.String())
		seen[b.Characteristic.String()] = true

		require.NotZero(t, b.Access&AccessRead, b.Signal.String())

		if b.Signal == SignalFaults {
			require.Zero(t, b.Access&AccessWrite)
		} else {
			require.NotZero(t, b.Access&AccessWrite, b.Signal.String())
		}
	}
}

// TestManager_Start checks service registration and advertising.
func TestManager_Start(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		m := NewManager(device, new(slot.Table), new(fakeCommands), nil)

		h, err := m.Start(context.Background(), "Safety Parachute System")
		require.NoError(t, err)

		synctest.Wait()

		require.Len(t, device.services, 4)
		require.Len(t, device.services[0].Characteristics, 1)
		require.Len(t, device.services[1].Characteristics, 3)
		require.Len(t, device.services[2].Characteristics, 1)
		require.Len(t, device.services[3].Characteristics, 2)
		require.Equal(t, 1, device.advertisingSessions())
		require.Equal(t, "Safety Parachute System", device.name)
		require.Len(t, device.uuids, 4)

		require.Nil(t, device.characteristic(t, FaultsUUID).WriteHandler)
		require.NotNil(t, device.characteristic(t, CommandUUID).WriteHandler)

		_, err = m.Start(context.Background(), "again")
		require.ErrorIs(t, err, ErrAlreadyStarted)

		require.NoError(t, h.Stop())
		require.NoError(t, h.Stop())
		require.True(t, device.stopped)
	})
}

// TestManager_Reads checks that reads return the last slot value untouched.
func TestManager_Reads(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		slots := new(slot.Table)
		m := NewManager(device, slots, new(fakeCommands), nil)

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		altitude := device.characteristic(t, AltitudeUUID)
		require.Empty(t, read(altitude, nil, 0).buf.Bytes())

		slots.Altitude.Store([]byte{1, 2, 3, 4})
		require.Equal(t, []byte{1, 2, 3, 4}, read(altitude, nil, 0).buf.Bytes())
		require.Equal(t, []byte{3, 4}, read(altitude, nil, 2).buf.Bytes())
		require.Equal(t, ble.ErrInvalidOffset, read(altitude, nil, 5).status)
		require.Equal(t, []byte{1, 2, 3, 4}, slots.Altitude.Load())

		slots.Status.Store([]byte{'y'})
		require.Equal(t, []byte{'y'}, read(device.characteristic(t, CommandUUID), nil, 0).buf.Bytes())

		slots.Faults.Raise(fault.AccelerationSensor)
		require.Equal(t, []byte{0x08}, read(device.characteristic(t, FaultsUUID), nil, 0).buf.Bytes())

		require.NoError(t, h.Stop())
	})
}

// TestManager_Writes checks command forwarding and discarded telemetry writes.
func TestManager_Writes(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		slots := new(slot.Table)
		commands := new(fakeCommands)
		m := NewManager(device, slots, commands, nil)

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		rsp := write(device.characteristic(t, CommandUUID), nil, []byte("y"))
		require.Equal(t, ble.ErrSuccess, rsp.status)
		require.Equal(t, OriginBLE, commands.origin)
		require.Equal(t, []byte("y"), commands.payload)

		commands.err = errTestActuation
		rsp = write(device.characteristic(t, CommandUUID), nil, []byte("n"))
		require.Equal(t, ble.ErrUnlikely, rsp.status)

		slots.Altitude.Store([]byte{9, 9, 9, 9})
		rsp = write(device.characteristic(t, AltitudeUUID), nil, []byte{0, 0, 0, 0})
		require.Equal(t, ble.ErrSuccess, rsp.status)
		require.Equal(t, []byte{9, 9, 9, 9}, slots.Altitude.Load())

		require.NoError(t, h.Stop())
	})
}

// TestManager_DisconnectRestartsAdvertising checks connection tracking.
func TestManager_DisconnectRestartsAdvertising(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		observer := new(recordingObserver)
		m := NewManager(device, new(slot.Table), new(fakeCommands), &Options{Observer: observer})

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		synctest.Wait()
		require.Equal(t, 1, device.advertisingSessions())

		conn := newFakeConn("aa:bb:cc:dd:ee:ff")
		elapsed := device.characteristic(t, ElapsedUUID)

		read(elapsed, conn, 0)
		read(elapsed, conn, 0)
		require.Equal(t, 1, m.Connected())

		close(conn.done)
		synctest.Wait()

		require.Zero(t, m.Connected())
		require.Equal(t, 2, device.advertisingSessions())

		connected, disconnected, restarts := observer.snapshot()
		require.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, connected)
		require.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, disconnected)
		require.Equal(t, []string{ReasonDisconnect}, restarts)

		require.NoError(t, h.Stop())
	})
}

// TestManager_Watchdog checks that advertising restarts only while idle.
func TestManager_Watchdog(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		m := NewManager(device, new(slot.Table), new(fakeCommands), &Options{
			ReadvertiseInterval: 10 * time.Second,
		})

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		time.Sleep(15 * time.Second)
		synctest.Wait()
		require.Equal(t, 2, device.advertisingSessions())

		conn := newFakeConn("11:22:33:44:55:66")
		read(device.characteristic(t, AltitudeUUID), conn, 0)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		require.Equal(t, 2, device.advertisingSessions())

		close(conn.done)
		synctest.Wait()
		require.Equal(t, 3, device.advertisingSessions())

		require.NoError(t, h.Stop())
	})
}

// TestManager_StartFailureAllowsRetry checks that a failed registration does not mark the peripheral started.
func TestManager_StartFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := &fakeDevice{addErr: errTestHCI}
		m := NewManager(device, new(slot.Table), new(fakeCommands), nil)

		_, err := m.Start(context.Background(), "test")
		require.ErrorIs(t, err, errTestHCI)
		require.Zero(t, device.advertisingSessions())

		device.mu.Lock()
		device.addErr = nil
		device.mu.Unlock()

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		synctest.Wait()
		require.Len(t, device.services, 4)
		require.Equal(t, 1, device.advertisingSessions())

		require.NoError(t, h.Stop())
	})
}

// TestManager_StopWithConnectedCentral checks that Stop does not wait for a central to drop.
func TestManager_StopWithConnectedCentral(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := new(fakeDevice)
		observer := new(recordingObserver)
		m := NewManager(device, new(slot.Table), new(fakeCommands), &Options{Observer: observer})

		h, err := m.Start(context.Background(), "test")
		require.NoError(t, err)

		elapsed := device.characteristic(t, ElapsedUUID)
		read(elapsed, newFakeConn("aa:bb:cc:dd:ee:ff"), 0)
		require.Equal(t, 1, m.Connected())

		require.NoError(t, h.Stop())
		require.True(t, device.stopped)

		read(elapsed, newFakeConn("11:22:33:44:55:66"), 0)
		require.Equal(t, 1, m.Connected())

		_, disconnected, _ := observer.snapshot()
		require.Empty(t, disconnected)
	})
}
