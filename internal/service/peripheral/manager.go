package peripheral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"

	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/slot"
)

const (
	// DefaultReadvertiseInterval is the watchdog period.
	DefaultReadvertiseInterval = 30 * time.Second

	// advertiseRetryDelay is the pause after the stack refused to advertise.
	advertiseRetryDelay = time.Second
)

// Restart reasons reported to the Observer.
const (
	ReasonDisconnect = "disconnect"
	ReasonWatchdog   = "watchdog"
	ReasonError      = "error"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("peripheral already started")
	// errUnknownSignal is returned for a binding without a handler.
	errUnknownSignal = errors.New("no handler for signal")
)

// Device is the subset of the BLE stack used by the Manager.
// *linux.Device from github.com/go-ble/ble/linux satisfies it.
type Device interface {
	AddService(svc *ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

// Observer receives connection events. Implementations must not block.
type Observer interface {
	CentralConnected(addr string)
	CentralDisconnected(addr string)
	AdvertisingRestarted(reason string)
}

// Options configures a Manager.
type Options struct {
	// Bindings is the GATT topology. Defaults to Bindings().
	Bindings []Binding
	// ReadvertiseInterval is the watchdog period. Defaults to DefaultReadvertiseInterval.
	ReadvertiseInterval time.Duration
	// Observer receives connection events. Optional.
	Observer Observer
}

// Manager owns the peripheral identity: the services, advertising and connection tracking.
type Manager struct {
	// device is the BLE stack.
	device Device
	// slots holds the served values.
	slots *slot.Table
	// commands applies deployment writes.
	commands CommandHandler
	// bindings is the GATT topology.
	bindings []Binding
	// interval is the watchdog period.
	interval time.Duration
	// observer receives connection events.
	observer Observer

	// ctx carries the logger of the started peripheral and is canceled by Handle.Stop.
	ctx context.Context //nolint:containedctx // Connection events arrive from the BLE stack without a context.
	// wg tracks the background goroutines of the started peripheral.
	wg *sync.WaitGroup
	// centrals are the tracked connections keyed by remote address.
	centrals map[string]ble.Conn
	// restart interrupts the current advertising session.
	restart context.CancelFunc
	// started is set by Start.
	started bool
	// mu protects the fields above.
	mu sync.Mutex
}

// Handle controls a started peripheral.
type Handle struct {
	// cancel stops the background goroutines.
	cancel context.CancelFunc
	// wg tracks the background goroutines.
	wg *sync.WaitGroup
	// device is stopped last.
	device Device
	// once guards Stop.
	once sync.Once
	// err is the result of the first Stop.
	err error
}

// NewManager returns a Manager serving slots and forwarding commands to commands.
func NewManager(device Device, slots *slot.Table, commands CommandHandler, opts *Options) *Manager {
	if opts == nil {
		opts = new(Options)
	}

	m := &Manager{
		device:   device,
		slots:    slots,
		commands: commands,
		bindings: opts.Bindings,
		interval: opts.ReadvertiseInterval,
		observer: opts.Observer,
		centrals: make(map[string]ble.Conn),
		ctx:      context.Background(),
	}

	if m.bindings == nil {
		m.bindings = Bindings()
	}

	if m.interval <= 0 {
		m.interval = DefaultReadvertiseInterval
	}

	return m
}

// Start registers every service and starts advertising name with all service UUIDs.
// The returned Handle stops advertising and the device.
func (m *Manager) Start(ctx context.Context, name string) (*Handle, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()

		return nil, ErrAlreadyStarted
	}

	m.started = true
	m.mu.Unlock()

	ctx = logger.WithName(ctx, "peripheral")
	runCtx, cancel := context.WithCancel(ctx)

	h := &Handle{
		wg:     new(sync.WaitGroup),
		device: m.device,
	}

	// Canceling under mu keeps track from adding to wg once Stop is waiting.
	h.cancel = func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		cancel()
	}

	m.mu.Lock()
	m.ctx = runCtx
	m.wg = h.wg
	m.mu.Unlock()

	if err := m.register(runCtx); err != nil {
		cancel()

		m.mu.Lock()
		m.started = false
		m.mu.Unlock()

		return nil, err
	}

	uuids := ServiceUUIDs(m.bindings)

	h.wg.Add(2)

	go func() {
		defer h.wg.Done()
		m.advertise(runCtx, name, uuids)
	}()

	go func() {
		defer h.wg.Done()
		m.watchdog(runCtx)
	}()

	logger.InfoKV(ctx, "Peripheral started", "name", name, "services", len(uuids), "characteristics", len(m.bindings))

	return h, nil
}

// Connected returns the number of tracked centrals.
func (m *Manager) Connected() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.centrals)
}

// Stop stops advertising and the device. It is safe to call more than once.
func (h *Handle) Stop() error {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()

		if err := h.device.Stop(); err != nil {
			h.err = fmt.Errorf("stop device: %w", err)
		}
	})

	return h.err
}

// register adds every service to the device.
func (m *Manager) register(ctx context.Context) error {
	services, err := m.services(ctx)
	if err != nil {
		return err
	}

	for _, svc := range services {
		if err := m.device.AddService(svc); err != nil {
			return fmt.Errorf("add service %s: %w", svc.UUID, err)
		}
	}

	return nil
}

// services builds one ble.Service per distinct service UUID from the binding table.
func (m *Manager) services(ctx context.Context) ([]*ble.Service, error) {
	services := make([]*ble.Service, 0, len(m.bindings))

	for _, b := range m.bindings {
		var svc *ble.Service

		for _, s := range services {
			if s.UUID.Equal(b.Service) {
				svc = s

				break
			}
		}

		if svc == nil {
			svc = ble.NewService(b.Service)
			services = append(services, svc)
		}

		c := svc.NewCharacteristic(b.Characteristic)

		if b.Access&AccessRead != 0 {
			h, err := m.readHandler(b.Signal)
			if err != nil {
				return nil, err
			}

			c.HandleRead(h)
		}

		if b.Access&AccessWrite != 0 {
			c.HandleWrite(m.writeHandler(ctx, b.Signal))
		}
	}

	return services, nil
}

// readHandler returns the read handler bound to signal.
func (m *Manager) readHandler(signal Signal) (ble.ReadHandler, error) {
	var value *slot.Value

	switch signal {
	case SignalAltitude:
		value = &m.slots.Altitude
	case SignalAccelerationX:
		value = &m.slots.AccelerationX
	case SignalAccelerationY:
		value = &m.slots.AccelerationY
	case SignalAccelerationZ:
		value = &m.slots.AccelerationZ
	case SignalElapsed:
		value = &m.slots.Elapsed
	case SignalCommand:
		value = &m.slots.Status
	case SignalFaults:
		return &faultReader{faults: &m.slots.Faults, conns: m}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSignal, signal)
	}

	return &valueReader{value: value, conns: m}, nil
}

// writeHandler returns the write handler bound to signal.
func (m *Manager) writeHandler(ctx context.Context, signal Signal) ble.WriteHandler {
	if signal == SignalCommand {
		return &commandWriter{ctx: ctx, handler: m.commands, conns: m}
	}

	return &discardWriter{ctx: ctx, signal: signal, conns: m}
}

// advertise runs advertising sessions until ctx is cancelled.
// A session ends when it is restarted or when the stack gives up.
func (m *Manager) advertise(ctx context.Context, name string, uuids []ble.UUID) {
	for {
		sessionCtx, cancel := context.WithCancel(ctx)

		m.mu.Lock()
		m.restart = cancel
		m.mu.Unlock()

		err := m.device.AdvertiseNameAndServices(sessionCtx, name, uuids...)
		if err == nil {
			// The stack may return as soon as advertising is enabled.
			<-sessionCtx.Done()
		}

		cancel()

		if ctx.Err() != nil {
			return
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorKV(ctx, "Advertising failed", "error", err)
			m.notifyRestart(ReasonError)

			select {
			case <-ctx.Done():
				return
			case <-time.After(advertiseRetryDelay):
			}
		}
	}
}

// restartAdvertising interrupts the current session so that advertise starts a new one.
func (m *Manager) restartAdvertising(reason string) {
	m.mu.Lock()
	restart := m.restart
	m.mu.Unlock()

	if restart != nil {
		restart()
	}

	m.notifyRestart(reason)
}

// watchdog restarts advertising on every tick while no tracked central is connected.
func (m *Manager) watchdog(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Connected() == 0 {
				logger.DebugKV(ctx, "Restarting advertising", "reason", ReasonWatchdog)
				m.restartAdvertising(ReasonWatchdog)
			}
		}
	}
}

// track starts watching conn the first time it issues a request.
func (m *Manager) track(conn ble.Conn) {
	if conn == nil || conn.RemoteAddr() == nil {
		return
	}

	addr := conn.RemoteAddr().String()

	m.mu.Lock()
	if _, ok := m.centrals[addr]; ok || m.ctx.Err() != nil {
		m.mu.Unlock()

		return
	}

	m.centrals[addr] = conn
	ctx := m.ctx
	wg := m.wg
	wg.Add(1)
	m.mu.Unlock()

	logger.InfoKV(ctx, "Central connected", "central", addr)

	if m.observer != nil {
		m.observer.CentralConnected(addr)
	}

	go func() {
		defer wg.Done()
		m.watch(ctx, addr, conn)
	}()
}

// watch waits for conn to drop, then forgets it and restarts advertising.
// It returns early when the peripheral stops.
func (m *Manager) watch(ctx context.Context, addr string, conn ble.Conn) {
	select {
	case <-ctx.Done():
		return
	case <-conn.Disconnected():
	}

	m.mu.Lock()
	delete(m.centrals, addr)
	m.mu.Unlock()

	logger.InfoKV(ctx, "Central disconnected, restarting advertising", "central", addr)

	if m.observer != nil {
		m.observer.CentralDisconnected(addr)
	}

	m.restartAdvertising(ReasonDisconnect)
}

// notifyRestart reports an advertising restart to the observer.
func (m *Manager) notifyRestart(reason string) {
	if m.observer != nil {
		m.observer.AdvertisingRestarted(reason)
	}
}
