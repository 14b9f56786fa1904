package ble

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothAdapter is the hardware-backed Adapter, built on
// tinygo-org/bluetooth. On Linux a device address is a MAC address; on macOS
// it is the CoreBluetooth UUID of the peripheral. Device.Address and the
// address passed to Connect carry whichever form the platform uses.
type BluetoothAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects live, the connections whose disconnect callbacks still
	// need adapter-level fan-out. Entries leave the set on disconnect, so
	// a long-running session reconnecting many times does not accumulate
	// dead connections.
	mu   sync.Mutex
	live map[string]*bluetoothConnection // keyed by device address
}

// NewBluetoothAdapter creates an Adapter backed by the platform's default
// Bluetooth adapter.
func NewBluetoothAdapter() *BluetoothAdapter {
	return &BluetoothAdapter{
		adapter: bluetooth.DefaultAdapter,
		live:    make(map[string]*bluetoothConnection),
	}
}

// Enable powers on the stack and installs the disconnect fan-out. The stack
// reports link loss through a single adapter-level handler, not per
// connection, so the handler finds the affected connection, retires it from
// the live set, and fires its OnDisconnect callback.
func (a *BluetoothAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		conn := a.retire(device.Address.String())
		if conn != nil {
			conn.notifyDisconnect()
		}
	})

	return nil
}

// retire removes and returns the live connection for address, if any.
func (a *BluetoothAdapter) retire(address string) *bluetoothConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn := a.live[address]
	delete(a.live, address)
	return conn
}

// Scan collects peripherals advertising serviceUUID until ctx ends,
// deduplicated by address and ordered strongest signal first. Advertisements
// repeat, so for each device the best signal seen is kept.
func (a *BluetoothAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	var mu sync.Mutex
	found := make(map[string]Device)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-stopped:
		}
	}()

	// Scan blocks until StopScan; the watcher above ends it when ctx does.
	err = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(uuid) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		if prev, ok := found[addr]; !ok || int(result.RSSI) > prev.RSSI {
			found[addr] = Device{
				Name:    result.LocalName(),
				Address: addr,
				RSSI:    int(result.RSSI),
			}
		}
		mu.Unlock()
	})
	close(stopped)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	return sortedBySignal(found), nil
}

// sortedBySignal flattens the per-address scan results, strongest signal
// first.
func sortedBySignal(found map[string]Device) []Device {
	devices := make([]Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	return devices
}

// Connect dials the peripheral at address. The underlying stack's Connect
// blocks with its own timeout and cannot be cancelled from here; when ctx
// ends first the dial is abandoned and its eventual result discarded.
func (a *BluetoothAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	type dialResult struct {
		device bluetooth.Device
		err    error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		dialed <- dialResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case res := <-dialed:
		if res.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, res.err)
		}
		conn := &bluetoothConnection{
			adapter: a,
			address: address,
			device:  &res.device,
		}
		a.mu.Lock()
		a.live[address] = conn
		a.mu.Unlock()
		return conn, nil
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

type bluetoothConnection struct {
	adapter *BluetoothAdapter
	address string
	device  *bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
}

func (c *bluetoothConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	charID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: device does not expose service %s", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: service has no characteristic %s", charUUID)
	}

	return &bluetoothCharacteristic{char: &chars[0]}, nil
}

// Disconnect drops the link. The connection retires itself first so the
// adapter-level handler does not also fire OnDisconnect for an intentional
// close.
func (c *bluetoothConnection) Disconnect() error {
	c.adapter.retire(c.address)
	return c.device.Disconnect()
}

func (c *bluetoothConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *bluetoothConnection) notifyDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type bluetoothCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

// Write uses write-without-response; the UART write characteristic accepts
// it, and it keeps per-chunk latency down on long payloads.
func (c *bluetoothCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

// Subscribe copies each notification before handing it out; the stack may
// reuse the buffer between callbacks.
func (c *bluetoothCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		cb(cp)
	})
}
