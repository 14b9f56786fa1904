package ble

import "testing"

func TestRetireRemovesLiveConnection(t *testing.T) {
	a := &BluetoothAdapter{live: make(map[string]*bluetoothConnection)}
	conn := &bluetoothConnection{adapter: a, address: "AA:BB:CC:DD:EE:FF"}
	a.live[conn.address] = conn

	if got := a.retire(conn.address); got != conn {
		t.Fatalf("retire() = %v, want the registered connection", got)
	}
	if got := a.retire(conn.address); got != nil {
		t.Errorf("second retire() = %v, want nil (entry must be gone)", got)
	}
	if n := len(a.live); n != 0 {
		t.Errorf("live set holds %d connections after retire, want 0", n)
	}
}

func TestNotifyDisconnectFiresRegisteredCallback(t *testing.T) {
	conn := &bluetoothConnection{}
	conn.notifyDisconnect() // no callback registered yet

	fired := 0
	conn.OnDisconnect(func() { fired++ })
	conn.notifyDisconnect()
	if fired != 1 {
		t.Errorf("disconnect callback fired %d times, want 1", fired)
	}
}

func TestSortedBySignalOrdersStrongestFirst(t *testing.T) {
	found := map[string]Device{
		"aa": {Name: "Puck.js 1234", Address: "aa", RSSI: -80},
		"bb": {Name: "Pixl.js 5678", Address: "bb", RSSI: -40},
		"cc": {Name: "Puck.js 9abc", Address: "cc", RSSI: -60},
	}

	devices := sortedBySignal(found)
	if len(devices) != 3 {
		t.Fatalf("sortedBySignal() returned %d devices, want 3", len(devices))
	}
	for i, want := range []string{"bb", "cc", "aa"} {
		if devices[i].Address != want {
			t.Errorf("devices[%d].Address = %q, want %q", i, devices[i].Address, want)
		}
	}
}
