// Package peripheral exposes the characteristic slots as a BLE GATT
// peripheral and keeps it discoverable.
//
// The GATT topology is driven by a static binding table: every entry maps a
// signal to a service and characteristic UUID and to the access it allows.
// Connections are discovered from the requests they issue; when a tracked
// central drops, advertising restarts. A watchdog restarts advertising on a
// fixed interval while no tracked central is connected.
package peripheral
