// Package models holds the data types shared across the auditor's
// components: NetBox-derived inventory, SNMP-derived FDB observations,
// and the correlation results produced by comparing the two.
package models

import (
	"strings"
	"time"
)

// IpmiInterface is a single BMC/IPMI network interface read from NetBox.
type IpmiInterface struct {
	DeviceID      int
	DeviceName    string
	InterfaceID   int
	InterfaceName string
	MACAddress    string
	IPAddress     string // empty if the interface has no assigned IP
	NetBoxURL     string // device detail URL, empty if unknown
}

// ExpectedEndpoint is the switch/port a BMC interface is cabled to,
// resolved by following the interface's cable termination in NetBox.
type ExpectedEndpoint struct {
	SwitchID   int
	SwitchName string
	PortID     int
	PortName   string
	CableID    int // 0 if no cable is attached
	NetBoxURL  string
}

// ServerIpmi pairs a BMC interface with its expected wiring, if any.
type ServerIpmi struct {
	Interface IpmiInterface
	Expected  *ExpectedEndpoint // nil if the interface has no cable
}

// MAC returns the interface's MAC address.
func (s ServerIpmi) MAC() string {
	return s.Interface.MACAddress
}

// ServerName returns the owning device's name.
func (s ServerIpmi) ServerName() string {
	return s.Interface.DeviceName
}

// FdbEntry is one forwarding-database row learned from a switch.
type FdbEntry struct {
	MACAddress string
	PortName   string
	VLAN       int // 0 when the switch reported no VLAN tag (BRIDGE-MIB fallback)
}

// SwitchFdb is the result of collecting the FDB from a single switch.
// Error is set when collection failed; Entries is empty in that case.
type SwitchFdb struct {
	SwitchName  string
	Entries     []FdbEntry
	CollectedAt time.Time
	Error       string
}

// ObservedEndpoint is where a MAC address was actually seen in a
// switch's FDB during the most recent collection cycle.
type ObservedEndpoint struct {
	SwitchName string
	PortName   string
	VLAN       int
	Timestamp  time.Time
}

// Matches reports whether the observation lines up with an expected
// endpoint: same switch (case-insensitive) and the same port once both
// names are run through port-name normalization.
func (o ObservedEndpoint) Matches(expected ExpectedEndpoint, normalize func(string) string) bool {
	if !strings.EqualFold(o.SwitchName, expected.SwitchName) {
		return false
	}
	return normalize(o.PortName) == normalize(expected.PortName)
}
