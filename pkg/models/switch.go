package models

// Switch is an access switch enumerated from the inventory, identified
// by its management IP for SNMP collection.
type Switch struct {
	ID   int
	Name string
	IP   string
}
