// Package normalize collapses vendor-specific switch port-name prefixes
// to a canonical lowercase form so port names can be compared for
// equality across devices that render the same physical port
// differently (e.g. "GigabitEthernet0/1" vs "GE0/1").
package normalize

import "strings"

// substitution is one entry of the ordered prefix table. Order matters:
// longer, more specific prefixes must be tried before shorter ones they
// contain (e.g. "40GigabitEthernet" before "GigabitEthernet"), or the
// shorter prefix would match first and truncate the result.
type substitution struct {
	from string
	to   string
}

var table = []substitution{
	{"40GigabitEthernet", "40GE"},
	{"HundredGigE", "100GE"},
	{"TwentyFiveGigE", "25GE"},
	{"TenGigabitEthernet", "10GE"},
	{"TenGigE", "10GE"},
	{"GigabitEthernet", "GE"},
	{"FastEthernet", "FE"},
	{"Ethernet", "Eth"},
	{"Port-channel", "Po"},
	{"Eth-Trunk", "Eth-Trunk"},
	{"Vlanif", "Vlanif"},
	{"LoopBack", "LoopBack"},
}

// PortName reduces a switch-reported interface name to its canonical
// form. The result is lowercased, so callers compare with ==.
//
// PortName is idempotent: PortName(PortName(x)) == PortName(x).
func PortName(name string) string {
	name = strings.TrimSpace(name)
	for _, sub := range table {
		if len(name) < len(sub.from) {
			continue
		}
		if strings.EqualFold(name[:len(sub.from)], sub.from) {
			name = sub.to + name[len(sub.from):]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(name))
}
