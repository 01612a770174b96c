package snmpfdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// lastOIDSegment extracts the final numeric segment of an OID, e.g.
// ".1.3.6.1.2.1.2.2.1.2.3" -> 3.
func lastOIDSegment(oid string) (int, bool) {
	idx := strings.LastIndex(oid, ".")
	if idx < 0 || idx == len(oid)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(oid[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// oidSuffixAfter returns the portion of oid after prefix, with
// leading dots trimmed from both sides before comparison.
func oidSuffixAfter(oid, prefix string) (string, bool) {
	o := strings.TrimPrefix(oid, ".")
	p := strings.TrimPrefix(prefix, ".")
	if !strings.HasPrefix(o, p+".") {
		return "", false
	}
	return o[len(p)+1:], true
}

// decimalOctetsToMAC converts six decimal byte strings (as found in
// an OID suffix) into a colon-separated MAC address.
func decimalOctetsToMAC(parts []string) (string, bool) {
	if len(parts) != 6 {
		return "", false
	}
	octets := make([]string, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		octets[i] = fmt.Sprintf("%02x", n)
	}
	return strings.Join(octets, ":"), true
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}

func pduInt(pdu gosnmp.SnmpPDU) int {
	switch v := pdu.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v) //nolint:gosec // SNMP integer indices fit in int
	case uint32:
		return int(v)
	case uint64:
		return int(v) //nolint:gosec // SNMP integer indices fit in int
	default:
		return 0
	}
}
