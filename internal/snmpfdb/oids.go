package snmpfdb

// IF-MIB interface-name table (1.3.6.1.2.1.31.1.1.1).
const (
	oidIfName  = "1.3.6.1.2.1.31.1.1.1.1"
	oidIfDescr = "1.3.6.1.2.1.2.2.1.2"
)

// BRIDGE-MIB (1.3.6.1.2.1.17).
const (
	oidDot1dBasePortIfIndex = "1.3.6.1.2.1.17.1.4.1.2"
	oidDot1dTpFdbPort       = "1.3.6.1.2.1.17.4.3.1.2"
	oidDot1dTpFdbAddress    = "1.3.6.1.2.1.17.4.3.1.1"
)

// Q-BRIDGE-MIB (1.3.6.1.2.1.17.7).
const oidDot1qTpFdbPort = "1.3.6.1.2.1.17.7.1.2.2.1.2"
