// Package snmpfdb assembles a vendor-neutral (MAC, VLAN, port name)
// table per switch from raw BRIDGE-MIB / Q-BRIDGE-MIB SNMP walks.
package snmpfdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/ipmi-move-auditor/internal/retry"
	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

// Credential holds the fields needed for SNMP authentication, either
// v2c (community string) or v3.
type Credential struct {
	Version string // "2c" or "3"

	Community string

	Username      string
	AuthProtocol  string
	AuthPassword  string
	PrivProtocol  string
	PrivPassword  string
	SecurityLevel string // "noAuthNoPriv", "authNoPriv", "authPriv"
}

// Collector walks BRIDGE-MIB / Q-BRIDGE-MIB tables on access switches
// to build their MAC forwarding database.
type Collector struct {
	cred        Credential
	timeout     time.Duration
	maxParallel int
	logger      *zap.Logger
}

// New creates a Collector using the given credential, per-request
// timeout, and the maximum number of switches collected concurrently.
func New(cred Credential, timeout time.Duration, maxParallel int, logger *zap.Logger) *Collector {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Collector{cred: cred, timeout: timeout, maxParallel: maxParallel, logger: logger}
}

func (c *Collector) newGoSNMP(target string) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:  target,
		Port:    161,
		Timeout: c.timeout,
		Retries: 1,
	}

	switch c.cred.Version {
	case "3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel

		switch c.cred.SecurityLevel {
		case "noAuthNoPriv":
			g.MsgFlags = gosnmp.NoAuthNoPriv
		case "authNoPriv":
			g.MsgFlags = gosnmp.AuthNoPriv
		default:
			g.MsgFlags = gosnmp.AuthPriv
		}

		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 c.cred.Username,
			AuthenticationProtocol:   mapAuthProtocol(c.cred.AuthProtocol),
			AuthenticationPassphrase: c.cred.AuthPassword,
			PrivacyProtocol:          mapPrivProtocol(c.cred.PrivProtocol),
			PrivacyPassphrase:        c.cred.PrivPassword,
		}

	default:
		g.Version = gosnmp.Version2c
		g.Community = c.cred.Community
	}

	return g, nil
}

func mapAuthProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(s) {
	case "MD5":
		return gosnmp.MD5
	case "SHA256":
		return gosnmp.SHA256
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.SHA
	}
}

func mapPrivProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(s) {
	case "DES":
		return gosnmp.DES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.AES
	}
}

// CollectAll walks every switch's FDB with bounded parallelism. A
// per-switch failure never fails the whole call; it is reified into
// that switch's SwitchFdb.Error.
func (c *Collector) CollectAll(ctx context.Context, switches []models.Switch) map[string]models.SwitchFdb {
	results := make(map[string]models.SwitchFdb, len(switches))
	resultCh := make(chan models.SwitchFdb, len(switches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)

	for _, sw := range switches {
		sw := sw
		g.Go(func() error {
			resultCh <- c.collectWithRetry(gctx, sw)
			return nil
		})
	}
	_ = g.Wait()
	close(resultCh)

	for fdb := range resultCh {
		results[fdb.SwitchName] = fdb
	}
	return results
}

func (c *Collector) collectWithRetry(ctx context.Context, sw models.Switch) models.SwitchFdb {
	var fdb models.SwitchFdb
	err := retry.Do(ctx, retry.SNMPSwitch, func() error {
		collected, err := c.collectOne(ctx, sw)
		if err != nil {
			return err
		}
		fdb = collected
		return nil
	})
	if err != nil {
		c.logger.Warn("FDB collection failed",
			zap.String("switch", sw.Name),
			zap.String("ip", sw.IP),
			zap.Error(err),
		)
		return models.SwitchFdb{SwitchName: sw.Name, CollectedAt: time.Now().UTC(), Error: err.Error()}
	}
	return fdb
}

// collectOne runs the full per-switch procedure from connection
// through Q-BRIDGE/BRIDGE-MIB fallback.
func (c *Collector) collectOne(ctx context.Context, sw models.Switch) (models.SwitchFdb, error) {
	g, err := c.newGoSNMP(sw.IP)
	if err != nil {
		return models.SwitchFdb{}, fmt.Errorf("configure SNMP for %s: %w", sw.Name, err)
	}
	if err := g.Connect(); err != nil {
		return models.SwitchFdb{}, fmt.Errorf("connect to %s (%s): %w", sw.Name, sw.IP, err)
	}
	defer func() { _ = g.Conn.Close() }()

	ifNames, err := c.walkIfNames(g)
	if err != nil {
		return models.SwitchFdb{}, fmt.Errorf("walk ifName/ifDescr on %s: %w", sw.Name, err)
	}

	bridgePortToIfIndex, err := c.walkBridgePortIfIndex(g)
	if err != nil {
		return models.SwitchFdb{}, fmt.Errorf("walk dot1dBasePortIfIndex on %s: %w", sw.Name, err)
	}

	entries, err := c.walkQBridgeFdb(g, bridgePortToIfIndex, ifNames)
	if err != nil {
		return models.SwitchFdb{}, fmt.Errorf("walk dot1qTpFdbPort on %s: %w", sw.Name, err)
	}

	if len(entries) == 0 {
		entries, err = c.walkBridgeFdbFallback(g, bridgePortToIfIndex, ifNames)
		if err != nil {
			return models.SwitchFdb{}, fmt.Errorf("walk BRIDGE-MIB fallback on %s: %w", sw.Name, err)
		}
	}

	return models.SwitchFdb{SwitchName: sw.Name, Entries: entries, CollectedAt: time.Now().UTC()}, nil
}

func (c *Collector) walkIfNames(g *gosnmp.GoSNMP) (map[int]string, error) {
	names := make(map[int]string)
	pdus, err := g.BulkWalkAll(oidIfName)
	if err != nil || len(pdus) == 0 {
		pdus, err = g.BulkWalkAll(oidIfDescr)
		if err != nil {
			return nil, err
		}
	}
	for _, pdu := range pdus {
		idx, ok := lastOIDSegment(pdu.Name)
		if !ok {
			continue
		}
		names[idx] = pduString(pdu)
	}
	return names, nil
}

func (c *Collector) walkBridgePortIfIndex(g *gosnmp.GoSNMP) (map[int]int, error) {
	out := make(map[int]int)
	pdus, err := g.BulkWalkAll(oidDot1dBasePortIfIndex)
	if err != nil {
		// Some devices lack BRIDGE-MIB entirely; treat as empty, not fatal.
		return out, nil
	}
	for _, pdu := range pdus {
		bridgePort, ok := lastOIDSegment(pdu.Name)
		if !ok {
			continue
		}
		out[bridgePort] = pduInt(pdu)
	}
	return out, nil
}

func (c *Collector) portName(bridgePort int, ifIndexByBridgePort map[int]int, ifNames map[int]string) string {
	ifIndex, ok := ifIndexByBridgePort[bridgePort]
	if ok {
		if name, ok := ifNames[ifIndex]; ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("port%d", bridgePort)
}

// walkQBridgeFdb decodes dot1qTpFdbPort rows. The OID suffix has the
// shape <vlan>.<b1>.<b2>.<b3>.<b4>.<b5>.<b6> (decimal MAC octets).
func (c *Collector) walkQBridgeFdb(g *gosnmp.GoSNMP, ifIndexByBridgePort map[int]int, ifNames map[int]string) ([]models.FdbEntry, error) {
	pdus, err := g.BulkWalkAll(oidDot1qTpFdbPort)
	if err != nil {
		return nil, nil //nolint:nilerr // absence of Q-BRIDGE-MIB triggers the BRIDGE-MIB fallback, not an error
	}

	var entries []models.FdbEntry
	for _, pdu := range pdus {
		suffix, ok := oidSuffixAfter(pdu.Name, oidDot1qTpFdbPort)
		if !ok {
			continue
		}
		parts := strings.Split(suffix, ".")
		if len(parts) != 7 {
			c.logger.Debug("malformed dot1qTpFdbPort row skipped", zap.String("oid", pdu.Name))
			continue
		}
		vlan, err := strconv.Atoi(parts[0])
		if err != nil {
			c.logger.Debug("malformed VLAN in dot1qTpFdbPort row skipped", zap.String("oid", pdu.Name))
			continue
		}
		mac, ok := decimalOctetsToMAC(parts[1:])
		if !ok {
			c.logger.Debug("malformed MAC in dot1qTpFdbPort row skipped", zap.String("oid", pdu.Name))
			continue
		}

		bridgePort := pduInt(pdu)
		entries = append(entries, models.FdbEntry{
			MACAddress: mac,
			PortName:   c.portName(bridgePort, ifIndexByBridgePort, ifNames),
			VLAN:       vlan,
		})
	}
	return entries, nil
}

// walkBridgeFdbFallback joins dot1dTpFdbPort and dot1dTpFdbAddress on
// their shared OID suffix. VLAN is unknown (0) on this path.
func (c *Collector) walkBridgeFdbFallback(g *gosnmp.GoSNMP, ifIndexByBridgePort map[int]int, ifNames map[int]string) ([]models.FdbEntry, error) {
	portPdus, err := g.BulkWalkAll(oidDot1dTpFdbPort)
	if err != nil {
		return nil, err
	}
	addrPdus, err := g.BulkWalkAll(oidDot1dTpFdbAddress)
	if err != nil {
		return nil, err
	}

	macBySuffix := make(map[string]string, len(addrPdus))
	for _, pdu := range addrPdus {
		suffix, ok := oidSuffixAfter(pdu.Name, oidDot1dTpFdbAddress)
		if !ok {
			continue
		}
		if b, ok := pdu.Value.([]byte); ok && len(b) == 6 {
			macBySuffix[suffix] = formatMAC(b)
		}
	}

	var entries []models.FdbEntry
	for _, pdu := range portPdus {
		suffix, ok := oidSuffixAfter(pdu.Name, oidDot1dTpFdbPort)
		if !ok {
			continue
		}
		mac, ok := macBySuffix[suffix]
		if !ok {
			continue
		}
		bridgePort := pduInt(pdu)
		entries = append(entries, models.FdbEntry{
			MACAddress: mac,
			PortName:   c.portName(bridgePort, ifIndexByBridgePort, ifNames),
		})
	}
	return entries, nil
}
