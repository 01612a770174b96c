// Package correlate compares each server's expected IPMI wiring
// against where its MAC address was actually observed in switch FDBs,
// producing one move event per server.
package correlate

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/HerbHall/ipmi-move-auditor/internal/normalize"
	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

// Correlator holds the uplink and MLAG configuration needed to
// classify observations.
type Correlator struct {
	uplinkPorts    map[string]bool
	uplinkPatterns []*regexp.Regexp
	mlagPeers      map[string]map[string]bool // switch (lowercase) -> set of peer switches (lowercase)
}

// New builds a Correlator from the configured uplink ports, uplink
// regex patterns, and MLAG groups (group name -> member switch names).
func New(uplinkPorts, uplinkPatterns []string, mlagGroups map[string][]string) (*Correlator, error) {
	c := &Correlator{
		uplinkPorts: make(map[string]bool, len(uplinkPorts)),
		mlagPeers:   make(map[string]map[string]bool),
	}
	for _, p := range uplinkPorts {
		c.uplinkPorts[strings.ToLower(p)] = true
	}
	for _, pat := range uplinkPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, err
		}
		c.uplinkPatterns = append(c.uplinkPatterns, re)
	}
	for _, members := range mlagGroups {
		for _, a := range members {
			al := strings.ToLower(a)
			if c.mlagPeers[al] == nil {
				c.mlagPeers[al] = make(map[string]bool)
			}
			for _, b := range members {
				if strings.EqualFold(a, b) {
					continue
				}
				c.mlagPeers[al][strings.ToLower(b)] = true
			}
		}
	}
	return c, nil
}

func (c *Correlator) isUplink(portName string) bool {
	if c.uplinkPorts[strings.ToLower(portName)] {
		return true
	}
	for _, re := range c.uplinkPatterns {
		if re.MatchString(portName) {
			return true
		}
	}
	return false
}

func (c *Correlator) isMlagPeer(switchA, switchB string) bool {
	peers := c.mlagPeers[strings.ToLower(switchA)]
	return peers != nil && peers[strings.ToLower(switchB)]
}

// Correlate produces one MoveEvent per server, in input order.
func (c *Correlator) Correlate(servers []models.ServerIpmi, fdbBySwitch map[string]models.SwitchFdb) []models.MoveEvent {
	events := make([]models.MoveEvent, 0, len(servers))
	now := time.Now().UTC()
	for _, server := range servers {
		events = append(events, c.correlateOne(server, fdbBySwitch, now))
	}
	return events
}

func (c *Correlator) correlateOne(server models.ServerIpmi, fdbBySwitch map[string]models.SwitchFdb, now time.Time) models.MoveEvent {
	mac := server.MAC()

	observations := c.findMACInFDB(mac, fdbBySwitch)
	if len(observations) == 0 {
		return models.MoveEvent{
			Server:    server,
			Expected:  server.Expected,
			Observed:  nil,
			Status:    models.StatusNotFound,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	observed := c.selectBestObservation(observations, server.Expected)
	status := c.determineStatus(server.Expected, observed)

	return models.MoveEvent{
		Server:    server,
		Expected:  server.Expected,
		Observed:  &observed,
		Status:    status,
		FirstSeen: now,
		LastSeen:  now,
	}
}

func (c *Correlator) findMACInFDB(mac string, fdbBySwitch map[string]models.SwitchFdb) []models.ObservedEndpoint {
	var found []models.ObservedEndpoint
	for _, fdb := range fdbBySwitch {
		if fdb.Error != "" {
			continue
		}
		for _, entry := range fdb.Entries {
			if strings.EqualFold(entry.MACAddress, mac) {
				found = append(found, models.ObservedEndpoint{
					SwitchName: fdb.SwitchName,
					PortName:   entry.PortName,
					VLAN:       entry.VLAN,
					Timestamp:  fdb.CollectedAt,
				})
			}
		}
	}
	return found
}

// selectBestObservation applies the tie-break rules in order:
//  1. Prefer non-uplink observations when any exist.
//  2. If the expected endpoint is known and more than one remaining
//     observation is on the expected switch, prefer the one whose
//     canonical port differs from the expected port (the new
//     location usually briefly coexists with a stale entry on the
//     old port).
//  3. Otherwise the remaining observation sorted first by (switch,
//     port) wins. fdbBySwitch is a map, so candidates arrive in
//     random order; sorting keeps this pick stable across cycles so
//     the state-store's move counter accumulates instead of flapping
//     between equally-plausible switches.
func (c *Correlator) selectBestObservation(observations []models.ObservedEndpoint, expected *models.ExpectedEndpoint) models.ObservedEndpoint {
	candidates := observations

	var nonUplink []models.ObservedEndpoint
	for _, o := range candidates {
		if !c.isUplink(o.PortName) {
			nonUplink = append(nonUplink, o)
		}
	}
	if len(nonUplink) > 0 {
		candidates = nonUplink
	}

	candidates = append([]models.ObservedEndpoint(nil), candidates...)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SwitchName != candidates[j].SwitchName {
			return candidates[i].SwitchName < candidates[j].SwitchName
		}
		return candidates[i].PortName < candidates[j].PortName
	})

	if expected != nil {
		var onExpectedSwitch []models.ObservedEndpoint
		for _, o := range candidates {
			if strings.EqualFold(o.SwitchName, expected.SwitchName) {
				onExpectedSwitch = append(onExpectedSwitch, o)
			}
		}
		if len(onExpectedSwitch) > 1 {
			expectedPort := normalize.PortName(expected.PortName)
			for _, o := range onExpectedSwitch {
				if normalize.PortName(o.PortName) != expectedPort {
					return o
				}
			}
		}
	}

	return candidates[0]
}

func (c *Correlator) determineStatus(expected *models.ExpectedEndpoint, observed models.ObservedEndpoint) models.MoveStatus {
	if expected == nil {
		return models.StatusMoveDetected
	}

	sameSwitch := strings.EqualFold(observed.SwitchName, expected.SwitchName)
	samePort := normalize.PortName(observed.PortName) == normalize.PortName(expected.PortName)

	if sameSwitch && samePort {
		return models.StatusOK
	}
	if c.isMlagPeer(observed.SwitchName, expected.SwitchName) && samePort {
		return models.StatusOKMlagPeer
	}
	if c.isUplink(observed.PortName) {
		return models.StatusSuspectUplink
	}
	return models.StatusMoveDetected
}
