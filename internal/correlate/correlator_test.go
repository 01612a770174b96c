package correlate

import (
	"testing"
	"time"

	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

func newTestCorrelator(t *testing.T, mlagGroups map[string][]string) *Correlator {
	t.Helper()
	c, err := New(nil, []string{"uplink", "trunk", "lag", "po"}, mlagGroups)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func server(mac string, expected *models.ExpectedEndpoint) models.ServerIpmi {
	return models.ServerIpmi{
		Interface: models.IpmiInterface{MACAddress: mac, DeviceName: "srv1"},
		Expected:  expected,
	}
}

func fdb(switchName string, entries ...models.FdbEntry) models.SwitchFdb {
	return models.SwitchFdb{SwitchName: switchName, Entries: entries, CollectedAt: time.Now()}
}

func TestCorrelate_OK(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:01"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "GigabitEthernet0/1"})
	fdbs := map[string]models.SwitchFdb{
		"sw1": fdb("sw1", models.FdbEntry{MACAddress: mac, PortName: "GE0/1"}),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Status != models.StatusOK {
		t.Errorf("status = %v, want OK", events[0].Status)
	}
}

func TestCorrelate_NotFound(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:02"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	fdbs := map[string]models.SwitchFdb{"sw1": fdb("sw1")}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusNotFound {
		t.Errorf("status = %v, want NOT_FOUND", events[0].Status)
	}
	if events[0].Observed != nil {
		t.Errorf("expected nil Observed for NOT_FOUND")
	}
}

func TestCorrelate_NoExpectedIsMoveDetected(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:03"
	srv := server(mac, nil)
	fdbs := map[string]models.SwitchFdb{
		"sw1": fdb("sw1", models.FdbEntry{MACAddress: mac, PortName: "ge0/1"}),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusMoveDetected {
		t.Errorf("status = %v, want MOVE_DETECTED", events[0].Status)
	}
}

func TestCorrelate_MovedToOtherSwitch(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:04"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	fdbs := map[string]models.SwitchFdb{
		"sw2": fdb("sw2", models.FdbEntry{MACAddress: mac, PortName: "ge0/5"}),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusMoveDetected {
		t.Errorf("status = %v, want MOVE_DETECTED", events[0].Status)
	}
}

func TestCorrelate_SuspectUplink(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:05"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	fdbs := map[string]models.SwitchFdb{
		"sw2": fdb("sw2", models.FdbEntry{MACAddress: mac, PortName: "Port-channel1"}),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusSuspectUplink {
		t.Errorf("status = %v, want SUSPECT_UPLINK", events[0].Status)
	}
}

func TestCorrelate_MlagPeerSamePort(t *testing.T) {
	c := newTestCorrelator(t, map[string][]string{"pair-a": {"sw1", "sw2"}})
	mac := "aa:bb:cc:dd:ee:06"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	fdbs := map[string]models.SwitchFdb{
		"sw2": fdb("sw2", models.FdbEntry{MACAddress: mac, PortName: "ge0/1"}),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusOKMlagPeer {
		t.Errorf("status = %v, want OK_MLAG_PEER", events[0].Status)
	}
}

func TestCorrelate_PrefersNonUplinkObservation(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:07"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/9"})
	fdbs := map[string]models.SwitchFdb{
		"sw1": fdb("sw1",
			models.FdbEntry{MACAddress: mac, PortName: "Port-channel1"},
			models.FdbEntry{MACAddress: mac, PortName: "ge0/9"},
		),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusOK {
		t.Errorf("status = %v, want OK (non-uplink observation should win)", events[0].Status)
	}
}

func TestCorrelate_SameSwitchDoubleDisambiguation(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:08"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	// Stale entry on the old port plus a fresh one on the new port, both on the expected switch.
	fdbs := map[string]models.SwitchFdb{
		"sw1": fdb("sw1",
			models.FdbEntry{MACAddress: mac, PortName: "ge0/1"},
			models.FdbEntry{MACAddress: mac, PortName: "ge0/7"},
		),
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusMoveDetected {
		t.Errorf("status = %v, want MOVE_DETECTED (should prefer the non-expected-port duplicate)", events[0].Status)
	}
	if events[0].Observed.PortName != "ge0/7" {
		t.Errorf("observed port = %q, want ge0/7", events[0].Observed.PortName)
	}
}

func TestCorrelate_SwitchCollectionErrorExcluded(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:09"
	srv := server(mac, &models.ExpectedEndpoint{SwitchName: "sw1", PortName: "ge0/1"})
	fdbs := map[string]models.SwitchFdb{
		"sw1": {SwitchName: "sw1", Error: "timeout"},
	}

	events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
	if events[0].Status != models.StatusNotFound {
		t.Errorf("status = %v, want NOT_FOUND when the only switch with the MAC errored", events[0].Status)
	}
}

func TestCorrelate_UnresolvedMultiSwitchTieIsDeterministic(t *testing.T) {
	c := newTestCorrelator(t, nil)
	mac := "aa:bb:cc:dd:ee:13"
	// No expected endpoint to disambiguate with, and neither switch is
	// an uplink port: selectBestObservation must fall back to a fixed
	// ordering (by switch name) instead of map-iteration order, or the
	// pick would flap between sw-alpha and sw-zulu across cycles.
	srv := server(mac, nil)
	fdbs := map[string]models.SwitchFdb{
		"sw-zulu":  fdb("sw-zulu", models.FdbEntry{MACAddress: mac, PortName: "ge0/1"}),
		"sw-alpha": fdb("sw-alpha", models.FdbEntry{MACAddress: mac, PortName: "ge0/2"}),
	}

	for i := 0; i < 20; i++ {
		events := c.Correlate([]models.ServerIpmi{srv}, fdbs)
		if events[0].Observed.SwitchName != "sw-alpha" {
			t.Fatalf("run %d: observed switch = %q, want sw-alpha (alphabetically first)", i, events[0].Observed.SwitchName)
		}
		if events[0].Observed.PortName != "ge0/2" {
			t.Fatalf("run %d: observed port = %q, want ge0/2", i, events[0].Observed.PortName)
		}
	}
}

func TestCorrelate_OneEventPerServer(t *testing.T) {
	c := newTestCorrelator(t, nil)
	servers := []models.ServerIpmi{
		server("aa:bb:cc:dd:ee:10", nil),
		server("aa:bb:cc:dd:ee:11", nil),
		server("aa:bb:cc:dd:ee:12", nil),
	}
	events := c.Correlate(servers, map[string]models.SwitchFdb{})
	if len(events) != len(servers) {
		t.Errorf("got %d events, want %d", len(events), len(servers))
	}
}
