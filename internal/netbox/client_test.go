package netbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func writeTestJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newMockNetBox creates a test HTTP server mimicking the NetBox
// endpoints this client reads from and writes to for a single server
// (device 1, interface 11, cable 5) wired to switch device 2, interface 22.
func newMockNetBox(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/dcim/devices/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("has_oob_ip") == "true":
			writeTestJSON(w, listResponse[nbDevice]{Count: 1, Results: []nbDevice{
				{ID: 1, Name: "server-1", OOBIP: &nbIPRef{ID: 100, Address: "10.0.0.1/24"}},
			}})
		case r.URL.Query().Get("role") == "switch":
			writeTestJSON(w, listResponse[nbSwitchDevice]{Count: 1, Results: []nbSwitchDevice{
				{ID: 2, Name: "sw1", PrimaryIP4: &nbIPRef{ID: 200, Address: "10.0.0.2/24"}},
			}})
		default:
			writeTestJSON(w, listResponse[nbDevice]{Count: 0})
		}
	})

	mux.HandleFunc("GET /api/dcim/devices/1/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, nbDevice{ID: 1, Name: "server-1", Tags: []nbTag{{ID: 10, Name: "existing", Slug: "existing"}}})
	})
	mux.HandleFunc("PATCH /api/dcim/devices/1/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, nbDevice{ID: 1, Name: "server-1"})
	})

	mux.HandleFunc("GET /api/dcim/interfaces/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, listResponse[nbInterface]{Count: 1, Results: []nbInterface{
			{ID: 11, Name: "IPMI", MACAddress: "AA:BB:CC:DD:EE:01", Cable: &nbCableID{ID: 5},
				Device: &nbDevRef{ID: 1, Name: "server-1"}},
		}})
	})

	mux.HandleFunc("GET /api/ipam/ip-addresses/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, listResponse[nbIPAddress]{Count: 1, Results: []nbIPAddress{
			{ID: 100, Address: "10.0.0.1/24", AssignedObjectType: "dcim.interface", AssignedObjectID: 11},
		}})
	})

	mux.HandleFunc("GET /api/dcim/cables/5/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, nbCable{ID: 5, ATerminations: []nbCableTermination{
			{ObjectID: 11, ObjectType: "dcim.interface"},
		}, BTerminations: []nbCableTermination{
			{ObjectID: 22, ObjectType: "dcim.interface"},
		}})
	})

	mux.HandleFunc("GET /api/dcim/interfaces/22/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, nbInterface{ID: 22, Name: "ge0/1", Device: &nbDevRef{ID: 2, Name: "sw1"}})
	})

	mux.HandleFunc("GET /api/extras/tags/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") == "ipmi-moved" {
			writeTestJSON(w, listResponse[nbTag]{Count: 1, Results: []nbTag{{ID: 42, Name: "ipmi-moved", Slug: "ipmi-moved"}}})
			return
		}
		writeTestJSON(w, listResponse[nbTag]{Count: 0})
	})
	mux.HandleFunc("POST /api/extras/tags/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		writeTestJSON(w, nbTag{ID: 99, Name: "new-tag", Slug: "new-tag"})
	})

	mux.HandleFunc("POST /api/extras/journal-entries/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		writeTestJSON(w, map[string]int{"id": 1})
	})

	return httptest.NewServer(mux)
}

func TestListServersWithIPMI(t *testing.T) {
	srv := newMockNetBox(t)
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", true, 5*time.Second)
	servers, err := c.ListServersWithIPMI(context.Background())
	if err != nil {
		t.Fatalf("ListServersWithIPMI: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}

	s := servers[0]
	if s.Interface.DeviceName != "server-1" {
		t.Errorf("device name = %q", s.Interface.DeviceName)
	}
	if s.Interface.MACAddress != "aa:bb:cc:dd:ee:01" {
		t.Errorf("mac = %q, want normalized lowercase colon form", s.Interface.MACAddress)
	}
	if s.Expected == nil {
		t.Fatal("expected endpoint is nil")
	}
	if s.Expected.SwitchName != "sw1" || s.Expected.PortName != "ge0/1" {
		t.Errorf("expected = %+v", s.Expected)
	}
}

func TestListSwitches(t *testing.T) {
	srv := newMockNetBox(t)
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", true, 5*time.Second)
	switches, err := c.ListSwitches(context.Background(), "role", "switch")
	if err != nil {
		t.Fatalf("ListSwitches: %v", err)
	}
	if len(switches) != 1 {
		t.Fatalf("got %d switches, want 1", len(switches))
	}
	if switches[0].IP != "10.0.0.2" {
		t.Errorf("ip = %q, want 10.0.0.2 (prefix length stripped)", switches[0].IP)
	}
}

func TestAddTag_DeviceWithExistingTag(t *testing.T) {
	srv := newMockNetBox(t)
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", true, 5*time.Second)
	if err := c.AddTag(context.Background(), 1, "ipmi-moved", "move detected"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
}

func TestPostJournalEntry(t *testing.T) {
	srv := newMockNetBox(t)
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", true, 5*time.Second)
	if err := c.PostJournalEntry(context.Background(), 1, "warning", "IPMI move detected"); err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}
}
