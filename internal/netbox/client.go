// Package netbox is a read-mostly NetBox v4 REST API client: it
// resolves expected IPMI cabling from the inventory and writes back
// move-detected tags and journal entries. It does not sync or create
// inventory records.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HerbHall/ipmi-move-auditor/internal/retry"
	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

// Client wraps the NetBox REST API v4 endpoints this program needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a NetBox client. verifySSL controls TLS
// certificate verification, matching NETBOX_VERIFY_SSL.
func NewClient(baseURL, token string, verifySSL bool, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{}
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out via NETBOX_VERIFY_SSL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// ListServersWithIPMI returns every device with a connected,
// MAC-bearing OOB interface and its expected cable endpoint.
func (c *Client) ListServersWithIPMI(ctx context.Context) ([]models.ServerIpmi, error) {
	var devices []nbDevice
	err := retry.Do(ctx, retry.Inventory, func() error {
		var resp listResponse[nbDevice]
		if e := c.doJSON(ctx, http.MethodGet, "/api/dcim/devices/?has_oob_ip=true&limit=1000", nil, &resp); e != nil {
			return e
		}
		devices = resp.Results
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list devices with oob ip: %w", err)
	}

	var servers []models.ServerIpmi
	for _, device := range devices {
		if device.OOBIP == nil {
			continue
		}
		oobIP := strings.SplitN(device.OOBIP.Address, "/", 2)[0]

		iface, err := c.findOOBInterface(ctx, device, oobIP)
		if err != nil {
			return nil, fmt.Errorf("find oob interface for device %d: %w", device.ID, err)
		}
		if iface == nil || iface.MACAddress == "" {
			continue
		}

		expected, err := c.resolveExpectedEndpoint(ctx, *iface)
		if err != nil {
			return nil, fmt.Errorf("resolve expected endpoint for interface %d: %w", iface.ID, err)
		}
		if expected == nil {
			continue
		}

		servers = append(servers, models.ServerIpmi{
			Interface: models.IpmiInterface{
				DeviceID:      device.ID,
				DeviceName:    device.Name,
				InterfaceID:   iface.ID,
				InterfaceName: iface.Name,
				MACAddress:    normalizeMAC(iface.MACAddress),
				IPAddress:     oobIP,
				NetBoxURL:     fmt.Sprintf("%s/dcim/devices/%d/", c.baseURL, device.ID),
			},
			Expected: expected,
		})
	}
	return servers, nil
}

// findOOBInterface resolves a device's BMC interface: first by
// locating the interface the device's OOB IP is assigned to, then by
// falling back to interface-name pattern matching.
func (c *Client) findOOBInterface(ctx context.Context, device nbDevice, oobIP string) (*nbInterface, error) {
	var ifaceResp listResponse[nbInterface]
	path := fmt.Sprintf("/api/dcim/interfaces/?device_id=%d&limit=1000", device.ID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &ifaceResp); err != nil {
		return nil, err
	}
	interfaces := ifaceResp.Results

	var ipResp listResponse[nbIPAddress]
	ipPath := fmt.Sprintf("/api/ipam/ip-addresses/?address=%s&limit=100", oobIP)
	if err := c.doJSON(ctx, http.MethodGet, ipPath, nil, &ipResp); err != nil {
		return nil, err
	}
	assignedIfaceID := 0
	for _, ip := range ipResp.Results {
		if ip.AssignedObjectType == "dcim.interface" {
			assignedIfaceID = ip.AssignedObjectID
			break
		}
	}
	if assignedIfaceID != 0 {
		for i := range interfaces {
			if interfaces[i].ID == assignedIfaceID {
				return &interfaces[i], nil
			}
		}
	}

	for i := range interfaces {
		name := strings.ToUpper(interfaces[i].Name)
		for _, pattern := range []string{"IPMI", "ILO", "IDRAC", "BMC", "OOB"} {
			if strings.Contains(name, pattern) && interfaces[i].MACAddress != "" {
				return &interfaces[i], nil
			}
		}
	}
	return nil, nil
}

// resolveExpectedEndpoint walks the cable attached to iface to find
// the switch-side interface it terminates on.
func (c *Client) resolveExpectedEndpoint(ctx context.Context, iface nbInterface) (*models.ExpectedEndpoint, error) {
	if iface.Cable == nil {
		return nil, nil
	}

	var cable nbCable
	path := fmt.Sprintf("/api/dcim/cables/%d/", iface.Cable.ID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &cable); err != nil {
		return nil, err
	}

	var remoteID int
	for _, term := range cable.ATerminations {
		if term.ObjectType == "dcim.interface" && term.ObjectID != iface.ID {
			remoteID = term.ObjectID
			break
		}
	}
	if remoteID == 0 {
		for _, term := range cable.BTerminations {
			if term.ObjectType == "dcim.interface" && term.ObjectID != iface.ID {
				remoteID = term.ObjectID
				break
			}
		}
	}
	if remoteID == 0 {
		return nil, nil
	}

	var remote nbInterface
	remotePath := fmt.Sprintf("/api/dcim/interfaces/%d/", remoteID)
	if err := c.doJSON(ctx, http.MethodGet, remotePath, nil, &remote); err != nil {
		return nil, err
	}
	if remote.Device == nil {
		return nil, nil
	}

	return &models.ExpectedEndpoint{
		SwitchID:   remote.Device.ID,
		SwitchName: remote.Device.Name,
		PortID:     remote.ID,
		PortName:   remote.Name,
		CableID:    cable.ID,
		NetBoxURL:  fmt.Sprintf("%s/dcim/devices/%d/", c.baseURL, remote.Device.ID),
	}, nil
}

// ListSwitches returns every switch device matching selector that has
// a primary management IP.
func (c *Client) ListSwitches(ctx context.Context, selectorKind, selectorValue string) ([]models.Switch, error) {
	filterKey := map[string]string{"role": "role", "tag": "tag", "site": "site"}[selectorKind]
	if filterKey == "" {
		return nil, fmt.Errorf("unsupported selector kind %q", selectorKind)
	}

	var devices []nbSwitchDevice
	err := retry.Do(ctx, retry.Inventory, func() error {
		path := fmt.Sprintf("/api/dcim/devices/?%s=%s&limit=1000", filterKey, selectorValue)
		var resp listResponse[nbSwitchDevice]
		if e := c.doJSON(ctx, http.MethodGet, path, nil, &resp); e != nil {
			return e
		}
		devices = resp.Results
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list switches: %w", err)
	}

	var switches []models.Switch
	for _, d := range devices {
		ip := ""
		if d.PrimaryIP4 != nil {
			ip = d.PrimaryIP4.Address
		} else if d.PrimaryIP != nil {
			ip = d.PrimaryIP.Address
		}
		if ip == "" {
			continue
		}
		switches = append(switches, models.Switch{
			ID:   d.ID,
			Name: d.Name,
			IP:   strings.SplitN(ip, "/", 2)[0],
		})
	}
	return switches, nil
}

// EnsureTag finds a tag by slug or creates it, returning its ID.
func (c *Client) EnsureTag(ctx context.Context, name, description string) (int, error) {
	slug := slugify(name)
	var resp listResponse[nbTag]
	path := fmt.Sprintf("/api/extras/tags/?slug=%s", slug)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("list tags: %w", err)
	}
	if resp.Count > 0 {
		return resp.Results[0].ID, nil
	}

	body := map[string]string{"name": name, "slug": slug, "color": "f44336", "description": description}
	var created nbTag
	if err := c.doJSON(ctx, http.MethodPost, "/api/extras/tags/", body, &created); err != nil {
		return 0, fmt.Errorf("create tag %q: %w", name, err)
	}
	return created.ID, nil
}

// AddTag idempotently adds tagName to deviceID, preserving existing
// tags. Failures are the caller's responsibility to log; this method
// only returns the error.
func (c *Client) AddTag(ctx context.Context, deviceID int, tagName, tagDescription string) error {
	tagID, err := c.EnsureTag(ctx, tagName, tagDescription)
	if err != nil {
		return err
	}

	var device nbDevice
	path := fmt.Sprintf("/api/dcim/devices/%d/", deviceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &device); err != nil {
		return fmt.Errorf("get device %d: %w", deviceID, err)
	}

	ids := make([]int, 0, len(device.Tags)+1)
	for _, t := range device.Tags {
		if t.ID == tagID {
			return nil // already present
		}
		ids = append(ids, t.ID)
	}
	ids = append(ids, tagID)

	return retry.Do(ctx, retry.Inventory, func() error {
		return c.doJSON(ctx, http.MethodPatch, path, map[string]any{"tags": ids}, &device)
	})
}

// RemoveTag idempotently removes tagName from deviceID.
func (c *Client) RemoveTag(ctx context.Context, deviceID int, tagName string) error {
	slug := slugify(tagName)

	var device nbDevice
	path := fmt.Sprintf("/api/dcim/devices/%d/", deviceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &device); err != nil {
		return fmt.Errorf("get device %d: %w", deviceID, err)
	}

	ids := make([]int, 0, len(device.Tags))
	found := false
	for _, t := range device.Tags {
		if t.Slug == slug {
			found = true
			continue
		}
		ids = append(ids, t.ID)
	}
	if !found {
		return nil
	}

	return retry.Do(ctx, retry.Inventory, func() error {
		return c.doJSON(ctx, http.MethodPatch, path, map[string]any{"tags": ids}, &device)
	})
}

// PostJournalEntry records a journal entry on deviceID.
func (c *Client) PostJournalEntry(ctx context.Context, deviceID int, kind, comments string) error {
	req := journalEntryRequest{
		AssignedObjectType: "dcim.device",
		AssignedObjectID:   deviceID,
		Kind:               kind,
		Comments:           comments,
	}
	return c.doJSON(ctx, http.MethodPost, "/api/extras/journal-entries/", req, nil)
}

func normalizeMAC(mac string) string {
	cleaned := strings.NewReplacer("-", "", ":", "", ".", "").Replace(strings.ToLower(mac))
	if len(cleaned) != 12 {
		return strings.ToLower(mac)
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(cleaned[i : i+2])
	}
	return b.String()
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// doJSON performs an HTTP request with JSON (de)serialization.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("netbox API %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
