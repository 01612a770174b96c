// Package notify renders move alerts as Markdown and posts them as
// NetBox journal entries on the affected device.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

// DeviceTagger is the subset of netbox.Client this package calls.
type DeviceTagger interface {
	PostJournalEntry(ctx context.Context, deviceID int, kind, comments string) error
}

// Notifier posts move alerts to the inventory as journal entries.
type Notifier struct {
	client DeviceTagger
	logger *zap.Logger
}

// New creates a Notifier.
func New(client DeviceTagger, logger *zap.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// SendError reports a poll-cycle failure. NetBox has no device to
// attach a cycle-level failure to, so this only logs; it exists as
// its own method so a future transport (e.g. a dedicated alerting
// channel) can replace the body without touching call sites.
func (n *Notifier) SendError(_ context.Context, cycleErr error) error {
	n.logger.Error("poll cycle error", zap.Error(cycleErr))
	return nil
}

// Send renders alert and posts it on alert's device. Severity is
// "warning" for an initial alert and "info" for a reminder.
func (n *Notifier) Send(ctx context.Context, deviceID int, alert models.AlertInfo) error {
	comments := render(alert)
	kind := "warning"
	if alert.IsReminder {
		kind = "info"
	}

	if err := n.client.PostJournalEntry(ctx, deviceID, kind, comments); err != nil {
		return fmt.Errorf("post journal entry for device %d: %w", deviceID, err)
	}

	n.logger.Info("journal entry created",
		zap.String("server", alert.ServerName),
		zap.Int("device_id", deviceID),
		zap.Bool("is_reminder", alert.IsReminder),
	)
	return nil
}

func render(a models.AlertInfo) string {
	prefix := ""
	if a.IsReminder {
		prefix = "REMINDER: "
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%sIPMI Move Detected**\n\n", prefix)
	b.WriteString("| Field | Value |\n")
	b.WriteString("|:------|:------|\n")
	fmt.Fprintf(&b, "| IPMI MAC | `%s` |\n", a.MACAddress)
	fmt.Fprintf(&b, "| IPMI IP | %s |\n", orNA(a.IPAddress))
	fmt.Fprintf(&b, "| Expected (NetBox) | %s:%s |\n", a.ExpectedSwitch, a.ExpectedPort)
	fmt.Fprintf(&b, "| Observed (FDB) | %s:%s |\n", a.ObservedSwitch, a.ObservedPort)
	if a.ObservedVLAN != 0 {
		fmt.Fprintf(&b, "| Observed VLAN | %d |\n", a.ObservedVLAN)
	}
	fmt.Fprintf(&b, "| Consecutive Observations | %d |\n", a.ConsecutiveCount)
	fmt.Fprintf(&b, "| First Detected | %s |\n", a.FirstDetected.Format("2006-01-02 15:04 UTC"))
	b.WriteString("\n---\n")
	b.WriteString("_Detected by the IPMI move auditor_\n")
	if a.CorrelationID != "" {
		fmt.Fprintf(&b, "<!-- alert-id: %s -->\n", a.CorrelationID)
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
