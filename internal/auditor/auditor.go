// Package auditor runs the recurring poll cycle that ties the
// inventory reader, SNMP FDB collector, correlator, state store, and
// notifier together.
package auditor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/ipmi-move-auditor/internal/config"
	"github.com/HerbHall/ipmi-move-auditor/internal/correlate"
	"github.com/HerbHall/ipmi-move-auditor/internal/snmpfdb"
	"github.com/HerbHall/ipmi-move-auditor/internal/state"
	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

const startupAlertRetentionDays = 30

// Inventory is the subset of netbox.Client the auditor drives.
type Inventory interface {
	ListServersWithIPMI(ctx context.Context) ([]models.ServerIpmi, error)
	ListSwitches(ctx context.Context, selectorKind, selectorValue string) ([]models.Switch, error)
	AddTag(ctx context.Context, deviceID int, tagName, tagDescription string) error
	RemoveTag(ctx context.Context, deviceID int, tagName string) error
}

// Collector is the subset of snmpfdb.Collector the auditor drives.
type Collector interface {
	CollectAll(ctx context.Context, switches []models.Switch) map[string]models.SwitchFdb
}

// Notifier is the subset of notify.Notifier the auditor drives.
type Notifier interface {
	Send(ctx context.Context, deviceID int, alert models.AlertInfo) error
	SendError(ctx context.Context, cycleErr error) error
}

// Auditor owns one poll cycle and its ticker/shutdown loop.
type Auditor struct {
	cfg        *config.Settings
	inventory  Inventory
	collector  Collector
	correlator *correlate.Correlator
	state      *state.Store
	notifier   Notifier
	logger     *zap.Logger
	nowFunc    func() time.Time
	newID      func() string
}

// New wires the poll-loop dependencies. Production callers pass the
// concrete netbox.Client, snmpfdb.Collector, and notify.Notifier.
func New(
	cfg *config.Settings,
	inventory Inventory,
	collector Collector,
	correlator *correlate.Correlator,
	stateStore *state.Store,
	notifier Notifier,
	logger *zap.Logger,
) *Auditor {
	return &Auditor{
		cfg:        cfg,
		inventory:  inventory,
		collector:  collector,
		correlator: correlator,
		state:      stateStore,
		notifier:   notifier,
		logger:     logger,
		nowFunc:    time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Run blocks until ctx is cancelled, running one cycle per
// cfg.PollInterval. Any in-flight cycle finishes its current event
// before the cancellation is observed; the sleep between cycles is
// checked every second so a shutdown signal cuts it short.
func (a *Auditor) Run(ctx context.Context) error {
	deleted, err := a.state.CleanupOldAlerts(ctx, startupAlertRetentionDays)
	if err != nil {
		a.logger.Warn("startup alert cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		a.logger.Info("cleaned up old alert history", zap.Int("deleted", deleted))
	}
	a.logger.Info("ipmi move auditor started",
		zap.Duration("poll_interval", a.cfg.PollInterval),
		zap.Int("move_confirm_runs", a.cfg.MoveConfirmRuns),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := a.runCycle(ctx); err != nil {
			a.logger.Error("poll cycle failed, retrying after delay", zap.Error(err))
			if notifyErr := a.notifier.SendError(ctx, err); notifyErr != nil {
				a.logger.Error("failed to send error notification", zap.Error(notifyErr))
			}
			if !a.sleepInterruptible(ctx, 60*time.Second) {
				return nil
			}
			continue
		}

		if !a.sleepInterruptible(ctx, a.cfg.PollInterval) {
			return nil
		}
	}
}

// sleepInterruptible sleeps in 1-second increments, returning false
// as soon as ctx is cancelled.
func (a *Auditor) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	deadline := a.nowFunc().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for a.nowFunc().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (a *Auditor) runCycle(ctx context.Context) error {
	servers, err := a.inventory.ListServersWithIPMI(ctx)
	if err != nil {
		return fmt.Errorf("list servers with ipmi: %w", err)
	}
	if len(servers) == 0 {
		a.logger.Debug("no servers with connected IPMI interfaces, skipping cycle")
		return nil
	}

	selector, err := config.ParseSelector(a.cfg.SwitchesSelector)
	if err != nil {
		return fmt.Errorf("parse switches selector: %w", err)
	}
	switches, err := a.inventory.ListSwitches(ctx, selector.Kind, selector.Value)
	if err != nil {
		return fmt.Errorf("list switches: %w", err)
	}
	if len(switches) == 0 {
		a.logger.Debug("no switches matched selector, skipping cycle")
		return nil
	}

	fdbBySwitch := a.collector.CollectAll(ctx, switches)
	succeeded := 0
	for _, fdb := range fdbBySwitch {
		if fdb.Error == "" {
			succeeded++
		}
	}
	a.logger.Info("FDB collection complete",
		zap.Int("switches", len(switches)),
		zap.Int("succeeded", succeeded),
	)

	events := a.correlator.Correlate(servers, fdbBySwitch)
	for _, event := range events {
		if ctx.Err() != nil {
			return nil
		}
		if err := a.processEvent(ctx, event); err != nil {
			a.logger.Error("processing move event failed",
				zap.String("mac", event.Server.MAC()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (a *Auditor) processEvent(ctx context.Context, event models.MoveEvent) error {
	mac := event.Server.MAC()

	counter, err := a.state.UpdateState(ctx, event)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	if event.Status == models.StatusOK || event.Status == models.StatusOKMlagPeer {
		if err := a.inventory.RemoveTag(ctx, event.Server.Interface.DeviceID, a.cfg.MoveTagName); err != nil {
			a.logger.Warn("failed to remove move tag", zap.String("mac", mac), zap.Error(err))
		}
		return nil
	}

	if event.Status != models.StatusMoveDetected {
		return nil
	}

	if counter < a.cfg.MoveConfirmRuns {
		a.logger.Debug("move observed but not yet confirmed",
			zap.String("mac", mac),
			zap.Int("counter", counter),
			zap.Int("threshold", a.cfg.MoveConfirmRuns),
		)
		return nil
	}

	event.Status = models.StatusMoveConfirmed
	deviceID := event.Server.Interface.DeviceID
	if err := a.inventory.AddTag(ctx, deviceID, a.cfg.MoveTagName, "IPMI interface observed on an unexpected switch port"); err != nil {
		a.logger.Warn("failed to add move tag", zap.String("mac", mac), zap.Error(err))
	}

	send, reminder, err := a.state.ShouldSendAlert(ctx, mac, event.Observed)
	if err != nil {
		return fmt.Errorf("should send alert: %w", err)
	}
	if !send {
		return nil
	}

	firstSeen, err := a.state.GetFirstMoveTime(ctx, mac)
	if err != nil {
		return fmt.Errorf("get first move time: %w", err)
	}
	firstDetected := a.nowFunc().UTC()
	if firstSeen != nil {
		firstDetected = *firstSeen
	}

	alert := a.buildAlert(event, counter, firstDetected, reminder)
	if err := a.notifier.Send(ctx, deviceID, alert); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}

	if err := a.state.RecordAlert(ctx, mac, event.Observed, reminder); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

func (a *Auditor) buildAlert(event models.MoveEvent, counter int, firstDetected time.Time, reminder bool) models.AlertInfo {
	alert := models.AlertInfo{
		ServerName:       event.Server.ServerName(),
		ServerURL:        event.Server.Interface.NetBoxURL,
		MACAddress:       event.Server.MAC(),
		IPAddress:        event.Server.Interface.IPAddress,
		ConsecutiveCount: counter,
		FirstDetected:    firstDetected,
		IsReminder:       reminder,
		CorrelationID:    a.newID(),
	}
	if event.Expected != nil {
		alert.ExpectedSwitch = event.Expected.SwitchName
		alert.ExpectedPort = event.Expected.PortName
		alert.ExpectedURL = event.Expected.NetBoxURL
	}
	if event.Observed != nil {
		alert.ObservedSwitch = event.Observed.SwitchName
		alert.ObservedPort = event.Observed.PortName
		alert.ObservedVLAN = event.Observed.VLAN
	}
	return alert
}

// credentialFromSettings builds the SNMP credential snmpfdb.Collector
// needs from parsed settings.
func credentialFromSettings(s *config.Settings) snmpfdb.Credential {
	version := "2c"
	if s.SNMPVersion == "3" || s.SNMPVersion == "v3" {
		version = "3"
	}
	return snmpfdb.Credential{
		Version:       version,
		Community:     s.SNMPCommunity,
		Username:      s.SNMPv3Username,
		AuthProtocol:  s.SNMPv3AuthProtocol,
		AuthPassword:  s.SNMPv3AuthPassphrase,
		PrivProtocol:  s.SNMPv3PrivProtocol,
		PrivPassword:  s.SNMPv3PrivPassphrase,
		SecurityLevel: s.SNMPv3SecurityLevel,
	}
}

// NewCollector builds the production SNMP collector from settings.
func NewCollector(s *config.Settings, logger *zap.Logger) *snmpfdb.Collector {
	return snmpfdb.New(credentialFromSettings(s), s.SNMPTimeout, maxParallelSwitches, logger)
}

const maxParallelSwitches = 8
