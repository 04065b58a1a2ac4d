package scanner

import (
	"time"

	"github.com/karalabe/hid"
	"github.com/sirupsen/logrus"
)

// DeviceMonitor polls HID enumeration and reports availability
// transitions of target devices, so a scanner that was never seen (or
// just got unplugged) shows up in diagnostics instead of silently
// producing no events.
type DeviceMonitor struct {
	logger        *logrus.Logger
	stopCh        chan struct{}
	changesCh     chan bool
	lastAvailable bool
	targetChecker func(*hid.DeviceInfo) bool
	pollInterval  time.Duration
}

// NewDeviceMonitor creates a monitor. targetChecker decides whether a
// given device counts as one of ours.
func NewDeviceMonitor(targetChecker func(*hid.DeviceInfo) bool, logger *logrus.Logger) *DeviceMonitor {
	return &DeviceMonitor{
		logger:        logger,
		stopCh:        make(chan struct{}),
		changesCh:     make(chan bool, 1),
		targetChecker: targetChecker,
		pollInterval:  200 * time.Millisecond,
	}
}

// Start begins polling for device changes.
func (m *DeviceMonitor) Start() {
	m.lastAvailable = m.targetAvailable(hid.Enumerate(0, 0))
	if !m.lastAvailable {
		m.logger.Warn("No matching device events observed: target scanner not attached")
	}
	go m.monitorLoop()
}

// Stop stops device monitoring.
func (m *DeviceMonitor) Stop() {
	close(m.stopCh)
}

// Changes signals when target device availability flips.
func (m *DeviceMonitor) Changes() <-chan bool {
	return m.changesCh
}

func (m *DeviceMonitor) monitorLoop() {
	defer m.logger.Debug("Device monitoring stopped")

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			available := m.targetAvailable(hid.Enumerate(0, 0))
			if available == m.lastAvailable {
				continue
			}

			if available {
				m.logger.Info("Target scanner attached")
			} else {
				m.logger.Warn("Target scanner detached")
			}

			select {
			case m.changesCh <- available:
			default:
				// Channel full, skip this signal
			}
			m.lastAvailable = available
		}
	}
}

func (m *DeviceMonitor) targetAvailable(devices []hid.DeviceInfo) bool {
	for _, device := range devices {
		if m.targetChecker(&device) {
			return true
		}
	}
	return false
}
