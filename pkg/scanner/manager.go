package scanner

import (
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
)

// ScannerManager owns one BarcodeScanner per configured entry plus the
// shared device monitor. Implements the Service interface.
type ScannerManager struct {
	scanners             map[string]*BarcodeScanner
	configs              []config.ScannerConfig
	monitor              *DeviceMonitor
	logger               *logrus.Logger
	onScanCallback       func(scannerID, barcode string)
	onConnectionCallback func(scannerID string, connected bool)
	reconnectDelay       time.Duration
	mutex                sync.RWMutex
}

func NewScannerManager(configs []config.ScannerConfig, logger *logrus.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]*BarcodeScanner),
		configs:  configs,
		logger:   logger,
	}
}

func NewScannerManagerFromMap(configMap map[string]config.ScannerConfig, logger *logrus.Logger) *ScannerManager {
	configs := make([]config.ScannerConfig, 0, len(configMap))
	for _, cfg := range configMap {
		configs = append(configs, cfg)
	}
	return NewScannerManager(configs, logger)
}

func (sm *ScannerManager) SetOnScanCallback(callback func(scannerID, barcode string)) {
	sm.onScanCallback = callback
}

func (sm *ScannerManager) SetOnConnectionChangeCallback(callback func(scannerID string, connected bool)) {
	sm.onConnectionCallback = callback
}

func (sm *ScannerManager) SetReconnectDelay(delay time.Duration) {
	sm.reconnectDelay = delay
}

// Start brings up every configured scanner. A scanner whose device is
// absent starts anyway and attaches when the device appears; nothing
// here is fatal.
func (sm *ScannerManager) Start() error {
	sm.logger.Info("Starting scanner manager...")

	for _, cfg := range sm.configs {
		if err := sm.startScanner(&cfg); err != nil {
			sm.logger.Errorf("Failed to start scanner %s: %v", cfg.ID, err)
		}
	}

	if len(sm.configs) > 0 {
		sm.monitor = NewDeviceMonitor(sm.matchesAnyScanner, sm.logger)
		sm.monitor.Start()
	}

	sm.logger.Infof("Scanner manager started with %d scanner(s)", len(sm.scanners))
	return nil
}

func (sm *ScannerManager) Stop() error {
	if sm.monitor != nil {
		sm.monitor.Stop()
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for id, scanner := range sm.scanners {
		sm.logger.Debugf("Stopping scanner: %s", id)
		if err := scanner.Stop(); err != nil {
			sm.logger.Errorf("Error stopping scanner %s: %v", id, err)
		}
	}

	sm.scanners = make(map[string]*BarcodeScanner)
	sm.logger.Info("All scanners stopped")
	return nil
}

func (sm *ScannerManager) GetScanner(id string) *BarcodeScanner {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.scanners[id]
}

// ConnectedScanners returns device info for every currently attached
// scanner, keyed by scanner ID.
func (sm *ScannerManager) ConnectedScanners() map[string]*hid.DeviceInfo {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	connected := make(map[string]*hid.DeviceInfo)
	for id, scanner := range sm.scanners {
		if scanner.IsConnected() {
			if deviceInfo := scanner.ConnectedDeviceInfo(); deviceInfo != nil {
				connected[id] = deviceInfo
			}
		}
	}
	return connected
}

func (sm *ScannerManager) startScanner(cfg *config.ScannerConfig) error {
	sm.logger.Debugf("Starting scanner: %s", cfg.ID)

	scanner := NewBarcodeScanner(cfg, sm.logger)
	if sm.reconnectDelay > 0 {
		scanner.SetReconnectDelay(sm.reconnectDelay)
	}

	scannerID := cfg.ID
	scanner.SetOnScanCallback(func(barcode string) {
		if sm.onScanCallback != nil {
			sm.onScanCallback(scannerID, barcode)
		}
	})

	scanner.SetOnConnectionChangeCallback(func(connected bool) {
		if sm.onConnectionCallback != nil {
			sm.onConnectionCallback(scannerID, connected)
		}
	})

	sm.mutex.Lock()
	sm.scanners[cfg.ID] = scanner
	sm.mutex.Unlock()

	if err := scanner.Start(); err != nil {
		sm.mutex.Lock()
		delete(sm.scanners, cfg.ID)
		sm.mutex.Unlock()
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	return nil
}

func (sm *ScannerManager) matchesAnyScanner(info *hid.DeviceInfo) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, scanner := range sm.scanners {
		if scanner.MatchesDevice(info) {
			return true
		}
	}
	return false
}
