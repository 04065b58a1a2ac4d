package scanner

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
)

func TestNewScannerManager(t *testing.T) {
	manager := NewScannerManager([]config.ScannerConfig{}, logrus.New())

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}

	if manager.scanners == nil {
		t.Error("Expected scanners map to be initialized")
	}
}

func TestNewScannerManagerFromMap(t *testing.T) {
	scannerConfigs := map[string]config.ScannerConfig{
		"symbol": {
			ID:   "symbol",
			Name: "Symbol Bar Code Scanner",
			Identification: config.ScannerIdentification{
				VendorID:  0x05e0,
				ProductID: 0x1200,
			},
			Mode: "shared",
		},
	}

	manager := NewScannerManagerFromMap(scannerConfigs, logrus.New())

	if len(manager.configs) != 1 {
		t.Fatalf("Expected 1 config, got %d", len(manager.configs))
	}

	if manager.configs[0].ID != "symbol" {
		t.Errorf("Expected config ID 'symbol', got %s", manager.configs[0].ID)
	}
}

func TestScannerManager_GetScanner_NotFound(t *testing.T) {
	manager := NewScannerManager([]config.ScannerConfig{}, logrus.New())

	if scanner := manager.GetScanner("nonexistent"); scanner != nil {
		t.Error("Expected nil for nonexistent scanner")
	}
}

func TestScannerManager_StartStop_NoConfigs(t *testing.T) {
	manager := NewScannerManager([]config.ScannerConfig{}, logrus.New())
	manager.SetReconnectDelay(10 * time.Second)

	if err := manager.Start(); err != nil {
		t.Errorf("Expected no error starting manager with no configs, got: %v", err)
	}

	if err := manager.Stop(); err != nil {
		t.Errorf("Expected no error stopping manager, got: %v", err)
	}
}

func TestScannerManager_ConnectedScanners_Empty(t *testing.T) {
	manager := NewScannerManager([]config.ScannerConfig{}, logrus.New())

	if connected := manager.ConnectedScanners(); len(connected) != 0 {
		t.Errorf("Expected no connected scanners, got %d", len(connected))
	}
}

func TestScannerManager_Callbacks(t *testing.T) {
	manager := NewScannerManager([]config.ScannerConfig{}, logrus.New())

	manager.SetOnScanCallback(func(scannerID, barcode string) {})
	manager.SetOnConnectionChangeCallback(func(scannerID string, connected bool) {})

	if manager.onScanCallback == nil {
		t.Error("Expected scan callback to be set")
	}
	if manager.onConnectionCallback == nil {
		t.Error("Expected connection callback to be set")
	}
}
