package scanner

import (
	"testing"
	"time"

	"github.com/karalabe/hid"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
	"github.com/scanlaunch/scanlaunch/pkg/engine"
)

func newTestScanner(t *testing.T, vendorID, productID uint16) *BarcodeScanner {
	t.Helper()
	cfg := &config.ScannerConfig{
		ID: "test",
		Identification: config.ScannerIdentification{
			VendorID:  vendorID,
			ProductID: productID,
		},
		Mode:          "shared",
		ScanTimeoutMs: 100,
	}
	return NewBarcodeScanner(cfg, logrus.New())
}

func TestMatchesDevice_ConfiguredPair(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)

	if !s.MatchesDevice(&hid.DeviceInfo{VendorID: 0x05e0, ProductID: 0x1200}) {
		t.Error("Expected matching vendor/product pair to match")
	}

	// A device reporting different IDs must never match, so a stream
	// from it produces zero barcodes.
	if s.MatchesDevice(&hid.DeviceInfo{VendorID: 0x1234, ProductID: 0x1200}) {
		t.Error("Expected different vendor ID to not match")
	}
	if s.MatchesDevice(&hid.DeviceInfo{VendorID: 0x05e0, ProductID: 0x9999}) {
		t.Error("Expected different product ID to not match")
	}
}

func TestMatchesDevice_SerialRequired(t *testing.T) {
	cfg := &config.ScannerConfig{
		ID: "test",
		Identification: config.ScannerIdentification{
			VendorID:  0x05e0,
			ProductID: 0x1200,
			Serial:    "S123",
		},
		Mode: "shared",
	}
	s := NewBarcodeScanner(cfg, logrus.New())

	if !s.MatchesDevice(&hid.DeviceInfo{VendorID: 0x05e0, ProductID: 0x1200, Serial: "S123"}) {
		t.Error("Expected matching serial to match")
	}
	if s.MatchesDevice(&hid.DeviceInfo{VendorID: 0x05e0, ProductID: 0x1200, Serial: "OTHER"}) {
		t.Error("Expected different serial to not match")
	}
}

func TestMatchesDevice_DiscoveryMode(t *testing.T) {
	s := newTestScanner(t, 0, 0)

	keyboard := &hid.DeviceInfo{VendorID: 0x1111, ProductID: 0x2222, UsagePage: 0x01, Usage: 0x06}
	if !s.MatchesDevice(keyboard) {
		t.Error("Expected keyboard-class device to match in discovery mode")
	}

	mouse := &hid.DeviceInfo{VendorID: 0x1111, ProductID: 0x2222, UsagePage: 0x01, Usage: 0x02}
	if s.MatchesDevice(mouse) {
		t.Error("Expected non-keyboard device to not match in discovery mode")
	}

	// Platforms that report no usage info at all: accept the device
	// rather than matching nothing.
	unreported := &hid.DeviceInfo{VendorID: 0x1111, ProductID: 0x2222}
	if !s.MatchesDevice(unreported) {
		t.Error("Expected device without usage info to match in discovery mode")
	}
}

func TestParseReport_PressAndRelease(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)
	now := time.Now()

	// '1' pressed (usage 0x1E).
	events := s.parseReport([]byte{0, 0, 0x1E, 0, 0, 0, 0, 0}, now)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Usage != 0x1E || events[0].Phase != engine.Pressed {
		t.Errorf("Expected press of 0x1E, got %+v", events[0])
	}

	// Same report again: key held, no new events.
	events = s.parseReport([]byte{0, 0, 0x1E, 0, 0, 0, 0, 0}, now)
	if len(events) != 0 {
		t.Errorf("Expected no events for held key, got %d", len(events))
	}

	// Empty report: release.
	events = s.parseReport([]byte{0, 0, 0, 0, 0, 0, 0, 0}, now)
	if len(events) != 1 {
		t.Fatalf("Expected 1 release event, got %d", len(events))
	}
	if events[0].Usage != 0x1E || events[0].Phase != engine.Released {
		t.Errorf("Expected release of 0x1E, got %+v", events[0])
	}
}

func TestParseReport_MultipleKeys(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)

	events := s.parseReport([]byte{0, 0, 0x04, 0x05, 0, 0, 0, 0}, time.Now())
	if len(events) != 2 {
		t.Fatalf("Expected 2 press events, got %d", len(events))
	}
	if events[0].Usage != 0x04 || events[1].Usage != 0x05 {
		t.Errorf("Expected presses in slot order, got %+v", events)
	}
}

func TestParseReport_PhantomRollover(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)

	events := s.parseReport([]byte{0, 0, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01}, time.Now())
	if len(events) != 0 {
		t.Errorf("Expected rollover report to be dropped, got %d events", len(events))
	}
}

func TestParseReport_ShortReport(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)

	if events := s.parseReport([]byte{0, 0}, time.Now()); events != nil {
		t.Errorf("Expected nil for short report, got %+v", events)
	}
	if events := s.parseReport(nil, time.Now()); events != nil {
		t.Errorf("Expected nil for empty report, got %+v", events)
	}
}

func TestBarcodeScanner_ScanThroughEngine(t *testing.T) {
	s := newTestScanner(t, 0x05e0, 0x1200)

	var scans []string
	s.SetOnScanCallback(func(barcode string) {
		scans = append(scans, barcode)
	})

	// Reports as the scanner would send them: press/release per key,
	// then Enter.
	base := time.Now()
	reports := [][]byte{
		{0, 0, 0x1E, 0, 0, 0, 0, 0}, // '1' down
		{0, 0, 0, 0, 0, 0, 0, 0},    // up
		{0, 0, 0x1F, 0, 0, 0, 0, 0}, // '2' down
		{0, 0, 0, 0, 0, 0, 0, 0},    // up
		{0, 0, 0x20, 0, 0, 0, 0, 0}, // '3' down
		{0, 0, 0, 0, 0, 0, 0, 0},    // up
		{0, 0, 0x28, 0, 0, 0, 0, 0}, // Enter down
		{0, 0, 0, 0, 0, 0, 0, 0},    // up
	}

	for i, report := range reports {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond)
		for _, ev := range s.parseReport(report, at) {
			s.reassembler.HandleEvent(ev)
		}
	}

	if len(scans) != 1 {
		t.Fatalf("Expected 1 completed barcode, got %d", len(scans))
	}
	if scans[0] != "123" {
		t.Errorf("Expected barcode '123', got %q", scans[0])
	}
}
