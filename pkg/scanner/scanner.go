package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karalabe/hid"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
	"github.com/scanlaunch/scanlaunch/pkg/engine"
)

const (
	// HID usage pair identifying a keyboard-class device, used by the
	// matcher when no vendor/product pair is configured.
	usagePageGenericDesktop = 0x01
	usageKeyboard           = 0x06

	// Boot keyboard reports carry up to six concurrent key codes.
	reportKeySlots = 6
)

// BarcodeScanner attaches to one USB HID barcode scanner and feeds its
// keystroke bursts through the reassembly engine. In shared mode it
// opens a non-exclusive monitoring channel via the HID subsystem; in
// exclusive mode it claims the underlying input device so no other
// application ever sees the events.
type BarcodeScanner struct {
	id    string
	ident config.ScannerIdentification
	mode  string

	device     *hid.Device
	deviceInfo *hid.DeviceInfo
	connected  int32 // atomic

	reconnectDelay time.Duration
	logger         *logrus.Logger

	onScan             func(string)
	onConnectionChange func(bool)

	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.RWMutex

	reassembler *engine.Reassembler

	// heldKeys tracks which usage codes were down in the previous
	// report so press and release phases can be synthesized. Owned by
	// the read loop goroutine.
	heldKeys map[uint16]struct{}

	// exclusive-mode state, nil in shared mode
	grab *exclusiveSource
}

// NewBarcodeScanner creates a scanner from its configuration. The
// engine timings come from config; zero values select the defaults.
func NewBarcodeScanner(cfg *config.ScannerConfig, logger *logrus.Logger) *BarcodeScanner {
	ctx, cancel := context.WithCancel(context.Background())

	s := &BarcodeScanner{
		id:             cfg.ID,
		ident:          cfg.Identification,
		mode:           strings.ToLower(cfg.Mode),
		logger:         logger,
		reconnectDelay: time.Second,
		ctx:            ctx,
		cancel:         cancel,
		heldKeys:       make(map[uint16]struct{}),
	}

	s.reassembler = engine.NewReassembler(cfg.ScanTimeout(), logger)
	s.reassembler.SetOnScanCallback(func(barcode string) {
		if s.onScan != nil {
			s.onScan(barcode)
		}
	})

	if s.mode == "exclusive" {
		s.grab = newExclusiveSource(cfg.Identification, logger)
	}

	return s
}

// SetOnScanCallback sets the callback invoked with each completed
// barcode. Must be set before Start.
func (s *BarcodeScanner) SetOnScanCallback(callback func(string)) {
	s.mutex.Lock()
	s.onScan = callback
	s.mutex.Unlock()
}

// SetOnConnectionChangeCallback sets the callback invoked when the
// device connects or disconnects.
func (s *BarcodeScanner) SetOnConnectionChangeCallback(callback func(bool)) {
	s.mutex.Lock()
	s.onConnectionChange = callback
	s.mutex.Unlock()
}

// Start begins listening for scans with automatic reconnection.
func (s *BarcodeScanner) Start() error {
	if !s.ident.Configured() {
		s.logger.Warnf("Scanner %s: no vendor/product pair configured, "+
			"matching all keyboard-class devices (exclusive targeting unavailable)", s.id)
	}

	go s.connectionManager()
	s.logger.Infof("Scanner %s started in %s mode", s.id, s.mode)
	return nil
}

// Stop stops the scanner and releases the device.
func (s *BarcodeScanner) Stop() error {
	s.cancel()

	s.mutex.Lock()
	device := s.device
	s.device = nil
	s.deviceInfo = nil
	atomic.StoreInt32(&s.connected, 0)
	s.mutex.Unlock()

	if device != nil {
		if err := device.Close(); err != nil {
			s.logger.Warnf("Error closing device: %v", err)
		}
	}

	if s.grab != nil {
		s.grab.release()
	}

	s.logger.Infof("Scanner %s stopped", s.id)
	return nil
}

// IsConnected reports whether the scanner device is currently attached.
func (s *BarcodeScanner) IsConnected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

// ConnectedDeviceInfo returns info about the attached device, or nil.
// Shared mode only; exclusive mode identifies the device by input ID.
func (s *BarcodeScanner) ConnectedDeviceInfo() *hid.DeviceInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.deviceInfo
}

// SetReconnectDelay sets the delay between reconnection attempts.
func (s *BarcodeScanner) SetReconnectDelay(delay time.Duration) {
	s.reconnectDelay = delay
}

// MatchesDevice implements the device matcher: a configured pair
// matches exactly (plus serial when required); an unconfigured pair
// falls back to any keyboard-class device.
func (s *BarcodeScanner) MatchesDevice(info *hid.DeviceInfo) bool {
	if s.ident.Configured() {
		if info.VendorID != s.ident.VendorID || info.ProductID != s.ident.ProductID {
			return false
		}
		if s.ident.Serial != "" {
			return info.Serial == s.ident.Serial
		}
		return true
	}

	// Discovery mode. Some platforms do not report usage information;
	// an unreported usage pair is accepted rather than dropping every
	// device.
	if info.UsagePage == 0 && info.Usage == 0 {
		return true
	}
	return info.UsagePage == usagePageGenericDesktop && info.Usage == usageKeyboard
}

// connectionManager keeps the device attached, reconnecting on failure
// until the scanner is stopped. A failed open is never fatal; the
// device stays inactive until it reappears.
func (s *BarcodeScanner) connectionManager() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if s.mode == "exclusive" {
				if s.grab.acquire(s.ctx) {
					s.setConnected(true)
					s.grab.run(s.ctx, s.reassembler, s.handleReadError)
					s.setConnected(false)
				}
			} else {
				if s.tryConnect() {
					s.runReadLoop()
				}
			}

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
		}
	}
}

func (s *BarcodeScanner) handleReadError(err error) {
	s.logger.Debugf("Scanner %s read error: %v", s.id, err)
}

func (s *BarcodeScanner) findAndOpenDevice() (*hid.Device, *hid.DeviceInfo, error) {
	var candidates []hid.DeviceInfo
	if s.ident.Configured() {
		candidates = hid.Enumerate(s.ident.VendorID, s.ident.ProductID)
	} else {
		candidates = hid.Enumerate(0, 0)
	}

	var openErr error
	for _, deviceInfo := range candidates {
		if !s.MatchesDevice(&deviceInfo) {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			openErr = fmt.Errorf("%w: %s: %v", ErrDeviceOpenFailed, deviceInfo.Path, err)
			continue // try next candidate
		}

		info := deviceInfo
		info.Manufacturer = strings.TrimSpace(info.Manufacturer)
		info.Product = strings.TrimSpace(info.Product)
		info.Serial = strings.TrimSpace(info.Serial)
		return device, &info, nil
	}

	if openErr != nil {
		return nil, nil, openErr
	}
	if s.ident.Configured() {
		return nil, nil, fmt.Errorf("%w: %04x:%04x", ErrNoMatchingDevice, s.ident.VendorID, s.ident.ProductID)
	}
	return nil, nil, fmt.Errorf("%w: no keyboard-class devices found", ErrNoMatchingDevice)
}

func (s *BarcodeScanner) tryConnect() bool {
	device, deviceInfo, err := s.findAndOpenDevice()
	if err != nil {
		s.logger.Debugf("Scanner %s: %v", s.id, err)
		return false
	}

	s.mutex.Lock()
	s.device = device
	s.deviceInfo = deviceInfo
	s.mutex.Unlock()

	s.setConnected(true)
	s.logger.Infof("Scanner %s connected to %04x:%04x (%s)",
		s.id, deviceInfo.VendorID, deviceInfo.ProductID, deviceInfo.Product)
	return true
}

func (s *BarcodeScanner) disconnect() {
	s.mutex.Lock()
	device := s.device
	s.device = nil
	s.deviceInfo = nil
	s.mutex.Unlock()

	if device != nil {
		if err := device.Close(); err != nil {
			s.logger.Debugf("Error closing device: %v", err)
		}
	}

	s.setConnected(false)
	s.logger.Infof("Scanner %s disconnected", s.id)
}

func (s *BarcodeScanner) setConnected(connected bool) {
	var v int32
	if connected {
		v = 1
	}
	if atomic.SwapInt32(&s.connected, v) == v {
		return
	}

	s.mutex.RLock()
	callback := s.onConnectionChange
	s.mutex.RUnlock()

	if callback != nil {
		callback(connected)
	}
}

// runReadLoop drives the monitoring channel. Raw reports arrive on a
// channel from the blocking read goroutine; the ticker keeps the
// engine's inactivity timeout honest when the scanner goes quiet.
// All engine mutation happens here, on this single goroutine.
func (s *BarcodeScanner) runReadLoop() {
	const tickerInterval = 10 * time.Millisecond

	timeoutTicker := time.NewTicker(tickerInterval)
	defer timeoutTicker.Stop()

	dataChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)

	go s.hidReadGoroutine(dataChan, errorChan)

	for k := range s.heldKeys {
		delete(s.heldKeys, k)
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-timeoutTicker.C:
			s.reassembler.CheckTimeout(time.Now())

		case data := <-dataChan:
			for _, ev := range s.parseReport(data, time.Now()) {
				s.reassembler.HandleEvent(ev)
			}

		case err := <-errorChan:
			s.logger.Debugf("HID read error: %v", err)
			s.disconnect()
			return
		}
	}
}

func (s *BarcodeScanner) hidReadGoroutine(dataChan chan<- []byte, errorChan chan<- error) {
	buffer := make([]byte, 64)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			s.mutex.RLock()
			device := s.device
			s.mutex.RUnlock()

			if device == nil {
				errorChan <- ErrScannerStopped
				return
			}

			n, err := device.Read(buffer)
			if err != nil {
				if strings.Contains(err.Error(), "timeout") {
					continue
				}
				errorChan <- err
				return
			}

			if n > 0 {
				data := make([]byte, n)
				copy(data, buffer[:n])
				dataChan <- data
			}
		}
	}
}

// parseReport converts one boot keyboard report into phased key events
// by diffing against the previously held keys. A key present in this
// report but not the last is a press; one that disappeared is a
// release. Key-repeat reports therefore produce no events at all.
func (s *BarcodeScanner) parseReport(data []byte, now time.Time) []engine.KeyEvent {
	if len(data) < 3 {
		return nil
	}

	// Report layout: [modifier, reserved, key1..key6]. A report whose
	// key slots are all 0x01 signals phantom rollover and is dropped.
	end := len(data)
	if end > 2+reportKeySlots {
		end = 2 + reportKeySlots
	}

	current := make(map[uint16]struct{}, reportKeySlots)
	rollover := true
	for i := 2; i < end; i++ {
		if data[i] != 0x01 {
			rollover = false
		}
		if data[i] != 0 {
			current[uint16(data[i])] = struct{}{}
		}
	}
	if rollover && end > 2 {
		return nil
	}

	var events []engine.KeyEvent
	for i := 2; i < end; i++ {
		usage := uint16(data[i])
		if usage == 0 {
			continue
		}
		if _, held := s.heldKeys[usage]; !held {
			events = append(events, engine.KeyEvent{Usage: usage, Phase: engine.Pressed, Time: now})
		}
	}

	for usage := range s.heldKeys {
		if _, still := current[usage]; !still {
			events = append(events, engine.KeyEvent{Usage: usage, Phase: engine.Released, Time: now})
		}
	}

	s.heldKeys = current
	return events
}

// ListAllDevices returns every attached HID device, for scanner
// discovery. Read-only; no state is touched.
func ListAllDevices() []hid.DeviceInfo {
	return hid.Enumerate(0, 0)
}
