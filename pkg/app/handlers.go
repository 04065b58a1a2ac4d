package app

import (
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/dispatch"
	"github.com/scanlaunch/scanlaunch/pkg/mqtt"
	"github.com/scanlaunch/scanlaunch/pkg/scanner"
)

// EventHandlers routes engine events to the dispatcher and the
// optional MQTT feed.
type EventHandlers struct {
	logger *logrus.Logger
}

func NewEventHandlers(logger *logrus.Logger) *EventHandlers {
	return &EventHandlers{logger: logger}
}

// SetupHandlers wires the scanner manager's callbacks. mqttClient may
// be nil when the feed is disabled.
func (h *EventHandlers) SetupHandlers(
	scannerManager *scanner.ScannerManager,
	dispatcher *dispatch.Dispatcher,
	mqttClient *mqtt.Client,
) {
	scannerManager.SetOnScanCallback(h.createBarcodeHandler(dispatcher, mqttClient))
	scannerManager.SetOnConnectionChangeCallback(h.createConnectionHandler(mqttClient))
}

func (h *EventHandlers) createBarcodeHandler(
	dispatcher *dispatch.Dispatcher,
	mqttClient *mqtt.Client,
) func(string, string) {
	return func(scannerID, barcode string) {
		logger := h.logger.WithFields(logrus.Fields{
			"scanner_id": scannerID,
			"barcode":    barcode,
			"length":     len(barcode),
		})
		logger.Info("Barcode scanned")

		// Non-blocking: the engine's buffer is already cleared, a slow
		// browser cannot stall event delivery.
		dispatcher.Dispatch(barcode)

		if mqttClient != nil {
			if err := mqttClient.PublishBarcode(scannerID, barcode); err != nil {
				logger.WithError(err).Debug("Failed to publish barcode event")
			}
		}
	}
}

func (h *EventHandlers) createConnectionHandler(mqttClient *mqtt.Client) func(string, bool) {
	return func(scannerID string, connected bool) {
		logger := h.logger.WithField("scanner_id", scannerID)
		if connected {
			logger.Info("Scanner connected")
		} else {
			logger.Info("Scanner disconnected")
		}

		if mqttClient != nil {
			if err := mqttClient.PublishAvailability(scannerID, connected); err != nil {
				logger.WithError(err).Debug("Failed to publish availability")
			}
		}
	}
}
