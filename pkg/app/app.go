package app

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
	"github.com/scanlaunch/scanlaunch/pkg/dispatch"
	"github.com/scanlaunch/scanlaunch/pkg/intercept"
	"github.com/scanlaunch/scanlaunch/pkg/mqtt"
	"github.com/scanlaunch/scanlaunch/pkg/scanner"
)

// Application wires the capture engine together: input sources, the
// interception hook, the URL dispatcher and the optional MQTT feed.
type Application struct {
	config   *config.Config
	logger   *logrus.Logger
	version  string
	services *ServiceManager
	handlers *EventHandlers

	mqttClient       *mqtt.Client
	interceptGranted bool
}

func NewApplication(cfg *config.Config, logger *logrus.Logger, version string) *Application {
	app := &Application{
		config:  cfg,
		logger:  logger,
		version: version,
	}

	app.services = NewServiceManager(logger)
	app.handlers = NewEventHandlers(logger)

	return app
}

// Initialize builds and registers all services. Registration order is
// also shutdown ordering (reversed): the interception hook goes last
// so it is the first thing disabled on stop.
func (app *Application) Initialize() error {
	app.logger.Info("Initializing application components...")

	if app.config.MQTT.Enabled {
		app.mqttClient = mqtt.NewClient(&app.config.MQTT, app.logger)
		app.services.Register("mqtt", app.mqttClient)
	}

	dispatcher := dispatch.NewDispatcher(&app.config.Dispatcher, app.logger)
	app.services.Register("dispatch", dispatcher)

	scannerManager := scanner.NewScannerManagerFromMap(app.config.Scanners, app.logger)
	scannerManager.SetReconnectDelay(5 * time.Second)
	app.services.Register("scanner", scannerManager)

	app.handlers.SetupHandlers(scannerManager, dispatcher, app.mqttClient)

	app.setupInterception()

	return nil
}

// setupInterception requests the elevated input permission and, when
// granted, registers the system-wide hook. Denial is a normal state:
// the engine degrades to observe-only and says so, loudly.
func (app *Application) setupInterception() {
	if !app.config.Intercept.Enabled {
		app.logger.Info("Interception disabled by configuration; running observe-only")
		return
	}

	sharedCfg := app.firstSharedScanner()
	if sharedCfg == nil {
		app.logger.Debug("All scanners run in exclusive mode; no interception hook needed")
		return
	}

	capability, err := intercept.RequestPermission()
	if err != nil {
		app.logger.WithError(err).Warn(
			"Input interception permission not granted: barcodes will still dispatch, " +
				"but scanner keystrokes WILL reach other applications (observe-only mode)")
		return
	}

	hook := intercept.NewHook(
		capability,
		sharedCfg.ScanTimeout(),
		sharedCfg.SuppressClearDelay(),
		app.logger,
	)
	app.services.Register("intercept", hook)
	app.interceptGranted = true
}

func (app *Application) firstSharedScanner() *config.ScannerConfig {
	for _, cfg := range app.config.Scanners {
		if strings.ToLower(cfg.Mode) == "shared" {
			return &cfg
		}
	}
	return nil
}

// InterceptionGranted exposes the permission state for the surrounding
// UI; a prompt flow would call intercept.RequestPermission again after
// the user granted access.
func (app *Application) InterceptionGranted() bool {
	return app.interceptGranted
}

func (app *Application) Start() error {
	if err := app.services.StartAll(); err != nil {
		return err
	}

	if app.mqttClient != nil {
		if err := app.mqttClient.PublishInterceptState(app.interceptGranted); err != nil {
			app.logger.WithError(err).Debug("Failed to publish interception state")
		}
	}
	return nil
}

func (app *Application) Stop() error {
	return app.services.StopAll()
}
