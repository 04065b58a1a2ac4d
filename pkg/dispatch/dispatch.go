package dispatch

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
)

const barcodePlaceholder = "{barcode}"

// Dispatcher turns completed barcodes into browser launches. Dispatch
// is a non-blocking handoff to a worker goroutine: a slow or failing
// browser launch can never stall the event-delivery path, and a launch
// failure is logged without touching engine state.
type Dispatcher struct {
	template string
	browser  string
	logger   *logrus.Logger

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup

	// launch is swapped out in tests.
	launch func(url string) error
}

// NewDispatcher creates a dispatcher from config. The URL template is
// assumed validated (contains one {barcode} placeholder).
func NewDispatcher(cfg *config.DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		template: cfg.URLTemplate,
		browser:  cfg.Browser,
		logger:   logger,
		queue:    make(chan string, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
	d.launch = d.openBrowser
	return d
}

// Start launches the dispatch worker (implements the Service interface).
func (d *Dispatcher) Start() error {
	d.wg.Add(1)
	go d.worker()
	d.logger.Debug("Dispatcher started")
	return nil
}

// Stop drains no further work and waits for the worker to exit.
func (d *Dispatcher) Stop() error {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Debug("Dispatcher stopped")
	return nil
}

// Dispatch queues a completed barcode for URL launch. Never blocks: if
// the queue is full the barcode is dropped and logged, since by then
// the engine has already cleared its buffer and must stay responsive.
func (d *Dispatcher) Dispatch(barcode string) {
	select {
	case d.queue <- barcode:
	default:
		d.logger.Warnf("Dispatch queue full, dropping barcode (%d chars)", len(barcode))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case barcode := <-d.queue:
			d.dispatchOne(barcode)
		}
	}
}

func (d *Dispatcher) dispatchOne(barcode string) {
	target := d.BuildURL(barcode)

	if err := d.launch(target); err != nil {
		d.logger.WithError(err).Errorf("Failed to open URL for barcode (%d chars)", len(barcode))
		return
	}

	d.logger.WithFields(logrus.Fields{
		"barcode": barcode,
		"url":     target,
	}).Info("Opened URL for barcode")
}

// BuildURL percent-encodes the barcode and substitutes it into the
// configured template.
func (d *Dispatcher) BuildURL(barcode string) string {
	return strings.ReplaceAll(d.template, barcodePlaceholder, url.QueryEscape(barcode))
}

// openBrowser launches the configured browser, or the platform opener
// when none is configured. The command is started, not waited on; the
// browser owns its own lifetime.
func (d *Dispatcher) openBrowser(target string) error {
	command := d.browser
	if command == "" {
		command = "xdg-open"
	}

	cmd := exec.Command(command, target) // #nosec G204 - command comes from local config
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch browser '%s': %w", command, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			d.logger.Debugf("Browser process exited with error: %v", err)
		}
	}()

	return nil
}
