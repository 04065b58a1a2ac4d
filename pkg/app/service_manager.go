package app

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Service is anything with a lifecycle the application manages.
type Service interface {
	Start() error
	Stop() error
}

// ServiceManager starts services in registration order and stops them
// in reverse. Registration order matters: the interception hook is
// registered last so it is disabled first on shutdown, before the
// monitoring channels it shadows are torn down.
type ServiceManager struct {
	services map[string]Service
	order    []string
	logger   *logrus.Logger
}

func NewServiceManager(logger *logrus.Logger) *ServiceManager {
	return &ServiceManager{
		services: make(map[string]Service),
		logger:   logger,
	}
}

func (sm *ServiceManager) Register(name string, service Service) {
	sm.services[name] = service
	sm.order = append(sm.order, name)
	sm.logger.WithField("service", name).Debug("Service registered")
}

func (sm *ServiceManager) Get(name string) Service {
	return sm.services[name]
}

func (sm *ServiceManager) StartAll() error {
	sm.logger.Info("Starting application services...")

	for _, name := range sm.order {
		logger := sm.logger.WithField("service", name)
		logger.Debug("Starting service")
		if err := sm.services[name].Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}
		logger.Debug("Service started")
	}

	sm.logger.Info("All services started successfully")
	return nil
}

func (sm *ServiceManager) StopAll() error {
	sm.logger.Info("Stopping application services...")

	for i := len(sm.order) - 1; i >= 0; i-- {
		name := sm.order[i]
		logger := sm.logger.WithField("service", name)
		logger.Debug("Stopping service")
		if err := sm.services[name].Stop(); err != nil {
			logger.WithError(err).Error("Failed to stop service")
		} else {
			logger.Debug("Service stopped")
		}
	}

	sm.logger.Info("All services stopped")
	return nil
}
