// Package servicemanager runs the node's long lived services under one
// errgroup, starting them in registration order and stopping them in
// reverse.
package servicemanager

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util/health"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const (
	startTimeout = 5 * time.Second
	stopTimeout  = 5 * time.Second
)

// Service is a long running component managed by the ServiceManager. Start
// must close or signal readyCh once the service accepts work, and block until
// ctx is cancelled.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context, readyCh chan<- struct{}) error
	Stop(ctx context.Context) error
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
}

type managedService struct {
	name     string
	instance Service
	readyCh  chan struct{}
	started  chan struct{}
}

var (
	listenersMu sync.RWMutex
	listeners   []string
)

// ServiceManager owns the shared context of every service it runs. Ctx is
// cancelled on SIGINT, SIGTERM, ForceShutdown or the first failing Start.
type ServiceManager struct {
	Ctx context.Context

	logger     ulogger.Logger
	cancelFunc context.CancelFunc
	g          *errgroup.Group

	mu       sync.Mutex
	services []*managedService
}

func NewServiceManager(ctx context.Context, logger ulogger.Logger) *ServiceManager {
	ctx, cancelFunc := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	sm := &ServiceManager{
		Ctx:        ctx,
		logger:     logger,
		cancelFunc: cancelFunc,
		g:          g,
	}

	go sm.handleSignals()

	return sm
}

func (sm *ServiceManager) handleSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		sm.logger.Infof("received %s, stopping services", sig)
		sm.cancelFunc()
	case <-sm.Ctx.Done():
	}
}

// AddListenerInfo records a listener description for the /services endpoint.
func AddListenerInfo(name string) {
	listenersMu.Lock()
	defer listenersMu.Unlock()

	listeners = append(listeners, name)
}

// GetListenerInfos returns the recorded listeners sorted by name.
func GetListenerInfos() []string {
	listenersMu.RLock()
	defer listenersMu.RUnlock()

	return slices.Sorted(slices.Values(listeners))
}

// RegisterHandlers adds /health and /services to e. /health?liveness skips
// the dependency checks of each service.
func (sm *ServiceManager) RegisterHandlers(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		status, details, err := sm.HealthHandler(c.Request().Context(), c.QueryParams().Has("liveness"))
		if err != nil {
			sm.logger.Warnf("health check failed: %v", err)
		}

		return c.Blob(status, echo.MIMEApplicationJSON, []byte(details))
	})

	e.GET("/services", func(c echo.Context) error {
		return c.JSON(http.StatusOK, GetListenerInfos())
	})
}

// AddService initialises service and schedules its Start once the service
// registered before it has started.
func (sm *ServiceManager) AddService(name string, service Service) error {
	ms := &managedService{
		name:     name,
		instance: service,
		readyCh:  make(chan struct{}, 1),
		started:  make(chan struct{}),
	}

	sm.mu.Lock()

	var previous *managedService
	if len(sm.services) > 0 {
		previous = sm.services[len(sm.services)-1]
	}

	sm.services = append(sm.services, ms)
	sm.mu.Unlock()

	sm.logger.Infof("[%s] initializing", name)

	if err := service.Init(sm.Ctx); err != nil {
		return err
	}

	sm.g.Go(func() error {
		if previous != nil {
			if err := sm.waitForStart(ms, previous); err != nil {
				return err
			}
		}

		close(ms.started)

		sm.logger.Infof("[%s] starting", name)

		if err := service.Start(sm.Ctx, ms.readyCh); err != nil {
			sm.logger.Errorf("[%s] failed to start: %v", name, err)
			return err
		}

		return nil
	})

	return nil
}

func (sm *ServiceManager) waitForStart(ms, previous *managedService) error {
	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	select {
	case <-previous.started:
		return nil
	case <-sm.Ctx.Done():
		return sm.Ctx.Err()
	case <-timer.C:
		return errors.NewServiceError("[%s] timed out waiting for %s to start", ms.name, previous.name)
	}
}

// WaitForServiceToBeReady blocks until every registered service has signalled
// readiness or the manager is shutting down.
func (sm *ServiceManager) WaitForServiceToBeReady() {
	sm.mu.Lock()
	services := slices.Clone(sm.services)
	sm.mu.Unlock()

	for _, ms := range services {
		select {
		case <-ms.readyCh:
			sm.logger.Infof("[%s] ready", ms.name)
		case <-sm.Ctx.Done():
			return
		}
	}
}

// ForceShutdown cancels the shared context. Wait then stops every service.
func (sm *ServiceManager) ForceShutdown() {
	sm.cancelFunc()
}

// Wait blocks until every Start returned, then calls Stop in reverse
// registration order. A cancelled context is a clean shutdown.
func (sm *ServiceManager) Wait() error {
	err := sm.g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		sm.logger.Errorf("service failed: %v", err)
	}

	sm.cancelFunc()

	sm.mu.Lock()
	services := slices.Clone(sm.services)
	sm.mu.Unlock()

	for _, ms := range slices.Backward(services) {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)

		if stopErr := ms.instance.Stop(stopCtx); stopErr != nil {
			sm.logger.Warnf("[%s] failed to stop: %v", ms.name, stopErr)
		} else {
			sm.logger.Infof("[%s] stopped", ms.name)
		}

		stopCancel()
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// HealthHandler combines the health of every service. With checkLiveness
// only the services themselves are asked, not their dependencies.
func (sm *ServiceManager) HealthHandler(ctx context.Context, checkLiveness bool) (int, string, error) {
	sm.mu.Lock()
	services := slices.Clone(sm.services)
	sm.mu.Unlock()

	checks := make([]health.Check, 0, len(services))
	for _, ms := range services {
		checks = append(checks, health.Check{Name: ms.name, Check: ms.instance.Health})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}
