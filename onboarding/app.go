package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimte/sagamate-go/flowlog"
	"github.com/glimte/sagamate-go/messaging"
	"github.com/glimte/sagamate-go/saga"
	"github.com/glimte/sagamate-go/timeout"
)

// Endpoint names of the onboarding deployment
const (
	EndpointCRM                 = "crm"
	EndpointCreditCheck         = "caf"
	EndpointLegalCheck          = "legal"
	EndpointCustomerInformation = "dcc"
)

// StoreProvider supplies the persistence backing the deployment. Saga and
// timeout stores are scoped per endpoint so each service owns its own state.
type StoreProvider interface {
	SagaStore(endpoint string) (saga.Store, error)
	TimeoutStore(endpoint string) (timeout.Store, error)
	SubscriptionStore() (messaging.SubscriptionStore, error)
}

// MemoryStores is the default StoreProvider: everything in process memory.
// Swap in the sqlite-backed stores for a durable deployment.
type MemoryStores struct{}

// SagaStore returns a fresh in-memory saga store
func (MemoryStores) SagaStore(endpoint string) (saga.Store, error) {
	return saga.NewInMemoryStore(), nil
}

// TimeoutStore returns a fresh in-memory timeout store
func (MemoryStores) TimeoutStore(endpoint string) (timeout.Store, error) {
	return timeout.NewInMemoryStore(), nil
}

// SubscriptionStore returns a fresh in-memory subscription store
func (MemoryStores) SubscriptionStore() (messaging.SubscriptionStore, error) {
	return messaging.NewInMemorySubscriptionStore(), nil
}

// serviceEndpoint bundles everything one saga-hosting endpoint runs
type serviceEndpoint struct {
	name      string
	process   *messaging.ServiceProcess
	timeouts  *timeout.Service
	sagaStore saga.Store
}

// App is the explicitly wired onboarding deployment. Construction builds the
// full object graph; Start and Stop control the background machinery.
type App struct {
	transport    messaging.Transport
	router       *messaging.Router
	flow         flowlog.FlowLog
	logger       *slog.Logger
	checkDelay   time.Duration
	pollInterval time.Duration
	stores       StoreProvider

	endpoints []*serviceEndpoint
	dccStore  saga.Store

	mu      sync.Mutex
	started bool
}

// AppOption configures the App
type AppOption func(*App)

// WithAppLogger sets the logger shared by all components
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithFlowLog sets the flow log observed by the sagas
func WithFlowLog(flow flowlog.FlowLog) AppOption {
	return func(a *App) {
		a.flow = flow
	}
}

// WithCheckDelay sets the simulated duration of the credit and legal checks
func WithCheckDelay(delay time.Duration) AppOption {
	return func(a *App) {
		if delay > 0 {
			a.checkDelay = delay
		}
	}
}

// WithTimeoutPollInterval sets the scan interval of the timeout services
func WithTimeoutPollInterval(interval time.Duration) AppOption {
	return func(a *App) {
		if interval > 0 {
			a.pollInterval = interval
		}
	}
}

// WithStores sets the persistence provider
func WithStores(stores StoreProvider) AppOption {
	return func(a *App) {
		a.stores = stores
	}
}

// NewApp wires the onboarding deployment over a transport
func NewApp(transport messaging.Transport, options ...AppOption) (*App, error) {
	a := &App{
		transport:    transport,
		flow:         flowlog.NopFlowLog{},
		logger:       slog.Default(),
		checkDelay:   250 * time.Millisecond,
		pollInterval: 50 * time.Millisecond,
		stores:       MemoryStores{},
	}

	for _, opt := range options {
		opt(a)
	}

	RegisterMessageTypes()

	subscriptions, err := a.stores.SubscriptionStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription store: %w", err)
	}
	a.router = messaging.NewRouter(subscriptions, transport, messaging.WithRouterLogger(a.logger))

	caf, err := a.buildEndpoint(EndpointCreditCheck, NewCheckCreditSaga(a.checkDelay, a.flow).Registration())
	if err != nil {
		return nil, err
	}
	legal, err := a.buildEndpoint(EndpointLegalCheck, NewCheckLegalSaga(a.checkDelay, a.flow).Registration())
	if err != nil {
		return nil, err
	}
	dcc, err := a.buildEndpoint(EndpointCustomerInformation, NewCustomerInformationSaga(a.flow).Registration())
	if err != nil {
		return nil, err
	}

	a.endpoints = []*serviceEndpoint{caf, legal, dcc}
	a.dccStore = dcc.sagaStore

	return a, nil
}

// buildEndpoint assembles one saga-hosting endpoint: store, timeout service,
// runtime, dispatcher, and the service process pulling from the transport
func (a *App) buildEndpoint(name string, reg *saga.Registration) (*serviceEndpoint, error) {
	sagaStore, err := a.stores.SagaStore(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create saga store for %s: %w", name, err)
	}
	timeoutStore, err := a.stores.TimeoutStore(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create timeout store for %s: %w", name, err)
	}

	dispatcher := messaging.NewMessageDispatcher(
		messaging.WithDispatcherLogger(a.logger),
		messaging.WithMiddleware(messaging.LoggingMiddleware(a.logger)),
	)

	// due timeout replies join the same dispatch path as transport deliveries
	timeouts := timeout.NewService(timeoutStore,
		func(ctx context.Context, reply *timeout.Reply) error {
			return dispatcher.Dispatch(ctx, reply)
		},
		timeout.WithPollInterval(a.pollInterval),
		timeout.WithServiceLogger(a.logger),
	)

	runtime := saga.NewRuntime(sagaStore, a.router,
		saga.WithTimeoutScheduler(timeouts),
		saga.WithRuntimeLogger(a.logger),
	)
	if err := runtime.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register saga on %s: %w", name, err)
	}

	for _, messageType := range runtime.MessageTypes() {
		if err := dispatcher.RegisterHandler(messageType, runtime); err != nil {
			return nil, fmt.Errorf("failed to register handler on %s: %w", name, err)
		}
	}

	process := messaging.NewServiceProcess(name, a.transport, dispatcher,
		messaging.WithProcessLogger(a.logger))

	return &serviceEndpoint{
		name:      name,
		process:   process,
		timeouts:  timeouts,
		sagaStore: sagaStore,
	}, nil
}

// Start registers the subscriptions and brings every endpoint online
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("onboarding app already started")
	}

	subscriptions := map[string][]string{
		EndpointCreditCheck: {CustomerCreatedMessageType},
		EndpointLegalCheck:  {CustomerCreatedMessageType},
		EndpointCustomerInformation: {
			CustomerCreatedMessageType,
			CustomerCreditCheckCompleteMessageType,
			CustomerLegallyApprovedMessageType,
		},
	}
	for endpoint, types := range subscriptions {
		for _, messageType := range types {
			if err := a.router.Subscribe(ctx, endpoint, messageType); err != nil {
				return fmt.Errorf("failed to subscribe %s to %s: %w", endpoint, messageType, err)
			}
		}
	}

	for _, ep := range a.endpoints {
		if err := ep.process.Start(ctx); err != nil {
			return fmt.Errorf("failed to start endpoint %s: %w", ep.name, err)
		}
		if err := ep.timeouts.Start(); err != nil {
			return fmt.Errorf("failed to start timeout service for %s: %w", ep.name, err)
		}
	}

	a.started = true
	a.logger.Info("onboarding app started", "endpoints", len(a.endpoints))
	return nil
}

// Stop shuts the deployment down: timeout services first so no new replies
// enter the dispatchers, then the service processes drain their workers
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	var failures []error
	for _, ep := range a.endpoints {
		ep.timeouts.Stop()
	}
	for _, ep := range a.endpoints {
		if err := ep.process.Stop(ctx); err != nil {
			failures = append(failures, err)
		}
	}

	a.logger.Info("onboarding app stopped")
	return errors.Join(failures...)
}

// Router exposes the publish/subscribe router, the crm side of the deployment
func (a *App) Router() *messaging.Router {
	return a.router
}

// FlowLog exposes the flow log the sagas write to
func (a *App) FlowLog() flowlog.FlowLog {
	return a.flow
}

// CreateCustomer publishes a CustomerCreated event on behalf of the crm
// endpoint and returns the new customer id
func (a *App) CreateCustomer(ctx context.Context, name string) (string, error) {
	event := NewCustomerCreated(uuid.New().String(), name)
	a.flow.Append(event.CustomerID, "customer created: %s", name)

	if err := a.router.Publish(ctx, event); err != nil {
		return "", fmt.Errorf("failed to publish customer created: %w", err)
	}

	return event.CustomerID, nil
}

// OnboardingStatus summarizes one customer's consolidated record
type OnboardingStatus struct {
	CustomerID     string
	Name           string
	CreditComplete bool
	LegalComplete  bool
	Completed      bool
}

// Statuses reads every consolidated record from the dcc endpoint, completed
// ones included
func (a *App) Statuses(ctx context.Context) ([]OnboardingStatus, error) {
	instances, err := a.dccStore.List(ctx, customerInformationSagaType)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer records: %w", err)
	}

	statuses := make([]OnboardingStatus, 0, len(instances))
	for _, instance := range instances {
		var data CustomerInformationData
		if err := json.Unmarshal(instance.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode customer record %s: %w", instance.ID, err)
		}
		statuses = append(statuses, OnboardingStatus{
			CustomerID:     data.CustomerID,
			Name:           data.Name,
			CreditComplete: data.CreditStatus.Complete,
			LegalComplete:  data.LegalStatus.Complete,
			Completed:      instance.Completed,
		})
	}

	return statuses, nil
}
