// Package orchestrator runs one lifecycle instance per account: it logs the
// account on, keeps its session alive and persisted, retries by failure class
// and triggers inventory refreshes once the account is online.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/logging"
	"botfleet-api/internal/metrics"
	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/repository"
	"botfleet-api/internal/service"
	"botfleet-api/internal/twofactor"

	"github.com/charmbracelet/log"
)

// Store is the part of the persistent store the orchestrator uses.
type Store interface {
	repository.AccountRepository
	repository.SessionRepository
}

// InventoryRefresher refreshes an account's inventory once it is online.
type InventoryRefresher interface {
	Refresh(ctx context.Context, req service.RefreshRequest) (*service.RefreshResult, error)
}

// Deps are the collaborators of an Orchestrator. Codes, Inventory, Metrics
// and Logger are optional.
type Deps struct {
	Store     Store
	Client    platform.Client
	Codes     twofactor.Generator
	Inventory InventoryRefresher
	Bus       events.Publisher
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// Orchestrator owns the registry of lifecycle instances keyed by username.
type Orchestrator struct {
	store     Store
	client    platform.Client
	codes     twofactor.Generator
	inventory InventoryRefresher
	bus       events.Publisher
	metrics   *metrics.Metrics
	config    Config
	logger    *log.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	instances map[string]*instance
}

// New creates an orchestrator. Instances outlive the requests that start them
// and are bound to the orchestrator until StopAll.
func New(deps Deps, config Config) *Orchestrator {
	if deps.Codes == nil {
		deps.Codes = twofactor.NewTOTP()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus(deps.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     deps.Store,
		client:    deps.Client,
		codes:     deps.Codes,
		inventory: deps.Inventory,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		config:    config.withDefaults(),
		logger:    logging.Component(deps.Logger, "Orchestrator"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		instances: make(map[string]*instance),
	}
}

// Config returns the effective lifecycle policy.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Start launches the lifecycle of username and returns without waiting for
// the outcome. Only a stopped or failed instance is replaced; any other makes
// it fail with ErrAlreadyRunning, including one whose loop has not begun yet.
func (o *Orchestrator) Start(ctx context.Context, username string) error {
	account, err := o.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := o.ctx.Err(); err != nil {
		return model.ErrNotReady.With("orchestrator is shut down")
	}

	o.mu.Lock()
	old := o.instances[username]
	if old != nil && !old.state().Ended() {
		o.mu.Unlock()
		return model.ErrAlreadyRunning.With("%s is %s", username, old.state())
	}
	inst := newInstance(o, o.ctx, *account)
	o.instances[username] = inst
	o.mu.Unlock()

	if old != nil {
		old.discard(o.config.StopTimeout)
	}
	o.metrics.StateChanged("", string(StateIdle))

	o.logger.Info("starting instance", "account", username)
	go inst.run()
	return nil
}

// Stop forces the instance of username to stopped. Stopping an unknown or
// already stopped account is a no-op.
func (o *Orchestrator) Stop(username string) {
	o.mu.Lock()
	inst := o.instances[username]
	o.mu.Unlock()
	if inst == nil {
		return
	}
	inst.stop(o.config.StopTimeout)
}

// Remove stops the instance and forgets it, for deleted accounts.
func (o *Orchestrator) Remove(username string) {
	o.mu.Lock()
	inst := o.instances[username]
	delete(o.instances, username)
	o.mu.Unlock()
	if inst == nil {
		return
	}
	inst.stop(o.config.StopTimeout)
	o.metrics.StateChanged(string(inst.state()), "")
}

// ForceReauthenticate invalidates the persisted session and restarts the
// lifecycle with fresh credentials.
func (o *Orchestrator) ForceReauthenticate(ctx context.Context, username string) error {
	account, err := o.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return err
	}
	o.logger.Info("forcing re-authentication", "account", username)
	// stop first so a token renewed meanwhile cannot be persisted again
	o.Stop(username)
	if err := o.store.DeleteSession(ctx, account.ID); err != nil {
		return err
	}
	return o.Start(ctx, username)
}

// Query returns the current status of username without blocking on its
// lifecycle. Accounts that were never started report idle.
func (o *Orchestrator) Query(username string) Status {
	o.mu.Lock()
	inst := o.instances[username]
	o.mu.Unlock()
	if inst == nil {
		return Status{Account: username, State: StateIdle}
	}
	return inst.snapshot()
}

// List returns the status of every known instance ordered by account.
func (o *Orchestrator) List() []Status {
	o.mu.Lock()
	out := make([]Status, 0, len(o.instances))
	for _, inst := range o.instances {
		out = append(out, inst.snapshot())
	}
	o.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Account < out[b].Account })
	return out
}

// SubmitCode answers a pending challenge with a manually obtained code.
func (o *Orchestrator) SubmitCode(ctx context.Context, username, code string) error {
	if code == "" {
		return model.ErrInvalidInput.With("code is required")
	}
	o.mu.Lock()
	inst := o.instances[username]
	o.mu.Unlock()
	if inst == nil {
		return model.ErrNotReady.With("%s is not running", username)
	}

	reply := make(chan error, 1)
	select {
	case inst.cmds <- command{code: code, reply: reply}:
	case <-inst.done:
		return model.ErrNotReady.With("%s is not running", username)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns the live platform session of an online account.
func (o *Orchestrator) Session(username string) (platform.Session, error) {
	o.mu.Lock()
	inst := o.instances[username]
	o.mu.Unlock()
	if inst != nil {
		if sess := inst.liveSession(); sess != nil {
			return sess, nil
		}
	}
	return nil, model.ErrNotReady.With("%s has no live session", username)
}

// StopAll stops every instance and refuses further starts.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	list := make([]*instance, 0, len(o.instances))
	for _, inst := range o.instances {
		list = append(list, inst)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range list {
		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			inst.stop(o.config.StopTimeout)
		}(inst)
	}
	wg.Wait()
	o.cancel()
	o.logger.Info("all instances stopped", "count", len(list))
}

var (
	_ service.Starter         = (*Orchestrator)(nil)
	_ service.SessionProvider = (*Orchestrator)(nil)
)
