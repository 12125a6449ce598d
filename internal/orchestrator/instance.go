package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/service"

	"github.com/charmbracelet/log"
)

type command struct {
	code  string
	reply chan error
}

// instance is the lifecycle of one account. Everything below the loop-owned
// marker is touched only by the run goroutine.
type instance struct {
	o        *Orchestrator
	account  model.Account
	username string
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	cmds   chan command

	mu     sync.RWMutex
	status Status
	live   platform.Session

	refreshes sync.WaitGroup
	stopOnce  sync.Once

	// loop-owned
	attempt      int
	sess         platform.Session
	events       <-chan platform.Event
	token        string
	webSession   string
	identity     string
	authTimer    *time.Timer
	retryTimer   *time.Timer
	refreshTimer *time.Timer
	refreshForce bool
	challenged   bool
	terminal     bool
}

func newInstance(o *Orchestrator, parent context.Context, account model.Account) *instance {
	ctx, cancel := context.WithCancel(parent)
	return &instance{
		o:        o,
		account:  account,
		username: account.Username,
		logger:   o.logger.With("account", account.Username),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cmds:     make(chan command),
		status:   Status{Account: account.Username, State: StateIdle, UpdatedAt: o.now()},
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (i *instance) run() {
	defer close(i.done)
	defer i.cancel()
	defer func() {
		stopTimer(&i.authTimer)
		stopTimer(&i.retryTimer)
		stopTimer(&i.refreshTimer)
	}()

	i.attempt = 1
	i.beginAttempt("")

	for !i.terminal {
		select {
		case <-i.ctx.Done():
			return

		case ev, ok := <-i.events:
			if i.ctx.Err() != nil {
				return
			}
			if !ok {
				i.events = nil
				i.onStreamClosed()
				continue
			}
			i.handle(ev)

		case <-timerC(i.authTimer):
			i.authTimer = nil
			if i.ctx.Err() != nil {
				return
			}
			i.onAuthTimeout()

		case <-timerC(i.retryTimer):
			i.retryTimer = nil
			if i.ctx.Err() != nil {
				return
			}
			i.attempt++
			i.beginAttempt("")

		case <-timerC(i.refreshTimer):
			i.refreshTimer = nil
			if i.ctx.Err() != nil {
				return
			}
			i.launchRefresh(i.refreshForce)
			i.refreshForce = false

		case cmd := <-i.cmds:
			cmd.reply <- i.submitCode(cmd.code)
		}
	}

	// failed: release the session, the loop is gone
	i.releaseSession()
}

// beginAttempt logs on with a resume token, credentials and a generated
// code, or credentials and the given manual code.
func (i *instance) beginAttempt(manualCode string) {
	stopTimer(&i.authTimer)
	stopTimer(&i.retryTimer)
	stopTimer(&i.refreshTimer)
	i.refreshForce = false
	i.challenged = false
	i.releaseSession()

	i.updateStatus(func(s *Status) {
		s.Attempt = i.attempt
		s.Challenge = ""
	})
	i.transition(StateAuthenticating, nil)

	opts := i.logOnOptions(manualCode)
	i.logger.Info("logging on", "attempt", i.attempt, "max", i.o.config.MaxAttempts, "resume", opts.Resuming())

	sess, err := i.o.client.NewSession(i.username)
	if err != nil {
		i.onError(asPlatformError(fmt.Errorf("open session: %w", err)))
		return
	}
	i.sess = sess
	i.events = sess.Events()
	i.authTimer = time.NewTimer(i.o.config.AuthTimeout)

	if err := sess.LogOn(i.ctx, opts); err != nil {
		if i.ctx.Err() != nil {
			return
		}
		i.onError(asPlatformError(err))
	}
}

func (i *instance) logOnOptions(manualCode string) platform.LogOnOptions {
	opts := platform.LogOnOptions{AccountName: i.username}

	if manualCode == "" {
		saved, err := i.o.store.GetSession(i.ctx, i.account.ID)
		if err != nil {
			i.logger.Warn("failed to read saved session", "err", err)
		} else if saved.Resumable(i.o.now()) {
			opts.RefreshToken = saved.RefreshToken
			i.token = saved.RefreshToken
			return opts
		}
	}

	opts.Password = i.account.Password
	switch {
	case manualCode != "":
		opts.TwoFactorCode = manualCode
	case i.account.HasTwoFactor():
		code, err := i.o.codes.Code(i.account.SharedSecret, i.o.now())
		if err != nil {
			i.logger.Error("failed to generate two-factor code", "err", err)
		} else {
			opts.TwoFactorCode = code
		}
	}
	return opts
}

func (i *instance) releaseSession() {
	i.setLive(nil)
	if i.sess != nil {
		i.sess.LogOff()
		i.sess = nil
	}
	i.events = nil
}

func (i *instance) handle(ev platform.Event) {
	switch ev.Type {
	case platform.EventLoggedOn:
		i.onLoggedOn(ev)
	case platform.EventWebSession:
		i.onWebSession(ev)
	case platform.EventRefreshToken:
		i.onRefreshToken(ev)
	case platform.EventError:
		perr := ev.Err
		if perr == nil {
			perr = platform.NewError(platform.KindUnknown, "unspecified platform error")
		}
		i.onError(perr)
	case platform.EventChallenge:
		i.onChallenge(ev.Channel)
	case platform.EventDisconnected:
		i.onDisconnected(ev.Reason)
	case platform.EventNewItems:
		i.onNewItems(ev.Count)
	case platform.EventNewOffer:
		i.logger.Info("new exchange offer", "offer", ev.OfferID)
		i.o.bus.Publish(events.NewOffer(i.username, ev.OfferID))
	default:
		i.logger.Debug("ignoring platform event", "type", ev.Type)
	}
}

func (i *instance) onLoggedOn(ev platform.Event) {
	if ev.Identity != "" {
		i.identity = ev.Identity
	} else if id := i.sess.Identity(); id != "" {
		i.identity = id
	}
	i.updateStatus(func(s *Status) { s.Identity = i.identity })

	if i.state() == StateOnline {
		return
	}
	i.logger.Info("logged on, waiting for web session", "identity", i.identity)
	stopTimer(&i.authTimer)
	i.authTimer = time.NewTimer(i.o.config.AuthTimeout)
	i.transition(StateAwaitingSession, nil)
}

func (i *instance) onWebSession(ev platform.Event) {
	stopTimer(&i.authTimer)
	i.webSession = ev.SessionID
	i.attempt = 1

	wasOnline := i.state() == StateOnline
	i.setLive(i.sess)
	i.updateStatus(func(s *Status) {
		s.Attempt = 0
		s.LastError = ""
	})
	if !wasOnline {
		i.o.metrics.AuthAttempt("online")
		i.logger.Info("online")
		i.transition(StateOnline, nil)
	}

	i.persistSession()
	i.scheduleRefresh(i.o.config.SettleDelay, false)
}

func (i *instance) onRefreshToken(ev platform.Event) {
	if ev.RefreshToken == "" {
		return
	}
	i.token = ev.RefreshToken
	i.logger.Info("refresh token renewed")
	i.persistSession()
}

func (i *instance) persistSession() {
	if i.token == "" {
		i.logger.Warn("no refresh token to persist")
		return
	}
	err := i.o.store.SaveSession(i.ctx, &model.Session{
		AccountID:    i.account.ID,
		RefreshToken: i.token,
		WebSessionID: i.webSession,
		Identity:     i.identity,
	})
	if err != nil && i.ctx.Err() == nil {
		i.logger.Error("failed to persist session", "err", err)
	}
}

func (i *instance) deleteSession() {
	i.token = ""
	if err := i.o.store.DeleteSession(i.ctx, i.account.ID); err != nil && i.ctx.Err() == nil {
		i.logger.Error("failed to delete session", "err", err)
	}
}

// onError applies the retry policy to a failed attempt or a failure while
// online. Every recoverable failure publishes its error; a failure on an
// established session also moves the instance to degraded.
func (i *instance) onError(perr *platform.Error) {
	stopTimer(&i.authTimer)
	class := classify(perr.Kind)
	err := classError(class, perr)
	i.o.metrics.AuthAttempt(class.String())

	st := i.state()
	established := st == StateOnline || st == StateDegraded
	if established {
		// a session that was established earns a fresh budget
		i.attempt = 1
		stopTimer(&i.refreshTimer)
		i.setLive(nil)
	}
	i.updateStatus(func(s *Status) { s.LastError = err.Error() })

	switch class {
	case classCredential:
		i.logger.Warn("credentials rejected, discarding saved session", "kind", perr.Kind, "err", perr)
		i.deleteSession()
	case classRateLimited:
		i.logger.Warn("rate limited", "cooldown", i.o.config.RateLimitCooldown)
	case classTransient:
		i.logger.Warn("transient failure", "kind", perr.Kind, "err", perr)
	default:
		i.logger.Error("unrecoverable platform error", "kind", perr.Kind, "err", perr)
		i.publishStatus(err)
		i.fail(err)
		return
	}

	if i.attempt >= i.o.config.MaxAttempts {
		i.logger.Error("max log-on attempts reached", "attempts", i.attempt)
		i.fail(err)
		return
	}

	if established {
		i.transitionWith(StateDegraded, err)
	} else {
		i.publishStatus(err)
	}

	delay := i.o.config.retryDelay(class, i.attempt)
	i.logger.Info("retrying", "in", delay, "next", i.attempt+1)
	stopTimer(&i.retryTimer)
	i.retryTimer = time.NewTimer(delay)
}

func (i *instance) onAuthTimeout() {
	i.logger.Error("log-on timed out", "after", i.o.config.AuthTimeout)
	i.releaseSession()
	i.onError(platform.NewError(platform.KindTimeout, fmt.Sprintf("log-on timed out after %s", i.o.config.AuthTimeout)))
}

func (i *instance) onChallenge(channel string) {
	stopTimer(&i.authTimer)

	if i.account.HasTwoFactor() {
		// the generated code was not accepted
		i.onError(platform.NewError(platform.KindExpired, "two-factor code rejected"))
		return
	}

	if channel == "" {
		channel = "email"
	}
	i.logger.Warn("manual code required", "channel", channel)
	i.o.metrics.AuthAttempt("challenge")
	i.deleteSession()
	i.challenged = true
	i.updateStatus(func(s *Status) { s.Challenge = channel })
	i.o.bus.Publish(events.Challenge(i.username, channel))
}

func (i *instance) submitCode(code string) error {
	if !i.challenged {
		return model.ErrInvalidInput.With("no code requested for %s", i.username)
	}
	i.logger.Info("retrying with manual code")
	i.beginAttempt(code)
	return nil
}

func (i *instance) onDisconnected(reason string) {
	i.logger.Warn("disconnected", "reason", reason)
	if i.state() != StateOnline {
		return
	}

	stopTimer(&i.refreshTimer)
	i.setLive(nil)
	i.transitionWith(StateDegraded, fmt.Errorf("disconnected: %s", reason))

	if i.o.config.ReconnectPolicy == ReconnectReauthenticate {
		i.attempt = 0
		stopTimer(&i.retryTimer)
		i.retryTimer = time.NewTimer(i.o.config.BackoffStep)
	}
}

func (i *instance) onStreamClosed() {
	i.logger.Warn("platform event stream closed")
	if i.state() == StateOnline {
		i.onDisconnected("event stream closed")
	}
}

func (i *instance) onNewItems(count int) {
	i.logger.Info("received new items", "count", count)
	i.o.bus.Publish(events.NewItems(i.username, count))
	if i.state() == StateOnline {
		i.scheduleRefresh(i.o.config.NewItemsDelay, true)
	}
}

// scheduleRefresh arms the refresh timer. A pending forced refresh stays forced.
func (i *instance) scheduleRefresh(delay time.Duration, force bool) {
	i.refreshForce = i.refreshForce || force
	stopTimer(&i.refreshTimer)
	i.refreshTimer = time.NewTimer(delay)
}

// launchRefresh runs the inventory refresh off the loop so a slow listing
// never delays lifecycle transitions.
func (i *instance) launchRefresh(force bool) {
	if i.o.inventory == nil || i.state() != StateOnline {
		return
	}
	sess := i.sess
	i.refreshes.Add(1)
	go func() {
		defer i.refreshes.Done()
		_, err := i.o.inventory.Refresh(i.ctx, service.RefreshRequest{
			Username: i.username,
			Session:  sess,
			Force:    force,
		})
		if err != nil && i.ctx.Err() == nil {
			i.logger.Warn("inventory refresh failed", "err", err)
		}
	}()
}

func (i *instance) fail(err error) {
	stopTimer(&i.authTimer)
	stopTimer(&i.retryTimer)
	stopTimer(&i.refreshTimer)
	i.setLive(nil)
	i.terminal = true
	i.transitionWith(StateFailed, err)
}

// stop tears the instance down and reports stopped exactly once.
func (i *instance) stop(timeout time.Duration) {
	i.stopOnce.Do(func() {
		i.teardown(timeout)
		i.logger.Info("stopped")
		i.transition(StateStopped, nil)
	})
}

// discard tears down a stopped or failed instance that is being replaced.
func (i *instance) discard(timeout time.Duration) {
	i.stopOnce.Do(func() { i.teardown(timeout) })
	i.o.metrics.StateChanged(string(i.state()), "")
}

func (i *instance) teardown(timeout time.Duration) {
	i.cancel()
	<-i.done

	waited := make(chan struct{})
	go func() {
		i.refreshes.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(timeout):
		i.logger.Warn("inventory refresh still running after stop", "timeout", timeout)
	}

	if i.sess != nil {
		i.sess.LogOff()
	}
	i.setLive(nil)
}

func (i *instance) state() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status.State
}

func (i *instance) snapshot() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

func (i *instance) liveSession() platform.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.live
}

func (i *instance) setLive(s platform.Session) {
	i.mu.Lock()
	i.live = s
	i.mu.Unlock()
}

func (i *instance) updateStatus(fn func(s *Status)) {
	i.mu.Lock()
	fn(&i.status)
	i.status.UpdatedAt = i.o.now()
	i.mu.Unlock()
}

func (i *instance) transition(to State, err error) {
	i.mu.Lock()
	from := i.status.State
	i.status.State = to
	i.status.UpdatedAt = i.o.now()
	i.mu.Unlock()

	i.o.metrics.StateChanged(string(from), string(to))
	if from != to {
		i.logger.Debug("state changed", "from", from, "to", to)
	}

	// awaiting_session is internal; observers see authenticating then online
	if to == StateAwaitingSession {
		return
	}
	if from == to && err == nil && to != StateAuthenticating {
		return
	}
	i.o.bus.Publish(events.Status(i.username, string(to), err))
}

func (i *instance) transitionWith(to State, err error) {
	i.updateStatus(func(s *Status) {
		if err != nil {
			s.LastError = err.Error()
		}
	})
	i.transition(to, err)
}

// publishStatus reports an error without changing state.
func (i *instance) publishStatus(err error) {
	i.o.bus.Publish(events.Status(i.username, string(i.state()), err))
}
