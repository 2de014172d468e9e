package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/repository"
	"github.com/qcom/banksession/internal/signal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Controller owns the session: credentials in the store, the user projection and
// the signals UI code observes.
//
// Transitions are serialized on an internal mutex and signals are published
// while it is held, so subscribers must not call back into the controller
// synchronously.
type Controller struct {
	api    API
	store  repository.CredentialStore
	nav    Navigator
	opts   Options
	logger *logrus.Logger

	mu sync.Mutex
	// epoch changes whenever credentials are replaced or dropped. Work started
	// under an older epoch must not write credentials.
	epoch    uint64
	renewals singleflight.Group

	loadMu   sync.Mutex
	inflight int

	user          *signal.Value[*models.User]
	authenticated *signal.Value[bool]
	loading       *signal.Value[bool]
	lastError     *signal.Value[string]
	state         *signal.Value[State]
}

func New(api API, store repository.CredentialStore, nav Navigator, logger *logrus.Logger, opts Options) *Controller {
	if nav == nil {
		nav = nopNavigator{}
	}
	if opts.Policy == "" {
		opts.Policy = RegistrationRequiresLogin
	}
	if opts.LandingRoute == "" {
		opts.LandingRoute = "/dashboard"
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}

	return &Controller{
		api:           api,
		store:         store,
		nav:           nav,
		opts:          opts,
		logger:        logger,
		user:          signal.New[*models.User](nil, nil),
		authenticated: signal.Comparable(false),
		loading:       signal.Comparable(false),
		lastError:     signal.Comparable(""),
		state:         signal.Comparable(Anonymous),
	}
}

func (c *Controller) User() signal.Signal[*models.User] { return c.user }

func (c *Controller) IsAuthenticated() signal.Signal[bool] { return c.authenticated }

func (c *Controller) Loading() signal.Signal[bool] { return c.loading }

func (c *Controller) Error() signal.Signal[string] { return c.lastError }

func (c *Controller) State() signal.Signal[State] { return c.state }

func (c *Controller) begin() {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	c.inflight++
	c.loading.Set(true)
}

func (c *Controller) end() {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		c.loading.Set(false)
	}
}

func (c *Controller) setStateLocked(s State) {
	if c.state.Get() != s {
		c.opts.Metrics.Transition(s.String())
	}
	c.state.Set(s)
}

func (c *Controller) setAuthenticatedLocked(user *models.User) {
	c.user.Set(user)
	c.authenticated.Set(true)
	c.setStateLocked(Authenticated)
}

func (c *Controller) setAnonymousLocked() {
	c.user.Set(nil)
	c.authenticated.Set(false)
	c.setStateLocked(Anonymous)
}

// clearLocked drops the credentials and the projection. The transition happens
// even when the store fails; the store error is returned.
func (c *Controller) clearLocked(ctx context.Context) error {
	c.epoch++
	err := c.store.Clear(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to clear stored credentials")
	}
	c.setAnonymousLocked()
	return err
}

// beginAuthenticating moves to Authenticating and returns what to restore on failure.
func (c *Controller) beginAuthenticating() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state.Get()
	c.setStateLocked(Authenticating)
	return prev, c.epoch
}

func (c *Controller) abortAuthenticating(prev State, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.setStateLocked(prev)
	}
}

func (c *Controller) fail(err error) Result {
	msg := apiclient.UserMessage(err)
	c.lastError.Set(msg)
	return Result{Success: false, Error: msg, Err: err}
}

// Restore resumes a session from stored credentials by loading the profile.
// Any failure drops the stored credentials.
func (c *Controller) Restore(ctx context.Context) (Result, error) {
	access, err := c.store.Get(ctx, models.AccessToken)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read access token: %w", err)
	}
	if access == "" {
		c.mu.Lock()
		c.setAnonymousLocked()
		c.mu.Unlock()
		return Result{Success: false}, nil
	}

	c.begin()
	defer c.end()

	_, epoch := c.beginAuthenticating()
	user, err := c.api.GetProfile(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		// A login or logout finished first and owns the session now.
		return Result{Success: c.authenticated.Get()}, nil
	}

	if err != nil {
		c.logger.WithError(err).Info("Session restore failed, clearing credentials")
		if clearErr := c.clearLocked(ctx); clearErr != nil {
			return Result{}, clearErr
		}
		if _, ok := apiclient.AsAPIError(err); !ok {
			return Result{}, err
		}
		return Result{Success: false, Err: err}, nil
	}

	c.setAuthenticatedLocked(user)
	return Result{Success: true}, nil
}

func (c *Controller) Login(ctx context.Context, email, password string) (Result, error) {
	c.begin()
	defer c.end()
	c.lastError.Set("")

	prev, epoch := c.beginAuthenticating()
	resp, err := c.api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err == nil && resp.AccessToken == "" {
		err = &apiclient.APIError{Message: apiclient.GenericErrorMessage, Status: 200, Code: apiclient.CodeInvalidResponse}
	}
	if err != nil {
		c.abortAuthenticating(prev, epoch)
		if _, ok := apiclient.AsAPIError(err); !ok {
			return Result{}, err
		}
		c.logger.WithError(err).Info("Login failed")
		return c.fail(err), nil
	}

	if err := c.establish(ctx, resp, email); err != nil {
		c.abortAuthenticating(prev, epoch)
		return Result{}, err
	}
	return Result{Success: true}, nil
}

// establish stores the credentials of resp, publishes the user and navigates to
// the landing view, in that order.
func (c *Controller) establish(ctx context.Context, resp *models.LoginResponse, email string) error {
	c.mu.Lock()
	c.epoch++
	// Both kinds are written so a refresh credential from an earlier session
	// never pairs with the new access credential.
	if err := c.store.Set(ctx, models.RefreshToken, resp.RefreshToken); err != nil {
		c.discardLocked(ctx)
		c.mu.Unlock()
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := c.store.Set(ctx, models.AccessToken, resp.AccessToken); err != nil {
		c.discardLocked(ctx)
		c.mu.Unlock()
		return fmt.Errorf("failed to store access token: %w", err)
	}

	user := &models.User{ID: resp.UserID, Email: resp.Email}
	if user.Email == "" {
		user.Email = email
	}
	c.setAuthenticatedLocked(user)
	c.mu.Unlock()

	c.logger.WithField("user_id", user.ID).Info("Session established")
	c.nav.Navigate(c.opts.LandingRoute)
	return nil
}

// discardLocked drops a half-written credential pair.
func (c *Controller) discardLocked(ctx context.Context) {
	_ = c.clearLocked(ctx)
}

func (c *Controller) Register(ctx context.Context, email, password, confirmPassword string) (Result, error) {
	if password != confirmPassword {
		err := apiclient.NewValidationError(MessagePasswordMismatch)
		c.lastError.Set(err.Message)
		return Result{Success: false, Error: err.Message, Err: err}, nil
	}

	c.begin()
	defer c.end()
	c.lastError.Set("")

	resp, err := c.api.Register(ctx, models.RegisterRequest{
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		if _, ok := apiclient.AsAPIError(err); !ok {
			return Result{}, err
		}
		c.logger.WithError(err).Info("Registration failed")
		return c.fail(err), nil
	}

	if c.opts.Policy != RegistrationSignsIn {
		return Result{Success: true}, nil
	}

	if resp.AccessToken != "" {
		if err := c.establish(ctx, resp, email); err != nil {
			return Result{}, err
		}
		return Result{Success: true}, nil
	}
	return c.Login(ctx, email, password)
}

// Renew exchanges the stored credential pair for a new access credential.
// Concurrent calls share one request. A rejected renewal ends the session.
func (c *Controller) Renew(ctx context.Context) (Result, error) {
	v, err, _ := c.renewals.Do("renew", func() (interface{}, error) {
		return c.renew(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// beginAuthenticatingAt is beginAuthenticating for work that already read
// credentials under epoch. It refuses when the session changed since.
func (c *Controller) beginAuthenticatingAt(epoch uint64) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return Anonymous, false
	}
	prev := c.state.Get()
	c.setStateLocked(Authenticating)
	return prev, true
}

func (c *Controller) superseded() Result {
	c.opts.Metrics.Renewal("superseded")
	c.logger.Info("Discarding renewal result for a superseded session")
	return Result{Success: false, Error: MessageRenewalSuperseded}
}

func (c *Controller) renew(ctx context.Context) (Result, error) {
	// The epoch is taken before the pair is read so a logout or login landing
	// during the read is detected.
	epoch := c.currentEpoch()

	pair, err := repository.LoadPair(ctx, c.store)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !pair.Renewable() {
		c.opts.Metrics.Renewal("not_renewable")
		return Result{Success: false, Error: MessageNotRenewable, NonRenewable: true}, nil
	}

	c.begin()
	defer c.end()

	prev, ok := c.beginAuthenticatingAt(epoch)
	if !ok {
		return c.superseded(), nil
	}
	resp, err := c.api.RenewToken(ctx, pair)
	if err == nil && resp.AccessToken == "" {
		err = &apiclient.APIError{Message: apiclient.GenericErrorMessage, Status: 200, Code: apiclient.CodeInvalidResponse}
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return c.superseded(), nil
	}

	if err != nil {
		clearErr := c.clearLocked(ctx)
		c.mu.Unlock()
		c.opts.Metrics.Renewal("failure")
		c.logger.WithError(err).Warn("Token renewal failed, session ended")
		c.nav.Navigate(c.opts.LoginRoute)
		return c.fail(err), clearErr
	}

	rotated := models.CredentialPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if err := repository.SavePair(ctx, c.store, rotated); err != nil {
		c.setStateLocked(prev)
		c.mu.Unlock()
		return Result{}, err
	}
	if c.user.Get() != nil {
		c.setStateLocked(Authenticated)
	} else {
		c.setStateLocked(prev)
	}
	c.mu.Unlock()

	c.opts.Metrics.Renewal("success")
	return Result{Success: true}, nil
}

// Logout notifies the backend on a best-effort basis and always ends the local
// session, even when the notification fails or ctx is already cancelled.
func (c *Controller) Logout(ctx context.Context) (Result, error) {
	c.begin()
	defer c.end()

	refresh, err := c.store.Get(ctx, models.RefreshToken)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read refresh token for logout")
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.LogoutTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.opts.LogoutTimeout)
	}
	if err := c.api.Logout(callCtx, models.LogoutRequest{RefreshToken: refresh}); err != nil {
		c.logger.WithError(err).Warn("Remote logout failed, clearing local session anyway")
	}
	cancel()

	c.mu.Lock()
	clearErr := c.clearLocked(context.WithoutCancel(ctx))
	c.mu.Unlock()

	c.nav.Navigate(c.opts.LoginRoute)
	return Result{Success: true}, clearErr
}

// forceLogout ends the session locally after the backend rejected it.
func (c *Controller) forceLogout(ctx context.Context) error {
	c.mu.Lock()
	err := c.clearLocked(context.WithoutCancel(ctx))
	c.mu.Unlock()
	c.nav.Navigate(c.opts.LoginRoute)
	return err
}

// Authorized runs a call against a protected route. An access credential about
// to expire is renewed first; a 401 triggers one renewal and one retry, and a
// session that cannot be renewed is ended.
func (c *Controller) Authorized(ctx context.Context, call func(ctx context.Context) error) error {
	if c.opts.Inspector != nil && c.opts.RenewalSkew > 0 {
		access, err := c.store.Get(ctx, models.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to read access token: %w", err)
		}
		if access != "" && c.opts.Inspector.ExpiresWithin(access, c.opts.RenewalSkew) {
			res, err := c.Renew(ctx)
			if err != nil {
				return err
			}
			if !res.Success && !res.NonRenewable {
				return ErrSessionExpired
			}
		}
	}

	err := call(ctx)
	if !apiclient.IsUnauthorized(err) {
		return err
	}

	res, renewErr := c.Renew(ctx)
	if renewErr != nil {
		return renewErr
	}
	if !res.Success {
		if res.NonRenewable {
			if err := c.forceLogout(ctx); err != nil {
				return err
			}
		}
		return err
	}
	return call(ctx)
}

// Follow drops the local session whenever another session sharing the store
// clears it. It blocks until ctx is done or the watcher stops.
func (c *Controller) Follow(ctx context.Context, watcher repository.CredentialWatcher) error {
	events, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type != repository.EventCleared {
				continue
			}
			c.mu.Lock()
			wasAuthenticated := c.authenticated.Get()
			c.epoch++
			c.setAnonymousLocked()
			c.mu.Unlock()

			c.logger.WithField("origin", event.Origin).Info("Session cleared by another tab")
			if wasAuthenticated {
				c.nav.Navigate(c.opts.LoginRoute)
			}
		}
	}
}
