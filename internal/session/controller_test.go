package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/repository"
	"github.com/qcom/banksession/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	login    func(models.LoginRequest) (*models.LoginResponse, error)
	register func(models.RegisterRequest) (*models.LoginResponse, error)
	renew    func(models.RenewTokenRequest) (*models.RenewTokenResponse, error)
	logout   func(context.Context, models.LogoutRequest) error
	profile  func() (*models.User, error)

	loginCalls    atomic.Int32
	registerCalls atomic.Int32
	renewCalls    atomic.Int32
	logoutCalls   atomic.Int32
	profileCalls  atomic.Int32
}

func (f *fakeAPI) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.loginCalls.Add(1)
	return f.login(req)
}

func (f *fakeAPI) Register(_ context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	f.registerCalls.Add(1)
	return f.register(req)
}

func (f *fakeAPI) RenewToken(_ context.Context, req models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
	f.renewCalls.Add(1)
	return f.renew(req)
}

func (f *fakeAPI) Logout(ctx context.Context, req models.LogoutRequest) error {
	f.logoutCalls.Add(1)
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx, req)
}

func (f *fakeAPI) GetProfile(context.Context) (*models.User, error) {
	f.profileCalls.Add(1)
	return f.profile()
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var (
	errUnauthorized = &apiclient.APIError{Message: "Invalid credentials", Status: http.StatusUnauthorized}
	errServer       = &apiclient.APIError{Message: apiclient.GenericErrorMessage, Status: http.StatusInternalServerError}
)

func loginOK(req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{
		UserID:       "user-1",
		Email:        req.Email,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, nil
}

func newController(t *testing.T, api *fakeAPI, opts Options) (*Controller, *repository.MemoryStore, *recordingNavigator) {
	t.Helper()
	store := repository.NewMemoryStore()
	nav := &recordingNavigator{}
	return New(api, store, nav, quietLogger(), opts), store, nav
}

func token(t *testing.T, store repository.CredentialStore, kind models.TokenKind) string {
	t.Helper()
	v, err := store.Get(context.Background(), kind)
	require.NoError(t, err)
	return v
}

func TestLogin_Success(t *testing.T) {
	api := &fakeAPI{login: loginOK}
	ctrl, store, nav := newController(t, api, Options{})

	res, err := ctrl.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, "access-1", token(t, store, models.AccessToken))
	assert.Equal(t, "refresh-1", token(t, store, models.RefreshToken))
	assert.True(t, ctrl.IsAuthenticated().Get())
	assert.Equal(t, Authenticated, ctrl.State().Get())
	assert.Equal(t, &models.User{ID: "user-1", Email: "a@b.com"}, ctrl.User().Get())
	assert.Equal(t, []string{"/dashboard"}, nav.Routes())
	assert.False(t, ctrl.Loading().Get())
}

func TestLogin_FailureLeavesStoreUntouched(t *testing.T) {
	api := &fakeAPI{login: func(models.LoginRequest) (*models.LoginResponse, error) {
		return nil, errUnauthorized
	}}
	ctrl, store, nav := newController(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, repository.SavePair(ctx, store, models.CredentialPair{AccessToken: "old-a", RefreshToken: "old-r"}))

	res, err := ctrl.Login(ctx, "a@b.com", "wrong")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid credentials", res.Error)
	assert.Equal(t, "Invalid credentials", ctrl.Error().Get())

	assert.Equal(t, "old-a", token(t, store, models.AccessToken))
	assert.Equal(t, "old-r", token(t, store, models.RefreshToken))
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Equal(t, Anonymous, ctrl.State().Get())
	assert.Empty(t, nav.Routes())
}

func TestLogin_TransportFailureUsesGenericMessage(t *testing.T) {
	api := &fakeAPI{login: func(models.LoginRequest) (*models.LoginResponse, error) {
		return nil, errServer
	}}
	ctrl, _, _ := newController(t, api, Options{})

	res, err := ctrl.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, apiclient.GenericErrorMessage, res.Error)
}

func TestLogin_ReplacesStaleRefreshToken(t *testing.T) {
	api := &fakeAPI{login: func(req models.LoginRequest) (*models.LoginResponse, error) {
		return &models.LoginResponse{UserID: "u", AccessToken: "access-2"}, nil
	}}
	ctrl, store, _ := newController(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, models.RefreshToken, "refresh-old"))

	res, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "access-2", token(t, store, models.AccessToken))
	assert.Empty(t, token(t, store, models.RefreshToken))
	assert.Equal(t, "a@b.com", ctrl.User().Get().Email)
}

func TestLogin_PublishesAfterStoring(t *testing.T) {
	api := &fakeAPI{login: loginOK}
	ctrl, store, nav := newController(t, api, Options{})

	var storedAtPublish string
	var routesAtPublish int
	ctrl.IsAuthenticated().Subscribe(func(v bool) {
		if v {
			storedAtPublish = token(t, store, models.AccessToken)
			routesAtPublish = len(nav.Routes())
		}
	})

	_, err := ctrl.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "access-1", storedAtPublish)
	assert.Equal(t, 0, routesAtPublish)
	assert.Len(t, nav.Routes(), 1)
}

func TestLogin_StateSequence(t *testing.T) {
	api := &fakeAPI{login: loginOK}
	ctrl, _, _ := newController(t, api, Options{})

	var states []State
	ctrl.State().Subscribe(func(s State) { states = append(states, s) })

	_, err := ctrl.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, []State{Authenticating, Authenticated}, states)
}

func TestRegister_PasswordMismatchSendsNothing(t *testing.T) {
	api := &fakeAPI{}
	ctrl, _, _ := newController(t, api, Options{})

	res, err := ctrl.Register(context.Background(), "a@b.com", "one", "two")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MessagePasswordMismatch, res.Error)
	assert.Equal(t, int32(0), api.registerCalls.Load())

	apiErr, ok := apiclient.AsAPIError(res.Err)
	require.True(t, ok)
	assert.Equal(t, apiclient.KindValidation, apiErr.Kind())
}

func TestRegister_Policies(t *testing.T) {
	tests := []struct {
		name          string
		policy        RegistrationPolicy
		response      *models.LoginResponse
		authenticated bool
		loginCalls    int32
	}{
		{
			name:     "require login",
			policy:   RegistrationRequiresLogin,
			response: &models.LoginResponse{UserID: "u", AccessToken: "ignored"},
		},
		{
			name:          "sign in with issued tokens",
			policy:        RegistrationSignsIn,
			response:      &models.LoginResponse{UserID: "u", AccessToken: "reg-access", RefreshToken: "reg-refresh"},
			authenticated: true,
		},
		{
			name:          "sign in falls back to login",
			policy:        RegistrationSignsIn,
			response:      &models.LoginResponse{},
			authenticated: true,
			loginCalls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				login: loginOK,
				register: func(models.RegisterRequest) (*models.LoginResponse, error) {
					return tt.response, nil
				},
			}
			ctrl, store, _ := newController(t, api, Options{Policy: tt.policy})

			res, err := ctrl.Register(context.Background(), "a@b.com", "pw", "pw")
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, tt.authenticated, ctrl.IsAuthenticated().Get())
			assert.Equal(t, tt.loginCalls, api.loginCalls.Load())
			if !tt.authenticated {
				assert.Empty(t, token(t, store, models.AccessToken))
			}
		})
	}
}

func TestRegister_DomainError(t *testing.T) {
	api := &fakeAPI{register: func(models.RegisterRequest) (*models.LoginResponse, error) {
		return nil, &apiclient.APIError{Message: "Email already registered", Status: http.StatusConflict}
	}}
	ctrl, _, _ := newController(t, api, Options{})

	res, err := ctrl.Register(context.Background(), "a@b.com", "pw", "pw")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Email already registered", res.Error)
}

func TestRenew_WithoutRefreshTokenSendsNothing(t *testing.T) {
	api := &fakeAPI{}
	ctrl, store, _ := newController(t, api, Options{})
	require.NoError(t, store.Set(context.Background(), models.AccessToken, "access-1"))

	res, err := ctrl.Renew(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.NonRenewable)
	assert.Equal(t, int32(0), api.renewCalls.Load())
}

func TestRenew_Success(t *testing.T) {
	api := &fakeAPI{
		login: loginOK,
		renew: func(req models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			assert.Equal(t, models.CredentialPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, req)
			return &models.RenewTokenResponse{AccessToken: "access-2"}, nil
		},
	}
	ctrl, store, _ := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	res, err := ctrl.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "access-2", token(t, store, models.AccessToken))
	assert.Equal(t, "refresh-1", token(t, store, models.RefreshToken))
	assert.Equal(t, Authenticated, ctrl.State().Get())
}

func TestRenew_FailureEndsSession(t *testing.T) {
	api := &fakeAPI{
		login: loginOK,
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			return nil, errUnauthorized
		},
	}
	ctrl, store, nav := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	res, err := ctrl.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, token(t, store, models.AccessToken))
	assert.Empty(t, token(t, store, models.RefreshToken))
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Nil(t, ctrl.User().Get())
	assert.Equal(t, []string{"/dashboard", "/login"}, nav.Routes())
}

func TestRenew_ConcurrentCallsShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		login: loginOK,
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			<-release
			return &models.RenewTokenResponse{AccessToken: "access-2"}, nil
		},
	}
	ctrl, _, _ := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ctrl.Renew(ctx)
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}

	require.Eventually(t, func() bool { return api.renewCalls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining goroutines time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), api.renewCalls.Load())
}

func TestRenew_LogoutWinsRace(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		login: loginOK,
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			close(started)
			<-release
			return &models.RenewTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
		},
	}
	ctrl, store, _ := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	done := make(chan Result)
	go func() {
		res, err := ctrl.Renew(ctx)
		assert.NoError(t, err)
		done <- res
	}()

	<-started
	_, err = ctrl.Logout(ctx)
	require.NoError(t, err)
	close(release)

	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, MessageRenewalSuperseded, res.Error)
	assert.Empty(t, token(t, store, models.AccessToken))
	assert.Empty(t, token(t, store, models.RefreshToken))
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Equal(t, Anonymous, ctrl.State().Get())
}

func TestLogout_ClearsEvenWhenRemoteFails(t *testing.T) {
	var sent models.LogoutRequest
	api := &fakeAPI{
		login: loginOK,
		logout: func(_ context.Context, req models.LogoutRequest) error {
			sent = req
			return errServer
		},
	}
	ctrl, store, nav := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	res, err := ctrl.Logout(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "refresh-1", sent.RefreshToken)
	assert.Empty(t, token(t, store, models.AccessToken))
	assert.Empty(t, token(t, store, models.RefreshToken))
	assert.Nil(t, ctrl.User().Get())
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Equal(t, "/login", nav.Routes()[len(nav.Routes())-1])
}

func TestLogout_CancelledContextStillClears(t *testing.T) {
	api := &fakeAPI{
		login: loginOK,
		logout: func(ctx context.Context, _ models.LogoutRequest) error {
			return ctx.Err()
		},
	}
	ctrl, store, _ := newController(t, api, Options{LogoutTimeout: time.Second})
	_, err := ctrl.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ctrl.Logout(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, token(t, store, models.AccessToken))
}

func TestRestore(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		api := &fakeAPI{}
		ctrl, _, _ := newController(t, api, Options{})

		res, err := ctrl.Restore(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, int32(0), api.profileCalls.Load())
	})

	t.Run("valid credentials", func(t *testing.T) {
		api := &fakeAPI{profile: func() (*models.User, error) {
			return &models.User{ID: "user-1", Email: "a@b.com"}, nil
		}}
		ctrl, store, _ := newController(t, api, Options{})
		require.NoError(t, store.Set(context.Background(), models.AccessToken, "access-1"))

		res, err := ctrl.Restore(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "user-1", ctrl.User().Get().ID)
		assert.Equal(t, Authenticated, ctrl.State().Get())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		api := &fakeAPI{profile: func() (*models.User, error) {
			return nil, errUnauthorized
		}}
		ctrl, store, _ := newController(t, api, Options{})
		require.NoError(t, repository.SavePair(context.Background(), store, models.CredentialPair{AccessToken: "a", RefreshToken: "r"}))

		res, err := ctrl.Restore(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Empty(t, token(t, store, models.AccessToken))
		assert.Empty(t, token(t, store, models.RefreshToken))
		assert.Equal(t, Anonymous, ctrl.State().Get())
	})
}

func TestAuthorized_RetriesOnceAfterRenewal(t *testing.T) {
	api := &fakeAPI{
		login: loginOK,
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			return &models.RenewTokenResponse{AccessToken: "access-2"}, nil
		},
	}
	ctrl, store, _ := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	var calls int
	err = ctrl.Authorized(ctx, func(ctx context.Context) error {
		calls++
		if token(t, store, models.AccessToken) == "access-1" {
			return errUnauthorized
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(1), api.renewCalls.Load())
}

func TestAuthorized_NonRenewableEndsSession(t *testing.T) {
	api := &fakeAPI{login: func(models.LoginRequest) (*models.LoginResponse, error) {
		return &models.LoginResponse{UserID: "u", AccessToken: "access-1"}, nil
	}}
	ctrl, store, nav := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	err = ctrl.Authorized(ctx, func(context.Context) error { return errUnauthorized })
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.Equal(t, int32(0), api.renewCalls.Load())
	assert.Empty(t, token(t, store, models.AccessToken))
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Equal(t, "/login", nav.Routes()[len(nav.Routes())-1])
}

func TestAuthorized_PassesThroughOtherErrors(t *testing.T) {
	api := &fakeAPI{}
	ctrl, _, _ := newController(t, api, Options{})
	boom := errors.New("boom")

	err := ctrl.Authorized(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), api.renewCalls.Load())
}

func TestAuthorized_RenewsExpiringToken(t *testing.T) {
	expiring, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Second)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	api := &fakeAPI{
		login: func(models.LoginRequest) (*models.LoginResponse, error) {
			return &models.LoginResponse{UserID: "user-1", AccessToken: expiring, RefreshToken: "refresh-1"}, nil
		},
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			return &models.RenewTokenResponse{AccessToken: "opaque-access"}, nil
		},
	}
	ctrl, store, _ := newController(t, api, Options{
		RenewalSkew: time.Minute,
		Inspector:   service.NewTokenInspector(),
	})
	ctx := context.Background()
	_, err = ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	var seen string
	err = ctrl.Authorized(ctx, func(context.Context) error {
		seen = token(t, store, models.AccessToken)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "opaque-access", seen)
	assert.Equal(t, int32(1), api.renewCalls.Load())
}

type chanWatcher chan repository.CredentialEvent

func (w chanWatcher) Watch(context.Context) (<-chan repository.CredentialEvent, error) {
	return w, nil
}

func TestFollow_DropsSessionClearedElsewhere(t *testing.T) {
	api := &fakeAPI{login: loginOK}
	ctrl, _, nav := newController(t, api, Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	events := make(chanWatcher, 1)
	events <- repository.CredentialEvent{Namespace: "default", Type: repository.EventCleared, Origin: "other"}
	close(events)

	require.NoError(t, ctrl.Follow(ctx, events))
	assert.False(t, ctrl.IsAuthenticated().Get())
	assert.Nil(t, ctrl.User().Get())
	assert.Equal(t, []string{"/dashboard", "/login"}, nav.Routes())
}

// stallingStore holds the value of the first refresh-token read after arm
// until release, so the reader continues with what was stored before.
type stallingStore struct {
	*repository.MemoryStore

	mu      sync.Mutex
	armed   bool
	reached chan struct{}
	release chan struct{}
}

func newStallingStore() *stallingStore {
	return &stallingStore{
		MemoryStore: repository.NewMemoryStore(),
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *stallingStore) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
}

func (s *stallingStore) Get(ctx context.Context, kind models.TokenKind) (string, error) {
	s.mu.Lock()
	stall := s.armed && kind == models.RefreshToken
	if stall {
		s.armed = false
	}
	s.mu.Unlock()

	v, err := s.MemoryStore.Get(ctx, kind)
	if stall {
		close(s.reached)
		<-s.release
	}
	return v, err
}

func TestRenew_LogoutDuringCredentialReadWins(t *testing.T) {
	api := &fakeAPI{
		login: loginOK,
		renew: func(models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
			return &models.RenewTokenResponse{AccessToken: "access-2"}, nil
		},
		logout: func(context.Context, models.LogoutRequest) error {
			return errServer
		},
	}
	store := newStallingStore()
	ctrl := New(api, store, nil, quietLogger(), Options{})
	ctx := context.Background()
	_, err := ctrl.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	store.arm()
	done := make(chan Result)
	go func() {
		res, err := ctrl.Renew(ctx)
		assert.NoError(t, err)
		done <- res
	}()

	<-store.reached
	_, err = ctrl.Logout(ctx)
	require.NoError(t, err)
	close(store.release)

	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, MessageRenewalSuperseded, res.Error)
	assert.Equal(t, int32(0), api.renewCalls.Load())
	assert.Empty(t, token(t, store, models.AccessToken))
	assert.Empty(t, token(t, store, models.RefreshToken))
	assert.False(t, ctrl.IsAuthenticated().Get())

	restored, err := ctrl.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, restored.Success)
}
