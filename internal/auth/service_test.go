package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coldreach/coldreach/internal/oauth"
	tokens "github.com/coldreach/coldreach/internal/security/token"
	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/coldreach/coldreach/internal/store/memory"
	"github.com/coldreach/coldreach/internal/token"
)

// stubProvider es un provider determinístico para tests del service layer.
type stubProvider struct {
	name        string
	ident       oauth.Identity
	exchangeErr error
	identityErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthorizationURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*oauth.TokenBundle, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth.TokenBundle{AccessToken: "provider-access", TokenType: "Bearer"}, nil
}

func (p *stubProvider) Identity(ctx context.Context, bundle *oauth.TokenBundle) (*oauth.Identity, error) {
	if p.identityErr != nil {
		return nil, p.identityErr
	}
	ident := p.ident
	return &ident, nil
}

func newTestService(t *testing.T, providers ...oauth.Provider) (*Service, *memory.Store) {
	t.Helper()
	codec, err := token.NewCodec("test-secret", "HS256", 30*time.Minute, 720*time.Hour)
	require.NoError(t, err)

	pm := make(map[string]oauth.Provider, len(providers))
	for _, p := range providers {
		pm[p.Name()] = p
	}
	repo := memory.New()
	svc := New(Deps{
		Repo:      repo,
		Codec:     codec,
		Providers: pm,
		StateTTL:  10 * time.Minute,
	})
	return svc, repo
}

func googleStub() *stubProvider {
	return &stubProvider{
		name: core.ProviderGoogle,
		ident: oauth.Identity{
			ExternalID: "g1",
			Email:      "ada@example.com",
			Name:       "Ada Lovelace",
			Picture:    "https://img.example.com/ada.png",
		},
	}
}

func completeLogin(t *testing.T, svc *Service, provider string) *TokenPair {
	t.Helper()
	ctx := context.Background()
	start, err := svc.InitLogin(ctx, provider)
	require.NoError(t, err)
	pair, err := svc.CompleteLogin(ctx, provider, "code-123", start.State, nil, nil)
	require.NoError(t, err)
	return pair
}

func TestInitLogin(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	require.NotEmpty(t, start.State)
	require.Contains(t, start.AuthorizationURL, "state="+start.State)

	_, err = svc.InitLogin(ctx, "facebook")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCompleteLoginCreatesUser(t *testing.T) {
	svc, repo := newTestService(t, googleStub())

	pair := completeLogin(t, svc, core.ProviderGoogle)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, int64(30*60), pair.ExpiresIn)

	user, err := repo.GetUserByProviderID(context.Background(), core.ProviderGoogle, "g1")
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.NotNil(t, user.GoogleID)
	require.Equal(t, "g1", *user.GoogleID)
	require.True(t, user.IsActive)
	require.True(t, user.IsVerified)
	require.NotNil(t, user.LastLogin)
}

func TestStateIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "code", start.State, nil, nil)
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStateBurnsEvenWhenExchangeFails(t *testing.T) {
	p := googleStub()
	p.exchangeErr = oauth.ErrExchange
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "bad-code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrProviderExchange)

	// El state se consumió antes del exchange: reintentar exige InitLogin.
	p.exchangeErr = nil
	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "good-code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteLoginIdentityError(t *testing.T) {
	p := googleStub()
	p.identityErr = oauth.ErrIdentity
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrIdentityVerification)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t, googleStub())

	first := completeLogin(t, svc, core.ProviderGoogle)
	second := completeLogin(t, svc, core.ProviderGoogle)
	require.Equal(t, first.User.ID, second.User.ID)

	// Un solo usuario, sin duplicados por email.
	_, err := repo.GetUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
}

func TestMergeNeverClobbersProfile(t *testing.T) {
	svc, repo := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	// El usuario edita su nombre localmente.
	user, err := repo.GetUserByID(ctx, pair.User.ID)
	require.NoError(t, err)
	edited := "Countess of Lovelace"
	user.Name = &edited
	require.NoError(t, repo.UpdateUser(ctx, user))

	completeLogin(t, svc, core.ProviderGoogle)

	user, err = repo.GetUserByID(ctx, pair.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.Name)
	require.Equal(t, edited, *user.Name)
}

func TestMergeBackfillsProviderID(t *testing.T) {
	google := googleStub()
	apple := &stubProvider{
		name: core.ProviderApple,
		ident: oauth.Identity{
			ExternalID: "a1",
			Email:      "ada@example.com",
		},
	}
	svc, repo := newTestService(t, google, apple)

	first := completeLogin(t, svc, core.ProviderGoogle)
	second := completeLogin(t, svc, core.ProviderApple)
	require.Equal(t, first.User.ID, second.User.ID)

	user, err := repo.GetUserByID(context.Background(), first.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.GoogleID)
	require.NotNil(t, user.AppleID)
	require.Equal(t, "a1", *user.AppleID)
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// El refresh viejo quedó quemado.
	_, err = svc.Refresh(ctx, pair.RefreshToken, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	// El nuevo sigue vivo.
	_, err = svc.Refresh(ctx, rotated.RefreshToken, nil, nil)
	require.NoError(t, err)
}

func TestBackToBackLoginsGetDistinctSessions(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	// Dos logins del mismo usuario dentro del mismo segundo: cada uno
	// tiene que emitir un refresh token distinto y una sesión propia.
	first := completeLogin(t, svc, core.ProviderGoogle)
	second := completeLogin(t, svc, core.ProviderGoogle)
	require.Equal(t, first.User.ID, second.User.ID)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err := svc.Refresh(ctx, first.RefreshToken, nil, nil)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, second.RefreshToken, nil, nil)
	require.NoError(t, err)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	// N goroutines compiten por rotar el mismo refresh token: gana
	// exactamente una, el resto recibe Unauthorized.
	const workers = 16
	results := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, pair.RefreshToken, nil, nil)
			results[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	require.Equal(t, 1, winners)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "not-a-jwt", nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Un access token no sirve como refresh token.
	pair := completeLogin(t, svc, core.ProviderGoogle)
	_, err = svc.Refresh(ctx, pair.AccessToken, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRejectsExpiredSession(t *testing.T) {
	codec, err := token.NewCodec("test-secret", "HS256", 30*time.Minute, 20*time.Millisecond)
	require.NoError(t, err)
	repo := memory.New()
	svc := New(Deps{
		Repo:      repo,
		Codec:     codec,
		Providers: map[string]oauth.Provider{core.ProviderGoogle: googleStub()},
	})
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	pair, err := svc.CompleteLogin(ctx, core.ProviderGoogle, "code", start.State, nil, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = svc.Refresh(ctx, pair.RefreshToken, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	svc, repo := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	user, err := repo.GetUserByID(ctx, pair.User.ID)
	require.NoError(t, err)
	user.IsActive = false
	require.NoError(t, repo.UpdateUser(ctx, user))

	_, err = svc.Refresh(ctx, pair.RefreshToken, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	svc.Logout(ctx, pair.RefreshToken)
	svc.Logout(ctx, pair.RefreshToken)
	svc.Logout(ctx, "garbage-token")
	svc.Logout(ctx, "")

	_, err := svc.Refresh(ctx, pair.RefreshToken, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	pairs := make([]*TokenPair, 0, 3)
	for i := 0; i < 3; i++ {
		pairs = append(pairs, completeLogin(t, svc, core.ProviderGoogle))
	}

	n, err := svc.LogoutAll(ctx, pairs[0].User.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	for _, p := range pairs {
		_, err := svc.Refresh(ctx, p.RefreshToken, nil, nil)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	// Segunda pasada: ya no queda nada activo.
	n, err = svc.LogoutAll(ctx, pairs[0].User.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCurrentUser(t *testing.T) {
	svc, repo := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	user, err := svc.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, pair.User.ID, user.ID)

	// Un refresh token no autentica requests.
	_, err = svc.CurrentUser(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.CurrentUser(ctx, "garbage")
	require.ErrorIs(t, err, ErrUnauthorized)

	user.IsActive = false
	require.NoError(t, repo.UpdateUser(ctx, user))
	_, err = svc.CurrentUser(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestOptionalUser(t *testing.T) {
	svc, _ := newTestService(t, googleStub())
	ctx := context.Background()

	require.Nil(t, svc.OptionalUser(ctx, ""))
	require.Nil(t, svc.OptionalUser(ctx, "garbage"))

	pair := completeLogin(t, svc, core.ProviderGoogle)
	user := svc.OptionalUser(ctx, pair.AccessToken)
	require.NotNil(t, user)
	require.Equal(t, pair.User.ID, user.ID)
}

func TestExpiredStateRejected(t *testing.T) {
	codec, err := token.NewCodec("test-secret", "HS256", 30*time.Minute, 720*time.Hour)
	require.NoError(t, err)
	repo := memory.New()
	svc := New(Deps{
		Repo:      repo,
		Codec:     codec,
		Providers: map[string]oauth.Provider{core.ProviderGoogle: googleStub()},
		StateTTL:  10 * time.Millisecond,
	})
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.CompleteLogin(ctx, core.ProviderGoogle, "code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStateProviderMismatch(t *testing.T) {
	apple := &stubProvider{
		name:  core.ProviderApple,
		ident: oauth.Identity{ExternalID: "a1", Email: "ada@example.com"},
	}
	svc, _ := newTestService(t, googleStub(), apple)
	ctx := context.Background()

	start, err := svc.InitLogin(ctx, core.ProviderGoogle)
	require.NoError(t, err)

	// Un state emitido para google no sirve en el callback de apple.
	_, err = svc.CompleteLogin(ctx, core.ProviderApple, "code", start.State, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRefreshStoresDeviceMetadata(t *testing.T) {
	svc, repo := newTestService(t, googleStub())
	ctx := context.Background()

	pair := completeLogin(t, svc, core.ProviderGoogle)

	device := "cli/1.0"
	ip := "203.0.113.9"
	rotated, err := svc.Refresh(ctx, pair.RefreshToken, &device, &ip)
	require.NoError(t, err)

	sess, err := repo.GetActiveSessionByHash(ctx, tokens.SHA256Hex(rotated.RefreshToken), time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, sess.DeviceInfo)
	require.Equal(t, device, *sess.DeviceInfo)
	require.NotNil(t, sess.IPAddress)
	require.Equal(t, ip, *sess.IPAddress)
}

func TestDuplicateEmailRace(t *testing.T) {
	svc, repo := newTestService(t, googleStub())
	ctx := context.Background()

	// Otro request creó el usuario entre el lookup y el create.
	pre := &core.User{Email: "ada@example.com", IsActive: true}
	require.NoError(t, repo.CreateUser(ctx, pre))

	pair := completeLogin(t, svc, core.ProviderGoogle)
	require.Equal(t, pre.ID, pair.User.ID)

	merged, err := repo.GetUserByID(ctx, pre.ID)
	require.NoError(t, err)
	require.NotNil(t, merged.GoogleID)
	require.Equal(t, "g1", *merged.GoogleID)
}
