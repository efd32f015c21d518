package http

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"invite-auth/internal/config"
	"invite-auth/internal/domain"
	"invite-auth/internal/repository"
	"invite-auth/internal/service"
	"invite-auth/internal/sms"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	byPhone  map[string]string
	byInvite map[string]string
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		byID:     make(map[string]domain.Account),
		byPhone:  make(map[string]string),
		byInvite: make(map[string]string),
	}
}

func (f *fakeAccountRepo) Create(_ context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.InviteCode != nil {
		f.byInvite[*account.InviteCode] = account.ID
	}
	f.byID[account.ID] = account
	f.byPhone[account.PhoneNumber] = account.ID
	return nil
}

func (f *fakeAccountRepo) FindOrCreateByPhone(_ context.Context, phoneNumber string) (domain.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byPhone[phoneNumber]; ok {
		return f.byID[id], false, nil
	}
	account := domain.Account{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		CreatedAt:   time.Now().UTC(),
	}
	f.byID[account.ID] = account
	f.byPhone[phoneNumber] = account.ID
	return account, true, nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return account, nil
}

func (f *fakeAccountRepo) GetByPhone(_ context.Context, phoneNumber string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPhone[phoneNumber]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return f.byID[id], nil
}

func (f *fakeAccountRepo) GetByInviteCode(_ context.Context, code string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byInvite[code]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return f.byID[id], nil
}

func (f *fakeAccountRepo) Activate(_ context.Context, id, inviteCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if account.IsActive {
		return repository.ErrAlreadyActive
	}
	if _, taken := f.byInvite[inviteCode]; taken {
		return repository.ErrInviteCodeTaken
	}
	account.IsActive = true
	account.InviteCode = &inviteCode
	f.byID[id] = account
	f.byInvite[inviteCode] = id
	return nil
}

func (f *fakeAccountRepo) LinkInviter(_ context.Context, id, inviterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if account.InvitedBy != nil {
		return repository.ErrAlreadyInvited
	}
	account.InvitedBy = &inviterID
	f.byID[id] = account
	return nil
}

func (f *fakeAccountRepo) ListFollowers(_ context.Context, id string) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var followers []domain.Account
	for _, account := range f.byID {
		if account.InvitedBy != nil && *account.InvitedBy == id {
			followers = append(followers, account)
		}
	}
	return followers, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MsgOTPSent:        "We will sent code to you in sms.(use %s), you have 2 minutes to confirm your number!",
		MsgOTPNotFound:    "Пользователь не найден, возможно вы ждали дольше 2 минут. Вернитесь на предыдущий шаг.",
		MsgInviterAdded:   "Inviter added!",
		MsgAlreadyInvited: "ERROR: you already have inviter!",
		MsgInviteNotFound: "ERROR: the client with code: %s not found.",
		MsgSelfInvite:     "ERROR: you can not use your own invite code.",
	}
}

type testEnv struct {
	router *gin.Engine
	repo   *fakeAccountRepo
	jwt    *service.JWTService
}

func setupTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	cfg := testConfig()
	repo := newFakeAccountRepo()

	jwtSvc := service.NewJWTServiceWithStore("test-secret", 15*time.Minute, 30*time.Minute, service.NewMemoryRefreshTokenStore())
	authSvc := service.NewAuthService(
		logger,
		repo,
		service.NewMemoryOTPStore(),
		jwtSvc,
		sms.NewDisabledSender(""),
		nil,
		service.AuthOptions{},
	)
	inviteSvc := service.NewInviteService(logger, repo)

	authH := NewAuthHandler(logger, authSvc, jwtSvc, cfg)
	profileH := NewProfileHandler(logger, repo, inviteSvc, cfg)
	router := NewRouter(logger, authH, profileH, jwtSvc, nil)

	return &testEnv{router: router, repo: repo, jwt: jwtSvc}
}
