package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"invite-auth/internal/domain"
	"invite-auth/internal/repository"
)

type mockAccountRepo struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	byPhone  map[string]string
	byInvite map[string]string
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		byID:     make(map[string]domain.Account),
		byPhone:  make(map[string]string),
		byInvite: make(map[string]string),
	}
}

func (m *mockAccountRepo) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.InviteCode != nil {
		if _, taken := m.byInvite[*account.InviteCode]; taken {
			return repository.ErrInviteCodeTaken
		}
		m.byInvite[*account.InviteCode] = account.ID
	}
	m.byID[account.ID] = account
	m.byPhone[account.PhoneNumber] = account.ID
	return nil
}

func (m *mockAccountRepo) FindOrCreateByPhone(_ context.Context, phoneNumber string) (domain.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPhone[phoneNumber]; ok {
		return m.byID[id], false, nil
	}
	account := domain.Account{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		CreatedAt:   time.Now().UTC(),
	}
	m.byID[account.ID] = account
	m.byPhone[phoneNumber] = account.ID
	return account, true, nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return account, nil
}

func (m *mockAccountRepo) GetByPhone(_ context.Context, phoneNumber string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPhone[phoneNumber]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.byID[id], nil
}

func (m *mockAccountRepo) GetByInviteCode(_ context.Context, code string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byInvite[code]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.byID[id], nil
}

func (m *mockAccountRepo) Activate(_ context.Context, id, inviteCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if account.IsActive {
		return repository.ErrAlreadyActive
	}
	if _, taken := m.byInvite[inviteCode]; taken {
		return repository.ErrInviteCodeTaken
	}
	account.IsActive = true
	account.InviteCode = &inviteCode
	m.byID[id] = account
	m.byInvite[inviteCode] = id
	return nil
}

func (m *mockAccountRepo) LinkInviter(_ context.Context, id, inviterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if account.InvitedBy != nil {
		return repository.ErrAlreadyInvited
	}
	account.InvitedBy = &inviterID
	m.byID[id] = account
	return nil
}

func (m *mockAccountRepo) ListFollowers(_ context.Context, id string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var followers []domain.Account
	for _, account := range m.byID {
		if account.InvitedBy != nil && *account.InvitedBy == id {
			followers = append(followers, account)
		}
	}
	return followers, nil
}

type mockTokenIssuer struct {
	failures int
	calls    int
}

func (m *mockTokenIssuer) GeneratePair(account domain.Account) (TokenPair, error) {
	m.calls++
	if m.calls <= m.failures {
		return TokenPair{}, errors.New("transient signing error")
	}
	return TokenPair{
		AccessToken:  "access-" + account.ID,
		RefreshToken: "refresh-" + account.ID,
		ExpiresIn:    900,
	}, nil
}

type mockSMSSender struct {
	lastPhone string
	lastCode  string
	err       error
}

func (m *mockSMSSender) SendOTP(_ context.Context, toPhone, code string, _ time.Time) error {
	m.lastPhone = toPhone
	m.lastCode = code
	return m.err
}

func newTestAuthService(repo *mockAccountRepo, issuer TokenIssuer, opts AuthOptions) (*AuthService, *mockSMSSender) {
	sender := &mockSMSSender{}
	svc := NewAuthService(zap.NewNop(), repo, NewMemoryOTPStore(), issuer, sender, nil, opts)
	return svc, sender
}

func TestAuthService_SubmitThenVerify(t *testing.T) {
	repo := newMockAccountRepo()
	svc, sender := newTestAuthService(repo, &mockTokenIssuer{}, AuthOptions{})
	ctx := context.Background()

	result, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected new account")
	}
	if result.Account.IsActive {
		t.Fatalf("account must start inactive")
	}
	if len(result.OTP) != 4 {
		t.Fatalf("expected 4-digit otp, got %q", result.OTP)
	}
	if sender.lastPhone != "+77777777777" || sender.lastCode != result.OTP {
		t.Fatalf("sms sender got %q/%q", sender.lastPhone, sender.lastCode)
	}

	account, pair, err := svc.VerifyOTP(ctx, result.OTP)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !account.IsActive {
		t.Fatalf("expected active account after verify")
	}
	if account.InviteCode == nil || len(*account.InviteCode) != DefaultInviteCodeLength {
		t.Fatalf("expected %d-char invite code, got %v", DefaultInviteCodeLength, account.InviteCode)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}

	// El codigo se consume exactamente una vez.
	if _, _, err := svc.VerifyOTP(ctx, result.OTP); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on reuse, got %v", err)
	}
}

func TestAuthService_SubmitInvalidPhone(t *testing.T) {
	svc, _ := newTestAuthService(newMockAccountRepo(), &mockTokenIssuer{}, AuthOptions{})

	for _, raw := range []string{"1349745317454154", "abc", ""} {
		if _, err := svc.SubmitPhone(context.Background(), raw); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("SubmitPhone(%q): expected ErrInvalidPhone, got %v", raw, err)
		}
	}
}

func TestAuthService_VerifyBadFormat(t *testing.T) {
	svc, _ := newTestAuthService(newMockAccountRepo(), &mockTokenIssuer{}, AuthOptions{})

	for _, code := range []string{"", "123", "12345", "12a4"} {
		if _, _, err := svc.VerifyOTP(context.Background(), code); !errors.Is(err, ErrInvalidOTPFormat) {
			t.Fatalf("VerifyOTP(%q): expected ErrInvalidOTPFormat, got %v", code, err)
		}
	}
}

func TestAuthService_ExpiredOTP(t *testing.T) {
	repo := newMockAccountRepo()
	svc, _ := newTestAuthService(repo, &mockTokenIssuer{}, AuthOptions{OTPTTL: 50 * time.Millisecond})
	ctx := context.Background()

	result, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	time.Sleep(70 * time.Millisecond)

	if _, _, err := svc.VerifyOTP(ctx, result.OTP); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after expiry, got %v", err)
	}
}

func TestAuthService_RepeatVerificationKeepsInviteCode(t *testing.T) {
	repo := newMockAccountRepo()
	svc, _ := newTestAuthService(repo, &mockTokenIssuer{}, AuthOptions{})
	ctx := context.Background()

	first, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	activated, _, err := svc.VerifyOTP(ctx, first.OTP)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	second, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Created {
		t.Fatalf("expected existing account")
	}
	again, _, err := svc.VerifyOTP(ctx, second.OTP)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if again.InviteCode == nil || *again.InviteCode != *activated.InviteCode {
		t.Fatalf("invite code regenerated: %v vs %v", again.InviteCode, activated.InviteCode)
	}
}

func TestAuthService_TokenIssuanceRetries(t *testing.T) {
	repo := newMockAccountRepo()
	issuer := &mockTokenIssuer{failures: 2}
	svc, _ := newTestAuthService(repo, issuer, AuthOptions{})
	ctx := context.Background()

	result, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.VerifyOTP(ctx, result.OTP); err != nil {
		t.Fatalf("expected success after transient failures, got %v", err)
	}
	if issuer.calls != 3 {
		t.Fatalf("expected 3 signing attempts, got %d", issuer.calls)
	}
}

func TestAuthService_TokenIssuanceExhaustedLeavesOTPValid(t *testing.T) {
	repo := newMockAccountRepo()
	store := NewMemoryOTPStore()
	failing := &mockTokenIssuer{failures: 100}
	svc := NewAuthService(zap.NewNop(), repo, store, failing, &mockSMSSender{}, nil, AuthOptions{})
	ctx := context.Background()

	result, err := svc.SubmitPhone(ctx, "+77777777777")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.VerifyOTP(ctx, result.OTP); !errors.Is(err, ErrTokenIssuance) {
		t.Fatalf("expected ErrTokenIssuance, got %v", err)
	}
	if failing.calls != maxTokenIssueAttempts {
		t.Fatalf("expected %d attempts, got %d", maxTokenIssueAttempts, failing.calls)
	}

	// El OTP sigue vivo: el mismo codigo funciona cuando la firma se recupera.
	recovered := NewAuthService(zap.NewNop(), repo, store, &mockTokenIssuer{}, &mockSMSSender{}, nil, AuthOptions{})
	if _, _, err := recovered.VerifyOTP(ctx, result.OTP); err != nil {
		t.Fatalf("expected retry with same otp to succeed, got %v", err)
	}
}

func TestAuthService_RateLimited(t *testing.T) {
	repo := newMockAccountRepo()
	limiter := NewOTPRateLimiter(time.Minute, 1)
	svc := NewAuthService(zap.NewNop(), repo, NewMemoryOTPStore(), &mockTokenIssuer{}, &mockSMSSender{}, limiter, AuthOptions{})
	ctx := context.Background()

	if _, err := svc.SubmitPhone(ctx, "+77777777777"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.SubmitPhone(ctx, "+77777777777"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestAuthService_SMSDelayHonorsContext(t *testing.T) {
	repo := newMockAccountRepo()
	svc, _ := newTestAuthService(repo, &mockTokenIssuer{}, AuthOptions{SMSDelay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.SubmitPhone(ctx, "+77777777777")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("delay did not honor context cancellation")
	}
}
