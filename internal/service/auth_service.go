package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"invite-auth/internal/domain"
	"invite-auth/internal/phone"
	"invite-auth/internal/repository"
	"invite-auth/internal/sms"
)

var (
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidOTPFormat = errors.New("otp must be 4 digits")
	ErrRateLimited      = errors.New("rate limited")
	ErrTokenIssuance    = errors.New("token issuance failed")
)

const (
	defaultOTPTTL = 120 * time.Second

	// El espacio de codigos es 10^4; con volumen bajo de OTPs vivos un claim
	// libre aparece en el primer o segundo intento. El tope evita colgarse si
	// el store quedara saturado.
	maxOTPClaimAttempts = 50

	// Reintentos ante choque con el indice unico de invite_code.
	maxInviteCodeAttempts = 5

	// Reintentos ante errores transitorios al firmar tokens.
	maxTokenIssueAttempts = 3
)

// TokenIssuer emite pares access/refresh para una cuenta. Lo implementa
// JWTService; como interfaz para poder simular fallos transitorios en tests.
type TokenIssuer interface {
	GeneratePair(account domain.Account) (TokenPair, error)
}

// AuthService orquesta el registro por telefono, la verificacion del OTP, la
// activacion de la cuenta y la emision de tokens.
type AuthService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	otps     OTPStore
	codes    CodeGenerator
	jwt      TokenIssuer
	sender   sms.Sender
	limiter  OTPRateLimiter

	otpTTL        time.Duration
	smsDelay      time.Duration
	defaultRegion string
}

// AuthOptions agrupa los parametros de comportamiento del flujo de autenticacion.
type AuthOptions struct {
	// OTPTTL es la ventana de validez del codigo (por defecto 120s).
	OTPTTL time.Duration
	// SMSDelay simula la latencia de entrega por SMS durante el submit.
	// Bloquea solo esa peticion, sin sostener ningun lock.
	SMSDelay time.Duration
	// DefaultRegion para numeros sin prefijo internacional.
	DefaultRegion string
}

func NewAuthService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	otps OTPStore,
	jwtSvc TokenIssuer,
	sender sms.Sender,
	limiter OTPRateLimiter,
	opts AuthOptions,
) *AuthService {
	if otps == nil {
		otps = NewMemoryOTPStore()
	}
	if sender == nil {
		sender = sms.NewDisabledSender("sms sender not configured")
	}
	ttl := opts.OTPTTL
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	return &AuthService{
		logger:        logger,
		accounts:      accounts,
		otps:          otps,
		jwt:           jwtSvc,
		sender:        sender,
		limiter:       limiter,
		otpTTL:        ttl,
		smsDelay:      opts.SMSDelay,
		defaultRegion: opts.DefaultRegion,
	}
}

// SubmitResult es el resultado de registrar un numero de telefono.
type SubmitResult struct {
	Account domain.Account
	OTP     string
	Created bool
}

// SubmitPhone valida el numero, crea la cuenta si no existe y deja un OTP vivo
// en el store. Devuelve el OTP para entregarlo en la respuesta; el envio real
// por SMS es un colaborador externo y aqui es best-effort.
func (s *AuthService) SubmitPhone(ctx context.Context, rawPhone string) (SubmitResult, error) {
	e164, err := phone.Canonicalize(rawPhone, s.defaultRegion)
	if err != nil {
		return SubmitResult{}, ErrInvalidPhone
	}

	if s.limiter != nil && !s.limiter.Allow(e164) {
		return SubmitResult{}, ErrRateLimited
	}

	account, created, err := s.accounts.FindOrCreateByPhone(ctx, e164)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.sleepSMSDelay(ctx); err != nil {
		return SubmitResult{}, err
	}

	code, err := s.claimOTP(ctx, account.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	expiresAt := time.Now().UTC().Add(s.otpTTL)
	if err := s.sender.SendOTP(ctx, e164, code, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send otp sms failed", zap.Error(err), zap.String("phone", e164))
		}
	}

	return SubmitResult{Account: account, OTP: code, Created: created}, nil
}

// claimOTP genera candidatos hasta ganar un claim atomico en el store, de modo
// que nunca hay dos entradas vivas con el mismo codigo.
func (s *AuthService) claimOTP(ctx context.Context, accountID string) (string, error) {
	for attempt := 0; attempt < maxOTPClaimAttempts; attempt++ {
		code, err := s.codes.OTP()
		if err != nil {
			return "", err
		}
		ok, err := s.otps.Claim(ctx, code, accountID, s.otpTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not claim a free otp after %d attempts", maxOTPClaimAttempts)
}

func (s *AuthService) sleepSMSDelay(ctx context.Context) error {
	if s.smsDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.smsDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VerifyOTP consume un codigo vivo: activa la cuenta en la primera verificacion
// (asignandole su invite code) y emite el par de tokens. El codigo se borra del
// store recien despues de emitir tokens, asi un fallo de firma lo deja valido
// para reintentar.
func (s *AuthService) VerifyOTP(ctx context.Context, code string) (domain.Account, TokenPair, error) {
	if !isValidOTPCode(code) {
		return domain.Account{}, TokenPair{}, ErrInvalidOTPFormat
	}

	accountID, err := s.otps.Get(ctx, code)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, TokenPair{}, ErrOTPNotFound
		}
		return domain.Account{}, TokenPair{}, err
	}

	if !account.IsActive {
		account, err = s.activate(ctx, account)
		if err != nil {
			return domain.Account{}, TokenPair{}, err
		}
	}

	pair, err := s.issueTokens(account)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}

	if err := s.otps.Delete(ctx, code); err != nil && s.logger != nil {
		s.logger.Warn("delete consumed otp failed", zap.Error(err))
	}

	return account, pair, nil
}

// activate asigna un invite code fresco y marca la cuenta activa. Un choque con
// el indice unico reintenta con otro candidato; si otra peticion concurrente ya
// activo la cuenta se relee y se sigue sin regenerar el codigo.
func (s *AuthService) activate(ctx context.Context, account domain.Account) (domain.Account, error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		inviteCode, err := s.codes.InviteCode(DefaultInviteCodeLength)
		if err != nil {
			return domain.Account{}, err
		}
		err = s.accounts.Activate(ctx, account.ID, inviteCode)
		switch {
		case err == nil:
			account.IsActive = true
			account.InviteCode = &inviteCode
			return account, nil
		case errors.Is(err, repository.ErrInviteCodeTaken):
			continue
		case errors.Is(err, repository.ErrAlreadyActive):
			return s.accounts.GetByID(ctx, account.ID)
		default:
			return domain.Account{}, err
		}
	}
	return domain.Account{}, fmt.Errorf("could not assign a unique invite code after %d attempts", maxInviteCodeAttempts)
}

// issueTokens reintenta la firma un numero acotado de veces antes de rendirse.
func (s *AuthService) issueTokens(account domain.Account) (TokenPair, error) {
	var lastErr error
	for attempt := 0; attempt < maxTokenIssueAttempts; attempt++ {
		pair, err := s.jwt.GeneratePair(account)
		if err == nil {
			return pair, nil
		}
		lastErr = err
		if s.logger != nil {
			s.logger.Warn("token issuance attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		}
	}
	return TokenPair{}, fmt.Errorf("%w: %v", ErrTokenIssuance, lastErr)
}

func isValidOTPCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
