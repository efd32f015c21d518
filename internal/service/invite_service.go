package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"invite-auth/internal/domain"
	"invite-auth/internal/repository"
)

var (
	ErrInvalidInviteFormat = errors.New("invite code must be 6 characters")
	ErrInviteCodeNotFound  = errors.New("invite code not found")
	ErrAlreadyInvited      = errors.New("account already has inviter")
	ErrSelfInvite          = errors.New("cannot redeem own invite code")
	ErrAccountNotFound     = errors.New("account not found")
)

// InviteService aplica el canje de codigos de invitacion y expone la lista de
// invitados de una cuenta.
type InviteService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
}

func NewInviteService(logger *zap.Logger, accounts repository.AccountRepository) *InviteService {
	return &InviteService{logger: logger, accounts: accounts}
}

// Redeem enlaza al dueño del codigo como invitador de accountID. El enlace se
// escribe a lo sumo una vez: gana el primer canje y los siguientes fallan con
// ErrAlreadyInvited. Canjear el propio codigo se rechaza.
func (s *InviteService) Redeem(ctx context.Context, accountID, code string) (domain.Account, error) {
	code = strings.TrimSpace(code)
	if len(code) != DefaultInviteCodeLength {
		return domain.Account{}, ErrInvalidInviteFormat
	}

	inviter, err := s.accounts.GetByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrInviteCodeNotFound
		}
		return domain.Account{}, err
	}
	if inviter.ID == accountID {
		return domain.Account{}, ErrSelfInvite
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	if account.HasInviter() {
		return domain.Account{}, ErrAlreadyInvited
	}

	if err := s.accounts.LinkInviter(ctx, accountID, inviter.ID); err != nil {
		// El perdedor de un canje concurrente tambien llega aqui.
		if errors.Is(err, repository.ErrAlreadyInvited) {
			return domain.Account{}, ErrAlreadyInvited
		}
		return domain.Account{}, err
	}

	if s.logger != nil {
		s.logger.Info("inviter linked",
			zap.String("account_id", accountID),
			zap.String("inviter_id", inviter.ID),
		)
	}
	return inviter, nil
}

// Followers devuelve las cuentas cuyo invited_by apunta a accountID.
// Es una consulta pura, sin mutaciones.
func (s *InviteService) Followers(ctx context.Context, accountID string) ([]domain.Account, error) {
	return s.accounts.ListFollowers(ctx, accountID)
}
