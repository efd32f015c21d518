package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"invite-auth/internal/domain"
)

// Errores de condiciones que la capa de datos decide de forma atomica.
var (
	// ErrAlreadyActive: la cuenta ya estaba activa, no se reasigna invite code.
	ErrAlreadyActive = errors.New("account already active")
	// ErrInviteCodeTaken: choque con el indice unico de invite_code; reintentar con otro codigo.
	ErrInviteCodeTaken = errors.New("invite code taken")
	// ErrAlreadyInvited: invited_by ya estaba escrito; se escribe a lo sumo una vez.
	ErrAlreadyInvited = errors.New("account already has inviter")
)

// AccountRepository define el contrato de persistencia para cuentas.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	FindOrCreateByPhone(ctx context.Context, phoneNumber string) (domain.Account, bool, error)
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByPhone(ctx context.Context, phoneNumber string) (domain.Account, error)
	GetByInviteCode(ctx context.Context, code string) (domain.Account, error)
	Activate(ctx context.Context, id, inviteCode string) error
	LinkInviter(ctx context.Context, id, inviterID string) error
	ListFollowers(ctx context.Context, id string) ([]domain.Account, error)
}

const uniqueViolation = "23505"

func newAccountID() string { return uuid.NewString() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `id, phone_number, is_active, is_staff, is_superuser,
		COALESCE(password_hash, ''), invite_code, invited_by, created_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.PhoneNumber,
		&a.IsActive,
		&a.IsStaff,
		&a.IsSuperuser,
		&a.PasswordHash,
		&a.InviteCode,
		&a.InvitedBy,
		&a.CreatedAt,
	)
	return a, err
}

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (id, phone_number, is_active, is_staff, is_superuser, password_hash, invite_code, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.PhoneNumber,
		account.IsActive,
		account.IsStaff,
		account.IsSuperuser,
		account.PasswordHash,
		account.InviteCode,
		account.InvitedBy,
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrInviteCodeTaken
	}
	return err
}

// FindOrCreateByPhone inserta la cuenta si no existe y la devuelve en cualquier caso.
// La unicidad descansa en el indice unico de phone_number, no en un chequeo previo.
func (r *PgAccountRepository) FindOrCreateByPhone(ctx context.Context, phoneNumber string) (domain.Account, bool, error) {
	const insert = `
		INSERT INTO accounts (id, phone_number, is_active, is_staff, is_superuser, created_at)
		VALUES ($1, $2, FALSE, FALSE, FALSE, NOW())
		ON CONFLICT (phone_number) DO NOTHING
		RETURNING ` + accountColumns

	account, err := scanAccount(r.pool.QueryRow(ctx, insert, newAccountID(), phoneNumber))
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, false, err
	}

	account, err = r.GetByPhone(ctx, phoneNumber)
	return account, false, err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByPhone(ctx context.Context, phoneNumber string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE phone_number = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, phoneNumber))
}

func (r *PgAccountRepository) GetByInviteCode(ctx context.Context, code string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE invite_code = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, code))
}

// Activate marca la cuenta activa y fija su invite code en un solo UPDATE.
// El guard is_active = FALSE hace la transicion a lo sumo una vez aunque dos
// verificaciones concurrentes lleguen con el mismo OTP.
func (r *PgAccountRepository) Activate(ctx context.Context, id, inviteCode string) error {
	const query = `
		UPDATE accounts
		SET is_active = TRUE, invite_code = $2
		WHERE id = $1 AND is_active = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, inviteCode)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrInviteCodeTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyActive
	}
	return nil
}

// LinkInviter escribe invited_by solo si sigue vacio (compare-and-set).
func (r *PgAccountRepository) LinkInviter(ctx context.Context, id, inviterID string) error {
	const query = `
		UPDATE accounts
		SET invited_by = $2
		WHERE id = $1 AND invited_by IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, inviterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyInvited
	}
	return nil
}

func (r *PgAccountRepository) ListFollowers(ctx context.Context, id string) ([]domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE invited_by = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		followers = append(followers, a)
	}
	return followers, rows.Err()
}
