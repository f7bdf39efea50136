package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// RoleBuyer is the only role issued to buyer sessions.
const RoleBuyer = "buyer"

const tokenTTL = 24 * time.Hour

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// BalanceOpener opens the buyer's balance inside the registration transaction.
type BalanceOpener interface {
	Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error)
}

type Registration struct {
	Account      *models.Account `json:"account"`
	Token        string          `json:"token"`
	BalanceCents int64           `json:"balance_cents"`
}

type Service interface {
	Register(ctx context.Context, email, password, name string) (*Registration, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

type service struct {
	db       TxBeginner
	accounts AccountStore
	balances BalanceOpener
	config   *platformconfig.Provider
	secret   []byte
	now      func() time.Time
	log      *slog.Logger
}

func NewService(db TxBeginner, accounts AccountStore, balances BalanceOpener, cfg *platformconfig.Provider, secret string, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		db:       db,
		accounts: accounts,
		balances: balances,
		config:   cfg,
		secret:   []byte(secret),
		now:      time.Now,
		log:      log,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account and its balance, seeded with the signup credit, in one transaction.
func (s *service) Register(ctx context.Context, email, password, name string) (*Registration, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, apperror.Validation("email: invalid address")
	}
	if len(password) < 8 {
		return nil, apperror.Validation("password: must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	signup := platformconfig.DefaultSignup()
	if s.config != nil {
		signup = s.config.Signup(ctx)
	}

	acc := &models.Account{ID: uuid.New(), Email: email, Name: strings.TrimSpace(name), PasswordHash: string(hash)}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.accounts.Create(ctx, tx, acc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperror.Conflict("Email already registered", "")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	bal, err := s.balances.Open(ctx, tx, acc.ID, signup.BuyerFreeCreditCents)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}

	token, err := s.issueToken(acc.ID, RoleBuyer)
	if err != nil {
		return nil, err
	}
	s.log.Info("buyer registered", "account_id", acc.ID, "free_credit_cents", signup.BuyerFreeCreditCents)
	return &Registration{Account: acc, Token: token, BalanceCents: bal.AmountCents}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", apperror.Unauthorized("invalid credentials")
	}
	return s.issueToken(acc.ID, RoleBuyer)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}
