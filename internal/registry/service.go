package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
)

// TokenPrefix marks raw worker tokens.
const TokenPrefix = "ocw_"

// WorkerStore is the registry's view of the workers collection.
type WorkerStore interface {
	Create(ctx context.Context, w *models.Worker) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error)
	Authenticate(ctx context.Context, tokenHash string, now time.Time) (*models.Worker, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Worker, error)
	BindEmail(ctx context.Context, id uuid.UUID, email string) error
	BindPayout(ctx context.Context, id uuid.UUID, payout models.Payout) error
}

// Balances opens and reads worker balances.
type Balances interface {
	Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error)
	Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
}

// StatsSource builds the stats block returned by Me.
type StatsSource interface {
	Build(ctx context.Context, w *models.Worker) models.WorkerStats
}

type Registration struct {
	WorkerID uuid.UUID      `json:"worker_id"`
	Token    string         `json:"token"`
	Tier     string         `json:"tier"`
	Profile  models.Profile `json:"profile"`
}

// Me is the worker's own view: the worker record plus live stats and balance.
type Me struct {
	*models.Worker
	Stats   models.WorkerStats `json:"stats"`
	Balance *models.Balance    `json:"balance"`
}

type Service interface {
	Register(ctx context.Context, workerType string, info *models.ModelInfo) (*Registration, error)
	Authenticate(ctx context.Context, token string) (*models.Worker, error)
	Me(ctx context.Context, w *models.Worker) (*Me, error)
	UpdateProfile(ctx context.Context, workerID uuid.UUID, patch models.ProfilePatch) (*models.Worker, error)
	BindEmail(ctx context.Context, workerID uuid.UUID, email string) error
	BindPayout(ctx context.Context, workerID uuid.UUID, payout models.Payout) error
}

type service struct {
	workers  WorkerStore
	balances Balances
	stats    StatsSource
	now      func() time.Time
	log      *slog.Logger
}

func NewService(workers WorkerStore, balances Balances, stats StatsSource, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{workers: workers, balances: balances, stats: stats, now: time.Now, log: log}
}

var _ Service = (*service)(nil)

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken is the stored form of a raw worker token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Register creates a tier-new worker with a default profile and a zero balance.
// The raw token is only ever returned here.
func (s *service) Register(ctx context.Context, workerType string, info *models.ModelInfo) (*Registration, error) {
	workerType = strings.TrimSpace(workerType)
	if workerType == "" {
		return nil, apperror.Validation("worker_type is required")
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	w := &models.Worker{
		ID:         uuid.New(),
		TokenHash:  HashToken(token),
		WorkerType: workerType,
		ModelInfo:  info,
		Profile:    models.DefaultProfile(),
		Tier:       models.TierNew,
	}
	if err := s.workers.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}
	if _, err := s.balances.Open(ctx, nil, w.ID, 0); err != nil {
		return nil, fmt.Errorf("open worker balance: %w", err)
	}
	s.log.Info("worker registered", "worker_id", w.ID, "worker_type", workerType)
	return &Registration{WorkerID: w.ID, Token: token, Tier: w.Tier, Profile: w.Profile}, nil
}

func (s *service) Authenticate(ctx context.Context, token string) (*models.Worker, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, apperror.Unauthorized("invalid worker token")
	}
	w, err := s.workers.Authenticate(ctx, HashToken(token), s.now())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.Unauthorized("invalid worker token")
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate worker: %w", err)
	}
	return w, nil
}

func (s *service) Me(ctx context.Context, w *models.Worker) (*Me, error) {
	fresh, err := s.workers.GetByID(ctx, w.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("Worker")
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	bal, err := s.balances.Balance(ctx, w.ID)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	if bal == nil {
		bal = &models.Balance{UserID: w.ID}
	}
	return &Me{Worker: fresh, Stats: s.stats.Build(ctx, fresh), Balance: bal}, nil
}

func (s *service) UpdateProfile(ctx context.Context, workerID uuid.UUID, patch models.ProfilePatch) (*models.Worker, error) {
	if patch.IsEmpty() {
		return nil, apperror.Validation("profile patch must set preferences, schedule or limits")
	}
	w, err := s.workers.UpdateProfile(ctx, workerID, patch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("Worker")
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return w, nil
}

func (s *service) BindEmail(ctx context.Context, workerID uuid.UUID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return apperror.Validation("email: invalid address")
	}
	err := s.workers.BindEmail(ctx, workerID, email)
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return apperror.Conflict("Email is already bound to another worker", "")
	case errors.Is(err, pgx.ErrNoRows):
		return apperror.NotFound("Worker")
	case err != nil:
		return fmt.Errorf("bind email: %w", err)
	}
	return nil
}

func (s *service) BindPayout(ctx context.Context, workerID uuid.UUID, payout models.Payout) error {
	if payout.Method != models.PayoutPayPal && payout.Method != models.PayoutSolana {
		return apperror.Validation("method: must be paypal or solana")
	}
	payout.Address = strings.TrimSpace(payout.Address)
	if payout.Address == "" {
		return apperror.Validation("address: required")
	}
	err := s.workers.BindPayout(ctx, workerID, payout)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("Worker")
	}
	if err != nil {
		return fmt.Errorf("bind payout: %w", err)
	}
	return nil
}
