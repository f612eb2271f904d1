package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/users"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/metrics"
	"github.com/mercaline/storefront-backend/pkg/pagination"
)

// Service posts immutable ledger entries and keeps the cached user balance in
// step with them. Posting and the balance adjustment happen in one database
// transaction; the balance write is an atomic increment, so concurrent
// postings for the same user serialize on the row instead of racing a
// read-modify-write.
type Service interface {
	Post(ctx context.Context, input PostInput) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	HasReference(ctx context.Context, reference string) (bool, error)
	PostOrderEntries(ctx context.Context, order *models.Order, source enums.TransactionSource, prefix, correlationID string) error
}

// PostInput captures one ledger entry before it is written.
type PostInput struct {
	UserID         uuid.UUID
	OrderID        *uuid.UUID
	Kind           enums.TransactionKind
	Category       enums.TransactionCategory
	Source         enums.TransactionSource
	AmountCents    int64
	PointsEarned   int64
	PointsRedeemed int64
	Description    string
	Reference      string
	CouponID       *uuid.UUID
	CouponCode     *string
	Metadata       json.RawMessage
}

type service struct {
	db      *gorm.DB
	repo    Repository
	users   users.Repository
	metrics *metrics.CheckoutMetrics
}

// NewService wires the ledger service. Metrics may be nil.
func NewService(conn *gorm.DB, repo Repository, userRepo users.Repository, checkoutMetrics *metrics.CheckoutMetrics) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{db: conn, repo: repo, users: userRepo, metrics: checkoutMetrics}, nil
}

// Post appends one entry. It is idempotent on Reference: posting the same
// reference twice returns (nil, nil) on the second call without touching the
// balance. A single-use coupon collision surfaces as NOT_ELIGIBLE; the unique
// index makes the second insert fail atomically even when two postings pass
// the eligibility pre-check together.
func (s *service) Post(ctx context.Context, input PostInput) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var entry *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		userRepo := s.users.WithTx(tx)

		exists, err := repo.HasByReference(ctx, input.Reference)
		if err != nil {
			return fmt.Errorf("checking reference: %w", err)
		}
		if exists {
			return nil
		}

		delta := input.PointsEarned - input.PointsRedeemed
		if err := userRepo.AdjustRewardPoints(ctx, input.UserID, delta); err != nil {
			return fmt.Errorf("adjusting balance: %w", err)
		}

		user, err := userRepo.FindByID(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return fmt.Errorf("reading balance: %w", err)
		}
		if user.RewardPoints < 0 {
			return pkgerrors.New(pkgerrors.CodeNotEligible, "insufficient reward points")
		}

		entry = &models.Transaction{
			ID:             uuid.New(),
			UserID:         input.UserID,
			OrderID:        input.OrderID,
			Kind:           input.Kind,
			Category:       input.Category,
			Source:         input.Source,
			AmountCents:    input.AmountCents,
			PointsEarned:   input.PointsEarned,
			PointsRedeemed: input.PointsRedeemed,
			BalanceAfter:   user.RewardPoints,
			Description:    input.Description,
			Reference:      input.Reference,
			CouponID:       input.CouponID,
			CouponCode:     input.CouponCode,
			Metadata:       input.Metadata,
		}
		return repo.Create(ctx, entry)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "coupon") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotEligible, err, "coupon already used")
		}
		if db.IsUniqueViolation(err, "reference") {
			// Lost an insert race to an identical posting; treat as the
			// duplicate no-op the pre-check would have caught.
			return nil, nil
		}
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "posting ledger entry")
	}
	if entry == nil {
		return nil, nil
	}
	s.metrics.IncLedgerPosting(string(input.Category))
	return entry, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	entries, err := s.repo.ListByUser(ctx, userID, pagination.NormalizeLimit(limit), pagination.NormalizeOffset(offset))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger entries")
	}
	return entries, nil
}

// Balance returns the balanceAfter of the user's most recent entry, the
// authoritative value the cached projection must agree with.
func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	entry, err := s.repo.LatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading latest entry")
	}
	return entry.BalanceAfter, nil
}

func (s *service) HasReference(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	return s.repo.HasByReference(ctx, reference)
}

func (in PostInput) validate() error {
	if in.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !in.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", in.Kind))
	}
	if !in.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction category %q", in.Category))
	}
	if !in.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction source %q", in.Source))
	}
	if in.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if in.AmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if in.PointsEarned < 0 || in.PointsRedeemed < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must not be negative")
	}
	return nil
}
