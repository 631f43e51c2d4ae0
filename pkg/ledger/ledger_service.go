package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ApplyRequest describes one ledger mutation. Amount is signed: deposits and
// refunds are positive, deductions negative, adjustments either way.
type ApplyRequest struct {
	UserID      int
	Category    meal.Category
	Amount      decimal.Decimal
	Kind        Kind
	ReferenceID *string
	Note        string
}

type Service interface {
	// Apply records a transaction and moves the balance accordingly.
	Apply(ctx context.Context, request ApplyRequest) (Transaction, error)
	// Reverse applies the exact inverse of an earlier transaction and marks
	// the original reversed, both in the same database transaction.
	Reverse(ctx context.Context, transactionID string, reason string) (Transaction, error)
	Freeze(ctx context.Context, userID int, category meal.Category, reason string) (Balance, error)
	Unfreeze(ctx context.Context, userID int, category meal.Category) (Balance, error)
	GetBalance(ctx context.Context, userID int, category meal.Category) (Balance, error)
	ListBalances(ctx context.Context, userID int) ([]Balance, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

type ServiceImpl struct {
	repo  Repo
	bus   *event_bus.EventBus
	clock utils.Clock
	locks pairLocks
}

func NewService(repo Repo, bus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, bus: bus, clock: clock}
}

// pairLocks hands out one mutex per (user, category) pair. Writers on the same
// balance serialize in-process before they ever reach the version check.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *pairLocks) lock(userID int, category meal.Category) (unlock func()) {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = map[string]*sync.Mutex{}
	}
	key := fmt.Sprintf("%d/%s", userID, category)
	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// The pair lock serializes writers within this process. The retry covers
// version races with other writers sharing the database.
const saveAttempts = 3

func (s *ServiceImpl) withConflictRetry(operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt < saveAttempts {
			log.Warnf("balance version conflict during %s, retrying (%d/%d)", operation, attempt, saveAttempts)
		}
	}
	return err
}

func (s *ServiceImpl) Apply(ctx context.Context, request ApplyRequest) (Transaction, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if !actor.Role.AtLeast(user.RoleManager) {
		return Transaction{}, fmt.Errorf("%w: only managers can record transactions", ErrPermissionDenied)
	}
	if request.UserID == 0 {
		request.UserID = actor.Id
	}
	if err := validateApply(request); err != nil {
		return Transaction{}, err
	}

	unlock := s.locks.lock(request.UserID, request.Category)
	defer unlock()

	var applied Transaction
	err = s.withConflictRetry("apply", func() error {
		return s.repo.WithTransaction(ctx, func(repo Repo) error {
			balance, err := repo.GetBalance(ctx, request.UserID, request.Category)
			if err != nil {
				return err
			}
			if balance.Frozen {
				return fmt.Errorf("%w: %s balance of user %d", ErrBalanceFrozen, request.Category, request.UserID)
			}

			now := s.clock.Now()
			previous := balance.Amount
			balance.Amount = previous.Add(request.Amount)
			balance.UpdatedAt = now
			if err := repo.SaveBalance(ctx, balance); err != nil {
				return err
			}

			applied = Transaction{
				ID:              uuid.NewString(),
				UserID:          request.UserID,
				Category:        request.Category,
				Amount:          request.Amount,
				PreviousBalance: previous,
				NewBalance:      balance.Amount,
				Kind:            request.Kind,
				ReferenceID:     request.ReferenceID,
				Note:            request.Note,
				ActorID:         actor.Id,
				CreatedAt:       now,
			}
			return repo.InsertTransaction(ctx, applied)
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	s.publishApplied(ctx, applied)
	return applied, nil
}

func validateApply(request ApplyRequest) error {
	if !request.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, request.Category)
	}
	if !request.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, request.Kind)
	}
	if request.Kind == KindReversal {
		return fmt.Errorf("%w: reversals are created through the reverse operation", ErrInvalidTransaction)
	}
	if request.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidTransaction)
	}
	return nil
}

func (s *ServiceImpl) Reverse(ctx context.Context, transactionID string, reason string) (Transaction, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if !actor.Role.AtLeast(user.RoleManager) {
		return Transaction{}, fmt.Errorf("%w: only managers can reverse transactions", ErrPermissionDenied)
	}
	if reason == "" {
		return Transaction{}, fmt.Errorf("%w: a reversal reason is required", ErrInvalidTransaction)
	}

	// The first read only locates the balance to lock. Every check runs again
	// on the transactional re-read below.
	located, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}

	unlock := s.locks.lock(located.UserID, located.Category)
	defer unlock()

	var reversal Transaction
	err = s.withConflictRetry("reverse", func() error {
		return s.repo.WithTransaction(ctx, func(repo Repo) error {
			original, err := repo.GetTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if original.Kind == KindReversal {
				return fmt.Errorf("%w: transaction %s is itself a reversal", ErrCannotReverse, transactionID)
			}
			if original.IsReversed {
				return fmt.Errorf("%w: transaction %s", ErrAlreadyReversed, transactionID)
			}

			balance, err := repo.GetBalance(ctx, original.UserID, original.Category)
			if err != nil {
				return err
			}
			if balance.Frozen {
				return fmt.Errorf("%w: %s balance of user %d", ErrBalanceFrozen, original.Category, original.UserID)
			}

			now := s.clock.Now()
			previous := balance.Amount
			balance.Amount = previous.Sub(original.Amount)
			balance.UpdatedAt = now
			if err := repo.SaveBalance(ctx, balance); err != nil {
				return err
			}

			referenceID := original.ID
			reversal = Transaction{
				ID:              uuid.NewString(),
				UserID:          original.UserID,
				Category:        original.Category,
				Amount:          original.Amount.Neg(),
				PreviousBalance: previous,
				NewBalance:      balance.Amount,
				Kind:            KindReversal,
				ReferenceID:     &referenceID,
				Note:            reason,
				ActorID:         actor.Id,
				CreatedAt:       now,
			}
			if err := repo.InsertTransaction(ctx, reversal); err != nil {
				return err
			}
			return repo.MarkReversed(ctx, original.ID)
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	s.publishApplied(ctx, reversal)
	return reversal, nil
}

func (s *ServiceImpl) Freeze(ctx context.Context, userID int, category meal.Category, reason string) (Balance, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Balance{}, err
	}
	if !actor.Role.AtLeast(user.RoleAdmin) {
		return Balance{}, fmt.Errorf("%w: only admins can freeze balances", ErrPermissionDenied)
	}
	if !category.Valid() {
		return Balance{}, fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, category)
	}
	if reason == "" {
		return Balance{}, fmt.Errorf("%w: a freeze reason is required", ErrInvalidTransaction)
	}
	if userID == 0 {
		userID = actor.Id
	}

	unlock := s.locks.lock(userID, category)
	defer unlock()

	var frozen Balance
	err = s.withConflictRetry("freeze", func() error {
		return s.repo.WithTransaction(ctx, func(repo Repo) error {
			// Freezing a pair with no row yet persists a frozen zero balance.
			balance, err := repo.GetBalance(ctx, userID, category)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			balance.Frozen = true
			balance.FrozenBy = &actor.Id
			balance.FrozenAt = &now
			balance.FrozenReason = reason
			balance.UpdatedAt = now
			if err := repo.SaveBalance(ctx, balance); err != nil {
				return err
			}
			frozen = balance
			return nil
		})
	})
	if err != nil {
		return Balance{}, err
	}
	return frozen, nil
}

func (s *ServiceImpl) Unfreeze(ctx context.Context, userID int, category meal.Category) (Balance, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Balance{}, err
	}
	if !actor.Role.AtLeast(user.RoleAdmin) {
		return Balance{}, fmt.Errorf("%w: only admins can unfreeze balances", ErrPermissionDenied)
	}
	if !category.Valid() {
		return Balance{}, fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, category)
	}
	if userID == 0 {
		userID = actor.Id
	}

	unlock := s.locks.lock(userID, category)
	defer unlock()

	var thawed Balance
	err = s.withConflictRetry("unfreeze", func() error {
		return s.repo.WithTransaction(ctx, func(repo Repo) error {
			balance, err := repo.GetBalance(ctx, userID, category)
			if err != nil {
				return err
			}
			if !balance.Frozen {
				thawed = balance
				return nil
			}
			balance.Frozen = false
			balance.FrozenBy = nil
			balance.FrozenAt = nil
			balance.FrozenReason = ""
			balance.UpdatedAt = s.clock.Now()
			if err := repo.SaveBalance(ctx, balance); err != nil {
				return err
			}
			thawed = balance
			return nil
		})
	})
	if err != nil {
		return Balance{}, err
	}
	return thawed, nil
}

func (s *ServiceImpl) GetBalance(ctx context.Context, userID int, category meal.Category) (Balance, error) {
	subject, err := s.resolveSubject(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	if !category.Valid() {
		return Balance{}, fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, category)
	}
	return s.repo.GetBalance(ctx, subject, category)
}

func (s *ServiceImpl) ListBalances(ctx context.Context, userID int) ([]Balance, error) {
	subject, err := s.resolveSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, subject)
}

func (s *ServiceImpl) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	subject, err := s.resolveSubject(ctx, filter.UserID)
	if err != nil {
		return nil, err
	}
	filter.UserID = subject
	if filter.Category != nil && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, *filter.Category)
	}
	return s.repo.ListTransactions(ctx, filter)
}

// resolveSubject returns the user a read targets, defaulting to the actor.
// Reading another member's ledger requires manager rank.
func (s *ServiceImpl) resolveSubject(ctx context.Context, userID int) (int, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return 0, err
	}
	if userID == 0 || userID == actor.Id {
		return actor.Id, nil
	}
	if !actor.Role.AtLeast(user.RoleManager) {
		return 0, fmt.Errorf("%w: members can only view their own ledger", ErrPermissionDenied)
	}
	return userID, nil
}

func (s *ServiceImpl) publishApplied(ctx context.Context, transaction Transaction) {
	event := event_bus.NewEvent(ctx, event_bus.TransactionAppliedEvent, event_bus.TransactionApplied{
		TransactionID: transaction.ID,
		UserID:        transaction.UserID,
		Category:      string(transaction.Category),
		Kind:          string(transaction.Kind),
		Amount:        transaction.Amount,
		NewBalance:    transaction.NewBalance,
		AppliedAt:     transaction.CreatedAt,
	})
	if err := s.bus.Publish(event); err != nil {
		log.Errorf("could not publish transaction applied event: %v", err)
	}
}
