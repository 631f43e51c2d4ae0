package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/shopspring/decimal"
)

// StubRepo is an in-memory Repo with real optimistic-version semantics, so
// service tests exercise the same conflict paths as the sql implementation.
type StubRepo struct {
	mu           sync.Mutex
	balances     map[string]Balance
	transactions map[string]Transaction

	// pendingConflicts makes the next n balance saves fail with ErrConflict.
	pendingConflicts int
}

func NewStubRepo() *StubRepo {
	return &StubRepo{
		balances:     map[string]Balance{},
		transactions: map[string]Transaction{},
	}
}

// InjectConflicts makes the next n SaveBalance calls fail with ErrConflict.
func (s *StubRepo) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingConflicts = n
}

func balanceKey(userID int, category meal.Category) string {
	return fmt.Sprintf("%d/%s", userID, category)
}

func (s *StubRepo) WithTransaction(_ context.Context, fn func(repo Repo) error) error {
	return fn(s)
}

func (s *StubRepo) GetBalance(_ context.Context, userID int, category meal.Category) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[balanceKey(userID, category)]
	if !ok {
		return Balance{UserID: userID, Category: category, Amount: decimal.Zero}, nil
	}
	return balance, nil
}

func (s *StubRepo) ListBalances(_ context.Context, userID int) ([]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make([]Balance, 0, 2)
	for _, balance := range s.balances {
		if balance.UserID == userID {
			balances = append(balances, balance)
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Category < balances[j].Category })
	return balances, nil
}

func (s *StubRepo) SaveBalance(_ context.Context, balance Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingConflicts > 0 {
		s.pendingConflicts--
		return ErrConflict
	}

	key := balanceKey(balance.UserID, balance.Category)
	current, exists := s.balances[key]
	if balance.Version == 0 {
		if exists {
			return ErrConflict
		}
		balance.Version = 1
		s.balances[key] = balance
		return nil
	}
	if !exists || current.Version != balance.Version {
		return ErrConflict
	}
	balance.Version++
	s.balances[key] = balance
	return nil
}

func (s *StubRepo) InsertTransaction(_ context.Context, transaction Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[transaction.ID] = transaction
	return nil
}

func (s *StubRepo) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transaction, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return transaction, nil
}

func (s *StubRepo) MarkReversed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	transaction, ok := s.transactions[id]
	if !ok || transaction.IsReversed {
		return ErrAlreadyReversed
	}
	transaction.IsReversed = true
	s.transactions[id] = transaction
	return nil
}

func (s *StubRepo) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transactions := make([]Transaction, 0, len(s.transactions))
	for _, transaction := range s.transactions {
		if transaction.UserID != filter.UserID {
			continue
		}
		if filter.Category != nil && transaction.Category != *filter.Category {
			continue
		}
		if filter.From != nil && transaction.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !transaction.CreatedAt.Before(*filter.To) {
			continue
		}
		transactions = append(transactions, transaction)
	}
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].CreatedAt.Equal(transactions[j].CreatedAt) {
			return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
		}
		return transactions[i].ID < transactions[j].ID
	})
	return transactions, nil
}
