package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TransactionFilter narrows a statement listing. UserID is required, the
// remaining fields are optional.
type TransactionFilter struct {
	UserID   int
	Category *meal.Category
	From     *time.Time
	To       *time.Time
}

type Repo interface {
	// WithTransaction runs fn against a repo bound to one database
	// transaction, committing when fn returns nil.
	WithTransaction(ctx context.Context, fn func(repo Repo) error) error
	// GetBalance returns the stored row, or a zero-amount balance with
	// Version 0 when the pair has none yet.
	GetBalance(ctx context.Context, userID int, category meal.Category) (Balance, error)
	ListBalances(ctx context.Context, userID int) ([]Balance, error)
	// SaveBalance persists the balance, bumping its version by one. Returns
	// ErrConflict when the stored version no longer matches balance.Version
	// (or, for a first save, when the row appeared concurrently).
	SaveBalance(ctx context.Context, balance Balance) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// MarkReversed flips is_reversed on a not-yet-reversed transaction.
	MarkReversed(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

type RepoImpl struct {
	db *sql.DB
	tx *sql.Tx
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db, tx: nil}
}

func (r *RepoImpl) getQueryer() interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepoImpl) WithTransaction(ctx context.Context, fn func(repo Repo) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op once the transaction has been committed.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepoImpl{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const balanceColumns = `user_id, category, amount, frozen, frozen_by, frozen_at, frozen_reason, version, updated_at`

func (r *RepoImpl) GetBalance(ctx context.Context, userID int, category meal.Category) (Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balance WHERE user_id = $1 AND category = $2`
	balance, err := scanBalance(r.getQueryer().QueryRowContext(ctx, query, userID, string(category)))
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{UserID: userID, Category: category, Amount: decimal.Zero}, nil
	} else if err != nil {
		err = fmt.Errorf("could not get balance: %w", err)
		log.Error(err)
		return Balance{}, err
	}
	return balance, nil
}

func (r *RepoImpl) ListBalances(ctx context.Context, userID int) ([]Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balance WHERE user_id = $1 ORDER BY category`
	rows, err := r.getQueryer().QueryContext(ctx, query, userID)
	if err != nil {
		err = fmt.Errorf("could not query balances: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	balances := make([]Balance, 0, 2)
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			err = fmt.Errorf("could not scan balance: %w", err)
			log.Error(err)
			return nil, err
		}
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("error iterating over balances: %w", err)
		log.Error(err)
		return nil, err
	}
	return balances, nil
}

func (r *RepoImpl) SaveBalance(ctx context.Context, balance Balance) error {
	if balance.Version == 0 {
		query := `INSERT INTO balance (` + balanceColumns + `)
				  VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
				  ON CONFLICT (user_id, category) DO NOTHING`
		result, err := r.getQueryer().ExecContext(ctx, query,
			balance.UserID,
			string(balance.Category),
			balance.Amount.String(),
			balance.Frozen,
			balance.FrozenBy,
			unixMilli(balance.FrozenAt),
			balance.FrozenReason,
			balance.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			err = fmt.Errorf("could not insert balance: %w", err)
			log.Error(err)
			return err
		}
		return conflictWhenUnaffected(result)
	}

	query := `UPDATE balance
			  SET amount = $3, frozen = $4, frozen_by = $5, frozen_at = $6,
			      frozen_reason = $7, version = version + 1, updated_at = $8
			  WHERE user_id = $1 AND category = $2 AND version = $9`
	result, err := r.getQueryer().ExecContext(ctx, query,
		balance.UserID,
		string(balance.Category),
		balance.Amount.String(),
		balance.Frozen,
		balance.FrozenBy,
		unixMilli(balance.FrozenAt),
		balance.FrozenReason,
		balance.UpdatedAt.UnixMilli(),
		balance.Version,
	)
	if err != nil {
		err = fmt.Errorf("could not update balance: %w", err)
		log.Error(err)
		return err
	}
	return conflictWhenUnaffected(result)
}

func conflictWhenUnaffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		err = fmt.Errorf("could not read affected rows: %w", err)
		log.Error(err)
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

const transactionColumns = `id, user_id, category, amount, previous_balance, new_balance, kind,
	reference_id, note, is_reversed, actor_id, created_at`

func (r *RepoImpl) InsertTransaction(ctx context.Context, transaction Transaction) error {
	query := `INSERT INTO ledger_transaction (` + transactionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.getQueryer().ExecContext(ctx, query,
		transaction.ID,
		transaction.UserID,
		string(transaction.Category),
		transaction.Amount.String(),
		transaction.PreviousBalance.String(),
		transaction.NewBalance.String(),
		string(transaction.Kind),
		transaction.ReferenceID,
		transaction.Note,
		transaction.IsReversed,
		transaction.ActorID,
		transaction.CreatedAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not insert transaction: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepoImpl) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transaction WHERE id = $1`
	transaction, err := scanTransaction(r.getQueryer().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	} else if err != nil {
		err = fmt.Errorf("could not get transaction: %w", err)
		log.Error(err)
		return Transaction{}, err
	}
	return transaction, nil
}

func (r *RepoImpl) MarkReversed(ctx context.Context, id string) error {
	query := `UPDATE ledger_transaction SET is_reversed = TRUE WHERE id = $1 AND NOT is_reversed`
	result, err := r.getQueryer().ExecContext(ctx, query, id)
	if err != nil {
		err = fmt.Errorf("could not mark transaction reversed: %w", err)
		log.Error(err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		err = fmt.Errorf("could not read affected rows: %w", err)
		log.Error(err)
		return err
	}
	if affected == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *RepoImpl) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transaction WHERE user_id = $1`
	args := []any{filter.UserID}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, filter.From.UnixMilli())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, filter.To.UnixMilli())
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.getQueryer().QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("could not query transactions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	transactions := make([]Transaction, 0, 32)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			err = fmt.Errorf("could not scan transaction: %w", err)
			log.Error(err)
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("error iterating over transactions: %w", err)
		log.Error(err)
		return nil, err
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (Balance, error) {
	var balance Balance
	var category, amount string
	var frozenAtMilli sql.NullInt64
	var updatedAtMilli int64
	err := row.Scan(
		&balance.UserID,
		&category,
		&amount,
		&balance.Frozen,
		&balance.FrozenBy,
		&frozenAtMilli,
		&balance.FrozenReason,
		&balance.Version,
		&updatedAtMilli,
	)
	if err != nil {
		return Balance{}, err
	}
	balance.Category = meal.Category(category)
	if balance.Amount, err = decimal.NewFromString(amount); err != nil {
		return Balance{}, fmt.Errorf("could not parse stored amount %q: %w", amount, err)
	}
	if frozenAtMilli.Valid {
		frozenAt := time.UnixMilli(frozenAtMilli.Int64)
		balance.FrozenAt = &frozenAt
	}
	balance.UpdatedAt = time.UnixMilli(updatedAtMilli)
	return balance, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var transaction Transaction
	var category, amount, previousBalance, newBalance, kind string
	var createdAtMilli int64
	err := row.Scan(
		&transaction.ID,
		&transaction.UserID,
		&category,
		&amount,
		&previousBalance,
		&newBalance,
		&kind,
		&transaction.ReferenceID,
		&transaction.Note,
		&transaction.IsReversed,
		&transaction.ActorID,
		&createdAtMilli,
	)
	if err != nil {
		return Transaction{}, err
	}
	transaction.Category = meal.Category(category)
	transaction.Kind = Kind(kind)
	if transaction.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, fmt.Errorf("could not parse stored amount %q: %w", amount, err)
	}
	if transaction.PreviousBalance, err = decimal.NewFromString(previousBalance); err != nil {
		return Transaction{}, fmt.Errorf("could not parse stored previous balance %q: %w", previousBalance, err)
	}
	if transaction.NewBalance, err = decimal.NewFromString(newBalance); err != nil {
		return Transaction{}, fmt.Errorf("could not parse stored new balance %q: %w", newBalance, err)
	}
	transaction.CreatedAt = time.UnixMilli(createdAtMilli)
	return transaction, nil
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	millis := t.UnixMilli()
	return &millis
}
