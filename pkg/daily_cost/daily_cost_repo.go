package daily_cost

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

type Repo interface {
	// WithTransaction runs fn against a repo bound to one database
	// transaction, committing when fn returns nil.
	WithTransaction(ctx context.Context, fn func(repo Repo) error) error
	Create(ctx context.Context, event CostEvent) error
	// Get returns the event with its ordered participants.
	Get(ctx context.Context, id string) (CostEvent, error)
	// FindByDate returns nil when no event exists for the date.
	FindByDate(ctx context.Context, date meal.Date) (*CostEvent, error)
	// Update rewrites the cost breakdown (total and participants) of a draft.
	Update(ctx context.Context, event CostEvent) error
	Delete(ctx context.Context, id string) error
	// MarkDeducted flips the participant's deducted flag. It fails when the
	// participant is missing or was already deducted, so a share can never be
	// charged twice.
	MarkDeducted(ctx context.Context, eventID string, userID int, at time.Time) error
	// MarkRefunded clears the deducted flag once the share has been refunded,
	// so a resumed reverse never refunds the same participant twice.
	MarkRefunded(ctx context.Context, eventID string, userID int) error
	SetFinalized(ctx context.Context, eventID string, at time.Time) error
	SetReversed(ctx context.Context, eventID string, reason string, at time.Time) error
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

const eventColumns = `id, date, category, total_cost, is_finalized, finalized_at,
	is_reversed, reversed_at, reverse_reason, created_by, created_at`

func (r *RepoImpl) Create(ctx context.Context, event CostEvent) error {
	query := `INSERT INTO daily_cost_event (` + eventColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.getQueryer().ExecContext(ctx, query,
		event.ID,
		event.Date.String(),
		string(event.Category),
		event.TotalCost.String(),
		event.IsFinalized,
		unixMilli(event.FinalizedAt),
		event.IsReversed,
		unixMilli(event.ReversedAt),
		event.ReverseReason,
		event.CreatedBy,
		event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not insert cost event: %w", err)
		log.Error(err)
		return err
	}
	return r.insertParticipants(ctx, event.ID, event.Participants)
}

func (r *RepoImpl) insertParticipants(ctx context.Context, eventID string, participants []Participant) error {
	query := `INSERT INTO daily_cost_participant (event_id, position, user_id, cost, deducted, deducted_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	for position, participant := range participants {
		_, err := r.getQueryer().ExecContext(ctx, query,
			eventID,
			position,
			participant.UserID,
			participant.Cost.String(),
			participant.Deducted,
			unixMilli(participant.DeductedAt),
		)
		if err != nil {
			err = fmt.Errorf("could not insert cost event participant: %w", err)
			log.Error(err)
			return err
		}
	}
	return nil
}

func (r *RepoImpl) Get(ctx context.Context, id string) (CostEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM daily_cost_event WHERE id = $1`
	event, err := scanEvent(r.getQueryer().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return CostEvent{}, ErrEventNotFound
	} else if err != nil {
		err = fmt.Errorf("could not get cost event: %w", err)
		log.Error(err)
		return CostEvent{}, err
	}
	if event.Participants, err = r.loadParticipants(ctx, event.ID); err != nil {
		return CostEvent{}, err
	}
	return event, nil
}

func (r *RepoImpl) FindByDate(ctx context.Context, date meal.Date) (*CostEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM daily_cost_event WHERE date = $1`
	event, err := scanEvent(r.getQueryer().QueryRowContext(ctx, query, date.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		err = fmt.Errorf("could not find cost event by date: %w", err)
		log.Error(err)
		return nil, err
	}
	if event.Participants, err = r.loadParticipants(ctx, event.ID); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *RepoImpl) loadParticipants(ctx context.Context, eventID string) ([]Participant, error) {
	query := `SELECT user_id, cost, deducted, deducted_at FROM daily_cost_participant
			  WHERE event_id = $1 ORDER BY position`
	rows, err := r.getQueryer().QueryContext(ctx, query, eventID)
	if err != nil {
		err = fmt.Errorf("could not query cost event participants: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	participants := make([]Participant, 0, 8)
	for rows.Next() {
		var participant Participant
		var cost string
		var deductedAtMilli sql.NullInt64
		if err := rows.Scan(&participant.UserID, &cost, &participant.Deducted, &deductedAtMilli); err != nil {
			err = fmt.Errorf("could not scan cost event participant: %w", err)
			log.Error(err)
			return nil, err
		}
		if participant.Cost, err = decimal.NewFromString(cost); err != nil {
			err = fmt.Errorf("could not parse stored cost %q: %w", cost, err)
			log.Error(err)
			return nil, err
		}
		if deductedAtMilli.Valid {
			deductedAt := time.UnixMilli(deductedAtMilli.Int64)
			participant.DeductedAt = &deductedAt
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("error iterating over cost event participants: %w", err)
		log.Error(err)
		return nil, err
	}
	return participants, nil
}

func (r *RepoImpl) Update(ctx context.Context, event CostEvent) error {
	query := `UPDATE daily_cost_event SET total_cost = $2 WHERE id = $1`
	result, err := r.getQueryer().ExecContext(ctx, query, event.ID, event.TotalCost.String())
	if err != nil {
		err = fmt.Errorf("could not update cost event: %w", err)
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
		return ErrEventNotFound
	}
	if err := r.deleteParticipants(ctx, event.ID); err != nil {
		return err
	}
	return r.insertParticipants(ctx, event.ID, event.Participants)
}

func (r *RepoImpl) Delete(ctx context.Context, id string) error {
	if err := r.deleteParticipants(ctx, id); err != nil {
		return err
	}
	result, err := r.getQueryer().ExecContext(ctx, `DELETE FROM daily_cost_event WHERE id = $1`, id)
	if err != nil {
		err = fmt.Errorf("could not delete cost event: %w", err)
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
		return ErrEventNotFound
	}
	return nil
}

func (r *RepoImpl) deleteParticipants(ctx context.Context, eventID string) error {
	_, err := r.getQueryer().ExecContext(ctx, `DELETE FROM daily_cost_participant WHERE event_id = $1`, eventID)
	if err != nil {
		err = fmt.Errorf("could not delete cost event participants: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepoImpl) MarkDeducted(ctx context.Context, eventID string, userID int, at time.Time) error {
	query := `UPDATE daily_cost_participant SET deducted = TRUE, deducted_at = $3
			  WHERE event_id = $1 AND user_id = $2 AND NOT deducted`
	result, err := r.getQueryer().ExecContext(ctx, query, eventID, userID, at.UnixMilli())
	if err != nil {
		err = fmt.Errorf("could not mark participant deducted: %w", err)
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
		return fmt.Errorf("participant %d of cost event %s is missing or already deducted", userID, eventID)
	}
	return nil
}

func (r *RepoImpl) MarkRefunded(ctx context.Context, eventID string, userID int) error {
	query := `UPDATE daily_cost_participant SET deducted = FALSE, deducted_at = NULL
			  WHERE event_id = $1 AND user_id = $2 AND deducted`
	result, err := r.getQueryer().ExecContext(ctx, query, eventID, userID)
	if err != nil {
		err = fmt.Errorf("could not mark participant refunded: %w", err)
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
		return fmt.Errorf("participant %d of cost event %s is missing or not deducted", userID, eventID)
	}
	return nil
}

func (r *RepoImpl) SetFinalized(ctx context.Context, eventID string, at time.Time) error {
	query := `UPDATE daily_cost_event SET is_finalized = TRUE, finalized_at = $2
			  WHERE id = $1 AND NOT is_finalized`
	result, err := r.getQueryer().ExecContext(ctx, query, eventID, at.UnixMilli())
	if err != nil {
		err = fmt.Errorf("could not finalize cost event: %w", err)
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
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *RepoImpl) SetReversed(ctx context.Context, eventID string, reason string, at time.Time) error {
	query := `UPDATE daily_cost_event SET is_reversed = TRUE, reversed_at = $3, reverse_reason = $2
			  WHERE id = $1 AND is_finalized AND NOT is_reversed`
	result, err := r.getQueryer().ExecContext(ctx, query, eventID, reason, at.UnixMilli())
	if err != nil {
		err = fmt.Errorf("could not reverse cost event: %w", err)
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

func scanEvent(row *sql.Row) (CostEvent, error) {
	var event CostEvent
	var date, category, totalCost string
	var finalizedAtMilli, reversedAtMilli sql.NullInt64
	var createdAtMilli int64
	err := row.Scan(
		&event.ID,
		&date,
		&category,
		&totalCost,
		&event.IsFinalized,
		&finalizedAtMilli,
		&event.IsReversed,
		&reversedAtMilli,
		&event.ReverseReason,
		&event.CreatedBy,
		&createdAtMilli,
	)
	if err != nil {
		return CostEvent{}, err
	}
	if event.Date, err = meal.ParseDate(date); err != nil {
		return CostEvent{}, fmt.Errorf("could not parse stored date: %w", err)
	}
	event.Category = meal.Category(category)
	if event.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return CostEvent{}, fmt.Errorf("could not parse stored total cost %q: %w", totalCost, err)
	}
	if finalizedAtMilli.Valid {
		finalizedAt := time.UnixMilli(finalizedAtMilli.Int64)
		event.FinalizedAt = &finalizedAt
	}
	if reversedAtMilli.Valid {
		reversedAt := time.UnixMilli(reversedAtMilli.Int64)
		event.ReversedAt = &reversedAt
	}
	event.CreatedAt = time.UnixMilli(createdAtMilli)
	return event, nil
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	millis := t.UnixMilli()
	return &millis
}
