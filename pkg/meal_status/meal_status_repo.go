package meal_status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	log "github.com/sirupsen/logrus"
)

var ErrRecordNotFound = errors.New("manual record not found")

type Repo interface {
	// Find returns the record for the exact triple, or nil when none exists.
	Find(ctx context.Context, userID int, date meal.Date, category meal.Category) (*ManualRecord, error)
	Upsert(ctx context.Context, record ManualRecord) error
	Delete(ctx context.Context, userID int, date meal.Date, category meal.Category) error
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Find(ctx context.Context, userID int, date meal.Date, category meal.Category) (*ManualRecord, error) {
	query := `SELECT user_id, date, category, is_on, meal_count, note, updated_by, updated_at
			  FROM manual_record WHERE user_id = $1 AND date = $2 AND category = $3`
	var record ManualRecord
	var dateString, categoryString string
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, userID, date.String(), string(category)).Scan(
		&record.UserID,
		&dateString,
		&categoryString,
		&record.IsOn,
		&record.Count,
		&record.Note,
		&record.UpdatedBy,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		err = fmt.Errorf("could not get manual record: %w", err)
		log.Error(err)
		return nil, err
	}

	record.Date, err = meal.ParseDate(dateString)
	if err != nil {
		err = fmt.Errorf("could not parse stored record date: %w", err)
		log.Error(err)
		return nil, err
	}
	record.Category = meal.Category(categoryString)
	record.UpdatedAt = time.UnixMilli(updatedAt)
	return &record, nil
}

func (r *RepoImpl) Upsert(ctx context.Context, record ManualRecord) error {
	query := `INSERT INTO manual_record (user_id, date, category, is_on, meal_count, note, updated_by, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (user_id, date, category) DO UPDATE SET
			      is_on = EXCLUDED.is_on,
			      meal_count = EXCLUDED.meal_count,
			      note = EXCLUDED.note,
			      updated_by = EXCLUDED.updated_by,
			      updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		record.UserID,
		record.Date.String(),
		string(record.Category),
		record.IsOn,
		record.Count,
		record.Note,
		record.UpdatedBy,
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not upsert manual record: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepoImpl) Delete(ctx context.Context, userID int, date meal.Date, category meal.Category) error {
	query := `DELETE FROM manual_record WHERE user_id = $1 AND date = $2 AND category = $3`
	result, err := r.db.ExecContext(ctx, query, userID, date.String(), string(category))
	if err != nil {
		err = fmt.Errorf("could not delete manual record: %w", err)
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
		return ErrRecordNotFound
	}
	return nil
}
