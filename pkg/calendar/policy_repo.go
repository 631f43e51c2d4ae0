package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// PolicyRepo persists the single calendar policy row. Load returns the
// built-in default when nothing has been saved yet.
type PolicyRepo interface {
	Load(ctx context.Context) (Policy, error)
	Save(ctx context.Context, policy Policy) error
}

type PolicyRepoImpl struct {
	db *sql.DB
}

func NewPolicyRepo(db *sql.DB) *PolicyRepoImpl {
	return &PolicyRepoImpl{db: db}
}

func (r *PolicyRepoImpl) Load(ctx context.Context) (Policy, error) {
	query := `SELECT friday_off, saturday_off, odd_saturday_off, even_saturday_off,
					 government_holiday_off, religious_holiday_off, optional_holiday_off,
					 updated_by, updated_at
			  FROM calendar_policy WHERE id = 1`
	var p Policy
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query).Scan(
		&p.FridayOff,
		&p.SaturdayOff,
		&p.OddSaturdayOff,
		&p.EvenSaturdayOff,
		&p.GovernmentHolidayOff,
		&p.ReligiousHolidayOff,
		&p.OptionalHolidayOff,
		&p.UpdatedBy,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPolicy(), nil
	} else if err != nil {
		err = fmt.Errorf("could not load calendar policy: %w", err)
		log.Error(err)
		return Policy{}, err
	}
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return p, nil
}

func (r *PolicyRepoImpl) Save(ctx context.Context, policy Policy) error {
	query := `INSERT INTO calendar_policy (id, friday_off, saturday_off, odd_saturday_off, even_saturday_off,
										   government_holiday_off, religious_holiday_off, optional_holiday_off,
										   updated_by, updated_at)
			  VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (id) DO UPDATE SET
					friday_off = $1, saturday_off = $2, odd_saturday_off = $3, even_saturday_off = $4,
					government_holiday_off = $5, religious_holiday_off = $6, optional_holiday_off = $7,
					updated_by = $8, updated_at = $9`
	_, err := r.db.ExecContext(ctx, query,
		policy.FridayOff,
		policy.SaturdayOff,
		policy.OddSaturdayOff,
		policy.EvenSaturdayOff,
		policy.GovernmentHolidayOff,
		policy.ReligiousHolidayOff,
		policy.OptionalHolidayOff,
		policy.UpdatedBy,
		policy.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not save calendar policy: %w", err)
		log.Error(err)
		return err
	}
	return nil
}
