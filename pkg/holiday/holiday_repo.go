package holiday

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/messbook/messbook/pkg/meal"
	log "github.com/sirupsen/logrus"
)

// Repo reads the externally-maintained holiday calendar. Inactive entries are
// never returned; an absent holiday is reported as (nil, nil), not an error.
type Repo interface {
	FindByDate(ctx context.Context, date meal.Date) (*Holiday, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) FindByDate(ctx context.Context, date meal.Date) (*Holiday, error) {
	query := `SELECT date, name, classification FROM holidays WHERE date = $1 AND active`
	var dateStr, name, classification string
	err := r.db.QueryRowContext(ctx, query, date.String()).Scan(&dateStr, &name, &classification)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		err = fmt.Errorf("could not query holiday: %w", err)
		log.Error(err)
		return nil, err
	}
	h, err := scanHoliday(dateStr, name, classification)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHoliday(dateStr, name, classification string) (Holiday, error) {
	date, err := meal.ParseDate(dateStr)
	if err != nil {
		err = fmt.Errorf("could not parse holiday date from database: %w", err)
		log.Error(err)
		return Holiday{}, err
	}
	return Holiday{
		Date:           date,
		Name:           name,
		Classification: Classification(classification),
		Active:         true,
	}, nil
}
