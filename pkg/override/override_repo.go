package override

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	log "github.com/sirupsen/logrus"
)

var ErrRuleNotFound = errors.New("override rule not found")

type Repo interface {
	Create(ctx context.Context, rule Rule) error
	Get(ctx context.Context, id string) (Rule, error)
	Update(ctx context.Context, rule Rule) error
	Delete(ctx context.Context, id string) error
	// ListActive returns rules with the active flag set, for resolution.
	ListActive(ctx context.Context) ([]Rule, error)
	// List returns every rule, including inactive ones, for the admin view.
	List(ctx context.Context) ([]Rule, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

const ruleColumns = `id, scope, target_user_id, date_kind, single_date, start_date, end_date,
	pattern, recurrence_days, category, action, priority, active, expires_at,
	created_by, creator_role, reason, created_at`

func (r *RepoImpl) Create(ctx context.Context, rule Rule) error {
	query := `INSERT INTO override_rule (` + ruleColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		string(rule.Scope),
		rule.TargetUserID,
		string(rule.DateSpec.Kind),
		dateString(rule.DateSpec.Date),
		dateString(rule.DateSpec.StartDate),
		dateString(rule.DateSpec.EndDate),
		nullableString(string(rule.DateSpec.Pattern)),
		nullableString(joinDays(rule.DateSpec.RecurrenceDays)),
		string(rule.Category),
		string(rule.Action),
		rule.Priority,
		rule.Active,
		unixMilli(rule.ExpiresAt),
		rule.CreatedBy,
		string(rule.CreatorRole),
		rule.Reason,
		rule.CreatedAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not create override rule: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepoImpl) Get(ctx context.Context, id string) (Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM override_rule WHERE id = $1`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	} else if err != nil {
		err = fmt.Errorf("could not get override rule: %w", err)
		log.Error(err)
		return Rule{}, err
	}
	return rule, nil
}

func (r *RepoImpl) Update(ctx context.Context, rule Rule) error {
	query := `UPDATE override_rule
			  SET scope = $2, target_user_id = $3, date_kind = $4, single_date = $5,
			      start_date = $6, end_date = $7, pattern = $8, recurrence_days = $9,
			      category = $10, action = $11, priority = $12, active = $13,
			      expires_at = $14, reason = $15
			  WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		rule.ID,
		string(rule.Scope),
		rule.TargetUserID,
		string(rule.DateSpec.Kind),
		dateString(rule.DateSpec.Date),
		dateString(rule.DateSpec.StartDate),
		dateString(rule.DateSpec.EndDate),
		nullableString(string(rule.DateSpec.Pattern)),
		nullableString(joinDays(rule.DateSpec.RecurrenceDays)),
		string(rule.Category),
		string(rule.Action),
		rule.Priority,
		rule.Active,
		unixMilli(rule.ExpiresAt),
		rule.Reason,
	)
	if err != nil {
		err = fmt.Errorf("could not update override rule: %w", err)
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
		return ErrRuleNotFound
	}
	return nil
}

func (r *RepoImpl) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM override_rule WHERE id = $1`, id)
	if err != nil {
		err = fmt.Errorf("could not delete override rule: %w", err)
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
		return ErrRuleNotFound
	}
	return nil
}

func (r *RepoImpl) ListActive(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM override_rule WHERE active ORDER BY created_at DESC, id`
	return r.queryRules(ctx, query)
}

func (r *RepoImpl) List(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM override_rule ORDER BY created_at DESC, id`
	return r.queryRules(ctx, query)
}

func (r *RepoImpl) queryRules(ctx context.Context, query string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("could not query override rules: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	rules := make([]Rule, 0, 16)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			err = fmt.Errorf("could not scan override rule: %w", err)
			log.Error(err)
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("error iterating over override rules: %w", err)
		log.Error(err)
		return nil, err
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var rule Rule
	var scope, kind, category, action, creatorRole string
	var singleDate, startDate, endDate, pattern, recurrenceDays, reason sql.NullString
	var expiresAtMilli sql.NullInt64
	var createdAtMilli int64
	err := row.Scan(
		&rule.ID,
		&scope,
		&rule.TargetUserID,
		&kind,
		&singleDate,
		&startDate,
		&endDate,
		&pattern,
		&recurrenceDays,
		&category,
		&action,
		&rule.Priority,
		&rule.Active,
		&expiresAtMilli,
		&rule.CreatedBy,
		&creatorRole,
		&reason,
		&createdAtMilli,
	)
	if err != nil {
		return Rule{}, err
	}

	rule.Scope = Scope(scope)
	rule.DateSpec.Kind = DateSpecKind(kind)
	rule.Category = meal.RuleCategory(category)
	rule.Action = Action(action)
	rule.CreatorRole = user.Role(creatorRole)
	rule.Reason = reason.String
	rule.CreatedAt = time.UnixMilli(createdAtMilli)
	if expiresAtMilli.Valid {
		expiresAt := time.UnixMilli(expiresAtMilli.Int64)
		rule.ExpiresAt = &expiresAt
	}
	if rule.DateSpec.Date, err = parseDate(singleDate); err != nil {
		return Rule{}, err
	}
	if rule.DateSpec.StartDate, err = parseDate(startDate); err != nil {
		return Rule{}, err
	}
	if rule.DateSpec.EndDate, err = parseDate(endDate); err != nil {
		return Rule{}, err
	}
	if pattern.Valid {
		rule.DateSpec.Pattern = RecurrencePattern(pattern.String)
	}
	if rule.DateSpec.RecurrenceDays, err = parseDays(recurrenceDays.String); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func dateString(d *meal.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDate(s sql.NullString) (*meal.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := meal.ParseDate(s.String)
	if err != nil {
		return nil, fmt.Errorf("could not parse stored date %q: %w", s.String, err)
	}
	return &d, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	millis := t.UnixMilli()
	return &millis
}

// joinDays stores the recurrence-day set as a comma separated string, small
// enough that a join table is not worth it.
func joinDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		day, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("could not parse stored recurrence days %q: %w", s, err)
		}
		days = append(days, day)
	}
	return days, nil
}
