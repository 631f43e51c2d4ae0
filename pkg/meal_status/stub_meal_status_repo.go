package meal_status

import (
	"context"
	"fmt"

	"github.com/messbook/messbook/pkg/meal"
)

type StubRepo struct {
	data map[string]ManualRecord
}

func NewStubRepo() *StubRepo {
	return &StubRepo{data: map[string]ManualRecord{}}
}

func recordKey(userID int, date meal.Date, category meal.Category) string {
	return fmt.Sprintf("%d/%s/%s", userID, date, category)
}

func (s *StubRepo) Find(_ context.Context, userID int, date meal.Date, category meal.Category) (*ManualRecord, error) {
	record, ok := s.data[recordKey(userID, date, category)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *StubRepo) Upsert(_ context.Context, record ManualRecord) error {
	s.data[recordKey(record.UserID, record.Date, record.Category)] = record
	return nil
}

func (s *StubRepo) Delete(_ context.Context, userID int, date meal.Date, category meal.Category) error {
	key := recordKey(userID, date, category)
	if _, ok := s.data[key]; !ok {
		return ErrRecordNotFound
	}
	delete(s.data, key)
	return nil
}
