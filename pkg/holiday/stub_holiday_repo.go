package holiday

import (
	"context"

	"github.com/messbook/messbook/pkg/meal"
)

type StubHolidayRepo struct {
	data map[string]Holiday // date key -> holiday
}

func NewStubHolidayRepo() *StubHolidayRepo {
	return &StubHolidayRepo{data: map[string]Holiday{}}
}

// Add registers a holiday; inactive entries are kept but never matched, same
// as the real repository.
func (s *StubHolidayRepo) Add(h Holiday) {
	s.data[h.Date.String()] = h
}

func (s *StubHolidayRepo) FindByDate(ctx context.Context, date meal.Date) (*Holiday, error) {
	h, ok := s.data[date.String()]
	if !ok || !h.Active {
		return nil, nil
	}
	return &h, nil
}
