package override

import (
	"context"
	"sort"
)

type StubRepo struct {
	data map[string]Rule
}

func NewStubRepo() *StubRepo {
	return &StubRepo{data: map[string]Rule{}}
}

func (s *StubRepo) Create(_ context.Context, rule Rule) error {
	s.data[rule.ID] = rule
	return nil
}

func (s *StubRepo) Get(_ context.Context, id string) (Rule, error) {
	rule, ok := s.data[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (s *StubRepo) Update(_ context.Context, rule Rule) error {
	if _, ok := s.data[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	s.data[rule.ID] = rule
	return nil
}

func (s *StubRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.data[id]; !ok {
		return ErrRuleNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *StubRepo) ListActive(_ context.Context) ([]Rule, error) {
	rules := make([]Rule, 0, len(s.data))
	for _, rule := range s.data {
		if rule.Active {
			rules = append(rules, rule)
		}
	}
	sortByID(rules)
	return rules, nil
}

func (s *StubRepo) List(_ context.Context) ([]Rule, error) {
	rules := make([]Rule, 0, len(s.data))
	for _, rule := range s.data {
		rules = append(rules, rule)
	}
	sortByID(rules)
	return rules, nil
}

// sortByID keeps stub listings deterministic across map iterations.
func sortByID(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
}
