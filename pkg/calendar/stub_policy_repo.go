package calendar

import (
	"context"
)

type StubPolicyRepo struct {
	stored *Policy

	LoadErr error
	SaveErr error
}

func NewStubPolicyRepo() *StubPolicyRepo {
	return &StubPolicyRepo{}
}

func (s *StubPolicyRepo) Load(_ context.Context) (Policy, error) {
	if s.LoadErr != nil {
		return Policy{}, s.LoadErr
	}
	if s.stored == nil {
		return DefaultPolicy(), nil
	}
	return *s.stored, nil
}

func (s *StubPolicyRepo) Save(_ context.Context, policy Policy) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.stored = &policy
	return nil
}
