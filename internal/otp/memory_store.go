package otp

import (
	"context"
	"sync"
)

type slot struct {
	phone   string
	purpose Purpose
}

type memoryStore struct {
	mu         sync.Mutex
	challenges map[slot]Challenge
}

// NewMemoryStore builds an in-memory challenge store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{challenges: make(map[slot]Challenge)}
}

func (s *memoryStore) Save(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[slot{c.Phone, c.Purpose}] = c
	return nil
}

func (s *memoryStore) Get(_ context.Context, phone string, purpose Purpose) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[slot{phone, purpose}]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) Delete(_ context.Context, phone string, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, slot{phone, purpose})
	return nil
}

func (s *memoryStore) RecordFailure(_ context.Context, c Challenge, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slot{c.Phone, c.Purpose}
	current, ok := s.challenges[key]
	if !ok || current.ID != c.ID {
		return 0, ErrNotFound
	}
	current.AttemptCount++
	if current.AttemptCount >= max {
		delete(s.challenges, key)
	} else {
		s.challenges[key] = current
	}
	return current.AttemptCount, nil
}

func (s *memoryStore) Consume(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slot{c.Phone, c.Purpose}
	current, ok := s.challenges[key]
	if !ok || current.ID != c.ID {
		return ErrNotFound
	}
	delete(s.challenges, key)
	return nil
}
