// Package auth keeps the allow-list of accounts that may run admin commands.
package auth

import (
	"sort"
	"sync"
)

type Admin struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Repository interface {
	LoadAll() ([]Admin, error)
	Upsert(admin Admin) error
	Remove(id string) error
}

type Service struct {
	repo Repository

	mu     sync.RWMutex
	admins map[string]Admin
}

// NewWithRepo merges the repository contents with ids from the environment.
// repo may be nil when no admin file is configured.
func NewWithRepo(repo Repository, initial []string) (*Service, error) {
	s := &Service{repo: repo, admins: make(map[string]Admin)}
	if repo != nil {
		admins, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, a := range admins {
			s.admins[a.ID] = a
		}
	}
	for _, id := range initial {
		if id == "" {
			continue
		}
		if _, ok := s.admins[id]; !ok {
			s.admins[id] = Admin{ID: id}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[id]
	return ok
}

func (s *Service) Upsert(admin Admin) error {
	s.mu.Lock()
	s.admins[admin.ID] = admin
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(admin)
	}
	return nil
}

func (s *Service) Remove(id string) error {
	s.mu.Lock()
	delete(s.admins, id)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(id)
	}
	return nil
}

// List returns the admins ordered by id.
func (s *Service) List() []Admin {
	s.mu.RLock()
	out := make([]Admin, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
