package records

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RepoMem is an in-memory record store for tests and development.
type RepoMem struct {
	mu      sync.Mutex
	records map[uuid.UUID]*ClinicalRecord
}

func NewRepoMem() *RepoMem {
	return &RepoMem{records: make(map[uuid.UUID]*ClinicalRecord)}
}

func (r *RepoMem) Create(_ context.Context, rec *ClinicalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *RepoMem) GetByID(_ context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *RepoMem) ListByPatient(_ context.Context, patientEmail string, limit, offset int) ([]Meta, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Meta
	for _, rec := range r.records {
		if rec.PatientEmail == patientEmail {
			all = append(all, rec.Meta())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
