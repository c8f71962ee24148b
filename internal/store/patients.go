package store

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/model"
)

// PatientStore mirrors the server's patient list.
type PatientStore struct {
	*Store[model.Patient, model.PatientDraft]
	remote *PatientRemote
}

// NewPatientStore creates an empty patient store.
func NewPatientStore(remote *PatientRemote, log *zap.Logger) *PatientStore {
	return &PatientStore{
		Store:  newStore[model.Patient, model.PatientDraft]("patient", remote, log),
		remote: remote,
	}
}

// FetchAll replaces the collection with the server's patient list.
func (s *PatientStore) FetchAll(ctx context.Context) error {
	return s.fetch(ctx, 0, nil)
}

// Create submits draft and appends the created patient.
func (s *PatientStore) Create(ctx context.Context, draft model.PatientDraft) (model.Patient, error) {
	return s.create(ctx, 0, draft, nil)
}

// FetchOne loads a single patient and inserts or replaces it in the collection.
func (s *PatientStore) FetchOne(ctx context.Context, id int64) (model.Patient, error) {
	return s.upsert(ctx, id, func(ctx context.Context) (model.Patient, error) {
		return s.remote.Get(ctx, id)
	})
}

// FilterPatients returns the patients whose full name contains query, ignoring case.
// An empty query matches everything.
func FilterPatients(items []model.Patient, query string) []model.Patient {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Patient, 0, len(items))
	for _, p := range items {
		if q == "" || strings.Contains(strings.ToLower(p.FullName()), q) {
			out = append(out, p)
		}
	}
	return out
}
