package store

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/model"
)

// DiagnosisStore mirrors the diagnoses of the selected patient.
// Every diagnosis it holds belongs to the selected patient.
type DiagnosisStore struct {
	*Store[model.Diagnosis, model.DiagnosisDraft]

	selMu    sync.Mutex
	selected atomic.Int64  // 0: no selection
	gen      atomic.Uint64 // bumped on every selection change
	cancel   context.CancelFunc
}

// NewDiagnosisStore creates an empty diagnosis store with no selection.
func NewDiagnosisStore(remote *DiagnosisRemote, log *zap.Logger) *DiagnosisStore {
	return &DiagnosisStore{
		Store: newStore[model.Diagnosis, model.DiagnosisDraft]("diagnosis", remote, log),
	}
}

// Select makes patientID the current patient. When it differs from the
// previous selection the collection is cleared and an in-flight fetch for
// the previous patient is cancelled.
func (s *DiagnosisStore) Select(patientID int64) {
	if patientID < 0 {
		patientID = 0
	}
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if s.selected.Load() == patientID {
		return
	}
	s.selected.Store(patientID)
	s.gen.Add(1)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.reset()
}

// ClearSelection drops the selection and the collection.
func (s *DiagnosisStore) ClearSelection() { s.Select(0) }

// Selected returns the selected patient id.
func (s *DiagnosisStore) Selected() (int64, bool) {
	id := s.selected.Load()
	return id, id != 0
}

// FetchAll replaces the collection with the selected patient's diagnoses.
// A result that arrives after the selection changed is discarded and
// reported as errs.ErrSuperseded.
func (s *DiagnosisStore) FetchAll(ctx context.Context) error {
	s.selMu.Lock()
	pid := s.selected.Load()
	if pid == 0 {
		s.selMu.Unlock()
		return &errs.StoreError{Op: "fetch", Entity: s.name, Err: errs.ErrNoPatientSelected}
	}
	gen := s.gen.Load()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.selMu.Unlock()
	defer cancel()

	return s.fetch(ctx, pid, func() bool { return s.gen.Load() == gen })
}

// Create submits draft for the selected patient. A zero PatientID is
// filled from the selection; a different one is rejected.
func (s *DiagnosisStore) Create(ctx context.Context, draft model.DiagnosisDraft) (model.Diagnosis, error) {
	pid, ok := s.Selected()
	if !ok {
		return model.Diagnosis{}, &errs.StoreError{Op: "create", Entity: s.name, Err: errs.ErrNoPatientSelected}
	}
	if draft.PatientID == 0 {
		draft.PatientID = pid
	}
	if draft.PatientID != pid {
		return model.Diagnosis{}, &errs.StoreError{Op: "create", Entity: s.name, Err: errs.ErrPatientMismatch}
	}
	return s.create(ctx, pid, draft, func(d model.Diagnosis) bool {
		return s.selected.Load() == pid && (d.PatientID == 0 || d.PatientID == pid)
	})
}

// Update submits d, which must belong to the selected patient.
func (s *DiagnosisStore) Update(ctx context.Context, d model.Diagnosis) error {
	pid, ok := s.Selected()
	if !ok {
		return &errs.StoreError{Op: "update", Entity: s.name, ID: d.ID, Err: errs.ErrNoPatientSelected}
	}
	if d.PatientID == 0 {
		d.PatientID = pid
	}
	if d.PatientID != pid {
		return &errs.StoreError{Op: "update", Entity: s.name, ID: d.ID, Err: errs.ErrPatientMismatch}
	}
	return s.Store.Update(ctx, d)
}
