package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/metrics"
	"github.com/and161185/medrec/internal/model"
)

type staticToken string

func (s staticToken) CurrentToken() string { return string(s) }

// fakeRecords is an in-memory records service.
// Hooks run inside handlers and may block to force an interleaving.
type fakeRecords struct {
	t *testing.T

	mu         sync.Mutex
	nextID     int64
	patients   []model.Patient
	diagnoses  []model.Diagnosis
	log        []string // handled operations in completion order
	failDelete atomic.Bool

	afterListSnapshot func(r *http.Request)
	afterCreate       func(r *http.Request)
	beforeDelete      func()
}

func newFakeRecords(t *testing.T) *fakeRecords {
	return &fakeRecords{t: t, nextID: 100}
}

func (f *fakeRecords) record(op string) {
	f.mu.Lock()
	f.log = append(f.log, op)
	f.mu.Unlock()
}

func (f *fakeRecords) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.log)
}

func (f *fakeRecords) handler() http.Handler {
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	id := func(r *http.Request) int64 {
		n, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		return n
	}

	mux.HandleFunc("GET /patients", auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		snap := slices.Clone(f.patients)
		f.mu.Unlock()
		if f.afterListSnapshot != nil {
			f.afterListSnapshot(r)
		}
		f.record("patients.list")
		writeJSON(w, snap)
	}))
	mux.HandleFunc("POST /patients", auth(func(w http.ResponseWriter, r *http.Request) {
		var d model.PatientDraft
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&d)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		p := model.Patient{ID: f.nextID, FirstName: d.FirstName, LastName: d.LastName, Patronymic: d.Patronymic, Gender: d.Gender, DateOfBirth: d.DateOfBirth}
		f.patients = append(f.patients, p)
		f.mu.Unlock()
		if f.afterCreate != nil {
			f.afterCreate(r)
		}
		f.record("patients.create")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, p)
	}))
	mux.HandleFunc("GET /patients/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		i := slices.IndexFunc(f.patients, func(p model.Patient) bool { return p.ID == id(r) })
		if i < 0 {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"detail": "Patient not found"})
			return
		}
		writeJSON(w, f.patients[i])
	}))
	mux.HandleFunc("PUT /patients/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		var p model.Patient
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&p)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.patients {
			if f.patients[i].ID == id(r) {
				p.ID = id(r)
				f.patients[i] = p
				writeJSON(w, p)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	mux.HandleFunc("DELETE /patients/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.patients = slices.DeleteFunc(f.patients, func(p model.Patient) bool { return p.ID == id(r) })
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /patients/{id}/diagnoses/", auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		var out []model.Diagnosis
		for _, d := range f.diagnoses {
			if d.PatientID == id(r) {
				out = append(out, d)
			}
		}
		f.mu.Unlock()
		if f.afterListSnapshot != nil {
			f.afterListSnapshot(r)
		}
		f.record("diagnoses.list")
		writeJSON(w, out)
	}))
	mux.HandleFunc("POST /patients/{id}/diagnoses/", auth(func(w http.ResponseWriter, r *http.Request) {
		var d model.DiagnosisDraft
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&d)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(f.t, id(r), d.PatientID)
		f.mu.Lock()
		f.nextID++
		out := model.Diagnosis{ID: f.nextID, PatientID: id(r), Text: d.Text, Date: d.Date, Description: d.Description}
		f.diagnoses = append(f.diagnoses, out)
		f.mu.Unlock()
		writeJSON(w, out)
	}))
	mux.HandleFunc("PUT /diagnoses/{id}/", auth(func(w http.ResponseWriter, r *http.Request) {
		var d model.DiagnosisDraft
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&d)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.diagnoses {
			if f.diagnoses[i].ID == id(r) {
				f.diagnoses[i] = model.Diagnosis{ID: id(r), PatientID: d.PatientID, Text: d.Text, Date: d.Date, Description: d.Description}
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	mux.HandleFunc("DELETE /diagnoses/{id}/", auth(func(w http.ResponseWriter, r *http.Request) {
		if f.beforeDelete != nil {
			f.beforeDelete()
		}
		if f.failDelete.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]string{"detail": "database unavailable"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.diagnoses = slices.DeleteFunc(f.diagnoses, func(d model.Diagnosis) bool { return d.ID == id(r) })
		f.log = append(f.log, "diagnoses.delete")
	}))
	return mux
}

func newAPI(t *testing.T, f *fakeRecords) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	api, err := apiclient.New(srv.URL, apiclient.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return api.WithTokens(staticToken("tok"))
}

func ivanov() model.PatientDraft {
	return model.PatientDraft{
		FirstName:   "Иван",
		LastName:    "Иванов",
		Patronymic:  "Иванович",
		Gender:      model.GenderMale,
		DateOfBirth: model.NewDate(1980, time.May, 4),
	}
}

func countID(items []model.Patient, id int64) int {
	n := 0
	for _, p := range items {
		if p.ID == id {
			n++
		}
	}
	return n
}

func TestPatientStore_CRUD(t *testing.T) {
	f := newFakeRecords(t)
	f.patients = []model.Patient{
		{ID: 1, FirstName: "Анна", LastName: "Петрова", Patronymic: "Сергеевна", Gender: model.GenderFemale, DateOfBirth: model.NewDate(1990, time.January, 2)},
		{ID: 2, FirstName: "Олег", LastName: "Смирнов", Patronymic: "Петрович", Gender: model.GenderMale, DateOfBirth: model.NewDate(1975, time.March, 9)},
	}
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))

	require.NoError(t, s.FetchAll(context.Background()))
	require.Equal(t, []int64{1, 2}, ids(s.Items()))
	require.Equal(t, float64(2), testutil.ToFloat64(metrics.StoreItems.WithLabelValues("patient")))

	created, err := s.Create(context.Background(), ivanov())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, []int64{1, 2, created.ID}, ids(s.Items()))

	require.NoError(t, s.Delete(context.Background(), 1))
	require.Equal(t, []int64{2, created.ID}, ids(s.Items()))

	_, ok := s.Get(1)
	require.False(t, ok)
	got, ok := s.Get(created.ID)
	require.True(t, ok)
	require.Equal(t, "Иванов Иван Иванович", got.FullName())
}

func TestPatientStore_UpdateThenFetch(t *testing.T) {
	f := newFakeRecords(t)
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))

	p, err := s.Create(context.Background(), ivanov())
	require.NoError(t, err)

	p.LastName = "Сидоров"
	require.NoError(t, s.Update(context.Background(), p))
	got, _ := s.Get(p.ID)
	require.Equal(t, "Сидоров", got.LastName)

	require.NoError(t, s.FetchAll(context.Background()))
	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, "Сидоров", items[0].LastName)
}

func TestPatientStore_UpdateFailureKeepsValue(t *testing.T) {
	f := newFakeRecords(t)
	f.patients = []model.Patient{{ID: 1, FirstName: "Анна", LastName: "Петрова"}}
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))
	require.NoError(t, s.FetchAll(context.Background()))

	// unknown on the server
	f.mu.Lock()
	f.patients = nil
	f.mu.Unlock()

	changed := model.Patient{ID: 1, FirstName: "Анна", LastName: "Козлова"}
	err := s.Update(context.Background(), changed)
	require.ErrorIs(t, err, errs.ErrNotFound)
	var se *errs.StoreError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "update", se.Op)
	require.EqualValues(t, 1, se.ID)

	got, _ := s.Get(1)
	require.Equal(t, "Петрова", got.LastName)
	require.Equal(t, err, s.LastError())
	s.ClearError()
	require.NoError(t, s.LastError())
}

// A fetch issued right after a create must wait for it and observe the new patient.
func TestPatientStore_CreateThenFetch(t *testing.T) {
	f := newFakeRecords(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.afterCreate = func(*http.Request) {
		close(entered)
		<-release
	}
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))

	var (
		wg      sync.WaitGroup
		created model.Patient
		cErr    error
		fErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		created, cErr = s.Create(context.Background(), ivanov())
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		fErr = s.FetchAll(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, cErr)
	require.NoError(t, fErr)
	require.Equal(t, []string{"patients.create", "patients.list"}, f.ops())
	require.Equal(t, 1, countID(s.Items(), created.ID))
	require.Equal(t, 1, s.Len())
}

// A fetch already on the wire when a create is issued must not drop the created patient.
func TestPatientStore_FetchThenCreate(t *testing.T) {
	f := newFakeRecords(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.afterListSnapshot = func(*http.Request) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))

	var (
		wg      sync.WaitGroup
		created model.Patient
		cErr    error
		fErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		fErr = s.FetchAll(context.Background())
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		created, cErr = s.Create(context.Background(), ivanov())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, fErr)
	require.NoError(t, cErr)
	require.Equal(t, []string{"patients.list", "patients.create"}, f.ops())
	require.Equal(t, 1, countID(s.Items(), created.ID))

	require.NoError(t, s.FetchAll(context.Background()))
	require.Equal(t, 1, countID(s.Items(), created.ID))
	require.Equal(t, 1, s.Len())
}

func TestPatientStore_FetchOne(t *testing.T) {
	f := newFakeRecords(t)
	f.patients = []model.Patient{{ID: 7, FirstName: "Анна", LastName: "Петрова"}}
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))

	p, err := s.FetchOne(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Петрова", p.LastName)
	require.Equal(t, 1, s.Len())

	f.mu.Lock()
	f.patients[0].LastName = "Козлова"
	f.mu.Unlock()
	_, err = s.FetchOne(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	got, _ := s.Get(7)
	require.Equal(t, "Козлова", got.LastName)

	_, err = s.FetchOne(context.Background(), 8)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, "Patient not found", errs.Message(err))
}

func TestPatientStore_NotLoggedIn(t *testing.T) {
	f := newFakeRecords(t)
	api := newAPI(t, f).WithTokens(staticToken(""))
	s := NewPatientStore(NewPatientRemote(api), zaptest.NewLogger(t))

	err := s.FetchAll(context.Background())
	require.ErrorIs(t, err, errs.ErrNotLoggedIn)
	require.Empty(t, f.ops())
}

func TestPatientStore_Subscribe(t *testing.T) {
	f := newFakeRecords(t)
	s := NewPatientStore(NewPatientRemote(newAPI(t, f)), zaptest.NewLogger(t))
	sub := s.Subscribe()
	defer sub.Close()

	p, err := s.Create(context.Background(), ivanov())
	require.NoError(t, err)
	ev := <-sub.Ch
	require.Equal(t, Created, ev.Kind)
	require.Equal(t, p.ID, ev.ID)
	require.Equal(t, 1, ev.Len)

	require.NoError(t, s.Delete(context.Background(), p.ID))
	ev = <-sub.Ch
	require.Equal(t, Deleted, ev.Kind)
	require.Equal(t, 0, ev.Len)

	s.Close()
	_, open := <-sub.Ch
	require.False(t, open)
}

func TestFilterPatients(t *testing.T) {
	items := []model.Patient{
		{ID: 1, FirstName: "Анна", LastName: "Петрова", Patronymic: "Сергеевна"},
		{ID: 2, FirstName: "Олег", LastName: "Смирнов", Patronymic: "Петрович"},
		{ID: 3, FirstName: "Иван", LastName: "Иванов"},
	}
	tests := []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2, 3}},
		{"  ", []int64{1, 2, 3}},
		{"петр", []int64{1, 2}},
		{"ИВАН", []int64{3}},
		{"смирнов олег", []int64{2}},
		{"нет такого", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.want, ids(FilterPatients(items, tt.query)))
		})
	}
}

func seedDiagnoses(f *fakeRecords) {
	f.diagnoses = []model.Diagnosis{
		{ID: 11, PatientID: 1, Text: "Пневмония", Date: model.NewDate(2024, time.February, 1), Description: "правосторонняя"},
		{ID: 12, PatientID: 1, Text: "Бронхит", Date: model.NewDate(2024, time.March, 1), Description: "острый"},
		{ID: 21, PatientID: 2, Text: "Гастрит", Date: model.NewDate(2023, time.June, 5), Description: "хронический"},
	}
}

func TestDiagnosisStore_NoSelection(t *testing.T) {
	f := newFakeRecords(t)
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))

	require.ErrorIs(t, s.FetchAll(context.Background()), errs.ErrNoPatientSelected)
	_, err := s.Create(context.Background(), model.DiagnosisDraft{Text: "x"})
	require.ErrorIs(t, err, errs.ErrNoPatientSelected)
	require.Empty(t, f.ops())
}

func TestDiagnosisStore_SelectAndFetch(t *testing.T) {
	f := newFakeRecords(t)
	seedDiagnoses(f)
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))

	s.Select(1)
	pid, ok := s.Selected()
	require.True(t, ok)
	require.EqualValues(t, 1, pid)

	require.NoError(t, s.FetchAll(context.Background()))
	require.Equal(t, []int64{11, 12}, ids(s.Items()))

	s.Select(1)
	require.Equal(t, 2, s.Len(), "reselecting the same patient keeps the collection")

	s.Select(2)
	require.Zero(t, s.Len())
	require.NoError(t, s.FetchAll(context.Background()))
	require.Equal(t, []int64{21}, ids(s.Items()))

	s.ClearSelection()
	_, ok = s.Selected()
	require.False(t, ok)
	require.Zero(t, s.Len())
}

func TestDiagnosisStore_Create(t *testing.T) {
	f := newFakeRecords(t)
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))
	s.Select(1)

	d, err := s.Create(context.Background(), model.DiagnosisDraft{
		Text: "Пневмония", Date: model.NewDate(2024, time.February, 1), Description: "правосторонняя",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, d.PatientID)
	require.Equal(t, []int64{d.ID}, ids(s.Items()))

	_, err = s.Create(context.Background(), model.DiagnosisDraft{PatientID: 2, Text: "Гастрит"})
	require.ErrorIs(t, err, errs.ErrPatientMismatch)
	require.Equal(t, 1, s.Len())
}

func TestDiagnosisStore_UpdateThenFetch(t *testing.T) {
	f := newFakeRecords(t)
	seedDiagnoses(f)
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))
	s.Select(1)
	require.NoError(t, s.FetchAll(context.Background()))

	d, _ := s.Get(12)
	d.Description = "затяжной"
	require.NoError(t, s.Update(context.Background(), d))

	require.NoError(t, s.FetchAll(context.Background()))
	got, ok := s.Get(12)
	require.True(t, ok)
	require.Equal(t, "затяжной", got.Description)

	other := model.Diagnosis{ID: 21, PatientID: 2, Text: "Гастрит"}
	require.ErrorIs(t, s.Update(context.Background(), other), errs.ErrPatientMismatch)
}

func TestDiagnosisStore_DeleteFailureKeepsEntry(t *testing.T) {
	f := newFakeRecords(t)
	seedDiagnoses(f)
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))
	s.Select(1)
	require.NoError(t, s.FetchAll(context.Background()))

	f.failDelete.Store(true)
	err := s.Delete(context.Background(), 11)
	require.Error(t, err)
	var he *errs.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusInternalServerError, he.Status)
	require.Equal(t, "database unavailable", errs.Message(err))

	_, ok := s.Get(11)
	require.True(t, ok)
	require.Equal(t, []int64{11, 12}, ids(s.Items()))
	require.Error(t, s.LastError())

	f.failDelete.Store(false)
	require.NoError(t, s.Delete(context.Background(), 11))
	require.Equal(t, []int64{12}, ids(s.Items()))
}

func TestDiagnosisStore_SupersededFetch(t *testing.T) {
	f := newFakeRecords(t)
	seedDiagnoses(f)
	entered := make(chan struct{})
	var once sync.Once
	f.afterListSnapshot = func(r *http.Request) {
		if r.PathValue("id") != "1" {
			return
		}
		once.Do(func() { close(entered) })
		<-r.Context().Done()
	}
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))
	s.Select(1)

	errc := make(chan error, 1)
	go func() { errc <- s.FetchAll(context.Background()) }()
	<-entered

	s.Select(2)
	err := <-errc
	require.ErrorIs(t, err, errs.ErrSuperseded)
	require.Zero(t, s.Len())
	require.NoError(t, s.LastError(), "a superseded fetch is not a failure")

	require.NoError(t, s.FetchAll(context.Background()))
	require.Equal(t, []int64{21}, ids(s.Items()))
	for _, d := range s.Items() {
		require.EqualValues(t, 2, d.PatientID)
	}
}

func TestDiagnosisStore_QueuedFetchCancelledBySelection(t *testing.T) {
	f := newFakeRecords(t)
	seedDiagnoses(f)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.beforeDelete = func() {
		close(entered)
		<-release
	}
	s := NewDiagnosisStore(NewDiagnosisRemote(newAPI(t, f)), zaptest.NewLogger(t))
	s.Select(1)

	// a delete holds the queue
	deleted := make(chan error, 1)
	go func() { deleted <- s.Delete(context.Background(), 11) }()
	<-entered

	queued := make(chan error, 1)
	go func() { queued <- s.FetchAll(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	s.Select(2)
	require.ErrorIs(t, <-queued, context.Canceled)

	close(release)
	require.NoError(t, <-deleted)
	require.Zero(t, s.Len())
	require.Equal(t, []string{"diagnoses.delete"}, f.ops(), "the queued fetch never reached the server")
}

func ids[T Entity](items []T) []int64 {
	out := make([]int64, 0, len(items))
	for _, e := range items {
		out = append(out, e.EntityID())
	}
	return out
}

func TestEventKind_String(t *testing.T) {
	for k, want := range map[EventKind]string{Fetched: "fetched", Created: "created", Updated: "updated", Deleted: "deleted", Cleared: "cleared", 0: "unknown"} {
		require.Equal(t, want, k.String(), fmt.Sprint(int(k)))
	}
}
