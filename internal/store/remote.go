package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/model"
)

// PatientRemote is the /patients resource.
type PatientRemote struct {
	api *apiclient.Client
}

// NewPatientRemote binds the patient resource to api, which must carry a token source.
func NewPatientRemote(api *apiclient.Client) *PatientRemote {
	return &PatientRemote{api: api}
}

func (r *PatientRemote) List(ctx context.Context, _ int64) ([]model.Patient, error) {
	var out []model.Patient
	err := r.api.Do(ctx, apiclient.Request{
		Op: "patients.list", Method: http.MethodGet, Path: "/patients", Auth: true,
	}, &out)
	return out, err
}

func (r *PatientRemote) Get(ctx context.Context, id int64) (model.Patient, error) {
	var out model.Patient
	err := r.api.Do(ctx, apiclient.Request{
		Op: "patients.get", Method: http.MethodGet, Path: fmt.Sprintf("/patients/%d", id), Auth: true,
	}, &out)
	return out, err
}

func (r *PatientRemote) Create(ctx context.Context, _ int64, draft model.PatientDraft) (model.Patient, error) {
	var out model.Patient
	err := r.api.Do(ctx, apiclient.Request{
		Op: "patients.create", Method: http.MethodPost, Path: "/patients", Auth: true, JSON: draft,
	}, &out)
	return out, err
}

func (r *PatientRemote) Update(ctx context.Context, p model.Patient) error {
	return r.api.Do(ctx, apiclient.Request{
		Op: "patients.update", Method: http.MethodPut, Path: fmt.Sprintf("/patients/%d", p.ID), Auth: true, JSON: p,
	}, nil)
}

func (r *PatientRemote) Delete(ctx context.Context, id int64) error {
	return r.api.Do(ctx, apiclient.Request{
		Op: "patients.delete", Method: http.MethodDelete, Path: fmt.Sprintf("/patients/%d", id), Auth: true,
	}, nil)
}

// DiagnosisRemote is the diagnoses resource, nested under a patient for list and create.
type DiagnosisRemote struct {
	api *apiclient.Client
}

// NewDiagnosisRemote binds the diagnosis resource to api, which must carry a token source.
func NewDiagnosisRemote(api *apiclient.Client) *DiagnosisRemote {
	return &DiagnosisRemote{api: api}
}

func (r *DiagnosisRemote) List(ctx context.Context, patientID int64) ([]model.Diagnosis, error) {
	var out []model.Diagnosis
	err := r.api.Do(ctx, apiclient.Request{
		Op: "diagnoses.list", Method: http.MethodGet, Path: fmt.Sprintf("/patients/%d/diagnoses/", patientID), Auth: true,
	}, &out)
	return out, err
}

func (r *DiagnosisRemote) Create(ctx context.Context, patientID int64, draft model.DiagnosisDraft) (model.Diagnosis, error) {
	var out model.Diagnosis
	err := r.api.Do(ctx, apiclient.Request{
		Op: "diagnoses.create", Method: http.MethodPost, Path: fmt.Sprintf("/patients/%d/diagnoses/", patientID), Auth: true, JSON: draft,
	}, &out)
	return out, err
}

func (r *DiagnosisRemote) Update(ctx context.Context, d model.Diagnosis) error {
	return r.api.Do(ctx, apiclient.Request{
		Op: "diagnoses.update", Method: http.MethodPut, Path: fmt.Sprintf("/diagnoses/%d/", d.ID), Auth: true, JSON: d.Draft(),
	}, nil)
}

func (r *DiagnosisRemote) Delete(ctx context.Context, id int64) error {
	return r.api.Do(ctx, apiclient.Request{
		Op: "diagnoses.delete", Method: http.MethodDelete, Path: fmt.Sprintf("/diagnoses/%d/", id), Auth: true,
	}, nil)
}
