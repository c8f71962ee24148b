// Package model defines the domain entities exchanged with the clinical records API.
package model

import "time"

// Patient is a person whose records are managed by the client.
type Patient struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Patronymic  string `json:"patronymic"`
	Gender      Gender `json:"gender"`
	DateOfBirth Date   `json:"date_of_birth"`
}

// EntityID returns the server-assigned identity.
func (p Patient) EntityID() int64 { return p.ID }

// FullName joins the name parts the way patient lists display them.
func (p Patient) FullName() string {
	name := p.LastName + " " + p.FirstName
	if p.Patronymic != "" {
		name += " " + p.Patronymic
	}
	return name
}

// PatientDraft is a patient not yet submitted; the server assigns the ID.
type PatientDraft struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Patronymic  string `json:"patronymic" validate:"required"`
	Gender      Gender `json:"gender" validate:"required"`
	DateOfBirth Date   `json:"date_of_birth" validate:"notzero,notfuture"`
}

// Draft strips the identity, e.g. to validate an edited patient.
func (p Patient) Draft() PatientDraft {
	return PatientDraft{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Patronymic:  p.Patronymic,
		Gender:      p.Gender,
		DateOfBirth: p.DateOfBirth,
	}
}

// Diagnosis is a diagnosis recorded for one patient.
type Diagnosis struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patient_id"`
	Text        string `json:"diagnosis"`
	Date        Date   `json:"diagnosis_date"`
	Description string `json:"description"`
}

// EntityID returns the server-assigned identity.
func (d Diagnosis) EntityID() int64 { return d.ID }

// DiagnosisDraft is a diagnosis not yet submitted.
type DiagnosisDraft struct {
	PatientID   int64  `json:"patient_id" validate:"required,gt=0"`
	Text        string `json:"diagnosis" validate:"required"`
	Date        Date   `json:"diagnosis_date" validate:"notzero"`
	Description string `json:"description" validate:"required"`
}

// Draft strips the identity.
func (d Diagnosis) Draft() DiagnosisDraft {
	return DiagnosisDraft{PatientID: d.PatientID, Text: d.Text, Date: d.Date, Description: d.Description}
}

// Image is a diagnostic image attached to a diagnosis.
// Payload travels base64-encoded on the wire.
type Image struct {
	ID         int64  `json:"image_id"`
	Payload    []byte `json:"image"`
	UploadDate Date   `json:"upload_date"`
}

// ImageUpload is an image about to be attached to a diagnosis.
type ImageUpload struct {
	DiagnosisID int64  `validate:"required,gt=0"`
	Filename    string `validate:"required"`
	Content     []byte `validate:"required"`
	UploadDate  Date   `validate:"notzero,notfuture"`
}

// Classification is the result of the remote image classifier.
type Classification struct {
	Diagnosis          string `json:"diagnosis"`
	ProbabilitiesGraph string `json:"probabilities_graph"` // base64 PNG
}

// Segmentation is the result of the remote segmentation model.
type Segmentation struct {
	Image string `json:"segmented_image"` // base64 PNG
}

// SessionState is a snapshot of the authenticated identity of the client.
type SessionState struct {
	LoggedIn    bool
	Token       string
	DisplayName string
	ExpiresAt   time.Time // zero when unknown
	LastError   string
}

// PersistedSession is the record written to local storage after every session transition.
type PersistedSession struct {
	LoggedIn    bool      `json:"is_logged_in"`
	AccessToken string    `json:"access_token"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}
