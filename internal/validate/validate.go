// Package validate checks drafts on the caller side before they are
// submitted: required fields are filled and dates are plausible.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/and161185/medrec/internal/model"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid input")

// Validator validates drafts against the clock it was built with.
type Validator struct {
	v     *validator.Validate
	clock clockwork.Clock
}

// New builds a validator; a nil clock means the real clock.
func New(clock clockwork.Clock) *Validator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	val := &Validator{v: validator.New(), clock: clock}

	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	val.v.RegisterCustomTypeFunc(func(v reflect.Value) any {
		return v.Interface().(model.Date).Time
	}, model.Date{})
	_ = val.v.RegisterValidation("notzero", func(fl validator.FieldLevel) bool {
		t, ok := fieldTime(fl)
		return ok && !t.IsZero()
	})
	_ = val.v.RegisterValidation("notfuture", val.notFuture)
	return val
}

// Patient validates a patient draft.
func (v *Validator) Patient(d model.PatientDraft) error { return v.check(d) }

// Diagnosis validates a diagnosis draft.
func (v *Validator) Diagnosis(d model.DiagnosisDraft) error { return v.check(d) }

// Upload validates an image upload.
func (v *Validator) Upload(u model.ImageUpload) error { return v.check(u) }

// notFuture accepts dates up to and including today.
func (v *Validator) notFuture(fl validator.FieldLevel) bool {
	t, ok := fieldTime(fl)
	if !ok {
		return false
	}
	today := model.DateOf(v.clock.Now())
	return !t.After(today.Time)
}

func (v *Validator) check(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Field()+": "+describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "notzero":
		return "date required"
	case "notfuture":
		return "date in the future"
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "failed " + fe.Tag()
}

func fieldTime(fl validator.FieldLevel) (time.Time, bool) {
	switch t := fl.Field().Interface().(type) {
	case time.Time:
		return t, true
	case model.Date:
		return t.Time, true
	}
	return time.Time{}, false
}
