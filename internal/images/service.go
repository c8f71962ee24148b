// Package images manages the diagnostic images attached to a diagnosis.
// The image endpoints are not authenticated.
package images

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/model"
)

const entity = "image"

// Service calls the image endpoints.
type Service struct {
	api *apiclient.Client
	log *zap.Logger
}

// NewService creates an image service.
func NewService(api *apiclient.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, log: log}
}

// List returns the images of a diagnosis in server order.
func (s *Service) List(ctx context.Context, diagnosisID int64) ([]model.Image, error) {
	var out []model.Image
	err := s.api.Do(ctx, apiclient.Request{
		Op: "images.list", Method: http.MethodGet, Path: fmt.Sprintf("/diagnoses/%d/images/", diagnosisID),
	}, &out)
	if err != nil {
		return nil, &errs.StoreError{Op: "fetch", Entity: entity, Err: err}
	}
	if out == nil {
		out = []model.Image{}
	}
	return out, nil
}

type uploadResponse struct {
	ImageID int64 `json:"image_id"`
}

// Upload attaches an image to a diagnosis and returns the new image id.
func (s *Service) Upload(ctx context.Context, up model.ImageUpload) (int64, error) {
	var out uploadResponse
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "images.upload",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/diagnoses/%d/images/", up.DiagnosisID),
		Multipart: &apiclient.Multipart{
			Fields:    map[string]string{"upload_date": up.UploadDate.String()},
			FileField: "image",
			Filename:  up.Filename,
			Content:   up.Content,
		},
	}, &out)
	if err != nil {
		return 0, &errs.StoreError{Op: "create", Entity: entity, Err: err}
	}
	s.log.Debug("image uploaded",
		zap.Int64("diagnosis_id", up.DiagnosisID),
		zap.Int64("image_id", out.ImageID),
		zap.Int("bytes", len(up.Content)),
	)
	return out.ImageID, nil
}

// Delete removes an image.
func (s *Service) Delete(ctx context.Context, imageID int64) error {
	err := s.api.Do(ctx, apiclient.Request{
		Op: "images.delete", Method: http.MethodDelete, Path: fmt.Sprintf("/images/%d/", imageID),
	}, nil)
	if err != nil {
		return &errs.StoreError{Op: "delete", Entity: entity, ID: imageID, Err: err}
	}
	return nil
}
