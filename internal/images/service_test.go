package images

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/model"
)

var png = []byte("\x89PNG\r\n\x1a\n fake scan")

func newService(t *testing.T, h http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	return NewService(api, zaptest.NewLogger(t))
}

func TestService_List(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /diagnoses/5/images/", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"image_id":9,"image":"`+base64.StdEncoding.EncodeToString(png)+`","upload_date":"2025-02-28T10:00:00"}]`)
	})
	mux.HandleFunc("GET /diagnoses/6/images/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	s := newService(t, mux)

	got, err := s.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.EqualValues(t, 9, got[0].ID)
	require.Equal(t, png, got[0].Payload)
	require.Equal(t, model.NewDate(2025, time.February, 28), got[0].UploadDate)

	got, err = s.List(context.Background(), 6)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestService_Upload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /diagnoses/5/images/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-03-01", r.FormValue("upload_date"))
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, png, b)
		assert.Equal(t, "scan.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"image_id":42}`)
	})
	s := newService(t, mux)

	id, err := s.Upload(context.Background(), model.ImageUpload{
		DiagnosisID: 5, Filename: "scan.png", Content: png, UploadDate: model.NewDate(2025, time.March, 1),
	})
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
}

func TestService_Delete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /images/42/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /images/43/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Image not found"}`)
	})
	s := newService(t, mux)

	require.NoError(t, s.Delete(context.Background(), 42))

	err := s.Delete(context.Background(), 43)
	require.ErrorIs(t, err, errs.ErrNotFound)
	var se *errs.StoreError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "image", se.Entity)
	require.Equal(t, "Image not found", errs.Message(err))
}
