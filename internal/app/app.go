// Package app wires the client components into one explicitly constructed root.
package app

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/apiclient"
	"github.com/and161185/medrec/internal/compute"
	"github.com/and161185/medrec/internal/config"
	"github.com/and161185/medrec/internal/images"
	"github.com/and161185/medrec/internal/session"
	"github.com/and161185/medrec/internal/storage"
	"github.com/and161185/medrec/internal/store"
	"github.com/and161185/medrec/internal/validate"
)

// App holds every component of the client. Build it with New and release it with Close.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	Session    *session.Manager
	Patients   *store.PatientStore
	Diagnoses  *store.DiagnosisStore
	Images     *images.Service
	Classifier *compute.Classifier
	Segmenter  *compute.Segmenter
	Validator  *validate.Validator

	storage storage.Storage
}

// Option overrides a dependency, mostly for tests.
type Option func(*options)

type options struct {
	doer    apiclient.Doer
	clock   clockwork.Clock
	storage storage.Storage
}

// WithHTTPClient replaces the HTTP client used for every API call.
func WithHTTPClient(d apiclient.Doer) Option { return func(o *options) { o.doer = d } }

// WithClock replaces the real clock (token expiry, date validation).
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithStorage replaces the configured session storage. App.Close closes it.
func WithStorage(s storage.Storage) Option { return func(o *options) { o.storage = s } }

// New builds the client from cfg. The session is restored from storage before New returns.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := options{doer: &http.Client{}, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := apiclient.New(cfg.APIURL,
		apiclient.WithHTTPClient(o.doer),
		apiclient.WithLogger(log.Named("api")),
	)
	if err != nil {
		return nil, err
	}

	st := o.storage
	if st == nil {
		st, err = OpenStorage(cfg, log)
		if err != nil {
			return nil, err
		}
	}

	sess := session.New(api, st,
		session.WithClock(o.clock),
		session.WithLogger(log.Named("session")),
		session.WithTokenTTL(cfg.TokenTTL),
	)
	authed := api.WithTokens(sess)

	a := &App{
		Config:     cfg,
		Log:        log,
		Session:    sess,
		Patients:   store.NewPatientStore(store.NewPatientRemote(authed), log.Named("patients")),
		Diagnoses:  store.NewDiagnosisStore(store.NewDiagnosisRemote(authed), log.Named("diagnoses")),
		Images:     images.NewService(api, log.Named("images")),
		Classifier: compute.NewClassifier(authed, compute.WithLogger(log.Named("classify"))),
		Segmenter:  compute.NewSegmenter(authed, compute.WithLogger(log.Named("segment"))),
		Validator:  validate.New(o.clock),
		storage:    st,
	}
	log.Debug("client ready",
		zap.String("api", api.BaseURL()),
		zap.String("session_backend", cfg.SessionBackend),
		zap.Bool("sealed", cfg.SessionPassphrase != ""),
		zap.Bool("logged_in", sess.LoggedIn()),
	)
	return a, nil
}

// OpenStorage opens the session storage selected by cfg, sealed when a passphrase is set.
func OpenStorage(cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	var st storage.Storage
	switch cfg.SessionBackend {
	case config.BackendFile:
		st = storage.NewFile(cfg.StateDir)
	case config.BackendBadger:
		db, err := storage.OpenBadger(storage.BadgerConfig{
			Path:   filepath.Join(cfg.StateDir, "session.db"),
			Logger: log.Named("badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("open session storage: %w", err)
		}
		st = db
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
	if cfg.SessionPassphrase != "" {
		st = storage.NewSealed(st, cfg.SessionPassphrase)
	}
	return st, nil
}

// Close ends all subscriptions and closes the session storage.
func (a *App) Close() error {
	a.Session.Close()
	a.Patients.Close()
	a.Diagnoses.Close()
	return a.storage.Close()
}
