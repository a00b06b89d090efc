package petpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"github.com/nyaruka/null/v3"
	validator "gopkg.in/go-playground/validator.v9"
)

var formDecoder = schema.NewDecoder()

func init() {
	formDecoder.IgnoreUnknownKeys(true)
	formDecoder.SetAliasTag("name")
}

// Server exposes the submission and posting flows over HTTP and owns the scheduled
// daily posting loop
type Server struct {
	config    *Config
	backend   Backend
	publisher Publisher

	tracker  *Tracker
	pipeline *Pipeline

	httpServer *http.Server
	router     *chi.Mux

	waitGroup *sync.WaitGroup
	stopChan  chan bool
	stopped   bool
}

// NewServer creates a new server for the passed in configuration. The server will have
// to be started afterwards, which is when configuration options are checked.
func NewServer(config *Config, backend Backend, publisher Publisher, fetcher Fetcher) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	return &Server{
		config:    config,
		backend:   backend,
		publisher: publisher,

		tracker:  NewTracker(backend),
		pipeline: NewPipeline(fetcher, backend, backend, config.StagingDir),

		router: router,

		waitGroup: &sync.WaitGroup{},
		stopChan:  make(chan bool),
	}
}

// Start starts the server listening for requests and kicks off the posting schedule
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := s.backend.Start(); err != nil {
		return err
	}

	if err := s.pipeline.EnsureStagingDir(); err != nil {
		return fmt.Errorf("unable to create staging directory: %w", err)
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/status", s.handleStatus)
	s.router.Post("/submit", s.handleSubmit)
	s.router.Post("/post", s.handlePost)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("error listening", "comp", "server", "error", err)
		}
	}()

	s.startSchedule()

	slog.Info("server listening", "comp", "server", "port", s.config.Port, "version", s.config.Version)
	return nil
}

// Stop stops the server, returning only after everything has wound down
func (s *Server) Stop() error {
	log := slog.With("comp", "server")
	log.Info("stopping server")

	s.stopped = true
	close(s.stopChan)

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		log.Error("error shutting down server", "error", err)
	}

	if err := s.backend.Stop(); err != nil {
		return err
	}

	s.waitGroup.Wait()
	log.Info("server stopped")
	return nil
}

// Router returns our router, exposed for testing
func (s *Server) Router() chi.Router { return s.router }

// startSchedule runs the loop that fires the daily post at the configured wall clock
// time, checking once a minute and making sure a day only ever gets one scheduled post
func (s *Server) startSchedule() {
	hour, minute, _ := s.config.ParsePostTime()

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()

		lastRun := ""
		for !s.stopped {
			select {
			case <-s.stopChan:
				return
			case <-time.After(time.Minute):
				now := time.Now()
				today := now.Format("2006-01-02")
				if now.Hour() == hour && now.Minute() >= minute && lastRun != today {
					lastRun = today
					slog.Info("running scheduled post", "comp", "server", "time", now)

					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
					ref, err := s.PublishNext(ctx)
					cancel()
					if err != nil {
						slog.Error("error running scheduled post", "comp", "server", "error", err)
					} else {
						slog.Info("scheduled post complete", "comp", "server", "item", ref)
					}
				}
			}
		}
	}()
}

// PublishNext picks the next item to show, publishes it and marks it posted. The whole
// run happens under the cycle lock so the schedule and an on demand trigger can't both
// select the same item.
func (s *Server) PublishNext(ctx context.Context) (*ItemRef, error) {
	lock, err := s.backend.GrabCycleLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("error grabbing cycle lock: %w", err)
	}
	if lock == "" {
		return nil, fmt.Errorf("posting already in progress")
	}
	defer func() {
		if err := s.backend.ReleaseCycleLock(ctx, lock); err != nil {
			slog.Error("error releasing cycle lock", "comp", "server", "error", err)
		}
	}()

	ref, err := s.tracker.SelectNext(ctx)
	if err != nil {
		return nil, err
	}

	item, err := s.backend.GetItem(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrStaleSelection, ref)
	}

	contentType, image, err := s.backend.GetBlob(ctx, item.ItemID)
	if err != nil {
		return nil, fmt.Errorf("error fetching image %s: %w", item.ItemID, err)
	}

	if err := s.publisher.Publish(ctx, NewPost(item, contentType, image)); err != nil {
		return nil, fmt.Errorf("error publishing item %s: %w", ref, err)
	}

	// only mark once the channel has actually accepted the post
	if err := s.tracker.MarkPosted(ctx, ref); err != nil {
		return &ref, err
	}

	return &ref, nil
}

type submitForm struct {
	URL       string `name:"url"       validate:"required,url"`
	Submitter string `name:"submitter" validate:"required"`
	Label     string `name:"label"`
	Note      string `name:"note"`
}

// handleSubmit is our HTTP handler for new submissions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form := &submitForm{}
	if err := decodeAndValidateForm(form, r); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ref, err := s.pipeline.Submit(r.Context(), form.URL, form.Submitter, null.String(form.Label), null.String(form.Note))
	if err != nil {
		slog.Error("error handling submission", "comp", "server", "url", form.URL, "error", err)

		status := http.StatusInternalServerError
		if errors.Is(err, ErrRetrievalFailed) || errors.Is(err, ErrUnsupportedContentType) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err)
		return
	}

	writeData(w, http.StatusOK, "Upload Complete", ref)
}

// handlePost is our HTTP handler for on demand posting, guarded by our auth token
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if s.config.AuthToken == "" || r.Header.Get("Authorization") != fmt.Sprintf("Token %s", s.config.AuthToken) {
		writeError(w, r, http.StatusUnauthorized, fmt.Errorf("missing or invalid auth token"))
		return
	}

	ref, err := s.PublishNext(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			writeData(w, http.StatusOK, "Nothing To Post", struct{}{})
			return
		}
		slog.Error("error handling post trigger", "comp", "server", "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeData(w, http.StatusOK, "Posted", ref)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	buf := &bytes.Buffer{}
	buf.WriteString("<title>petpost</title><body><pre>\n")
	buf.WriteString(splash)
	buf.WriteString(s.config.Version)
	buf.WriteString("\n\n")
	buf.WriteString(s.backend.Health())
	buf.WriteString("</pre></body>")
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.config.StatusUsername != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.config.StatusUsername || pass != s.config.StatusPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="Authenticate"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorised.\n"))
			return
		}
	}

	unposted, err := s.tracker.ListUnposted(r.Context())
	remaining := "unknown"
	if err == nil {
		remaining = fmt.Sprintf("%d", len(unposted))
	}

	buf := &bytes.Buffer{}
	buf.WriteString("<title>petpost</title><body><pre>\n")
	buf.WriteString(splash)
	buf.WriteString(s.config.Version)
	buf.WriteString("\n\n")
	buf.WriteString(s.backend.Health())
	buf.WriteString(fmt.Sprintf("\nitems left this cycle: %s\n", remaining))
	buf.WriteString("</pre></body>")
	w.Write(buf.Bytes())
}

// decodeAndValidateForm parses the POST parameters of the passed in request into the
// given form and validates it
func decodeAndValidateForm(form any, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if err := formDecoder.Decode(form, r.PostForm); err != nil {
		return err
	}
	return validate.Struct(form)
}

type errorResponse struct {
	Errors []string `json:"errors"`
}

type successResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) error {
	errs := []string{err.Error()}

	vErrs, isValidation := err.(validator.ValidationErrors)
	if isValidation {
		errs = []string{}
		for i := range vErrs {
			errs = append(errs, fmt.Sprintf("field '%s' %s", strings.ToLower(vErrs[i].Field()), vErrs[i].Tag()))
		}
	}
	return writeJSONResponse(w, statusCode, &errorResponse{errs})
}

func writeData(w http.ResponseWriter, statusCode int, message string, data any) error {
	return writeJSONResponse(w, statusCode, &successResponse{message, data})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(response)
}

var splash = `
    ____  ___  ______  ____  _____ ______
   / __ \/ _ \/_  __/ / __ \/ __  / ___/_  __/
  / /_/ /  __/ / /   / /_/ / /_/ (__  ) / /
 / .___/\___/ /_/   / .___/\____/____/ /_/
/_/                /_/                     v`
