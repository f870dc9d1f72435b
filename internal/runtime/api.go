package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/loqalabs/loqa-caption/internal/audio"
	"github.com/loqalabs/loqa-caption/internal/pipeline"
	"github.com/loqalabs/loqa-caption/internal/settings"
	"github.com/loqalabs/loqa-caption/internal/stt"
	"github.com/loqalabs/loqa-caption/internal/translate"
)

// Routes builds the control API. metrics may be nil.
func (r *Runtime) Routes(metrics http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	if metrics != nil {
		router.Handle("/metrics", metrics)
	}
	router.Get("/ws/overlay", r.svc.Overlay.HandleConnection)

	router.Route("/api", func(api chi.Router) {
		api.Post("/session/start", r.handleStart)
		api.Post("/session/stop", r.handleStop)
		api.Get("/session", r.handleSession)
		api.Get("/sessions", r.handleSessions)
		api.Get("/sessions/{sessionID}/captions", r.handleCaptions)
		api.Get("/settings", r.handleGetSettings)
		api.Put("/settings", r.handlePutSettings)
		api.Get("/devices", r.handleDevices)
		api.Get("/engines", r.handleEngines)
		api.Get("/languages", r.handleLanguages)
		api.Get("/overlay", r.handleOverlay)
		api.Post("/overlay/position", r.handlePosition)
	})
	return router
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.svc.Bus == nil || r.svc.Bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type startRequest struct {
	DeviceIndex *int    `json:"device_index"`
	ModelDir    *string `json:"model_dir"`
}

// handleStart starts a session from the saved settings. The body may override
// the device and model for this session only.
func (r *Runtime) handleStart(w http.ResponseWriter, req *http.Request) {
	var body startRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
			return
		}
	}
	current := r.svc.Settings.Current()
	sc := pipeline.SessionConfig{
		DeviceIndex:     current.TranscribeDeviceIndex,
		ModelDir:        current.ModelDir,
		FramesPerBuffer: r.cfg.Audio.FramesPerBuffer,
		Options:         current.EngineOptions(),
	}
	if body.DeviceIndex != nil {
		sc.DeviceIndex = *body.DeviceIndex
	}
	if body.ModelDir != nil {
		sc.ModelDir = *body.ModelDir
	}

	if err := r.svc.Controller.Start(req.Context(), sc); err != nil {
		r.logger.Warn("session start rejected", slogError(err))
		writeError(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, r.svc.Controller.Status())
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning), errors.Is(err, pipeline.ErrStopping):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrInvalidDevice), errors.Is(err, stt.ErrModelMissing), errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (r *Runtime) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := r.svc.Controller.Stop(); err != nil {
		if errors.Is(err, pipeline.ErrStopping) {
			writeError(w, http.StatusConflict, err)
			return
		}
		r.logger.Warn("session stop reported errors", slogError(err))
	}
	writeJSON(w, http.StatusOK, r.svc.Controller.Status())
}

func (r *Runtime) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Controller.Status())
}

func (r *Runtime) handleSessions(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	sessions, err := r.svc.Events.ListSessions(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (r *Runtime) handleCaptions(w http.ResponseWriter, req *http.Request) {
	sessionID := chi.URLParam(req, "sessionID")
	stream := req.URL.Query().Get("stream")
	if stream == "" {
		stream = string(pipeline.StreamTranscript)
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	captions, err := r.svc.Events.ListCaptions(req.Context(), sessionID, stream, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, captions)
}

func (r *Runtime) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Settings.Current())
}

// handlePutSettings saves the settings and applies engine and language changes
// to a running session immediately. Omitted fields keep their current value.
func (r *Runtime) handlePutSettings(w http.ResponseWriter, req *http.Request) {
	body := r.svc.Settings.Current()
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
		return
	}
	if err := r.svc.Settings.Save(body); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrMissingRequired) || errors.Is(err, settings.ErrInvalidDevice) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	current := r.svc.Settings.Current()
	r.svc.Controller.SetOptions(current.EngineOptions())
	r.logger.Info("settings updated", slog.String("engine", current.Engine), slog.String("target_lang", current.TargetLang))
	writeJSON(w, http.StatusOK, current)
}

func (r *Runtime) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := r.svc.Audio.Devices()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (r *Runtime) handleEngines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Translator.Engines())
}

func (r *Runtime) handleLanguages(w http.ResponseWriter, req *http.Request) {
	engine := req.URL.Query().Get("engine")
	if engine == "" {
		engine = r.svc.Settings.Current().Engine
	}
	languages, err := translate.Languages(engine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"engine": engine, "languages": languages})
}

func (r *Runtime) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Overlay.Snapshot())
}

type positionRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (r *Runtime) handlePosition(w http.ResponseWriter, req *http.Request) {
	var body positionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
		return
	}
	r.svc.Overlay.SetPosition(body.X, body.Y)
	r.savePosition(body.X, body.Y)
	writeJSON(w, http.StatusOK, map[string]int{"x": body.X, "y": body.Y})
}
