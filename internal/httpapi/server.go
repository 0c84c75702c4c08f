package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lmctld/internal/configstore"
	"lmctld/internal/controller"
	"lmctld/internal/sysinfo"
	"lmctld/pkg/types"
)

// Controller defines the lifecycle operations required by the HTTP API layer.
type Controller interface {
	Start(params types.StartupParameters) error
	Stop() error
	Snapshot() controller.Snapshot
}

// ConfigStore defines the persistence operations required by the HTTP API
// layer.
type ConfigStore interface {
	Load() types.ConfigDocument
	Save(types.ConfigDocument) error
}

func NewMux(ctrl Controller, store ConfigStore) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// GetServerStatus godoc
	// @Summary  Current service status
	// @Produce  json
	// @Success  200 {object} types.StatusResponse
	// @Router   /api/server/status [get]
	r.Get("/api/server/status", func(w http.ResponseWriter, r *http.Request) {
		snap := ctrl.Snapshot()
		resp := types.StatusResponse{Status: string(snap.Status), Model: snap.Model}
		if snap.Err != nil {
			resp.Error = snap.Err.Error()
		}
		if snap.Status == controller.StatusRunning {
			resp.PID = snap.PID
			if !snap.Since.IsZero() {
				resp.UptimeSeconds = int64(time.Since(snap.Since).Seconds())
			}
			if st, err := sysinfo.Collect(snap.PID); err == nil {
				resp.RSSMB = st.RSSMB
				resp.OpenFDs = st.OpenFDs
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	// StartServer godoc
	// @Summary  Start the inference service
	// @Accept   json
	// @Produce  json
	// @Param    defaults body types.FrontendDefaults false "Frontend defaults; empty body falls back to the persisted document"
	// @Success  200 {object} types.ControlResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /api/server/start [post]
	r.Post("/api/server/start", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var fd types.FrontendDefaults
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &fd); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		doc := store.Load()
		if fd == nil {
			fd = doc.FrontendDefaults
		}
		params, err := configstore.BuildStartupParameters(fd)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if params.Model != "" {
			p, err := configstore.ResolveModelPath(doc, params.Model)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			params.ModelPath = p
		}
		if err := ctrl.Start(params); err != nil {
			if controller.IsAlreadyRunning(err) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.ControlResponse{Success: true, Message: "Server starting..."})
	})

	// StopServer godoc
	// @Summary  Stop the inference service
	// @Produce  json
	// @Success  200 {object} types.ControlResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /api/server/stop [post]
	r.Post("/api/server/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Stop(); err != nil {
			if controller.IsNotRunning(err) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			if controller.IsShutdown(err) {
				// The stop took effect; the shutdown failure is reported in
				// the message rather than failing the request.
				writeJSON(w, http.StatusOK, types.ControlResponse{Success: true, Message: "Server stopped; " + err.Error()})
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.ControlResponse{Success: true, Message: "Server stopped"})
	})

	// GetConfig godoc
	// @Summary  Full configuration document
	// @Produce  json
	// @Success  200 {object} types.ConfigDocument
	// @Router   /api/config [get]
	r.Get("/api/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Load())
	})

	// UpdateConfig godoc
	// @Summary  Replace the frontend defaults
	// @Accept   json
	// @Produce  json
	// @Success  200 {object} types.ControlResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /api/config [post]
	r.Post("/api/config", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var fd types.FrontendDefaults
		if err := json.NewDecoder(r.Body).Decode(&fd); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		doc := store.Load()
		doc.FrontendDefaults = fd
		if err := store.Save(doc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to save configuration")
			return
		}
		writeJSON(w, http.StatusOK, types.ControlResponse{Success: true, Message: "Configuration saved successfully"})
	})

	// UpdateDirectories godoc
	// @Summary  Replace the model directories
	// @Accept   json
	// @Produce  json
	// @Success  200 {object} types.ControlResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /api/config/directories [post]
	r.Post("/api/config/directories", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var dirs types.ModelDirectories
		if err := json.NewDecoder(r.Body).Decode(&dirs); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(dirs.Language) == "" || strings.TrimSpace(dirs.Voice) == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid directory data")
			return
		}
		doc := store.Load()
		doc.ModelDirectories = dirs
		if err := store.Save(doc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to save configuration")
			return
		}
		writeJSON(w, http.StatusOK, types.ControlResponse{Success: true, Message: "Directories updated successfully"})
	})

	// ListModels godoc
	// @Summary  Available language models
	// @Produce  json
	// @Success  200 {array} types.ModelSummary
	// @Router   /api/models [get]
	r.Get("/api/models", func(w http.ResponseWriter, r *http.Request) {
		doc := store.Load()
		models := make([]types.ModelSummary, 0, len(doc.LanguageModels))
		for _, m := range doc.LanguageModels {
			nick := m.Nickname
			if nick == "" {
				nick = m.FileName
			}
			models = append(models, types.ModelSummary{
				FileName:           m.FileName,
				Nickname:           nick,
				ParametersBillions: m.ParametersBillions,
			})
		}
		writeJSON(w, http.StatusOK, models)
	})

	// ManageModels godoc
	// @Summary  Add or remove a model entry
	// @Accept   json
	// @Produce  json
	// @Param    request body types.ManageModelsRequest true "Action, model kind and entry"
	// @Success  200 {object} types.ManageModelsResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /api/models/manage [post]
	r.Post("/api/models/manage", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ManageModelsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		doc := store.Load()
		var list *[]types.ModelEntry
		switch req.Type {
		case "language":
			list = &doc.LanguageModels
		case "voice":
			list = &doc.VoiceModels
		default:
			writeJSONError(w, http.StatusBadRequest, "invalid model type")
			return
		}
		switch req.Action {
		case "add":
			for _, m := range *list {
				if m.FileName == req.Data.FileName {
					writeJSONError(w, http.StatusBadRequest, "model already exists")
					return
				}
			}
			*list = append(*list, req.Data)
		case "remove":
			out := make([]types.ModelEntry, 0, len(*list))
			for _, m := range *list {
				if m.FileName != req.Data.FileName {
					out = append(out, m)
				}
			}
			*list = out
		default:
			writeJSONError(w, http.StatusBadRequest, "invalid action")
			return
		}
		if err := store.Save(doc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to save configuration")
			return
		}
		writeJSON(w, http.StatusOK, types.ManageModelsResponse{Success: true, Message: "Models updated successfully", Models: *list})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ctrl.Snapshot().Status == controller.StatusRunning {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(string(ctrl.Snapshot().Status)))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Content-Type"}
	}
	return opts
}
