package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/triad/internal/backup"
	"github.com/garnizeh/triad/internal/exchange"
	"github.com/garnizeh/triad/internal/metrics"
	"github.com/garnizeh/triad/pkg/repository"
)

// Store is every repository contract the handlers use.
type Store interface {
	repository.ProfileRepo
	repository.ContactRepo
	repository.ActivityRepo
	repository.SnapshotRepo
	repository.SettingsRepo
	repository.Replacer
}

// Deps carries the collaborators the router wires into handlers.
type Deps struct {
	Version   string
	BuildTime string
	Store     Store
	Exchange  *exchange.Service
	Backup    *backup.Codec
	Metrics   metrics.Recorder

	// AllowedOrigins restricts CORS to the local UI; empty allows any origin.
	AllowedOrigins []string
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()
	if d.Metrics == nil {
		d.Metrics = metrics.Noop()
	}

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware(d.AllowedOrigins))
	r.Use(RecoveryMiddleware)
	r.Use(metrics.Middleware(d.Metrics, routeLabel))

	// Create handlers
	systemHandler := &SystemHandler{}
	profileHandler := NewProfileHandler(d.Store)
	activityHandler := NewActivityHandler(d.Store)
	contactsHandler := NewContactsHandler(d.Store, d.Store)
	settingsHandler := NewSettingsHandler(d.Store)
	codesHandler := NewCodesHandler(d.Exchange)
	backupHandler := NewBackupHandler(d.Backup, d.Store)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
	// Preflight requests match here so the CORS middleware can answer them.
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	apiV1 := r.PathPrefix("/v1").Subrouter()

	apiV1.HandleFunc("/profile", profileHandler.GetProfile).Methods("GET")
	apiV1.HandleFunc("/profile", profileHandler.CreateProfile).Methods("POST")
	apiV1.HandleFunc("/profile", profileHandler.UpdateProfile).Methods("PATCH")

	apiV1.HandleFunc("/activity", activityHandler.ListActivity).Methods("GET")
	apiV1.HandleFunc("/activity/{date}", activityHandler.GetDay).Methods("GET")
	apiV1.HandleFunc("/activity/{date}/{slot}/toggle", activityHandler.ToggleSlot).Methods("POST")
	apiV1.HandleFunc("/activity/{date}/{slot}/complete", activityHandler.CompleteSlot).Methods("POST")

	apiV1.HandleFunc("/contacts", contactsHandler.ListContacts).Methods("GET")
	apiV1.HandleFunc("/contacts/{id}", contactsHandler.DeleteContact).Methods("DELETE")
	apiV1.HandleFunc("/snapshots", contactsHandler.ListSnapshots).Methods("GET")

	apiV1.HandleFunc("/settings", settingsHandler.ListSettings).Methods("GET")
	apiV1.HandleFunc("/settings/{key}", settingsHandler.GetSetting).Methods("GET")
	apiV1.HandleFunc("/settings/{key}", settingsHandler.PutSetting).Methods("PUT")

	apiV1.HandleFunc("/codes/link", codesHandler.LinkCode).Methods("GET")
	apiV1.HandleFunc("/codes/snapshot", codesHandler.SnapshotCode).Methods("GET")
	apiV1.HandleFunc("/codes/process", codesHandler.Process).Methods("POST")
	apiV1.HandleFunc("/links/accept", codesHandler.AcceptLink).Methods("POST")

	apiV1.HandleFunc("/backup", backupHandler.Export).Methods("GET")
	apiV1.HandleFunc("/backup", backupHandler.Import).Methods("POST")
	apiV1.HandleFunc("/reset", backupHandler.Reset).Methods("POST")

	return r
}
