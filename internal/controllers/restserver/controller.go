package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/segfit/internal/log"
	"github.com/chrissnell/segfit/internal/storage"
	"github.com/chrissnell/segfit/internal/workspace"
	"github.com/chrissnell/segfit/pkg/config"
	"github.com/chrissnell/segfit/pkg/responseformat"
)

// Controller represents the REST server controller
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerData
	fitConfig    config.FitData
	suggest      config.SuggestData
	Server       http.Server
	logger       *zap.SugaredLogger
	handlers     *Handlers
	formatter    *responseformat.Formatter

	// mu serializes every edit-then-fit cycle against the workspace
	mu    sync.Mutex
	ws    *workspace.Workspace
	store storage.ProjectStore
}

// NewController creates a new REST server controller. store may be nil, in
// which case the project endpoints answer 503.
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, ws *workspace.Workspace, store storage.ProjectStore, logger *zap.SugaredLogger) (*Controller, error) {
	if ws == nil {
		return nil, fmt.Errorf("REST server needs a workspace")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: cfg.Server,
		fitConfig:    cfg.Fit,
		suggest:      cfg.Suggest,
		logger:       logger,
		formatter:    responseformat.NewFormatter(cfg.Server.EnableCORS),
		ws:           ws,
		store:        store,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if ctrl.serverConfig.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.serverConfig.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if ctrl.serverConfig.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultPort)
		ctrl.serverConfig.Port = config.DefaultPort
	}

	if ctrl.fitConfig.CurvePoints == 0 {
		ctrl.fitConfig.CurvePoints = config.DefaultCurvePoints
	}

	// Create handlers
	ctrl.handlers = NewHandlers(ctrl)

	// Set up router
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.serverConfig.ListenAddr, ctrl.serverConfig.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)
	if c.serverConfig.EnableCORS {
		router.Use(c.corsMiddleware)
	}

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", c.handlers.GetStatus).Methods("GET")
	api.HandleFunc("/logs/http", c.handlers.GetHTTPLogs).Methods("GET")

	// Channel inspection
	api.HandleFunc("/channels", c.handlers.GetChannels).Methods("GET")
	api.HandleFunc("/channels/export", c.handlers.ExportChannels).Methods("GET")
	api.HandleFunc("/channels/import", c.handlers.ImportChannels).Methods("POST")
	api.HandleFunc("/channels/{channel}", c.handlers.GetChannel).Methods("GET")
	api.HandleFunc("/channels/{channel}/segments", c.handlers.GetSegments).Methods("GET")
	api.HandleFunc("/channels/{channel}/curve", c.handlers.GetCurve).Methods("GET")

	// Structural edits
	api.HandleFunc("/channels/{channel}/split", c.handlers.Split).Methods("POST")
	api.HandleFunc("/channels/{channel}/merge", c.handlers.Merge).Methods("POST")
	api.HandleFunc("/channels/{channel}/boundary", c.handlers.MoveBoundary).Methods("POST")
	api.HandleFunc("/channels/{channel}/boundaries", c.handlers.Regenerate).Methods("PUT")
	api.HandleFunc("/channels/{channel}/segments", c.handlers.Insert).Methods("POST")
	api.HandleFunc("/channels/{channel}/segments/{index}", c.handlers.DeleteSegment).Methods("DELETE")
	api.HandleFunc("/channels/{channel}/segments/{index}", c.handlers.PatchSegment).Methods("PATCH")
	api.HandleFunc("/channels/{channel}/reset", c.handlers.Reset).Methods("POST")
	api.HandleFunc("/channels/{channel}/suggest", c.handlers.GetSuggestion).Methods("GET")
	api.HandleFunc("/channels/{channel}/suggest", c.handlers.ApplySuggestion).Methods("POST")

	// Channel settings and fitting
	api.HandleFunc("/channels/{channel}/continuity", c.handlers.SetContinuity).Methods("PUT")
	api.HandleFunc("/channels/{channel}/offset", c.handlers.SetOffset).Methods("PUT")
	api.HandleFunc("/channels/{channel}/fit", c.handlers.Fit).Methods("POST")

	// Projects
	api.HandleFunc("/projects", c.handlers.ListProjects).Methods("GET")
	api.HandleFunc("/projects", c.handlers.SaveProject).Methods("POST")
	api.HandleFunc("/projects/{id}", c.handlers.UpdateProject).Methods("PUT")
	api.HandleFunc("/projects/{id}", c.handlers.DeleteProject).Methods("DELETE")
	api.HandleFunc("/projects/{id}/load", c.handlers.LoadProject).Methods("POST")

	return router
}

// corsMiddleware adds CORS headers
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
