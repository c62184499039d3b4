// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	groupsfeature "github.com/dalemusser/bandhub/internal/app/features/groups"
	healthfeature "github.com/dalemusser/bandhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/bandhub/internal/app/features/login"
	recordsfeature "github.com/dalemusser/bandhub/internal/app/features/records"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Version is reported by /health. Set at build time with -ldflags.
var Version = "dev"

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. BandHub composes the core services and
// mounts the JSON feature routers: health, auth, and groups with the
// per-group record collections nested below each group.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc, err := NewServices(deps, appCfg, logger)
	if err != nil {
		logger.Error("service wiring failed", zap.Error(err))
		return nil, err
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, svc.Tokens, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	return buildRouter(svc, sessionMgr, deps.Store, logger), nil
}

func buildRouter(svc *Services, sessionMgr *auth.SessionManager, store docstore.Store, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Global auth middleware: puts the caller's Identity on the context
	// when a bearer token or session cookie is present.
	r.Use(sessionMgr.LoadIdentity)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusNotFound, respond.CodeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, respond.CodeValidation, "method not allowed")
	})

	// Health check endpoint for load balancers and orchestrators
	pinger, _ := store.(docstore.Pinger)
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(pinger, Version, logger)))

	// Authentication
	loginHandler := loginfeature.NewHandler(svc.Accounts, svc.Tokens, sessionMgr, svc.AuditLog, logger).
		WithLimiter(svc.Login)
	r.Mount("/auth", loginfeature.Routes(loginHandler))

	// Groups, with the record collections under /groups/{groupID}
	groupsHandler := groupsfeature.NewHandler(svc.Directory, svc.Policy, svc.Audit, logger)
	recordsHandler := recordsfeature.NewHandler(svc.Events, svc.Finances, svc.Merch, svc.Tasks, svc.Chats, logger)
	r.Mount("/groups", groupsfeature.Routes(groupsHandler, recordsHandler.Mount))

	return r
}
