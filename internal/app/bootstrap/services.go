// internal/app/bootstrap/services.go
package bootstrap

import (
	"errors"

	"github.com/dalemusser/bandhub/internal/app/accounts"
	"github.com/dalemusser/bandhub/internal/app/directory"
	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/audit"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	recordstore "github.com/dalemusser/bandhub/internal/app/store/records"
	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Services is the composed core: stores, policy and the services the
// HTTP features call.
type Services struct {
	Groups      *groupstore.Store
	Users       *userstore.Store
	Permissions *permissionstore.Store
	Audit       *audit.Store
	AuditLog    *auditlog.Logger

	Policy    *modulepolicy.Policy
	Directory *directory.Directory
	Accounts  *accounts.Service
	Tokens    *auth.Tokens
	Login     *ratelimit.LoginGuard // nil when throttling is off

	Events   *recordstore.Events
	Finances *recordstore.Finances
	Merch    *recordstore.Merch
	Tasks    *recordstore.Tasks
	Chats    *recordstore.Chats
}

// NewServices wires the core over deps.Store.
func NewServices(deps DBDeps, appCfg AppConfig, logger *zap.Logger) (*Services, error) {
	if deps.Store == nil {
		return nil, errors.New("bootstrap: no document store")
	}
	s := deps.Store
	authn := auth.ContextAuthenticator{}

	svc := &Services{
		Groups:      groupstore.New(s),
		Users:       userstore.New(s),
		Permissions: permissionstore.New(s),
		Audit:       audit.New(s),
	}
	svc.Groups.SetConflictAttempts(appCfg.ConflictAttempts)
	svc.AuditLog = auditlog.New(svc.Audit, logger, auditlog.Config{
		Auth:  auditlog.ParseConfig(appCfg.AuditLogAuth).Auth,
		Admin: auditlog.ParseConfig(appCfg.AuditLogAdmin).Admin,
	})

	svc.Policy = modulepolicy.New(svc.Permissions, svc.Groups, authn, svc.AuditLog, logger)
	if deps.Redis != nil {
		svc.Policy.WithCache(modulepolicy.NewRedisCache(deps.Redis, appCfg.PermissionCacheTTL))
	}
	svc.Directory = directory.New(svc.Groups, svc.Users, svc.Policy, authn, svc.AuditLog, logger,
		directory.Options{CodeAttempts: appCfg.CodeAttempts})
	svc.Accounts = accounts.New(svc.Users, svc.AuditLog, logger)

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:     appCfg.JWTSecret,
		AccessTTL:  appCfg.AccessTokenTTL,
		RefreshTTL: appCfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	svc.Tokens = tokens

	if appCfg.LoginIPLimit > 0 && appCfg.LoginEmailLimit > 0 {
		var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
		if deps.Redis != nil {
			counter = ratelimit.NewRedisCounter(deps.Redis)
		}
		cfg := ratelimit.DefaultLoginConfig
		cfg.IPLimit = appCfg.LoginIPLimit
		cfg.EmailLimit = appCfg.LoginEmailLimit
		svc.Login = ratelimit.NewLoginGuard(counter, cfg, logger)
	}

	svc.Events = recordstore.NewEvents(s, svc.Policy)
	svc.Finances = recordstore.NewFinances(s, svc.Policy)
	svc.Merch = recordstore.NewMerch(s, svc.Policy, logger)
	svc.Tasks = recordstore.NewTasks(s, svc.Policy)
	svc.Chats = recordstore.NewChats(s, svc.Policy)
	return svc, nil
}
