// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	groupstore "github.com/dalemusser/bandhub/internal/app/store/groups"
	permissionstore "github.com/dalemusser/bandhub/internal/app/store/permissions"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
//
// It applies the configured deadlines and gives every group that lacks a
// permission matrix the default one, so lookups for such groups stop
// failing closed for everybody.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config(appCfg.Timeouts))

	if deps.Store == nil {
		return errors.New("bootstrap: no document store")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()
	repaired, err := ensureMatrices(ctx, deps.Store, logger)
	if err != nil {
		logger.Error("permission matrix repair failed", zap.Error(err))
		return err
	}
	if repaired > 0 {
		logger.Info("created missing permission matrices", zap.Int("groups", repaired))
	}
	return nil
}

// ensureMatrices stores the default matrix for groups that have none and
// reports how many it created.
func ensureMatrices(ctx context.Context, s docstore.Store, logger *zap.Logger) (int, error) {
	raws, err := s.Query(ctx, groupstore.Collection)
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	perms := permissionstore.New(s)
	repaired := 0
	for _, raw := range raws {
		id, ok := raw.Lookup("_id").StringValueOK()
		if !ok || id == "" {
			logger.Warn("skipping group without string id")
			continue
		}
		_, err := perms.Get(ctx, id)
		switch {
		case err == nil:
			continue
		case errors.Is(err, errs.ErrNotFound):
		default:
			return repaired, fmt.Errorf("permissions for %s: %w", id, err)
		}
		if _, err := perms.Put(ctx, models.DefaultMatrix(id)); err != nil {
			return repaired, fmt.Errorf("create permissions for %s: %w", id, err)
		}
		repaired++
	}
	return repaired, nil
}
