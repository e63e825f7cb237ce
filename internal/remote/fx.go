package remote

import (
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("remote",
	fx.Provide(config.NewSyncConfigHolder),
	fx.Provide(NewSynchronizer),
	fx.Provide(func(s *Synchronizer) domain.Synchronizer { return s }),
)
