package chargeback

import (
	"github.com/smallbiznis/chargeback/internal/chargeback/domain"
	"github.com/smallbiznis/chargeback/internal/chargeback/query"
	"github.com/smallbiznis/chargeback/internal/chargeback/repository"
	"github.com/smallbiznis/chargeback/internal/chargeback/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chargeback.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(query.NewService),
	fx.Provide(func(s *query.Service) domain.QueryService { return s }),
)
