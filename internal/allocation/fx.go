package allocation

import (
	"github.com/smallbiznis/sponsorship/internal/allocation/repository"
	"github.com/smallbiznis/sponsorship/internal/allocation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("allocation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
