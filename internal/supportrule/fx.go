package supportrule

import (
	"github.com/smallbiznis/sponsorship/internal/supportrule/repository"
	"github.com/smallbiznis/sponsorship/internal/supportrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("supportrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
