package eligibility

import (
	"github.com/smallbiznis/sponsorship/internal/eligibility/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eligibility.service",
	fx.Provide(service.New),
)
