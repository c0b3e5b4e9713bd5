package payment

import (
	"github.com/smallbiznis/shikkha/internal/payment/gateway/bkash"
	"github.com/smallbiznis/shikkha/internal/payment/repository"
	"github.com/smallbiznis/shikkha/internal/payment/service"
	"github.com/smallbiznis/shikkha/internal/payment/token"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideGrants),
	fx.Provide(repository.ProvideTokens),
	fx.Provide(token.New),
	fx.Provide(bkash.New),
	fx.Provide(service.New),
)
