//go:build wireinject
// +build wireinject

package di

import (
	"context"

	wire "github.com/google/wire"

	"github.com/garnizeh/triad/internal/config"
)

func InitApp(ctx context.Context, cfg *config.Config, info BuildInfo) (*App, func(), error) {

	wire.Build(
		NewLogger,
		NewMetrics,
		NewDB,
		NewRepo,
		NewCache,
		NewRenderer,
		NewProcessor,
		NewExchange,
		NewBackup,
		NewJobs,
		NewHandler,
		NewApp,
	)

	return nil, nil, nil
}
