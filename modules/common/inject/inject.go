package inject

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"golang.org/x/text/language"
	"google.golang.org/genai"

	"rosa-canvas-server/modules/common/config"
	"rosa-canvas-server/modules/common/gemini"
	"rosa-canvas-server/modules/common/i18n"
	"rosa-canvas-server/modules/rose"
)

// Setup - 서비스 의존성 등록. ctx는 서버 수명 동안 유지되는 루트 컨텍스트
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) *do.Injector {
	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug().Msgf(format, args...)
		},
	})

	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[zerolog.Logger](injector, log)

	do.Provide[*genai.Client](injector, func(i *do.Injector) (*genai.Client, error) {
		return gemini.NewClient(ctx, do.MustInvoke[*config.Config](i).GeminiAPIKey)
	})
	do.Provide[rose.Generator](injector, func(i *do.Injector) (rose.Generator, error) {
		client := do.MustInvoke[*genai.Client](i)
		return rose.NewService(client.Models, do.MustInvoke[*config.Config](i).GeminiModel), nil
	})
	do.Provide[*i18n.Catalog](injector, func(i *do.Injector) (*i18n.Catalog, error) {
		return i18n.NewCatalog(do.MustInvoke[*config.Config](i).DefaultLocale)
	})
	do.Provide[rose.ControllerFactory](injector, func(i *do.Injector) (rose.ControllerFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		generator := do.MustInvoke[rose.Generator](i)
		catalog := do.MustInvoke[*i18n.Catalog](i)
		return func(lang language.Tag) *rose.Controller {
			return rose.NewController(rose.ControllerOptions{
				Generator:   generator,
				Catalog:     catalog,
				Language:    lang,
				BaseContext: ctx,
				Timeout:     cfg.GenerationTimeout,
				Logger:      log,
			})
		}, nil
	})
	do.Provide[*rose.Registry](injector, func(i *do.Injector) (*rose.Registry, error) {
		return rose.NewRegistry(
			do.MustInvoke[rose.ControllerFactory](i),
			do.MustInvoke[*config.Config](i).SessionTTL,
			log,
		), nil
	})
	do.Provide[*rose.Page](injector, func(i *do.Injector) (*rose.Page, error) {
		return rose.NewPage(), nil
	})
	do.Provide[*rose.Handler](injector, func(i *do.Injector) (*rose.Handler, error) {
		return rose.NewHandler(
			do.MustInvoke[*rose.Registry](i),
			do.MustInvoke[*i18n.Catalog](i),
			do.MustInvoke[*rose.Page](i),
			do.MustInvoke[*config.Config](i).MaxUploadMemory,
			log,
		), nil
	})

	return injector
}
