package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/infrastructure/page"
	"github.com/AzielCF/az-compare/ui/rest"
	"github.com/AzielCF/az-compare/ui/rest/middleware"
	"github.com/AzielCF/az-compare/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"rest"},
	Short:   "Serve comparisons, search and the live session over http",
	Long: `Serve the REST API and the websocket event feed. With --document the
reconciliation engine also runs over the given page.`,
	Run: restServer,
}

func init() {
	restCmd.Flags().String("document", "", `saved listing page to reconcile --document <path> | example: --document="storages/page.html"`)
	restCmd.Flags().String("location", "", "location reported when the page declares no canonical url")
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := config.Global
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}
	document, _ := cmd.Flags().GetString("document")
	location, _ := cmd.Flags().GetString("location")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := buildServices(ctx, cfg, websocket.Sink{})
	if err != nil {
		logrus.Fatalf("[REST] Failed to initialize services: %v", err)
	}
	defer svc.close()

	var (
		session domainReconcile.IReconcileUsecase
		loop    rest.LoopStats
	)
	if document != "" {
		doc, err := page.Open(document, page.Options{Location: location})
		if err != nil {
			logrus.Fatalf("[REST] Failed to open %s: %v", document, err)
		}
		engine, taskLoop, err := startEngine(ctx, cfg, svc, doc)
		if err != nil {
			logrus.Fatalf("[REST] Failed to start reconciliation on %s: %v", document, err)
		}
		defer engine.Stop()
		session, loop = engine, taskLoop
	} else {
		logrus.Info("[REST] No --document given, session endpoints are disabled")
	}

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "az-compare",
		ServerHeader:            "Hidden",
		ReadTimeout:             30 * time.Second,
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(cfg.App.BasePath + "/api")

	// Probes stay public so orchestrators need no credentials.
	rest.InitRestMonitoring(apiGroup, cfg.App.Version, svc.events)

	if len(cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range cfg.App.BasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH is empty, the api is public")
	}

	rest.InitRestVendor(apiGroup, svc.provider)
	rest.InitRestCompare(apiGroup, svc.comparer)
	rest.InitRestSearch(apiGroup, svc.search, svc.provider, svc.comparer)
	rest.InitRestCache(apiGroup, svc.cache)
	rest.InitRestSession(apiGroup, session, loop)

	websocket.SetValkeyClient(svc.valkey, svc.serverID)
	websocket.RegisterRoutes(apiGroup, session)
	go websocket.RunHub(ctx)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
	logrus.Info("[REST] Server stopped")
}
