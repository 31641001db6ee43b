package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"veil/handlers"
	"veil/pkg/config"
	"veil/pkg/fetch"
	"veil/pkg/metrics"

	"github.com/akamensky/argparse"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	parser := argparse.NewParser("veil", "Anonymizing web proxy that rewrites pages so navigation stays in-proxy")
	configPath := parser.String("c", "config", &argparse.Options{Help: "Path to YAML config file"})
	listen := parser.String("l", "listen", &argparse.Options{Help: "Listen address, e.g. :8080 (overrides config)"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ERROR: loading config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	m := metrics.New()
	fetcher := fetch.New(
		fetch.NewTransport(cfg.MaxIdleConns),
		time.Duration(cfg.TimeoutSeconds)*time.Second,
		cfg.UserAgent,
		m,
	)
	deps := handlers.Deps{Config: cfg, Fetcher: fetcher, Metrics: m}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})
	app.Use(recover.New())
	app.Use(handlers.RequestMetrics(m))
	if cfg.RateLimit.Enabled {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit.PerMinute,
			Expiration: time.Minute,
		}))
	}

	app.Get("/", handlers.Landing())
	app.Get("/nav", handlers.Navigate())
	app.Get("/healthz", handlers.Healthz())
	if cfg.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
	app.Get("/raw/:token", handlers.RawSite(deps))
	app.All("/proxy", handlers.ProxySite(deps))
	app.All("/p/:token", handlers.ProxySite(deps))

	log.Printf("INFO: listening on %s", cfg.Listen)
	log.Fatal(app.Listen(cfg.Listen))
}
