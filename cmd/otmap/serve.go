package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/FocuswithJustin/OTMapKit/internal/api"
)

// ServeCmd starts the REST API and its WebSocket progress feed.
type ServeCmd struct {
	Addr           string   `help:"Listen address (overrides server.addr)"`
	BaseDir        string   `name:"base-dir" help:"Directory clients may read and write (overrides server.base_dir)" type:"path"`
	MaxJobs        int      `name:"max-jobs" help:"Job store capacity (overrides server.max_jobs)"`
	RateLimit      int      `name:"rate-limit" help:"Job submissions per minute per client (0 disables)"`
	RateBurst      int      `name:"rate-burst" help:"Burst size for --rate-limit"`
	APIKey         string   `name:"api-key" help:"Require this key in X-API-Key" env:"OTMAP_API_KEY"`
	AllowedOrigins []string `name:"allowed-origin" help:"Extra WebSocket origin (repeatable, *.domain allowed)"`
}

func (c *ServeCmd) config(e *env) api.Config {
	cfg := api.Config{
		Addr:              e.cfg.Server.Addr,
		BaseDir:           e.cfg.Server.BaseDir,
		MaxJobs:           e.cfg.Server.MaxJobs,
		RateLimitRequests: c.RateLimit,
		RateLimitBurst:    c.RateBurst,
		AllowedOrigins:    c.AllowedOrigins,
	}
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.BaseDir != "" {
		cfg.BaseDir = c.BaseDir
	}
	if c.MaxJobs > 0 {
		cfg.MaxJobs = c.MaxJobs
	}
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	return cfg
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := g.setup(ctx)
	if err != nil {
		return err
	}
	srv := api.New(e.mgr, c.config(e))
	return srv.ListenAndServe(ctx)
}
