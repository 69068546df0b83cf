// main.go
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"shopfront/internal/cleanup"
	"shopfront/internal/config"
	"shopfront/internal/data"
	"shopfront/internal/geo"
	"shopfront/internal/inventory"
	"shopfront/internal/logger"
	"shopfront/internal/middleware"
	"shopfront/internal/page"
	"shopfront/internal/security"
	"shopfront/internal/server"
)

const (
	limiterPruneInterval = 5 * time.Minute
	limiterMaxIdle       = 15 * time.Minute
)

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Step 2: Setup logging
	if err := logger.SetupLogger(config.LoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment loaded. Logger ready.")
	config.LogCurrentEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		logger.LogFatal("Invalid configuration: %v", err)
	}

	// Step 3: Open the render audit store. Rendering works without it.
	if err := os.MkdirAll(filepath.Dir(cfg.Audit.DBPath), 0o755); err != nil {
		logger.LogWarn("Could not create audit directory: %v", err)
	}
	if err := data.InitDB(cfg.Audit.DBPath); err != nil {
		logger.LogError("Audit store unavailable, continuing without it: %v", err)
	} else {
		defer data.CloseDB()
	}

	// Step 4: Build the availability pipeline
	signer, err := security.NewHMACSigner(cfg.Inventory.SigningSecret)
	if err != nil {
		logger.LogFatal("Failed to build request signer: %v", err)
	}
	inventoryClient := inventory.NewClient(cfg.Inventory, signer)

	resolver, err := geo.NewResolver(cfg.Geo)
	if err != nil {
		logger.LogFatal("Failed to build geo resolver: %v", err)
	}
	if c, ok := resolver.(io.Closer); ok {
		defer c.Close()
	}

	assembler := page.NewAssembler(page.NewPipeline(inventoryClient, resolver), cfg.Page)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 5: Setup app
	proxies, err := middleware.NewProxyTrust(cfg.Server.TrustedProxies)
	if err != nil {
		logger.LogFatal("Invalid trusted proxy list: %v", err)
	}
	limiter := middleware.NewClientRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	app := server.NewApp(cfg.Address(), server.NewRouter(server.Deps{
		Pages:   page.NewHandler(assembler),
		Limiter: limiter,
		Proxies: proxies,
	}))

	// Step 6: Start background tasks
	limiter.StartPruning(ctx, limiterPruneInterval, limiterMaxIdle)
	if data.IsInitialized() {
		cleanup.StartCleanupRoutine(ctx, time.Duration(cfg.Audit.RetentionHours)*time.Hour)
	}

	// Step 7: Run server
	if err := app.Run(ctx); err != nil {
		logger.LogFatal("Server failed: %v", err)
	}
}
