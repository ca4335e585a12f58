package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"paranoid-backend/internal/admin"
	"paranoid-backend/internal/api"
	"paranoid-backend/internal/auth"
	"paranoid-backend/internal/client"
	"paranoid-backend/internal/config"
	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/softdelete"
	"paranoid-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Load model metadata
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db.Pool, reg); err != nil {
		log.Printf("WARN: Failed to load metadata: %v", err)
	}

	// 5. Resolve soft-delete policies and build the engine
	defaults, models, err := cfg.SoftDelete.BuildPolicies()
	if err != nil {
		log.Fatalf("Failed to build soft-delete policies: %v", err)
	}
	engine, err := softdelete.New(reg, defaults, models)
	if err != nil {
		log.Fatalf("Failed to build soft-delete engine: %v", err)
	}

	// 6. Migrate registered models; policy-enabled models get their marker
	// column added if missing.
	migrator := store.NewMigrator(db)
	markerFor := func(name string) *store.MarkerColumn {
		field, scheme, enabled := cfg.SoftDelete.MarkerFor(name)
		if !enabled || scheme == "expression" {
			// expression values have no structural column type; the
			// model must declare the marker field itself
			return nil
		}
		return &store.MarkerColumn{Name: field, Type: scheme}
	}
	for _, model := range reg.AllModels() {
		if err := migrator.Migrate(ctx, model, markerFor(model.Name)); err != nil {
			log.Fatalf("Failed to migrate %s: %v", model.Name, err)
		}
	}

	// 7. Data client
	dataClient := client.New(engine, db)

	// 8. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (no auth required)
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.Middleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 10. Admin routes (auth + admin role)
	adminHandler := admin.NewHandler(db, reg, migrator, markerFor)
	admin.RegisterAdminRoutes(app, adminHandler, authMW, adminMW)

	// 11. Data routes (auth required)
	apiHandler := api.NewHandler(dataClient, reg)
	api.RegisterDataRoutes(app, apiHandler, authMW)

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
