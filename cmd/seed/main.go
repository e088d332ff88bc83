package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"imageflow/internal/config"
	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(pool); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	store := repository.NewPostgresStore(pool)
	now := time.Now().UTC()

	// A queued run for the worker to pick up.
	queued := &models.Run{
		ID:            uuid.New().String(),
		Prompt:        "a red fox in a snowy forest, golden hour",
		ParameterBlob: json.RawMessage(`{"num_images": 2, "steps": 20}`),
		Status:        models.RunStatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.CreateRun(ctx, queued); err != nil {
		log.Fatalf("Failed to seed queued run: %v", err)
	}
	logger.Info("Seeded queued run", "run_id", queued.ID)

	// A ready run with pre-generated images, waiting for review.
	thumb := "s3://runs/demo/1/thumb.webp"
	ready := &models.Run{
		ID:        uuid.New().String(),
		Prompt:    "watercolor lighthouse at dusk",
		Status:    models.RunStatusReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ready.Images = []*models.RunImage{
		{
			ID:        uuid.New().String(),
			RunID:     ready.ID,
			Ordinal:   1,
			AssetURI:  "s3://runs/demo/1/image.png",
			ThumbURI:  &thumb,
			Status:    models.RunImageStatusGenerated,
			CreatedAt: now,
		},
		{
			ID:        uuid.New().String(),
			RunID:     ready.ID,
			Ordinal:   2,
			AssetURI:  "s3://runs/demo/2/image.png",
			Status:    models.RunImageStatusGenerated,
			CreatedAt: now,
		},
	}
	if err := store.CreateRun(ctx, ready); err != nil {
		log.Fatalf("Failed to seed ready run: %v", err)
	}
	logger.Info("Seeded ready run", "run_id", ready.ID, "images", len(ready.Images))
}
