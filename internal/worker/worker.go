// Package worker contains the polling loop that drains the run queue.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/internal/services"
	"imageflow/pkg/models"
)

// Worker is the single long-lived process that claims queued runs and drives
// them through generation. Runs are claimed oldest first and processed one
// at a time; images within a run are generated sequentially in ordinal
// order. The engine handle is constructed by the caller at startup and
// passed in, never lazily initialized inside the loop.
type Worker struct {
	store          repository.Store
	engine         services.EngineClient
	logger         *logging.Logger
	pollInterval   time.Duration
	defaultModelID string

	runsProcessed   metric.Int64Counter
	imagesGenerated metric.Int64Counter

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how long the worker sleeps when the queue is empty.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithDefaultModelID sets the model used when a run's parameters name none.
func WithDefaultModelID(id string) Option {
	return func(w *Worker) { w.defaultModelID = id }
}

// New creates a Worker.
func New(store repository.Store, engine services.EngineClient, logger *logging.Logger, opts ...Option) *Worker {
	meter := otel.Meter("imageflow/worker")
	runsProcessed, _ := meter.Int64Counter("worker.runs_processed")
	imagesGenerated, _ := meter.Int64Counter("worker.images_generated")

	w := &Worker{
		store:           store,
		engine:          engine,
		logger:          logger,
		pollInterval:    5 * time.Second,
		runsProcessed:   runsProcessed,
		imagesGenerated: imagesGenerated,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the polling loop. It returns immediately.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true

	w.logger.Info("worker starting", "poll_interval", w.pollInterval.String())

	w.wg.Add(1)
	go w.loop()
}

// Stop signals the loop to stop and waits for the in-flight run to finish,
// bounded by the context deadline.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		run, err := w.store.ClaimNextQueuedRun(context.Background())
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				w.logger.Error("claim failed", "error", err.Error())
			}
			w.sleep()
			continue
		}

		w.processRun(context.Background(), run)
	}
}

func (w *Worker) sleep() {
	select {
	case <-time.After(w.pollInterval):
	case <-w.stopCh:
	}
}

// processRun drives one claimed run to ready or error. Each produced image
// is persisted immediately, so partial progress survives a later failure.
func (w *Worker) processRun(ctx context.Context, run *models.Run) {
	w.logger.Info("processing run", "run_id", run.ID, "prompt", run.Prompt)

	params, err := ParseParams(run.ParameterBlob, w.defaultModelID)
	if err != nil {
		w.logger.Error("invalid run parameters", "run_id", run.ID, "error", err.Error())
		w.finalize(ctx, run.ID, models.RunStatusError)
		return
	}

	// A requeued run may already hold images from an earlier attempt.
	// Ordinals are never reused, so new images continue after the highest
	// persisted one.
	existing, err := w.store.GetRun(ctx, run.ID)
	if err != nil {
		w.logger.Error("failed to load run images", "run_id", run.ID, "error", err.Error())
		w.finalize(ctx, run.ID, models.RunStatusError)
		return
	}
	nextOrdinal := 1
	for _, img := range existing.Images {
		if img.Ordinal >= nextOrdinal {
			nextOrdinal = img.Ordinal + 1
		}
	}

	produced := 0
	for i := 0; i < params.NumImages; i++ {
		ordinal := nextOrdinal + i
		image, err := w.engine.GenerateImage(ctx, services.GenerateImageRequest{
			RunID:          run.ID,
			Ordinal:        ordinal,
			Prompt:         run.Prompt,
			NegativePrompt: params.NegativePrompt,
			Steps:          params.Steps,
			Guidance:       params.Guidance,
			Width:          params.Width,
			Height:         params.Height,
			Seed:           params.Seed,
			Saturation:     params.Saturation,
			Contrast:       params.Contrast,
			ModelID:        params.ModelID,
		})
		if err != nil {
			// An image-level failure does not abort the run.
			w.logger.Error("image generation failed",
				"run_id", run.ID, "ordinal", ordinal, "error", err.Error())
			continue
		}

		runImage := &models.RunImage{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Ordinal:   ordinal,
			AssetURI:  image.AssetURI,
			ThumbURI:  image.ThumbURI,
			Status:    models.RunImageStatusGenerated,
			CreatedAt: time.Now().UTC(),
		}
		if err := w.store.AddRunImages(ctx, run.ID, []*models.RunImage{runImage}); err != nil {
			w.logger.Error("failed to persist image",
				"run_id", run.ID, "ordinal", ordinal, "error", err.Error())
			continue
		}

		produced++
		w.imagesGenerated.Add(ctx, 1)
	}

	final := models.RunStatusReady
	if produced == 0 {
		final = models.RunStatusError
	}
	w.finalize(ctx, run.ID, final)

	w.logger.Info("run finished",
		"run_id", run.ID, "status", string(final),
		"images", produced, "requested", params.NumImages)
}

func (w *Worker) finalize(ctx context.Context, runID string, status models.RunStatus) {
	if err := w.store.UpdateRunStatus(ctx, runID, status); err != nil {
		w.logger.Error("failed to finalize run",
			"run_id", runID, "status", string(status), "error", err.Error())
		return
	}
	w.runsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(status)),
	))
}
