// Package feed drives the processing core from an ordered, decoded event
// feed. Events are applied one at a time in feed order; the checkpoint only
// advances past fully committed events, so a halt-and-restart resumes exactly
// at the failure position.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"pabloScope/internal/adapter"
	"pabloScope/internal/model"
)

// Dispatcher applies one canonical event against the store.
type Dispatcher interface {
	Dispatch(ctx context.Context, blk model.Block, dec adapter.Decoded) error
}

// RunConfig holds runtime settings for the feed runner.
type RunConfig struct {
	Input             string
	CheckpointPath    string
	CheckpointEnabled bool
}

// Runner reads wire events from a JSONL feed and dispatches them in order.
type Runner struct {
	cfg        RunConfig
	dispatcher Dispatcher
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

func NewRunner(cfg RunConfig, dispatcher Dispatcher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the processing loop over the whole feed.
func (r *Runner) Run(ctx context.Context) error {
	if r.dispatcher == nil {
		return fmt.Errorf("dispatcher is nil")
	}
	if r.cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	cp, found, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if found {
		r.logger.Info("resuming from checkpoint",
			zap.String("last_event_id", cp.LastEventID),
			zap.Uint64("line", cp.Line),
		)
	}

	file, err := os.Open(r.cfg.Input)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var line uint64
	var processed, skipped int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		line++
		if line <= cp.Line {
			continue
		}

		var wire adapter.WireEvent
		if err := json.Unmarshal(raw, &wire); err != nil {
			return fmt.Errorf("parse feed line %d: %w", line, err)
		}

		dec, err := adapter.Decode(wire)
		if err != nil {
			if errors.Is(err, adapter.ErrUnknownVersion) {
				skipped++
				r.logger.Warn("skipping event",
					zap.String("event_id", wire.ID),
					zap.String("kind", wire.Kind),
					zap.Error(err),
				)
				if err := r.checkpoint.Save(wire.ID, line); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("event %s: %w", wire.ID, err)
		}

		blk := model.Block{
			EventID:   wire.ID,
			Number:    wire.BlockNumber,
			Timestamp: time.Unix(int64(wire.Timestamp), 0).UTC(),
		}

		if err := r.dispatcher.Dispatch(ctx, blk, dec); err != nil {
			return fmt.Errorf("event %s: %w", wire.ID, err)
		}
		processed++

		if err := r.checkpoint.Save(wire.ID, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan feed: %w", err)
	}

	r.logger.Info("feed complete",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
	)

	return nil
}
