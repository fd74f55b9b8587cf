package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/reading"
)

// Simulate generates synthetic readings for testing and demos: the given
// number of sensors each produce perSensor readings spread evenly over the
// past hour. Sensors run concurrently and each batch is ingested
// atomically. Returns how many readings were ingested.
func (s *Service) Simulate(ctx context.Context, sensors, perSensor int) (int, error) {
	if !s.running.Load() {
		return 0, errors.ErrClosed
	}
	if sensors < 1 || sensors > constants.SimulateMaxSensors {
		return 0, errors.NewInvalidValue("sensors", sensors,
			fmt.Sprintf("must be between 1 and %d", constants.SimulateMaxSensors))
	}
	if perSensor < 1 || perSensor > constants.SimulateMaxPerSensor {
		return 0, errors.NewInvalidValue("per_sensor", perSensor,
			fmt.Sprintf("must be between 1 and %d", constants.SimulateMaxPerSensor))
	}

	now := time.Now().UTC()
	step := time.Hour / time.Duration(perSensor)

	var inserted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < sensors; i++ {
		id := fmt.Sprintf("sim-sensor-%02d", i+1)
		g.Go(func() error {
			baseline := 15 + rand.Float64()*10

			batch := make([]reading.Reading, 0, perSensor)
			for j := 0; j < perSensor; j++ {
				batch = append(batch, reading.Reading{
					Timestamp:   now.Add(-time.Hour).Add(time.Duration(j+1) * step),
					Temperature: baseline + rand.Float64()*4 - 2,
					SensorID:    id,
				})
			}

			n, err := s.IngestBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("simulate %s: %w", id, err)
			}
			inserted.Add(int64(n))
			return nil
		})
	}

	err := g.Wait()
	n := int(inserted.Load())
	if err != nil {
		return n, err
	}

	s.log.Info("simulation complete", "sensors", sensors, "per_sensor", perSensor, "ingested", n)
	return n, nil
}
