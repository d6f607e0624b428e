package settle

import (
	"context"
	"time"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/simulator"
)

// Acquire runs one session against the simulated detector: it returns a
// finished or failed engine to idle, starts a session and triggers the detector.
func (s *Station) Acquire(ctx context.Context) (acquisition.Reading[simulator.Frame], error) {
	a := s.Config.Acquisition
	if err := s.Engine.Reset(); err != nil {
		return acquisition.Reading[simulator.Frame]{}, err
	}
	res, err := s.Engine.WatchAndTakeData(a.Timeout, a.Validation)
	if err != nil {
		return acquisition.Reading[simulator.Frame]{}, err
	}
	s.Detector.Trigger()

	// the session is bounded by the timeout, so one advance always settles it
	if manual, ok := s.clock.(*clock.Manual); ok {
		manual.Advance(a.Timeout)
	}
	return res.Wait(ctx)
}

// Loop runs acquisitions until ctx ends, pausing interval between them. Failed
// sessions are logged and do not stop the loop.
func (s *Station) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		reading, err := s.Acquire(ctx)
		if err != nil {
			s.logger.Warn("acquisition failed", "err", err)
		} else {
			s.logger.Info("acquisition", "shot", reading.Payload.Shot, "elapsed", reading.Elapsed, "resets", reading.WindowResets)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
