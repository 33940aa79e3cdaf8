package reservation

import (
	"log"
	"sync"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/scanloop"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// Sweeper periodically flips expired active reservations to expired.
// Each flip is a conditional update guarded by the prior active status, so
// overlapping sweeps update zero rows on their second pass.
type Sweeper struct {
	repo        *state.Repo
	auditor     *audit.Recorder
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	minInterval time.Duration
	jitterRange time.Duration

	// test hook: called at the beginning of each sweep.
	sweepHook func()
}

func NewSweeper(repo *state.Repo, auditor *audit.Recorder, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:        repo,
		auditor:     auditor,
		stopCh:      make(chan struct{}),
		minInterval: interval,
		jitterRange: interval / 4,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanloop.Run(s.stopCh, s.minInterval, s.jitterRange, s.sweep)
	}()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) sweep() {
	if s.sweepHook != nil {
		s.sweepHook()
	}

	nowNs := time.Now().UnixNano()
	expired, err := s.repo.ListExpiredActiveReservations(nowNs)
	if err != nil {
		log.Printf("[reservation] sweep query failed: %v", err)
		return
	}

	for _, res := range expired {
		select {
		case <-s.stopCh:
			return
		default:
		}

		did, err := s.repo.ExpireReservation(res.ID, nowNs)
		if err != nil {
			// One record's failure never aborts the rest of the sweep.
			log.Printf("[reservation] expire %s failed: %v", res.ID, err)
			continue
		}
		if !did {
			continue
		}

		s.auditor.Record(audit.Entry{
			UserID:       res.UserID,
			ActionType:   "reservation_expired",
			ResourceType: "reservation",
			ResourceID:   res.ID,
			Snapshot:     res,
			Automated:    true,
		})
	}
}
