package share

import (
	"log"
	"sync"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/scanloop"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// Sweeper periodically deactivates expired shares. Same conditional-flip
// discipline as the reservation sweep: overlapping runs are harmless.
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
	expired, err := s.repo.ListExpiredActiveShares(nowNs)
	if err != nil {
		log.Printf("[share] sweep query failed: %v", err)
		return
	}

	for _, sh := range expired {
		select {
		case <-s.stopCh:
			return
		default:
		}

		did, err := s.repo.DeactivateExpiredShare(sh.ID, nowNs)
		if err != nil {
			log.Printf("[share] deactivate %s failed: %v", sh.ID, err)
			continue
		}
		if !did {
			continue
		}

		// The audit snapshot records the final view count.
		s.auditor.Record(audit.Entry{
			UserID:       sh.UserID,
			ActionType:   "share_expired",
			ResourceType: "share",
			ResourceID:   sh.ID,
			Snapshot:     map[string]any{"view_count": sh.ViewCount, "token": sh.Token},
			Automated:    true,
		})
	}
}
