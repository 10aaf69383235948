package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/modules/batch"
)

// MapPendingJob drains the unclaimed PENDING pool through the batch
// mapper.
type MapPendingJob struct {
	mapper *batch.Mapper
	log    zerolog.Logger
}

// NewMapPendingJob creates the mapping job.
func NewMapPendingJob(mapper *batch.Mapper, log zerolog.Logger) *MapPendingJob {
	return &MapPendingJob{
		mapper: mapper,
		log:    log.With().Str("job", "map_pending").Logger(),
	}
}

// Name returns the job name
func (j *MapPendingJob) Name() string {
	return "map_pending"
}

// Run executes one full mapping run over the pending pool.
func (j *MapPendingJob) Run() error {
	summary, err := j.mapper.Run()
	if err != nil {
		return err
	}

	if summary.Processed > 0 || summary.Skipped > 0 {
		j.log.Info().
			Str("run", summary.RunID).
			Int("processed", summary.Processed).
			Int("mapped", summary.Mapped).
			Int("skipped", summary.Skipped).
			Int("errored", summary.Errored).
			Msg("Scheduled mapping run finished")
	}
	return nil
}
