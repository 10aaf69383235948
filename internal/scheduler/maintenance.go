package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/modules/ledger"
)

// staleClaimAge is how long a claim may exist before it is considered
// orphaned by a crashed run and released.
const staleClaimAge = 30 * time.Minute

// MaintenanceJob checkpoints the WAL files and releases claims orphaned by
// crashed mapping runs.
type MaintenanceJob struct {
	ledgerDB   *database.DB
	patternsDB *database.DB
	repo       *ledger.Repository
	log        zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job.
func NewMaintenanceJob(ledgerDB, patternsDB *database.DB, repo *ledger.Repository, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		ledgerDB:   ledgerDB,
		patternsDB: patternsDB,
		repo:       repo,
		log:        log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run checkpoints each database and sweeps stale claims
func (j *MaintenanceJob) Run() error {
	for _, db := range []*database.DB{j.ledgerDB, j.patternsDB} {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint("PASSIVE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		} else {
			j.log.Debug().Str("database", db.Name()).Msg("WAL checkpoint OK")
		}
	}

	released, err := j.repo.ReleaseStaleClaims(time.Now().Add(-staleClaimAge))
	if err != nil {
		return err
	}
	if released > 0 {
		j.log.Info().Int64("released", released).Msg("Released stale claims")
	}
	return nil
}
