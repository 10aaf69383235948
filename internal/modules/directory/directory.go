package directory

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/scoring/scorers"
)

// Directory is the in-memory index over the chart of accounts. It owns the
// regular/section partition, precomputed account name vectors, and the
// historical amounts used by the scoring factors.
//
// Readers see a consistent snapshot for the duration of a matching pass:
// Reload and Add swap state under the write lock, reads share the read lock,
// and candidate slices are rebuilt wholesale rather than mutated in place.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	regular  []scorers.Candidate // sorted by account id
	section  []scorers.Candidate // sorted by account id

	repo      *Repository
	extractor *features.Extractor
	log       zerolog.Logger
}

// New creates an empty directory. Call Reload to populate it.
func New(repo *Repository, extractor *features.Extractor, log zerolog.Logger) *Directory {
	return &Directory{
		accounts:  make(map[string]domain.Account),
		repo:      repo,
		extractor: extractor,
		log:       log.With().Str("component", "directory").Logger(),
	}
}

// Reload replaces the directory contents from the repository: accounts,
// the regular/section partition, name vectors, and historical amounts.
func (d *Directory) Reload() error {
	accounts, err := d.repo.All()
	if err != nil {
		return err
	}

	history, err := d.repo.HistoricalAmounts()
	if err != nil {
		return err
	}

	index := make(map[string]domain.Account, len(accounts))
	var regular, section []scorers.Candidate

	for _, a := range accounts {
		index[a.ID] = a
		candidate := scorers.Candidate{
			Account:           a,
			NameVector:        d.extractor.DescriptionVector(a.Name),
			HistoricalAmounts: history[a.ID],
		}
		if a.IsSection() {
			section = append(section, candidate)
		} else {
			regular = append(regular, candidate)
		}
	}

	// Repository orders by id already; keep the guarantee local anyway so
	// tie-breaking stays deterministic regardless of the data source.
	sortCandidates(regular)
	sortCandidates(section)

	d.mu.Lock()
	d.accounts = index
	d.regular = regular
	d.section = section
	d.mu.Unlock()

	d.log.Info().
		Int("regular", len(regular)).
		Int("section", len(section)).
		Msg("Account directory loaded")
	return nil
}

// Add upserts a single account and refreshes the in-memory index.
func (d *Directory) Add(a domain.Account) error {
	if _, err := domain.ParseAccountType(string(a.Type)); err != nil {
		return err
	}
	if err := d.repo.Upsert(a); err != nil {
		return err
	}
	return d.Reload()
}

// Get returns an account by id, or a NotFoundError.
func (d *Directory) Get(id string) (domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return domain.Account{}, &domain.NotFoundError{Kind: "account", ID: id}
	}
	return a, nil
}

// ListByType returns all accounts of the given type, ordered by id.
func (d *Directory) ListByType(t domain.AccountType) []domain.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.Account
	for _, c := range d.regular {
		if c.Account.Type == t {
			out = append(out, c.Account)
		}
	}
	for _, c := range d.section {
		if c.Account.Type == t {
			out = append(out, c.Account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every account ordered by id.
func (d *Directory) All() []domain.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Account, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegularCandidates returns the scoring candidates for regular accounts.
// The returned slice is a snapshot: it is never mutated after Reload.
func (d *Directory) RegularCandidates() []scorers.Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.regular
}

// SectionCandidates returns the scoring candidates for section accounts.
func (d *Directory) SectionCandidates() []scorers.Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.section
}

// DeleteAll removes every account and empties the index. The repository
// refuses while mapped transactions still reference an account.
func (d *Directory) DeleteAll() (int64, error) {
	count, err := d.repo.DeleteAll()
	if err != nil {
		return 0, err
	}
	if err := d.Reload(); err != nil {
		return count, err
	}
	return count, nil
}

// Size returns the number of accounts in the directory.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func sortCandidates(cs []scorers.Candidate) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Account.ID < cs[j].Account.ID })
}
