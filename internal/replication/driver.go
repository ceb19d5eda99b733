package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/internal/logger"
)

// Mode selects which rows a run pushes
type Mode string

const (
	// ModeIncremental pushes rows changed since the cursor, or everything
	// when there is no cursor yet.
	ModeIncremental Mode = "incremental"
	// ModeFull pushes everything regardless of the cursor.
	ModeFull Mode = "full"
)

// ParseMode accepts "incremental" and "full"; empty means incremental
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown sync mode %q", s)
}

// BatchSizes bounds how many records go in one request
type BatchSizes struct {
	Products     int
	Transactions int
}

func (b BatchSizes) forEntity(e EntityType) int {
	size := b.Transactions
	if e == EntityProducts {
		size = b.Products
	}
	if size <= 0 {
		size = 20
	}
	return size
}

// RunRequest is the input of one run. Cursor is the stored start time of the
// last successful run, nil when there is none.
type RunRequest struct {
	RunID  string
	Mode   Mode
	Cursor *time.Time
}

// EntityCounts tallies outcomes for one entity type
type EntityCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RecordFailure is one record the run could not replicate
type RecordFailure struct {
	Entity     EntityType `json:"entity"`
	NaturalKey string     `json:"natural_key"`
	Reason     string     `json:"reason"`
}

// RunSummary describes a finished run. NextCursor is the value to persist:
// the run's start time when every batch was acknowledged, otherwise the
// cursor the run started from.
type RunSummary struct {
	RunID          string                       `json:"run_id"`
	Mode           Mode                         `json:"mode"`
	StartedAt      time.Time                    `json:"started_at"`
	FinishedAt     time.Time                    `json:"finished_at"`
	Since          *time.Time                   `json:"since,omitempty"`
	Counts         map[EntityType]*EntityCounts `json:"counts"`
	Failures       []RecordFailure              `json:"failures,omitempty"`
	NextCursor     *time.Time                   `json:"next_cursor,omitempty"`
	CursorAdvanced bool                         `json:"cursor_advanced"`
	Error          string                       `json:"error,omitempty"`
}

func (s *RunSummary) counts(e EntityType) *EntityCounts {
	c, ok := s.Counts[e]
	if !ok {
		c = &EntityCounts{}
		s.Counts[e] = c
	}
	return c
}

// Totals sums the counts over every entity type
func (s *RunSummary) Totals() EntityCounts {
	var t EntityCounts
	for _, c := range s.Counts {
		t.Created += c.Created
		t.Updated += c.Updated
		t.Skipped += c.Skipped
		t.Failed += c.Failed
	}
	return t
}

// Driver runs one replication pass. It keeps no state between runs.
type Driver struct {
	source    repository.SyncSourceRepository
	transport Transport
	sizes     BatchSizes
	overlap   time.Duration
	now       func() time.Time
}

// NewDriver creates a driver. overlap widens incremental windows to pick up
// rows committed late by transactions that started before the last run.
func NewDriver(source repository.SyncSourceRepository, transport Transport, sizes BatchSizes, overlap time.Duration) *Driver {
	return &Driver{
		source:    source,
		transport: transport,
		sizes:     sizes,
		overlap:   overlap,
		now:       time.Now,
	}
}

// Run pushes every changed entity in dependency order. Record-level failures
// are counted and skipped; a batch failure aborts the run and leaves the
// cursor where it was.
func (d *Driver) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	log := logger.FromContext(ctx)
	summary := &RunSummary{
		RunID:      req.RunID,
		Mode:       req.Mode,
		StartedAt:  d.now().UTC(),
		Counts:     make(map[EntityType]*EntityCounts, len(EntityOrder)),
		NextCursor: req.Cursor,
	}
	if req.Mode != ModeFull && req.Cursor != nil {
		since := req.Cursor.Add(-d.overlap)
		summary.Since = &since
	}

	fail := func(err error) (*RunSummary, error) {
		summary.FinishedAt = d.now().UTC()
		summary.Error = err.Error()
		return summary, err
	}

	sender, err := d.transport.Authenticate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("mirror authentication failed")
		return fail(err)
	}

	for _, e := range EntityOrder {
		records, err := d.collect(ctx, log, e, summary)
		if err != nil {
			return fail(errors.Wrapf(err, "select %s", e))
		}
		if err := d.push(ctx, log, sender, e, records, summary); err != nil {
			return fail(err)
		}
	}

	next := summary.StartedAt
	summary.NextCursor = &next
	summary.CursorAdvanced = true
	summary.FinishedAt = d.now().UTC()
	return summary, nil
}

// collect loads changed rows of one entity type and converts them to
// records. Rows that fail local validation are recorded as failures here and
// never sent.
func (d *Driver) collect(ctx context.Context, log zerolog.Logger, e EntityType, summary *RunSummary) ([]Record, error) {
	st := &stamper{now: summary.StartedAt}
	var records []Record

	switch e {
	case EntityProducts:
		rows, err := d.source.ChangedProducts(ctx, summary.Since)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			records = append(records, productRecord(&rows[i], st))
		}
	case EntityReceipts:
		rows, err := d.source.ChangedReceipts(ctx, summary.Since)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			records = append(records, receiptRecord(&rows[i], st))
		}
	case EntitySales:
		rows, err := d.source.ChangedSales(ctx, summary.Since)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			records = append(records, saleRecord(&rows[i], st))
		}
	case EntityPayments:
		rows, err := d.source.ChangedPayments(ctx, summary.Since)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			records = append(records, paymentRecord(&rows[i], st))
		}
	case EntityPaymentMethodLines:
		rows, err := d.source.ChangedPaymentMethodLines(ctx, summary.Since)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			records = append(records, paymentMethodLineRecord(&rows[i], st))
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", e)
	}

	if len(st.fallbacks) > 0 {
		log.Warn().
			Str("entity", string(e)).
			Strs("fields", dedupe(st.fallbacks)).
			Int("occurrences", len(st.fallbacks)).
			Msg("missing timestamps replaced with processing time")
	}

	valid := records[:0]
	for _, r := range records {
		if err := r.Validate(); err != nil {
			d.recordFailure(log, summary, e, r.Key(), err.Error())
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func (d *Driver) push(ctx context.Context, log zerolog.Logger, sender BatchSender, e EntityType, records []Record, summary *RunSummary) error {
	batches := Chunk(records, d.sizes.forEntity(e))
	counts := summary.counts(e)

	for i, batch := range batches {
		resp, err := sender.Send(ctx, e, batch)
		if err != nil {
			log.Error().Err(err).
				Str("entity", string(e)).
				Int("batch", i+1).
				Int("batches", len(batches)).
				Str("class", Classify(err)).
				Msg("batch failed, aborting run")
			return errors.Wrapf(err, "%s batch %d/%d", e, i+1, len(batches))
		}

		results := make(map[string]RecordResult, len(resp.Results))
		for _, r := range resp.Results {
			results[r.NaturalKey] = r
		}
		for _, rec := range batch {
			res, ok := results[rec.Key()]
			if !ok {
				d.recordFailure(log, summary, e, rec.Key(), "mirror returned no result for record")
				continue
			}
			switch res.Outcome {
			case OutcomeCreated:
				counts.Created++
			case OutcomeUpdated:
				counts.Updated++
			case OutcomeSkipped:
				counts.Skipped++
			default:
				d.recordFailure(log, summary, e, rec.Key(), res.Reason)
			}
		}
	}

	log.Info().
		Str("entity", string(e)).
		Int("records", len(records)).
		Int("created", counts.Created).
		Int("updated", counts.Updated).
		Int("skipped", counts.Skipped).
		Int("failed", counts.Failed).
		Msg("entity replicated")
	return nil
}

func (d *Driver) recordFailure(log zerolog.Logger, summary *RunSummary, e EntityType, key, reason string) {
	summary.counts(e).Failed++
	summary.Failures = append(summary.Failures, RecordFailure{Entity: e, NaturalKey: key, Reason: reason})
	log.Warn().Str("entity", string(e)).Str("natural_key", key).Str("reason", reason).Msg("record not replicated")
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
