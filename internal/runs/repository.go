package runs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/pagination"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/query"
	"github.com/JaimeStill/taxdraft/pkg/repository"
	"github.com/JaimeStill/taxdraft/pkg/storage"
)

const insertRecord = `
	INSERT INTO provenance_records(run_id, seq, step, field, value, source_ref, confidence, recorded_at, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type repo struct {
	db         *sql.DB
	storage    storage.System
	runner     Runner
	progress   Progress
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a run repository implementing System.
func New(
	db *sql.DB,
	store storage.System,
	runner Runner,
	progress Progress,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		runner:     runner,
		progress:   progress,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) Execute(ctx context.Context, uploads []Upload) (*Run, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	id := uuid.New()
	files, err := r.upload(ctx, id, uploads)
	if err != nil {
		return nil, err
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}

	if _, err := r.db.ExecContext(
		ctx,
		"INSERT INTO runs(id, status, files) VALUES ($1, $2, $3)",
		id, StatusRunning, string(filesJSON),
	); err != nil {
		r.deleteBlobs(ctx, id)
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.InfoContext(ctx, "run started", "id", id, "files", len(files))

	docs := make([]extraction.Document, len(files))
	for i, f := range files {
		docs[i] = extraction.Document{Name: f.Name, Key: f.StorageKey, ContentType: f.ContentType}
	}

	// The outcome is persisted even when the client has gone away.
	persist := context.WithoutCancel(ctx)

	result, runErr := r.runner.Run(ctx, docs, r.progress.Observer(id.String()))
	if runErr != nil {
		if err := r.fail(persist, id, runErr); err != nil {
			r.logger.ErrorContext(ctx, "record run failure failed", "id", id, "error", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExecute, runErr)
	}

	if err := r.complete(persist, id, result); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", id, err)
	}

	run, err := r.Find(persist, id)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "run finished",
		"id", id,
		"status", run.Status,
		"records", len(result.Provenance),
	)
	return run, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Run], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Status", "Error")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	runs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(runs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Run, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	run, err := repository.QueryOne(ctx, r.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

// Progress prefers the live Redis snapshot. Once it has expired, events
// are rebuilt from the persisted step statuses.
func (r *repo) Progress(ctx context.Context, id uuid.UUID) ([]engine.Event, error) {
	run, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := r.progress.Snapshot(ctx, id.String())
	if err != nil {
		r.logger.WarnContext(ctx, "progress snapshot unavailable", "id", id, "error", err)
	}
	if len(events) > 0 {
		return events, nil
	}

	return stepEvents(run.Steps), nil
}

func (r *repo) Provenance(
	ctx context.Context,
	id uuid.UUID,
	page pagination.PageRequest,
	filters RecordFilters,
) (*pagination.PageResult[Record], error) {
	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}

	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(recordProjection, recordSort).
		WhereEquals("RunID", id).
		WhereSearch(page.Search, "Field", "SourceRef")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count provenance: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	records, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}

	result := pagination.NewPageResult(records, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Export(ctx context.Context, id uuid.UUID) ([]provenance.Entry, error) {
	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}

	q, args := query.
		NewBuilder(recordProjection, recordSort).
		WhereEquals("RunID", id).
		BuildAll()

	records, err := repository.QueryMany(ctx, r.db, q, args, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}

	entries := make([]provenance.Entry, len(records))
	for i, rec := range records {
		entries[i] = provenance.Entry{
			Step:       rec.Step,
			Field:      rec.Field,
			Value:      rec.Value,
			SourceRef:  rec.SourceRef,
			Confidence: rec.Confidence,
			Timestamp:  rec.RecordedAt.UTC().Format(provenance.TimestampFormat),
			Metadata:   rec.Metadata,
		}
	}
	return entries, nil
}

func (r *repo) Confidence(ctx context.Context, id uuid.UUID) (map[string]float64, error) {
	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}

	type average struct {
		field string
		mean  float64
	}

	averages, err := repository.QueryMany(
		ctx, r.db,
		"SELECT field, AVG(confidence) FROM provenance_records WHERE run_id = $1 GROUP BY field",
		[]any{id},
		func(s repository.Scanner) (average, error) {
			var a average
			err := s.Scan(&a.field, &a.mean)
			return a, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("query confidence: %w", err)
	}

	out := make(map[string]float64, len(averages))
	for _, a := range averages {
		out[a.field] = a.mean
	}
	return out, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM runs WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.deleteBlobs(ctx, id)

	r.logger.InfoContext(ctx, "run deleted", "id", id)
	return nil
}

func (r *repo) upload(ctx context.Context, id uuid.UUID, uploads []Upload) ([]File, error) {
	files := make([]File, 0, len(uploads))
	seen := make(map[string]bool, len(uploads))

	for i, u := range uploads {
		if len(u.Data) == 0 {
			r.deleteBlobs(ctx, id)
			return nil, fmt.Errorf("%w: %s is empty", ErrInvalidFile, u.Name)
		}

		name := sanitizeFilename(u.Name)
		if seen[name] {
			name = fmt.Sprintf("%d-%s", i, name)
		}
		seen[name] = true

		key := buildStorageKey(id, name)
		if err := r.storage.Upload(ctx, key, bytes.NewReader(u.Data), u.ContentType); err != nil {
			r.deleteBlobs(ctx, id)
			return nil, fmt.Errorf("upload %s: %w", u.Name, err)
		}

		files = append(files, File{
			Name:        u.Name,
			ContentType: u.ContentType,
			SizeBytes:   int64(len(u.Data)),
			PageCount:   u.PageCount,
			StorageKey:  key,
		})
	}

	return files, nil
}

func (r *repo) fail(ctx context.Context, id uuid.UUID, runErr error) error {
	return repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4",
		StatusFailed, runErr.Error(), time.Now(), id,
	)
}

func (r *repo) complete(ctx context.Context, id uuid.UUID, res *workflow.Result) error {
	steps, err := json.Marshal(res.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	progress, err := json.Marshal(res.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	state, err := json.Marshal(res.State)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	records, err := recordArgs(id, res.Provenance)
	if err != nil {
		return err
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.ExecExpectOne(
			ctx, tx,
			`UPDATE runs
			SET status = $1, steps = $2, progress = $3, context = $4, error = $5, completed_at = $6
			WHERE id = $7`,
			Status(res), string(steps), string(progress), string(state), runError(res), res.CompletedAt, id,
		); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, repository.ExecEach(ctx, tx, insertRecord, records)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

// deleteBlobs removes every blob stored for id. Failures are logged; the
// database record is authoritative.
func (r *repo) deleteBlobs(ctx context.Context, id uuid.UUID) {
	keys, err := r.storage.List(ctx, storagePrefix(id))
	if err != nil {
		r.logger.WarnContext(ctx, "list run blobs failed", "id", id, "error", err)
		return
	}
	for _, key := range keys {
		if err := r.storage.Delete(ctx, key); err != nil {
			r.logger.WarnContext(ctx, "blob delete failed", "key", key, "error", err)
		}
	}
}

// Status derives the persisted status of a finished workflow.
func Status(res *workflow.Result) string {
	switch {
	case res.Halted:
		return StatusHalted
	case res.Failed():
		return StatusFailed
	default:
		return StatusCompleted
	}
}

func runError(res *workflow.Result) *string {
	if res.Err != nil {
		msg := res.Err.Error()
		return &msg
	}

	var msgs []string
	for _, s := range res.Steps {
		if s.Status == engine.StatusFailed {
			msgs = append(msgs, s.Name+": "+s.Error)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	msg := strings.Join(msgs, "; ")
	return &msg
}

func recordArgs(id uuid.UUID, entries []provenance.Entry) ([][]any, error) {
	args := make([][]any, len(entries))
	for i, e := range entries {
		ts, err := e.Time()
		if err != nil {
			return nil, fmt.Errorf("record %d timestamp: %w", i, err)
		}

		value, err := json.Marshal(e.Value)
		if err != nil {
			if value, err = json.Marshal(fmt.Sprint(e.Value)); err != nil {
				return nil, fmt.Errorf("record %d value: %w", i, err)
			}
		}

		var metadata any
		if e.Metadata != nil {
			md, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, fmt.Errorf("record %d metadata: %w", i, err)
			}
			metadata = string(md)
		}

		args[i] = []any{id, i + 1, e.Step, e.Field, string(value), e.SourceRef, e.Confidence, ts, metadata}
	}
	return args, nil
}

func stepEvents(steps []engine.StepStatus) []engine.Event {
	events := make([]engine.Event, 0, len(steps))
	for i, s := range steps {
		if s.Status == engine.StatusPending {
			continue
		}
		ev := engine.Event{
			Step:   s.Name,
			Number: i + 1,
			Total:  len(steps),
			Status: s.Status,
			Error:  s.Error,
		}
		if d, ok := s.ExecutionTime(); ok && s.Status == engine.StatusCompleted {
			ev.ExecutionTime = &d
		}
		switch {
		case s.EndedAt != nil:
			ev.Time = *s.EndedAt
		case s.StartedAt != nil:
			ev.Time = *s.StartedAt
		}
		events = append(events, ev)
	}
	return events
}

func storagePrefix(id uuid.UUID) string {
	return fmt.Sprintf("runs/%s/", id)
}

func buildStorageKey(id uuid.UUID, filename string) string {
	return storagePrefix(id) + filename
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", ".")
	if name == "." || name == "" || name == string(filepath.Separator) {
		name = "document"
	}
	return url.PathEscape(name)
}
