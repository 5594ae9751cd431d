package store

import (
	"context"
	"database/sql"
	"iter"
	"time"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
	"github.com/panamawriter/panama-core/internal/store/ddl"
)

// Status is the outcome of one submitted title.
type Status string

// Submission statuses.
const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusWithdrawn Status = "withdrawn"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusWithdrawn:
		return true
	}
	return false
}

// SubmissionBatch is one submission event to a publisher, covering one or
// more titles.
type SubmissionBatch struct {
	ID          int64
	PublisherID int64
	Submitted   time.Time

	// Response is unset until the publisher answers.
	Response     sql.NullTime
	ResponseType string

	Fee    float64
	Award  float64
	Online bool
	Notes  string
}

// Open reports whether the batch is still awaiting a response.
func (b *SubmissionBatch) Open() bool {
	return !b.Response.Valid
}

// Validate checks amounts and dates.
func (b *SubmissionBatch) Validate() error {
	if b.Fee < 0 || b.Award < 0 {
		return ErrNegativeAmount
	}
	if b.Response.Valid && b.Response.Time.Before(b.Submitted) {
		return ErrResponseBeforeSubmission
	}
	return nil
}

var batchMapping = database.Mapping[SubmissionBatch]{
	Key: "id",
	Columns: []string{
		"publisher_id", "submitted", "response", "response_type", "fee", "award", "is_online", "notes",
	},
	ID: func(r *SubmissionBatch) *int64 { return &r.ID },
	Values: func(r *SubmissionBatch) []any {
		return []any{r.PublisherID, r.Submitted, nullTime(r.Response), r.ResponseType, r.Fee, r.Award, r.Online, r.Notes}
	},
	Targets: func(r *SubmissionBatch) []any {
		return []any{&r.PublisherID, &r.Submitted, &r.Response, &r.ResponseType, &r.Fee, &r.Award, &r.Online, &r.Notes}
	},
	Validate: (*SubmissionBatch).Validate,
}

// SubmissionBatchTable wraps panama.submissionbatch.
type SubmissionBatchTable struct {
	*database.TableBase[SubmissionBatch]
}

// NewSubmissionBatchTable binds the submissionbatch table.
func NewSubmissionBatchTable(b database.Binding) *SubmissionBatchTable {
	return &SubmissionBatchTable{database.NewTableBase(b, ddl.MustGet("submissionbatch"), batchMapping)}
}

// EnumerateForPublisher yields a publisher's batches, newest first.
func (t *SubmissionBatchTable) EnumerateForPublisher(ctx context.Context, publisherID int64) iter.Seq2[*SubmissionBatch, error] {
	return t.Enumerate(ctx, "publisher_id = ?", "submitted DESC", publisherID)
}

// EnumerateOpen yields batches without a response, oldest first.
func (t *SubmissionBatchTable) EnumerateOpen(ctx context.Context) iter.Seq2[*SubmissionBatch, error] {
	return t.Enumerate(ctx, "response IS NULL", "submitted")
}

// Respond records the publisher's answer on a batch.
func (t *SubmissionBatchTable) Respond(b *SubmissionBatch, at time.Time, responseType string) {
	b.Response = sql.NullTime{Time: at, Valid: true}
	b.ResponseType = responseType
}

// Submission is one title inside a batch.
type Submission struct {
	ID      int64
	BatchID int64
	TitleID int64

	// VersionID is the manuscript version sent, when known.
	VersionID sql.NullInt64

	Status Status
	Notes  string
}

var submissionMapping = database.Mapping[Submission]{
	Key:     "id",
	Columns: []string{"batch_id", "title_id", "version_id", "status", "notes"},
	ID:      func(r *Submission) *int64 { return &r.ID },
	Values: func(r *Submission) []any {
		return []any{r.BatchID, r.TitleID, nullInt(r.VersionID), string(r.Status), r.Notes}
	},
	Targets: func(r *Submission) []any {
		return []any{&r.BatchID, &r.TitleID, &r.VersionID, &r.Status, &r.Notes}
	},
	Validate: func(r *Submission) error {
		if !r.Status.Valid() {
			return ErrInvalidStatus
		}
		return nil
	},
}

// SubmissionTable wraps panama.submission.
type SubmissionTable struct {
	*database.TableBase[Submission]
}

// NewSubmissionTable binds the submission table.
func NewSubmissionTable(b database.Binding) *SubmissionTable {
	return &SubmissionTable{database.NewTableBase(b, ddl.MustGet("submission"), submissionMapping)}
}

// Submit buffers a pending submission of a title in a batch.
func (t *SubmissionTable) Submit(batchID, titleID int64) *Submission {
	return t.Add(&Submission{BatchID: batchID, TitleID: titleID, Status: StatusPending})
}

// EnumerateForTitle yields the submissions of a title, newest batch first.
func (t *SubmissionTable) EnumerateForTitle(ctx context.Context, titleID int64) iter.Seq2[*Submission, error] {
	order := "(SELECT submitted FROM " + t.Schema() + ".submissionbatch b WHERE b.id = batch_id) DESC"
	return t.Enumerate(ctx, "title_id = ?", order, titleID)
}

// EnumerateForBatch yields the submissions of a batch.
func (t *SubmissionTable) EnumerateForBatch(ctx context.Context, batchID int64) iter.Seq2[*Submission, error] {
	return t.Enumerate(ctx, "batch_id = ?", "", batchID)
}

// nullTime converts an optional time to its driver value.
func nullTime(v sql.NullTime) any {
	if !v.Valid {
		return nil
	}
	return v.Time
}
