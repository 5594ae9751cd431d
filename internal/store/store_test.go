package store

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/panamawriter/panama-core/internal/infrastructure/database"
)

const testFileID = "MAIN0-test.db"

// openStore opens the Panama schemas on root and shuts them down on cleanup.
func openStore(t *testing.T, root string) *database.Controller {
	t.Helper()
	ctrl, err := Open(context.Background(), database.Config{FileID: testFileID, BusyTimeout: 1}, root, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		ctrl.Shutdown(context.Background(), false) //nolint:errcheck // Test cleanup
	})
	return ctrl
}

func collect[R any](t *testing.T, seq iter.Seq2[*R, error]) []*R {
	t.Helper()
	var out []*R
	for row, err := range seq {
		if err != nil {
			t.Fatalf("enumerate: %v", err)
		}
		out = append(out, row)
	}
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	atts := ctrl.Attachments()
	if len(atts) != 2 || atts[0].Schema != SchemaMem || atts[1].Schema != SchemaPanama {
		t.Fatalf("Attachments() = %+v, want mem then panama", atts)
	}
	if !atts[0].Ephemeral {
		t.Error("mem should be ephemeral")
	}
	if got := len(atts[1].Provisioned); got != 11 {
		t.Errorf("panama provisioned %d tables, want 11", got)
	}

	rec, ok, err := database.MustGetTable[*SchemaTable](ctrl).Current(ctx)
	if err != nil || !ok {
		t.Fatalf("Current() = %v, %v", ok, err)
	}
	if rec.Version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", rec.Version, SchemaVersion)
	}

	colors, err := database.MustGetTable[*ColorTable](ctrl).Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if colors != len(defaultColors) {
		t.Errorf("colors = %d, want %d", colors, len(defaultColors))
	}

	info := database.MustGetTable[*SchemaInfoTable](ctrl)
	row, ok, err := info.LookupSchema(ctx, SchemaPanama)
	if err != nil || !ok {
		t.Fatalf("LookupSchema() = %v, %v", ok, err)
	}
	want := &SchemaInfo{
		ID:          row.ID,
		Schema:      SchemaPanama,
		FileName:    atts[1].FileName,
		Version:     SchemaVersion,
		Tables:      11,
		Provisioned: 11,
		Attached:    atts[1].AttachedAt,
	}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Errorf("schemainfo mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenInvalidRoot(t *testing.T) {
	if _, err := Open(context.Background(), database.Config{}, "", nil); !errors.Is(err, database.ErrInvalidRoot) {
		t.Errorf("Open() error = %v, want ErrInvalidRoot", err)
	}
}

func TestTitleRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	titles, err := database.GetTable[*TitleTable](ctrl)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	added := titles.NewTitle("Test Title", day(2020, 1, 1))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if added.ID == 0 {
		t.Fatal("Save() did not assign an id")
	}

	got := collect(t, titles.EnumerateTitles(ctx))
	want := []*Title{{
		ID:      added.ID,
		Title:   "Test Title",
		Written: day(2020, 1, 1),
		Added:   added.Added,
		Updated: added.Updated,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EnumerateTitles() mismatch (-want +got):\n%s", diff)
	}
}

func TestTitleValidation(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())
	titles := database.MustGetTable[*TitleTable](ctrl)

	tests := []struct {
		name  string
		title *Title
		want  error
	}{
		{name: "blank title", title: &Title{Title: "  ", Written: day(2020, 1, 1)}, want: ErrTitleRequired},
		{name: "no written date", title: &Title{Title: "Untimed"}, want: ErrWrittenRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			titles.Reset()
			titles.Add(tt.title)
			if err := titles.Save(ctx); !errors.Is(err, tt.want) {
				t.Fatalf("Save() error = %v, want %v", err, tt.want)
			}
			if n, _ := titles.Count(ctx, ""); n != 0 {
				t.Errorf("Count() = %d, want 0", n)
			}
		})
	}
}

func TestReattachPreservesRows(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	titles := database.MustGetTable[*TitleTable](ctrl)
	titles.NewTitle("First", day(2019, 3, 4))
	titles.NewTitle("Second", day(2019, 5, 6))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := ctrl.Detach(ctx, SchemaPanama); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if _, err := database.GetTable[*TitleTable](ctrl); !errors.Is(err, database.ErrTableNotRegistered) {
		t.Fatalf("GetTable() after detach error = %v, want ErrTableNotRegistered", err)
	}

	if err := ctrl.Attach(ctx, SchemaPanama, testFileID, RegisterPanama); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	atts := ctrl.Attachments()
	if p := atts[len(atts)-1].Provisioned; len(p) != 0 {
		t.Errorf("Provisioned on reattach = %v, want none", p)
	}
	if err := Refresh(ctx, ctrl); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	titles = database.MustGetTable[*TitleTable](ctrl)
	if n, _ := titles.Count(ctx, ""); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	colors, _ := database.MustGetTable[*ColorTable](ctrl).Count(ctx, "")
	if colors != len(defaultColors) {
		t.Errorf("colors = %d, want %d (seeded once)", colors, len(defaultColors))
	}
}

func TestReopenPreservesRows(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ctrl := openStore(t, root)
	database.MustGetTable[*TitleTable](ctrl).NewTitle("Kept", day(2018, 8, 9))
	if err := ctrl.Shutdown(ctx, true); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	ctrl = openStore(t, root)
	got := collect(t, database.MustGetTable[*TitleTable](ctrl).EnumerateTitles(ctx))
	if len(got) != 1 || got[0].Title != "Kept" {
		t.Errorf("titles = %+v, want Kept", got)
	}
	if p := ctrl.Attachments()[1].Provisioned; len(p) != 0 {
		t.Errorf("Provisioned on reopen = %v, want none", p)
	}
}

func TestVersions(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	titles := database.MustGetTable[*TitleTable](ctrl)
	title := titles.NewTitle("Drafted", day(2021, 1, 1))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	versions := database.MustGetTable[*TitleVersionTable](ctrl)
	v1 := versions.NewVersion(title.ID, "drafted-v1.docx", "")
	v1.Updated = day(2021, 1, 2)
	v2 := versions.NewVersion(title.ID, "drafted-v2.docx", "fr")
	v2.Version = 2
	v2.Updated = day(2021, 2, 2)
	if err := versions.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := collect(t, versions.EnumerateVersions(ctx, title.ID))
	names := make([]string, len(got))
	for i, v := range got {
		names[i] = v.FileName
	}
	if diff := cmp.Diff([]string{"drafted-v2.docx", "drafted-v1.docx"}, names); diff != "" {
		t.Errorf("EnumerateVersions() order (-want +got):\n%s", diff)
	}
	if got[1].Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", got[1].Language, DefaultLanguage)
	}

	latest, ok, err := versions.Latest(ctx, title.ID)
	if err != nil || !ok || latest.ID != v2.ID {
		t.Errorf("Latest() = %+v, %v, %v, want v2", latest, ok, err)
	}
	if _, ok, err := versions.Latest(ctx, 999); ok || err != nil {
		t.Errorf("Latest(missing) = %v, %v", ok, err)
	}

	found, ok, err := versions.LookupByFileName(ctx, "drafted-v1.docx")
	if err != nil || !ok || found.ID != v1.ID {
		t.Errorf("LookupByFileName() = %+v, %v, %v", found, ok, err)
	}

	versions.Reset()
	versions.NewVersion(title.ID, "drafted-v1.docx", "")
	if err := versions.Save(ctx); !errors.Is(err, database.ErrConstraint) {
		t.Errorf("duplicate file Save() error = %v, want ErrConstraint", err)
	}

	versions.Reset()
	versions.NewVersion(title.ID, "", "")
	if err := versions.Save(ctx); !errors.Is(err, ErrFileNameRequired) {
		t.Errorf("blank file Save() error = %v, want ErrFileNameRequired", err)
	}

	versions.Reset()
	versions.NewVersion(12345, "orphan.docx", "")
	if err := versions.Save(ctx); !errors.Is(err, database.ErrConstraint) {
		t.Errorf("unknown title Save() error = %v, want ErrConstraint", err)
	}
}

func TestTitleDeleteCascadesVersionsAndTags(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	titles := database.MustGetTable[*TitleTable](ctrl)
	tags := database.MustGetTable[*TagTable](ctrl)
	title := titles.NewTitle("Gone", day(2021, 1, 1))
	tag := tags.Add(&Tag{Name: "poetry"})
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := tags.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	links := database.MustGetTable[*TitleTagTable](ctrl)
	links.Link(title.ID, tag.ID)
	versions := database.MustGetTable[*TitleVersionTable](ctrl)
	versions.NewVersion(title.ID, "gone.docx", "")
	if err := ctrl.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	row, _, _ := titles.Get(ctx, title.ID)
	if err := titles.Delete(row); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if n, _ := versions.Count(ctx, ""); n != 0 {
		t.Errorf("versions = %d, want 0", n)
	}
	if n, _ := links.Count(ctx, ""); n != 0 {
		t.Errorf("links = %d, want 0", n)
	}
	if n, _ := tags.Count(ctx, ""); n != 1 {
		t.Errorf("tags = %d, want 1", n)
	}
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	colors := database.MustGetTable[*ColorTable](ctrl)
	red, ok, err := colors.LookupByName(ctx, "red")
	if err != nil || !ok {
		t.Fatalf("LookupByName(red) = %v, %v", ok, err)
	}

	tags := database.MustGetTable[*TagTable](ctrl)
	tags.Add(&Tag{Name: "Urgent", ColorID: sql.NullInt64{Int64: red.ID, Valid: true}})
	tags.Add(&Tag{Name: "archive"})
	if err := tags.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := collect(t, tags.EnumerateTags(ctx))
	if len(got) != 2 || got[0].Name != "archive" || got[1].Name != "Urgent" {
		t.Fatalf("EnumerateTags() = %+v", got)
	}
	if got[0].ColorID.Valid || !got[1].ColorID.Valid || got[1].ColorID.Int64 != red.ID {
		t.Errorf("color ids = %+v, %+v", got[0].ColorID, got[1].ColorID)
	}

	tags.Reset()
	tags.Add(&Tag{Name: "URGENT"})
	if err := tags.Save(ctx); !errors.Is(err, database.ErrConstraint) {
		t.Errorf("duplicate tag Save() error = %v, want ErrConstraint", err)
	}
	tags.Reset()

	titles := database.MustGetTable[*TitleTable](ctrl)
	a := titles.NewTitle("Alpha", day(2020, 1, 1))
	titles.NewTitle("Beta", day(2020, 1, 1))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	urgent, _, _ := tags.LookupByName(ctx, "urgent")

	links := database.MustGetTable[*TitleTagTable](ctrl)
	links.Link(a.ID, urgent.ID)
	if err := links.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tagged := collect(t, titles.EnumerateWithTag(ctx, urgent.ID))
	if len(tagged) != 1 || tagged[0].ID != a.ID {
		t.Errorf("EnumerateWithTag() = %+v, want Alpha", tagged)
	}
	if got := collect(t, links.EnumerateForTitle(ctx, a.ID)); len(got) != 1 {
		t.Errorf("EnumerateForTitle() = %d links, want 1", len(got))
	}
	if got := collect(t, links.EnumerateForTag(ctx, urgent.ID)); len(got) != 1 {
		t.Errorf("EnumerateForTag() = %d links, want 1", len(got))
	}

	links.Link(a.ID, urgent.ID)
	if err := links.Save(ctx); !errors.Is(err, database.ErrConstraint) {
		t.Errorf("duplicate link Save() error = %v, want ErrConstraint", err)
	}
}

func TestSubmissions(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	publishers := database.MustGetTable[*PublisherTable](ctrl)
	pub := publishers.NewPublisher("Quarterly Review")
	if err := publishers.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	titles := database.MustGetTable[*TitleTable](ctrl)
	sent := titles.NewTitle("Sent", day(2020, 1, 1))
	sent.Ready = true
	idle := titles.NewTitle("Idle", day(2020, 1, 1))
	idle.Ready = true
	titles.NewTitle("Unfinished", day(2020, 1, 1))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	batches := database.MustGetTable[*SubmissionBatchTable](ctrl)
	batch := batches.Add(&SubmissionBatch{PublisherID: pub.ID, Submitted: day(2020, 6, 1), Fee: 3})
	if err := batches.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	subs := database.MustGetTable[*SubmissionTable](ctrl)
	sub := subs.Submit(batch.ID, sent.ID)
	if err := subs.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ready := collect(t, titles.EnumerateReady(ctx))
	if len(ready) != 1 || ready[0].ID != idle.ID {
		t.Errorf("EnumerateReady() = %+v, want Idle only", ready)
	}

	open := collect(t, batches.EnumerateOpen(ctx))
	if len(open) != 1 || !open[0].Open() {
		t.Fatalf("EnumerateOpen() = %+v, want one open batch", open)
	}

	t.Run("respond", func(t *testing.T) {
		batches.Respond(open[0], day(2020, 7, 1), "form rejection")
		if err := batches.Save(ctx); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if got := collect(t, batches.EnumerateOpen(ctx)); len(got) != 0 {
			t.Errorf("EnumerateOpen() = %d batches, want 0", len(got))
		}

		stored := collect(t, batches.EnumerateForPublisher(ctx, pub.ID))
		if len(stored) != 1 {
			t.Fatalf("EnumerateForPublisher() = %d batches, want 1", len(stored))
		}
		want := &SubmissionBatch{
			ID:           batch.ID,
			PublisherID:  pub.ID,
			Submitted:    day(2020, 6, 1),
			ResponseType: "form rejection",
			Fee:          3,
		}
		want.Response.Time, want.Response.Valid = day(2020, 7, 1), true
		if diff := cmp.Diff(want, stored[0]); diff != "" {
			t.Errorf("batch mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("decline frees the title", func(t *testing.T) {
		rows := collect(t, subs.EnumerateForTitle(ctx, sent.ID))
		if len(rows) != 1 || rows[0].ID != sub.ID || rows[0].Status != StatusPending {
			t.Fatalf("EnumerateForTitle() = %+v", rows)
		}
		rows[0].Status = StatusDeclined
		if err := subs.Save(ctx); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if got := collect(t, titles.EnumerateReady(ctx)); len(got) != 2 {
			t.Errorf("EnumerateReady() = %d titles, want 2", len(got))
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		rows := collect(t, subs.EnumerateForBatch(ctx, batch.ID))
		rows[0].Status = "lost"
		if err := subs.Save(ctx); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("Save() error = %v, want ErrInvalidStatus", err)
		}
		subs.Reset()
	})

	t.Run("duplicate title in batch", func(t *testing.T) {
		subs.Submit(batch.ID, sent.ID)
		if err := subs.Save(ctx); !errors.Is(err, database.ErrConstraint) {
			t.Errorf("Save() error = %v, want ErrConstraint", err)
		}
		subs.Reset()
	})

	t.Run("submitted title cannot be deleted", func(t *testing.T) {
		row, _, _ := titles.Get(ctx, sent.ID)
		if err := titles.Delete(row); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := titles.Save(ctx); !errors.Is(err, database.ErrConstraint) {
			t.Errorf("Save() error = %v, want ErrConstraint", err)
		}
		titles.Reset()
	})

	t.Run("batch validation", func(t *testing.T) {
		bad := batches.Add(&SubmissionBatch{PublisherID: pub.ID, Submitted: day(2020, 6, 1), Fee: -1})
		if err := batches.Save(ctx); !errors.Is(err, ErrNegativeAmount) {
			t.Errorf("Save() error = %v, want ErrNegativeAmount", err)
		}
		bad.Fee = 0
		batches.Respond(bad, day(2020, 5, 1), "early")
		if err := batches.Save(ctx); !errors.Is(err, ErrResponseBeforeSubmission) {
			t.Errorf("Save() error = %v, want ErrResponseBeforeSubmission", err)
		}
		batches.Reset()
	})
}

func TestPublishers(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	publishers := database.MustGetTable[*PublisherTable](ctrl)
	publishers.NewPublisher("Zine")
	gone := publishers.NewPublisher("Annual")
	gone.Defunct = true
	publishers.NewPublisher("bimonthly").Exclusive = true
	if err := publishers.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	names := func(rows []*Publisher) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.Name
		}
		return out
	}
	if diff := cmp.Diff([]string{"bimonthly", "Zine"}, names(collect(t, publishers.EnumeratePublishers(ctx, false)))); diff != "" {
		t.Errorf("active publishers (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Annual", "bimonthly", "Zine"}, names(collect(t, publishers.EnumeratePublishers(ctx, true)))); diff != "" {
		t.Errorf("all publishers (-want +got):\n%s", diff)
	}

	found, ok, err := publishers.LookupByName(ctx, "BIMONTHLY")
	if err != nil || !ok || !found.Exclusive {
		t.Errorf("LookupByName() = %+v, %v, %v", found, ok, err)
	}
	if _, ok, err := publishers.LookupByName(ctx, "missing"); ok || err != nil {
		t.Errorf("LookupByName(missing) = %v, %v", ok, err)
	}

	publishers.Add(&Publisher{Name: " "})
	if err := publishers.Save(ctx); !errors.Is(err, ErrNameRequired) {
		t.Errorf("Save() error = %v, want ErrNameRequired", err)
	}
}

func TestConfigTable(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ctrl := openStore(t, root)

	settings := database.MustGetTable[*ConfigTable](ctrl)
	if _, ok, err := settings.Value(ctx, SettingDefaultLanguage); ok || err != nil {
		t.Fatalf("Value(unset) = %v, %v", ok, err)
	}

	if err := settings.Set(ctx, SettingDefaultLanguage, "de"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := settings.Set(ctx, SettingDefaultLanguage, "fr"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, ok, _ := settings.Value(ctx, SettingDefaultLanguage); !ok || v != "fr" {
		t.Errorf("Value(pending) = %q, %v, want fr", v, ok)
	}
	if err := settings.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if n, _ := settings.Count(ctx, ""); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	if err := settings.Set(ctx, SettingDefaultLanguage, "es"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := ctrl.Shutdown(ctx, true); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	ctrl = openStore(t, root)
	settings = database.MustGetTable[*ConfigTable](ctrl)
	if v, ok, _ := settings.Value(ctx, SettingDefaultLanguage); !ok || v != "es" {
		t.Errorf("Value(reopened) = %q, %v, want es", v, ok)
	}
}

func TestConfigTablePut(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())
	settings := database.MustGetTable[*ConfigTable](ctrl)

	if err := settings.Set(ctx, SettingDefaultLanguage, "de"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := OpenSealer(ctx, settings, "correct horse battery"); err != nil {
		t.Fatalf("OpenSealer() error = %v", err)
	}

	if n, _ := settings.Count(ctx, "name = ?", SettingCredentialSalt); n != 1 {
		t.Errorf("stored salt rows = %d, want 1", n)
	}
	if n, _ := settings.Count(ctx, "name = ?", SettingDefaultLanguage); n != 0 {
		t.Errorf("stored language rows = %d, want 0 until Save", n)
	}
	if v, ok, _ := settings.Value(ctx, SettingDefaultLanguage); !ok || v != "de" {
		t.Errorf("Value(pending) = %q, %v, want de", v, ok)
	}
	if !settings.HasChanges() {
		t.Error("HasChanges() = false, the language setting should still be buffered")
	}
}

func TestSaveAllDeletesChildrenFirst(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	publishers := database.MustGetTable[*PublisherTable](ctrl)
	pub := publishers.NewPublisher("Quarterly Review")
	titles := database.MustGetTable[*TitleTable](ctrl)
	title := titles.NewTitle("Withdrawn Story", day(2020, 1, 1))
	if err := ctrl.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	batches := database.MustGetTable[*SubmissionBatchTable](ctrl)
	batch := batches.Add(&SubmissionBatch{PublisherID: pub.ID, Submitted: day(2020, 6, 1)})
	if err := batches.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	subs := database.MustGetTable[*SubmissionTable](ctrl)
	sub := subs.Submit(batch.ID, title.ID)
	if err := subs.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := subs.Delete(sub); err != nil {
		t.Fatalf("Delete(submission) error = %v", err)
	}
	if err := titles.Delete(title); err != nil {
		t.Fatalf("Delete(title) error = %v", err)
	}
	titles.NewTitle("Replacement", day(2020, 2, 1))

	if err := ctrl.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if n, _ := titles.Count(ctx, "id = ?", title.ID); n != 0 {
		t.Errorf("deleted title still stored")
	}
	if n, _ := subs.Count(ctx, ""); n != 0 {
		t.Errorf("submissions left = %d, want 0", n)
	}
	if n, _ := titles.Count(ctx, "title = ?", "Replacement"); n != 1 {
		t.Errorf("Replacement titles = %d, want 1", n)
	}
}

func TestShutdownSavesEditsAfterSave(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ctrl := openStore(t, root)
	titles := database.MustGetTable[*TitleTable](ctrl)
	title := titles.NewTitle("Draft Name", day(2020, 1, 1))
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	title.Title = "Final Name"
	if err := ctrl.Shutdown(ctx, true); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	ctrl = openStore(t, root)
	titles = database.MustGetTable[*TitleTable](ctrl)
	got, ok, err := titles.Get(ctx, title.ID)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Title != "Final Name" {
		t.Errorf("Title = %q, want Final Name", got.Title)
	}
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	const passphrase = "correct horse battery"

	ctrl := openStore(t, root)
	publishers := database.MustGetTable[*PublisherTable](ctrl)
	pub := publishers.NewPublisher("Portal")
	if err := publishers.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	sealer, err := OpenSealer(ctx, database.MustGetTable[*ConfigTable](ctrl), passphrase)
	if err != nil {
		t.Fatalf("OpenSealer() error = %v", err)
	}

	creds := database.MustGetTable[*CredentialTable](ctrl)
	cred := creds.Add(&Credential{PublisherID: pub.ID, Username: "writer"})
	if err := cred.SetPassword(sealer, "s3cret"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := creds.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := ctrl.Shutdown(ctx, false); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	ctrl = openStore(t, root)
	creds = database.MustGetTable[*CredentialTable](ctrl)
	stored := collect(t, creds.EnumerateForPublisher(ctx, pub.ID))
	if len(stored) != 1 || !stored[0].HasPassword() {
		t.Fatalf("EnumerateForPublisher() = %+v", stored)
	}
	if diff := cmp.Diff(&Credential{ID: cred.ID, PublisherID: pub.ID, Username: "writer"}, stored[0],
		cmpopts.IgnoreUnexported(Credential{})); diff != "" {
		t.Errorf("credential mismatch (-want +got):\n%s", diff)
	}

	t.Run("same passphrase opens", func(t *testing.T) {
		s, err := OpenSealer(ctx, database.MustGetTable[*ConfigTable](ctrl), passphrase)
		if err != nil {
			t.Fatalf("OpenSealer() error = %v", err)
		}
		got, err := stored[0].Password(s)
		if err != nil {
			t.Fatalf("Password() error = %v", err)
		}
		if got != "s3cret" {
			t.Errorf("Password() = %q, want s3cret", got)
		}
	})

	t.Run("wrong passphrase fails", func(t *testing.T) {
		s, err := OpenSealer(ctx, database.MustGetTable[*ConfigTable](ctrl), "another passphrase")
		if err != nil {
			t.Fatalf("OpenSealer() error = %v", err)
		}
		if _, err := stored[0].Password(s); !errors.Is(err, ErrSealedPassword) {
			t.Errorf("Password() error = %v, want ErrSealedPassword", err)
		}
	})

	t.Run("missing passphrase", func(t *testing.T) {
		if _, err := OpenSealer(ctx, database.MustGetTable[*ConfigTable](ctrl), ""); !errors.Is(err, ErrNoPassphrase) {
			t.Errorf("OpenSealer() error = %v, want ErrNoPassphrase", err)
		}
	})

	t.Run("clearing the password", func(t *testing.T) {
		if err := stored[0].SetPassword(nil, ""); err != nil {
			t.Fatalf("SetPassword() error = %v", err)
		}
		if stored[0].HasPassword() {
			t.Error("HasPassword() = true after clearing")
		}
		if got, err := stored[0].Password(nil); got != "" || err != nil {
			t.Errorf("Password() = %q, %v", got, err)
		}
	})
}

func TestSealer(t *testing.T) {
	salt := []byte("0123456789abcdef")
	s, err := NewSealer("passphrase", salt)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	a, err := s.Seal("hello")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, _ := s.Seal("hello")
	if a == b {
		t.Error("Seal() should use a fresh nonce")
	}
	if got, err := s.Open(a); err != nil || got != "hello" {
		t.Errorf("Open() = %q, %v", got, err)
	}

	for _, bad := range []string{"", "!!!", "c2hvcnQ"} {
		if _, err := s.Open(bad); !errors.Is(err, ErrSealedPassword) {
			t.Errorf("Open(%q) error = %v, want ErrSealedPassword", bad, err)
		}
	}

	if _, err := NewSealer("passphrase", []byte("short")); err == nil {
		t.Error("NewSealer() should reject a short salt")
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	ctrl := openStore(t, t.TempDir())

	titles := database.MustGetTable[*TitleTable](ctrl)
	moon := titles.NewTitle("The Moon Harvest", day(2020, 1, 1))
	titles.NewTitle("Sea Glass", day(2020, 1, 1)).Notes = "about the harbour"
	if err := titles.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	publishers := database.MustGetTable[*PublisherTable](ctrl)
	pub := publishers.NewPublisher("Harbor Press")
	if err := publishers.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	search := database.MustGetTable[*SearchTable](ctrl)
	n, err := search.Rebuild(ctx, titles, publishers)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Rebuild() = %d, want 3", n)
	}
	if titles.HasChanges() || publishers.HasChanges() {
		t.Error("Rebuild() left source rows tracked as changed")
	}

	tests := []struct {
		name  string
		query string
		want  []SearchEntry
	}{
		{name: "word", query: "moon", want: []SearchEntry{{Kind: KindTitle, RefID: moon.ID}}},
		{name: "prefix", query: "HARV", want: []SearchEntry{{Kind: KindTitle, RefID: moon.ID}}},
		{name: "both kinds", query: "harbo", want: []SearchEntry{
			{Kind: KindTitle, RefID: moon.ID + 1},
			{Kind: KindPublisher, RefID: pub.ID},
		}},
		{name: "all words", query: "harbor press", want: []SearchEntry{{Kind: KindPublisher, RefID: pub.ID}}},
		{name: "operators stripped", query: `"moon" OR -(`, want: nil},
		{name: "blank", query: "  ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := search.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search(%q) error = %v", tt.query, err)
			}
			var entries []SearchEntry
			for _, e := range got {
				entries = append(entries, SearchEntry{Kind: e.Kind, RefID: e.RefID})
			}
			if diff := cmp.Diff(tt.want, entries); diff != "" {
				t.Errorf("Search(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestMatchQuery(t *testing.T) {
	tests := map[string]string{
		"Moon":          "moon*",
		"sea  glass":    "sea* glass*",
		`"quoted" -not`: "quoted* not*",
		"":              "",
		"***":           "",
	}
	for in, want := range tests {
		if got := matchQuery(in); got != want {
			t.Errorf("matchQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
