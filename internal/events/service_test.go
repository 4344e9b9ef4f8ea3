package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/permissions"
	"github.com/ems-calendar/backend/internal/recurrence"
	"github.com/ems-calendar/backend/internal/store/memory"
	"github.com/ems-calendar/backend/internal/versions"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

type fixture struct {
	db     *memory.DB
	events *Service
	perms  *permissions.Service
	hist   *versions.Service
	owner  uuid.UUID
	other  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	clock := day
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f := &fixture{
		db:     db,
		events: newService(db, nil, now),
		perms:  permissions.NewService(db, nil),
		hist:   versions.NewService(db),
		owner:  uuid.New(),
		other:  uuid.New(),
	}
	db.Users().Put(models.User{ID: f.owner, Username: "owner", Email: "owner@example.com", IsActive: true})
	db.Users().Put(models.User{ID: f.other, Username: "other", Email: "other@example.com", IsActive: true})
	return f
}

func input(title string, start, end time.Time) models.EventInput {
	return models.EventInput{Title: title, StartTime: start, EndTime: end}
}

func (f *fixture) create(t *testing.T, title string, start, end time.Time) *models.Event {
	t.Helper()
	ev, err := f.events.Create(context.Background(), f.owner, input(title, start, end))
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return ev
}

func (f *fixture) share(t *testing.T, eventID uuid.UUID, role models.Role) {
	t.Helper()
	_, err := f.perms.Share(context.Background(), eventID, f.owner, []models.RoleAssignment{{UserID: f.other, Role: role}})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
}

func TestCreate_InitialVersionAndChangelog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))

	if ev.CurrentVersion != 1 {
		t.Fatalf("current_version = %d, want 1", ev.CurrentVersion)
	}
	v, err := f.hist.Get(ctx, ev.ID, f.owner, 1)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if *v.ChangeDescription != versions.DescInitial || v.Data["title"] != "A" {
		t.Fatalf("version 1 = %+v", v)
	}
	log, _ := f.hist.Changelog(ctx, ev.ID, f.owner)
	if len(log) != 1 || log[0].Action != models.ActionCreate || log[0].VersionFrom != nil || log[0].VersionTo != 1 || log[0].Changes != nil {
		t.Fatalf("changelog = %+v", log)
	}
	if log[0].Username != "owner" {
		t.Errorf("username = %q", log[0].Username)
	}
}

func TestCreate_OverlapConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A", at(10, 0), at(11, 0))

	_, err := f.events.Create(context.Background(), f.owner, input("B", at(10, 30), at(11, 30)))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	ids := apperr.ConflictIDs(err)
	if len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("conflict ids = %v, want [%s]", ids, a.ID)
	}
}

func TestCreate_TouchingDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A", at(10, 0), at(11, 0))
	f.create(t, "C", at(11, 0), at(12, 0))
}

func TestCreate_OtherOwnerDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A", at(10, 0), at(11, 0))
	if _, err := f.events.Create(context.Background(), f.other, input("B", at(10, 0), at(11, 0))); err != nil {
		t.Fatalf("create for other owner: %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   models.EventInput
	}{
		{"inverted", input("x", at(11, 0), at(10, 0))},
		{"zero length", input("x", at(10, 0), at(10, 0))},
		{"missing title", input("", at(10, 0), at(11, 0))},
		{"recurring without pattern", models.EventInput{Title: "x", StartTime: at(10, 0), EndTime: at(11, 0), IsRecurring: true}},
		{"bad frequency", models.EventInput{Title: "x", StartTime: at(10, 0), EndTime: at(11, 0), IsRecurring: true,
			RecurrencePattern: &recurrence.Pattern{Frequency: "hourly"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.events.Create(context.Background(), f.owner, tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want Validation", err)
			}
		})
	}
}

func TestUpdate_ThreeTitlesGiveFourEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))

	for _, title := range []string{"B", "C", "D"} {
		title := title
		if _, err := f.events.Update(ctx, ev.ID, f.owner, models.EventPatch{Title: &title}); err != nil {
			t.Fatalf("update %s: %v", title, err)
		}
	}

	log, err := f.hist.Changelog(ctx, ev.ID, f.owner)
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	want := []models.Action{models.ActionUpdate, models.ActionUpdate, models.ActionUpdate, models.ActionCreate}
	if len(log) != len(want) {
		t.Fatalf("entries = %d, want 4", len(log))
	}
	for i, a := range want {
		if log[i].Action != a {
			t.Errorf("entry %d action = %s, want %s", i, log[i].Action, a)
		}
	}
	if log[0].VersionTo != 4 || *log[0].VersionFrom != 3 {
		t.Errorf("newest entry = %d -> %d", *log[0].VersionFrom, log[0].VersionTo)
	}
	if c := log[0].Changes["title"]; c.Old != "C" || c.New != "D" {
		t.Errorf("title change = %+v", c)
	}
	v4, _ := f.hist.Get(ctx, ev.ID, f.owner, 4)
	if v4.Data["title"] != "D" {
		t.Errorf("v4 title = %v", v4.Data["title"])
	}
	list, _ := f.hist.List(ctx, ev.ID, f.owner)
	for i, v := range list {
		if v.VersionNumber != 4-i {
			t.Errorf("versions not dense newest first: %d at %d", v.VersionNumber, i)
		}
	}
}

func TestUpdate_PartialKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := "Room 7"
	in := input("A", at(10, 0), at(11, 0))
	in.Location = &loc
	ev, _ := f.events.Create(ctx, f.owner, in)

	title := "A2"
	got, err := f.events.Update(ctx, ev.ID, f.owner, models.EventPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Location == nil || *got.Location != loc || !got.StartTime.Equal(at(10, 0)) {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if got.UpdatedAt == nil {
		t.Fatalf("updated_at not set")
	}
}

func TestUpdate_ConflictExcludesSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", at(10, 0), at(11, 0))
	b := f.create(t, "B", at(12, 0), at(13, 0))

	end := at(11, 30)
	if _, err := f.events.Update(ctx, a.ID, f.owner, models.EventPatch{EndTime: &end}); err != nil {
		t.Fatalf("extending into free time: %v", err)
	}
	start := at(12, 30)
	end = at(13, 30)
	_, err := f.events.Update(ctx, a.ID, f.owner, models.EventPatch{StartTime: &start, EndTime: &end})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	if ids := apperr.ConflictIDs(err); len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("conflict ids = %v", ids)
	}
	stored, _ := f.events.Get(ctx, a.ID, f.owner)
	if stored.CurrentVersion != 2 {
		t.Errorf("failed update wrote a version: %d", stored.CurrentVersion)
	}
}

func TestUpdate_ValidatesMergedState(t *testing.T) {
	f := newFixture(t)
	ev := f.create(t, "A", at(10, 0), at(11, 0))
	start := at(12, 0)
	_, err := f.events.Update(context.Background(), ev.ID, f.owner, models.EventPatch{StartTime: &start})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
}

func TestPermissions_ViewerAndEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))
	title := "hijack"

	if _, err := f.events.Get(ctx, ev.ID, f.other); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("stranger get err = %v, want Forbidden", err)
	}

	f.share(t, ev.ID, models.RoleViewer)
	if _, err := f.events.Update(ctx, ev.ID, f.other, models.EventPatch{Title: &title}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("viewer update err = %v, want Forbidden", err)
	}
	if _, err := f.events.Get(ctx, ev.ID, f.other); err != nil {
		t.Fatalf("viewer get: %v", err)
	}

	f.share(t, ev.ID, models.RoleEditor)
	if _, err := f.events.Update(ctx, ev.ID, f.other, models.EventPatch{Title: &title}); err != nil {
		t.Fatalf("editor update: %v", err)
	}
	if err := f.events.Delete(ctx, ev.ID, f.other); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("editor delete err = %v, want Forbidden", err)
	}
	log, _ := f.hist.Changelog(ctx, ev.ID, f.owner)
	if log[0].UserID != f.other || log[0].Username != "other" {
		t.Errorf("update entry actor = %v %q", log[0].UserID, log[0].Username)
	}
}

func TestNotFoundBeforeForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()
	title := "x"

	if _, err := f.events.Get(ctx, missing, f.other); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("get err = %v", err)
	}
	if _, err := f.events.Update(ctx, missing, f.other, models.EventPatch{Title: &title}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("update err = %v", err)
	}
	if err := f.events.Delete(ctx, missing, f.other); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("delete err = %v", err)
	}
	if _, err := f.events.Rollback(ctx, missing, f.other, 1); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("rollback err = %v", err)
	}
}

func TestRollback_CreatesNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))
	for _, title := range []string{"B", "C"} {
		title := title
		if _, err := f.events.Update(ctx, ev.ID, f.owner, models.EventPatch{Title: &title}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	got, err := f.events.Rollback(ctx, ev.ID, f.owner, 1)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got.CurrentVersion != 4 || got.Title != "A" {
		t.Fatalf("rolled back event = %+v", got)
	}
	for n, title := range map[int]string{1: "A", 2: "B", 3: "C", 4: "A"} {
		v, err := f.hist.Get(ctx, ev.ID, f.owner, n)
		if err != nil {
			t.Fatalf("version %d: %v", n, err)
		}
		if v.Data["title"] != title {
			t.Errorf("version %d title = %v, want %s", n, v.Data["title"], title)
		}
	}
	d, err := f.hist.DiffVersions(ctx, ev.ID, f.owner, 1, 4)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for _, field := range []string{"title", "start_time", "end_time", "location", "description"} {
		if _, ok := d.Diff[field]; ok {
			t.Errorf("diff v1..v4 reports %s", field)
		}
	}

	if _, err := f.events.Rollback(ctx, ev.ID, f.owner, 42); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown version err = %v", err)
	}
}

func TestRollback_RevalidatedByPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))
	f.share(t, ev.ID, models.RoleViewer)
	if _, err := f.events.Rollback(ctx, ev.ID, f.other, 1); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("viewer rollback err = %v", err)
	}
}

func TestDelete_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, "A", at(10, 0), at(11, 0))
	f.share(t, ev.ID, models.RoleEditor)

	if err := f.events.Delete(ctx, ev.ID, f.owner); err != nil {
		t.Fatalf("delete: %v", err)
	}
	s := f.db.Stores()
	if v, _ := s.Versions.ListByEvent(ctx, ev.ID); len(v) != 0 {
		t.Errorf("versions left")
	}
	if g, _ := s.Grants.ListByEvent(ctx, ev.ID); len(g) != 0 {
		t.Errorf("grants left")
	}
	if _, err := f.events.Get(ctx, ev.ID, f.owner); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
}

func TestCreateBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.events.CreateBatch(ctx, f.owner, []models.EventInput{
		input("A", at(8, 0), at(9, 0)),
		input("B", at(9, 0), at(10, 0)),
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(out) != 2 || out[0].CurrentVersion != 1 {
		t.Fatalf("out = %+v", out)
	}

	_, err = f.events.CreateBatch(ctx, f.owner, []models.EventInput{
		input("C", at(12, 0), at(13, 0)),
		input("D", at(8, 30), at(9, 30)),
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	if ids := apperr.ConflictIDs(err); len(ids) != 2 {
		t.Fatalf("conflict ids = %v, want both stored events", ids)
	}
	list, _ := f.events.List(ctx, f.owner, ListFilter{})
	if len(list) != 2 {
		t.Fatalf("partial commit: %d events", len(list))
	}

	_, err = f.events.CreateBatch(ctx, f.owner, []models.EventInput{
		input("E", at(14, 0), at(15, 0)),
		input("F", at(14, 30), at(15, 30)),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("intra-batch err = %v, want Validation", err)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "A", at(8, 0), at(9, 0))
	f.create(t, "B", at(10, 0), at(11, 0))
	f.create(t, "C", at(23, 30), at(25, 0))

	all, _ := f.events.List(ctx, f.owner, ListFilter{})
	if len(all) != 3 || all[0].Title != "A" {
		t.Fatalf("all = %+v", all)
	}
	page, _ := f.events.List(ctx, f.owner, ListFilter{Skip: 1, Limit: 1})
	if len(page) != 1 || page[0].Title != "B" {
		t.Fatalf("page = %+v", page)
	}
	start, end := day, day.Add(24*time.Hour)
	inRange, _ := f.events.List(ctx, f.owner, ListFilter{Start: &start, End: &end})
	if len(inRange) != 2 {
		t.Fatalf("range = %d events, want the two contained", len(inRange))
	}
	if _, err := f.events.List(ctx, f.owner, ListFilter{Start: &end, End: &start}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("inverted range err = %v", err)
	}
	other, _ := f.events.List(ctx, f.other, ListFilter{})
	if len(other) != 0 {
		t.Fatalf("other owner sees %d events", len(other))
	}
}
