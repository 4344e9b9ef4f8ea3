package versions

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store/memory"
)

func TestService_Reads(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	en := NewEngine(fixedClock())
	ev := seed(t, db, en)
	update(t, db, en, ev, "Retro")
	db.Users().Put(models.User{ID: ev.OwnerID, Username: "alice", IsActive: true})
	svc := NewService(db)

	list, err := svc.List(ctx, ev.ID, ev.OwnerID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].VersionNumber != 2 || list[1].VersionNumber != 1 {
		t.Fatalf("versions not newest first: %+v", list)
	}

	v, err := svc.Get(ctx, ev.ID, ev.OwnerID, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Data["title"] != "Standup" {
		t.Errorf("v1 title = %v", v.Data["title"])
	}
	if _, err := svc.Get(ctx, ev.ID, ev.OwnerID, 9); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Get(9) err = %v, want NotFound", err)
	}

	d, err := svc.DiffVersions(ctx, ev.ID, ev.OwnerID, 1, 2)
	if err != nil {
		t.Fatalf("DiffVersions: %v", err)
	}
	if c, ok := d.Diff["title"]; !ok || c.Old != "Standup" || c.New != "Retro" {
		t.Errorf("title diff = %+v", d.Diff["title"])
	}

	entries, err := svc.Changelog(ctx, ev.ID, ev.OwnerID)
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "alice" {
		t.Fatalf("changelog = %+v", entries)
	}
}

func TestService_RequiresView(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	ev := seed(t, db, NewEngine(fixedClock()))
	svc := NewService(db)
	stranger := uuid.New()

	if _, err := svc.List(ctx, ev.ID, stranger); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("List err = %v, want Forbidden", err)
	}
	if _, err := svc.Changelog(ctx, uuid.New(), stranger); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Changelog on missing event err = %v, want NotFound", err)
	}
}

func TestService_ChangelogUnknownUser(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	ev := seed(t, db, NewEngine(fixedClock()))

	entries, err := NewService(db).Changelog(ctx, ev.ID, ev.OwnerID)
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "Unknown" {
		t.Fatalf("changelog = %+v", entries)
	}
}
