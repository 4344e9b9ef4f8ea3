package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the serialized field state of an event, as stored in a version row. Values are plain JSON
// values (string, float64, bool, nil, map[string]any, []any) so equality is value equality.
type Snapshot map[string]any

// EventVersion is an immutable snapshot of an event at one version number.
type EventVersion struct {
	ID                uuid.UUID `json:"id"`
	EventID           uuid.UUID `json:"event_id"`
	VersionNumber     int       `json:"version_number"`
	Data              Snapshot  `json:"data"`
	CreatedByID       uuid.UUID `json:"created_by_id"`
	CreatedAt         time.Time `json:"created_at"`
	ChangeDescription *string   `json:"change_description,omitempty"`
}

// Action tags a changelog entry.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionRollback Action = "rollback"
)

// FieldChange is one entry of a field-level diff.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps field names to their old and new values.
type Diff map[string]FieldChange

// ChangelogEntry is an immutable audit record of one accepted mutation.
type ChangelogEntry struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	VersionFrom *int      `json:"version_from"`
	VersionTo   int       `json:"version_to"`
	Changes     Diff      `json:"changes"`
}

// ChangelogView is a changelog entry with the actor's display name.
type ChangelogView struct {
	ChangelogEntry
	Username string `json:"username"`
}

// DiffResult is the response of a diff between two versions.
type DiffResult struct {
	EventID  uuid.UUID `json:"event_id"`
	Version1 int       `json:"version1"`
	Version2 int       `json:"version2"`
	Diff     Diff      `json:"diff"`
}
