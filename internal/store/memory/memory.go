// Package memory is an in-memory implementation of the store interfaces. Transactions run one at a time
// against a copy of the data that replaces the live copy only when the transaction succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
)

type state struct {
	events    map[uuid.UUID]*models.Event
	versions  map[uuid.UUID][]models.EventVersion
	changelog map[uuid.UUID][]models.ChangelogEntry
	grants    map[uuid.UUID][]models.Permission
	users     map[uuid.UUID]models.User
}

func newState() *state {
	return &state{
		events:    make(map[uuid.UUID]*models.Event),
		versions:  make(map[uuid.UUID][]models.EventVersion),
		changelog: make(map[uuid.UUID][]models.ChangelogEntry),
		grants:    make(map[uuid.UUID][]models.Permission),
		users:     make(map[uuid.UUID]models.User),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, e := range s.events {
		c.events[id] = e.Clone()
	}
	for id, v := range s.versions {
		c.versions[id] = append([]models.EventVersion(nil), v...)
	}
	for id, l := range s.changelog {
		c.changelog[id] = append([]models.ChangelogEntry(nil), l...)
	}
	for id, g := range s.grants {
		c.grants[id] = append([]models.Permission(nil), g...)
	}
	for id, u := range s.users {
		c.users[id] = u
	}
	return c
}

// DB holds the data and serializes transactions.
type DB struct {
	mu sync.RWMutex
	st *state
}

// New returns an empty store.
func New() *DB {
	return &DB{st: newState()}
}

// Stores returns stores that lock per call.
func (d *DB) Stores() store.Stores {
	return bind(&view{db: d})
}

// WithinTx runs fn against a private copy that is committed when fn returns nil.
func (d *DB) WithinTx(ctx context.Context, fn func(s store.Stores) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := d.st.clone()
	if err := fn(bind(&view{tx: tx})); err != nil {
		return err
	}
	d.st = tx
	return nil
}

// Users returns the user repository.
func (d *DB) Users() *Users {
	return &Users{&view{db: d}}
}

func bind(v *view) store.Stores {
	return store.Stores{
		Events:    &Events{v},
		Versions:  &Versions{v},
		Changelog: &Changelog{v},
		Grants:    &Grants{v},
		Users:     &Users{v},
	}
}

type view struct {
	db *DB
	tx *state
}

func (v *view) read(fn func(st *state)) {
	if v.tx != nil {
		fn(v.tx)
		return
	}
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()
	fn(v.db.st)
}

func (v *view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	return fn(v.db.st)
}

// Events is the in-memory event store.
type Events struct{ v *view }

func (r *Events) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	var out *models.Event
	r.v.read(func(st *state) {
		if e, ok := st.events[id]; ok {
			out = e.Clone()
		}
	})
	return out, nil
}

// GetByIDForUpdate is GetByID; transactions already run one at a time.
func (r *Events) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.GetByID(ctx, id)
}

func (r *Events) filter(keep func(e *models.Event) bool) []models.Event {
	var out []models.Event
	r.v.read(func(st *state) {
		for _, e := range st.events {
			if keep(e) {
				out = append(out, *e.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *Events) ListByOwner(_ context.Context, ownerID uuid.UUID, offset, limit int) ([]models.Event, error) {
	all := r.filter(func(e *models.Event) bool { return e.OwnerID == ownerID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *Events) ListInRange(_ context.Context, start, end time.Time, ownerID *uuid.UUID) ([]models.Event, error) {
	return r.filter(func(e *models.Event) bool {
		if ownerID != nil && e.OwnerID != *ownerID {
			return false
		}
		return !e.StartTime.Before(start) && !e.EndTime.After(end)
	}), nil
}

func (r *Events) ListOwnedExcept(_ context.Context, ownerID uuid.UUID, exclude *uuid.UUID) ([]models.Event, error) {
	return r.filter(func(e *models.Event) bool {
		return e.OwnerID == ownerID && (exclude == nil || e.ID != *exclude)
	}), nil
}

func (r *Events) Insert(_ context.Context, e *models.Event) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.events[e.ID]; ok {
			return store.ErrDuplicate
		}
		st.events[e.ID] = e.Clone()
		return nil
	})
}

func (r *Events) Update(_ context.Context, e *models.Event) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.events[e.ID]; ok {
			st.events[e.ID] = e.Clone()
		}
		return nil
	})
}

func (r *Events) Delete(_ context.Context, id uuid.UUID) error {
	return r.v.write(func(st *state) error {
		delete(st.events, id)
		delete(st.versions, id)
		delete(st.changelog, id)
		delete(st.grants, id)
		return nil
	})
}

// Versions is the in-memory version store.
type Versions struct{ v *view }

func (r *Versions) GetByNumber(_ context.Context, eventID uuid.UUID, n int) (*models.EventVersion, error) {
	var out *models.EventVersion
	r.v.read(func(st *state) {
		for _, ver := range st.versions[eventID] {
			if ver.VersionNumber == n {
				ver := ver
				out = &ver
				return
			}
		}
	})
	return out, nil
}

func (r *Versions) GetLatest(_ context.Context, eventID uuid.UUID) (*models.EventVersion, error) {
	var out *models.EventVersion
	r.v.read(func(st *state) {
		for _, ver := range st.versions[eventID] {
			if out == nil || ver.VersionNumber > out.VersionNumber {
				ver := ver
				out = &ver
			}
		}
	})
	return out, nil
}

func (r *Versions) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.EventVersion, error) {
	var out []models.EventVersion
	r.v.read(func(st *state) {
		out = append(out, st.versions[eventID]...)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *Versions) Insert(_ context.Context, ver *models.EventVersion) error {
	return r.v.write(func(st *state) error {
		for _, existing := range st.versions[ver.EventID] {
			if existing.VersionNumber == ver.VersionNumber {
				return store.ErrDuplicate
			}
		}
		st.versions[ver.EventID] = append(st.versions[ver.EventID], *ver)
		return nil
	})
}

// Changelog is the in-memory audit log.
type Changelog struct{ v *view }

func (r *Changelog) Insert(_ context.Context, entry *models.ChangelogEntry) error {
	return r.v.write(func(st *state) error {
		st.changelog[entry.EventID] = append(st.changelog[entry.EventID], *entry)
		return nil
	})
}

func (r *Changelog) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.ChangelogEntry, error) {
	var out []models.ChangelogEntry
	r.v.read(func(st *state) {
		l := st.changelog[eventID]
		for i := len(l) - 1; i >= 0; i-- {
			out = append(out, l[i])
		}
	})
	return out, nil
}

// Grants is the in-memory grant store.
type Grants struct{ v *view }

func (r *Grants) Get(_ context.Context, eventID, userID uuid.UUID) (*models.Permission, error) {
	var out *models.Permission
	r.v.read(func(st *state) {
		for _, g := range st.grants[eventID] {
			if g.UserID == userID {
				g := g
				out = &g
				return
			}
		}
	})
	return out, nil
}

func (r *Grants) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.Permission, error) {
	var out []models.Permission
	r.v.read(func(st *state) {
		out = append(out, st.grants[eventID]...)
	})
	return out, nil
}

func (r *Grants) Upsert(_ context.Context, p *models.Permission) error {
	return r.v.write(func(st *state) error {
		list := st.grants[p.EventID]
		for i := range list {
			if list[i].UserID == p.UserID {
				list[i].Role = p.Role
				*p = list[i]
				return nil
			}
		}
		st.grants[p.EventID] = append(list, *p)
		return nil
	})
}

func (r *Grants) Delete(_ context.Context, eventID, userID uuid.UUID) error {
	return r.v.write(func(st *state) error {
		list := st.grants[eventID]
		for i := range list {
			if list[i].UserID == userID {
				st.grants[eventID] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// Users is the in-memory user store.
type Users struct{ v *view }

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	r.v.read(func(st *state) {
		if u, ok := st.users[id]; ok {
			out = &u
		}
	})
	return out, nil
}

// GetByLogin matches username or email.
func (r *Users) GetByLogin(_ context.Context, login string) (*models.User, error) {
	var out *models.User
	r.v.read(func(st *state) {
		for _, u := range st.users {
			if u.Username == login || strings.EqualFold(u.Email, login) {
				u := u
				out = &u
				return
			}
		}
	})
	return out, nil
}

func (r *Users) Create(_ context.Context, username, email, passwordHash string) (*models.User, error) {
	u := models.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	err := r.v.write(func(st *state) error {
		for _, existing := range st.users {
			if existing.Username == username || strings.EqualFold(existing.Email, email) {
				return store.ErrDuplicate
			}
		}
		st.users[u.ID] = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Users) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.v.write(func(st *state) error {
		if u, ok := st.users[id]; ok {
			u.LastLogin = &at
			st.users[id] = u
		}
		return nil
	})
}

// Put stores u as is, for seeding.
func (r *Users) Put(u models.User) {
	_ = r.v.write(func(st *state) error {
		st.users[u.ID] = u
		return nil
	})
}
