package domain

import "time"

// Entity is the identity and timestamp core embedded by every persisted model.
// ID is immutable after creation; UpdatedAt never moves backwards.
type Entity struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Entity) EntityID() string        { return e.ID }
func (e *Entity) SetEntityID(id string)   { e.ID = id }
func (e *Entity) CreatedTime() time.Time  { return e.CreatedAt }
func (e *Entity) UpdatedTime() time.Time  { return e.UpdatedAt }

// Created stamps both timestamps at construction time.
func (e *Entity) Created(now time.Time) {
	e.CreatedAt = now
	e.UpdatedAt = now
}

// Touch advances UpdatedAt. A clock that went backwards must not make the
// timestamp regress.
func (e *Entity) Touch(now time.Time) {
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
}

// Audit carries actor attribution and the optimistic-concurrency counter.
// Version starts at 1 on first save and increments on every update; an update
// presented with a stale version is rejected with a conflict.
type Audit struct {
	CreatedBy string `json:"created_by,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
	Version   int    `json:"version"`
}

func (a *Audit) EntityVersion() int { return a.Version }
func (a *Audit) BumpVersion()       { a.Version++ }

// StampCreated records the creating actor and initializes the version.
func (a *Audit) StampCreated(by string) {
	a.CreatedBy = by
	a.UpdatedBy = by
	a.Version = 1
}

// StampUpdated records the mutating actor. Version bumping is the
// repository's job so it happens exactly once per persisted update.
func (a *Audit) StampUpdated(by string) {
	if by != "" {
		a.UpdatedBy = by
	}
}

// SoftDelete marks an entity as logically removed. Soft-deleted entities are
// excluded from standard queries unless a with-deleted variant is used.
type SoftDelete struct {
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Deleted   bool       `json:"is_deleted"`
}

func (d *SoftDelete) IsDeleted() bool { return d.Deleted }

func (d *SoftDelete) MarkDeleted(now time.Time) {
	t := now
	d.DeletedAt = &t
	d.Deleted = true
}

func (d *SoftDelete) ClearDeleted() {
	d.DeletedAt = nil
	d.Deleted = false
}
