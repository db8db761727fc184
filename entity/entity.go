// Package entity defines the contracts persisted records must satisfy to be
// managed by an entity repository.
package entity

// DeletedColumn is the default column backing the soft delete flag.
const DeletedColumn = "deleted"

// Entity is a persisted record identified by a store assigned integer id.
// Implementations are expected to be pointers to bun model structs.
type Entity interface {
	GetID() int64
}

// IdentitySetter is implemented by records whose identifier can be reset,
// such as models embedding Base.
type IdentitySetter interface {
	SetID(id int64)
}

// SoftDeletable is the optional capability of entities that are flagged as
// deleted instead of being physically removed.
type SoftDeletable interface {
	IsDeleted() bool
	SetDeleted(deleted bool)
}

// Base carries the auto incremented primary key. Embed it in bun models.
type Base struct {
	ID int64 `bun:"id,pk,autoincrement" json:"id" msgpack:"id"`
}

// GetID returns the record identifier, zero for transient records.
func (b Base) GetID() int64 {
	return b.ID
}

// SetID replaces the record identifier.
func (b *Base) SetID(id int64) {
	b.ID = id
}

// SoftDelete carries the deleted flag. Embed it next to Base to opt a model
// into soft delete semantics. The column has no SQL default: bulk inserts
// pick their column list from the first row, so the flag is always written.
type SoftDelete struct {
	Deleted bool `bun:"deleted,notnull" json:"deleted" msgpack:"deleted"`
}

func (s SoftDelete) IsDeleted() bool {
	return s.Deleted
}

func (s *SoftDelete) SetDeleted(deleted bool) {
	s.Deleted = deleted
}

// IsSoftDeletable reports whether the record supports soft delete.
func IsSoftDeletable(record any) bool {
	_, ok := record.(SoftDeletable)
	return ok
}
