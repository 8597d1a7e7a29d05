// Package catalog holds the process-wide registry of entity descriptors.
// It is populated once at startup and never mutated afterwards; every other
// layer (codec, triggers, watcher, router, store) is parameterized by these
// descriptors instead of carrying per-entity code.
package catalog

import (
	"context"
	"fmt"
	"sort"
)

// ColumnType is the semantic type of a scalar column. It determines the
// codec rule applied on encode/decode and the SQL type used in DDL.
type ColumnType string

const (
	Bool      ColumnType = "bool"
	Int       ColumnType = "int"
	Float     ColumnType = "float"
	Latin1    ColumnType = "latin1"    // byte string, latin1 on the wire
	Unicode   ColumnType = "unicode"   // text, passed through
	Timestamp ColumnType = "timestamp" // numeric seconds since epoch on the wire
	Duration  ColumnType = "duration"  // numeric seconds on the wire
)

// Column describes one scalar column.
type Column struct {
	Key      string
	Type     ColumnType
	Nullable bool
	Unique   bool
}

// Cardinality classifies a relationship.
type Cardinality string

const (
	One   Cardinality = "one"   // single related entity
	List  Cardinality = "list"  // ordered collection
	Keyed Cardinality = "keyed" // collection addressed by a label column
)

// Relationship describes a link to another entity.
//
// Exactly one of ForeignKey and Backref is set. ForeignKey names columns on
// this entity (the owning side, always cardinality One); Backref names the
// columns on the target entity that point back here.
type Relationship struct {
	Key         string
	Cardinality Cardinality
	Target      string // entity name
	ForeignKey  []string
	Backref     []string
	// KeyColumn is the target column holding the map label for Keyed
	// relationships.
	KeyColumn string
	// Nullable marks the owning FK columns as nullable.
	Nullable bool
	// OnDelete is the referential action for the owning FK constraint
	// ("CASCADE", "SET NULL" or empty for the default NO ACTION).
	OnDelete string

	// target is resolved by Registry.Validate.
	target *Descriptor
}

// TargetDescriptor returns the resolved target descriptor. Only valid after
// Registry.Validate has run.
func (r *Relationship) TargetDescriptor() *Descriptor {
	if r.target == nil {
		panic("catalog: relationship target not resolved; registry not validated")
	}
	return r.target
}

// Owning reports whether this entity's row holds the foreign key.
func (r *Relationship) Owning() bool {
	return len(r.ForeignKey) > 0
}

// Descriptor describes one entity type. Immutable after Build.
type Descriptor struct {
	// Name is the entity's type name, e.g. "Submission".
	Name string
	// Table is the backing table and the stem of notification channels.
	Table string
	// PrimaryKey columns, in declaration order. Always Int-typed.
	PrimaryKey []Column
	// Columns are the scalar attribute columns. Primary-key and
	// foreign-key columns are not listed here; the latter appear only
	// through Relationships.
	Columns []Column
	// Relationships in declaration order.
	Relationships []Relationship
}

// Column returns the scalar column with the given key.
func (d *Descriptor) Column(key string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// Relationship returns the relationship with the given key.
func (d *Descriptor) Relationship(key string) (Relationship, bool) {
	for _, r := range d.Relationships {
		if r.Key == key {
			return r, true
		}
	}
	return Relationship{}, false
}

// ForeignKeyColumns returns the names of all owning-side FK columns.
func (d *Descriptor) ForeignKeyColumns() []string {
	var cols []string
	for _, r := range d.Relationships {
		cols = append(cols, r.ForeignKey...)
	}
	return cols
}

// Key is the ordered tuple of primary-key values identifying one instance.
type Key []int64

// Instance is one row of a cataloged entity, in its typed in-memory form.
// Columns holds scalar and foreign-key values keyed by column name; value
// types follow the semantic type (bool, int64, float64, []byte for latin1,
// string, time.Time, time.Duration) with nil for NULL.
type Instance struct {
	Desc    *Descriptor
	Key     Key
	Columns map[string]any
}

// Resolver resolves a primary key to a live instance. It returns (nil, nil)
// when no such row exists.
type Resolver interface {
	Resolve(ctx context.Context, desc *Descriptor, key Key) (*Instance, error)
}

// Registry stores entity descriptors, indexed by name and by table.
type Registry struct {
	byName  map[string]*Descriptor
	byTable map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Descriptor),
		byTable: make(map[string]*Descriptor),
	}
}

// Register adds a descriptor. It panics on duplicates: registration happens
// once during startup wiring and a duplicate is a programming error.
func (r *Registry) Register(d *Descriptor) {
	if _, ok := r.byName[d.Name]; ok {
		panic(fmt.Sprintf("catalog: duplicate entity %q", d.Name))
	}
	if _, ok := r.byTable[d.Table]; ok {
		panic(fmt.Sprintf("catalog: duplicate table %q", d.Table))
	}
	r.byName[d.Name] = d
	r.byTable[d.Table] = d
	r.ordered = append(r.ordered, d)
}

// Get returns the descriptor with the given entity name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// GetByTable returns the descriptor backed by the given table.
func (r *Registry) GetByTable(table string) (*Descriptor, bool) {
	d, ok := r.byTable[table]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Tables returns all backing table names, sorted.
func (r *Registry) Tables() []string {
	out := make([]string, 0, len(r.byTable))
	for t := range r.byTable {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate checks cross-entity consistency: every relationship target is
// registered, owning FKs match the target's primary-key width, backrefs
// exist on the target, keyed relationships name a key column.
func (r *Registry) Validate() error {
	for _, d := range r.ordered {
		for i := range d.Relationships {
			rel := &d.Relationships[i]
			target, ok := r.byName[rel.Target]
			if !ok {
				return fmt.Errorf("catalog: %s.%s targets unknown entity %q", d.Name, rel.Key, rel.Target)
			}
			rel.target = target
			switch {
			case rel.Owning():
				if rel.Cardinality != One {
					return fmt.Errorf("catalog: %s.%s: owning side must be to-one", d.Name, rel.Key)
				}
				if len(rel.ForeignKey) != len(target.PrimaryKey) {
					return fmt.Errorf("catalog: %s.%s: foreign key width %d does not match %s primary key width %d",
						d.Name, rel.Key, len(rel.ForeignKey), target.Name, len(target.PrimaryKey))
				}
			case len(rel.Backref) > 0:
				if len(rel.Backref) != len(d.PrimaryKey) {
					return fmt.Errorf("catalog: %s.%s: backref width %d does not match own primary key width %d",
						d.Name, rel.Key, len(rel.Backref), len(d.PrimaryKey))
				}
				if rel.Cardinality == Keyed && rel.KeyColumn == "" {
					return fmt.Errorf("catalog: %s.%s: keyed relationship needs a key column", d.Name, rel.Key)
				}
				if rel.Cardinality == Keyed {
					if _, ok := target.Column(rel.KeyColumn); !ok {
						return fmt.Errorf("catalog: %s.%s: key column %q not on %s", d.Name, rel.Key, rel.KeyColumn, target.Name)
					}
				}
			default:
				return fmt.Errorf("catalog: %s.%s: neither foreign key nor backref set", d.Name, rel.Key)
			}
		}
	}
	return nil
}
