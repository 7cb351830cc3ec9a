package relation

import (
	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-persistence-bun/fieldmap"
	"github.com/google/uuid"
)

// Kind tags a relation descriptor with its cardinality. Loader behavior is
// selected by matching on this tag.
type Kind int

const (
	OneToOneKind Kind = iota + 1
	OneToManyKind
	ManyToOneKind
	ManyToManyKind
)

func (k Kind) String() string {
	switch k {
	case OneToOneKind:
		return "one-to-one"
	case OneToManyKind:
		return "one-to-many"
	case ManyToOneKind:
		return "many-to-one"
	case ManyToManyKind:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// JoinTable describes the link table of a many-to-many relation.
type JoinTable struct {
	Name string
	// ForeignKey is the join-table column referencing the parent.
	ForeignKey string
	// RelatedKey is the join-table column referencing the related table.
	RelatedKey string
}

// Config is one declared relation. Declared once per repository via the
// constructors below and immutable afterwards. The typed closures bridge
// the generic constructors to the non-generic Loader.
type Config struct {
	Kind       Kind
	Table      fieldmap.Table
	ForeignKey string
	References string
	Join       JoinTable

	newSlice   func() any
	elems      func(slicePtr any) []any
	fkOf       func(child any) uuid.UUID
	idOf       func(child any) uuid.UUID
	ownerKeyOf func(parent any) (uuid.UUID, bool)
	attachOne  func(parent, child any)
	attachMany func(parent any, children []any)
}

// OneToMany declares a relation where the related table holds the foreign
// key; loading selects all rows matching the parent id. Construction fails
// fast if the foreign-key column is absent from the related table.
func OneToMany[P, E any](table fieldmap.Table, foreignKey string, fkOf func(*E) uuid.UUID, attach func(*P, []*E)) (Config, error) {
	if !table.HasColumn(foreignKey) {
		return Config{}, errors.New("relation: table "+table.Name+" has no column "+foreignKey, errors.CategoryValidation)
	}
	cfg := Config{
		Kind:       OneToManyKind,
		Table:      table,
		ForeignKey: foreignKey,
	}
	bindMany(&cfg, fkOf, nil, attach)
	return cfg, nil
}

// OneToOne declares a relation where the related table holds the foreign
// key but at most one row matches the parent.
func OneToOne[P, E any](table fieldmap.Table, foreignKey string, fkOf func(*E) uuid.UUID, attach func(*P, *E)) (Config, error) {
	if !table.HasColumn(foreignKey) {
		return Config{}, errors.New("relation: table "+table.Name+" has no column "+foreignKey, errors.CategoryValidation)
	}
	cfg := Config{
		Kind:       OneToOneKind,
		Table:      table,
		ForeignKey: foreignKey,
	}
	bindOne(&cfg, fkOf, nil, attach)
	return cfg, nil
}

// ManyToOne declares a relation where the owning side (the parent) holds a
// foreign key column; loading resolves one related row by key equality.
// foreignKey names the parent-side column; owner reads its value from a
// loaded parent (ok=false for a null key, which short-circuits loading).
// references defaults to the related table's identity column.
func ManyToOne[P, E any](table fieldmap.Table, foreignKey string, owner func(*P) (uuid.UUID, bool), idOf func(*E) uuid.UUID, attach func(*P, *E), opts ...Option) (Config, error) {
	cfg := Config{
		Kind:       ManyToOneKind,
		Table:      table,
		ForeignKey: foreignKey,
		References: table.ID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.References == "" || !table.HasColumn(cfg.References) {
		return Config{}, errors.New("relation: table "+table.Name+" has no reference column "+cfg.References, errors.CategoryValidation)
	}
	cfg.ownerKeyOf = func(parent any) (uuid.UUID, bool) { return owner(parent.(*P)) }
	bindOne(&cfg, nil, idOf, attach)
	return cfg, nil
}

// ManyToMany declares a relation resolved through an explicit join table
// with two key columns.
func ManyToMany[P, E any](table fieldmap.Table, join JoinTable, idOf func(*E) uuid.UUID, attach func(*P, []*E)) (Config, error) {
	if join.Name == "" || join.ForeignKey == "" || join.RelatedKey == "" {
		return Config{}, errors.New("relation: join table for "+table.Name+" is incomplete", errors.CategoryValidation)
	}
	if table.ID == "" {
		return Config{}, errors.New("relation: table "+table.Name+" has no identity column", errors.CategoryValidation)
	}
	cfg := Config{
		Kind:       ManyToManyKind,
		Table:      table,
		References: table.ID,
		Join:       join,
	}
	bindMany(&cfg, nil, idOf, attach)
	return cfg, nil
}

// Option tweaks a relation descriptor at construction time.
type Option func(*Config)

// WithReferences overrides the referenced column on the related table.
func WithReferences(column string) Option {
	return func(cfg *Config) { cfg.References = column }
}

func bindSlice[E any](cfg *Config) {
	cfg.newSlice = func() any {
		s := []*E{}
		return &s
	}
	cfg.elems = func(slicePtr any) []any {
		s := *slicePtr.(*[]*E)
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	}
}

func bindMany[P, E any](cfg *Config, fkOf func(*E) uuid.UUID, idOf func(*E) uuid.UUID, attach func(*P, []*E)) {
	bindSlice[E](cfg)
	if fkOf != nil {
		cfg.fkOf = func(child any) uuid.UUID { return fkOf(child.(*E)) }
	}
	if idOf != nil {
		cfg.idOf = func(child any) uuid.UUID { return idOf(child.(*E)) }
	}
	cfg.attachMany = func(parent any, children []any) {
		typed := make([]*E, len(children))
		for i, c := range children {
			typed[i] = c.(*E)
		}
		attach(parent.(*P), typed)
	}
}

func bindOne[P, E any](cfg *Config, fkOf func(*E) uuid.UUID, idOf func(*E) uuid.UUID, attach func(*P, *E)) {
	bindSlice[E](cfg)
	if fkOf != nil {
		cfg.fkOf = func(child any) uuid.UUID { return fkOf(child.(*E)) }
	}
	if idOf != nil {
		cfg.idOf = func(child any) uuid.UUID { return idOf(child.(*E)) }
	}
	cfg.attachOne = func(parent, child any) {
		if child == nil {
			attach(parent.(*P), nil)
			return
		}
		attach(parent.(*P), child.(*E))
	}
}
