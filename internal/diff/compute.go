package diff

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/tordrt/schemasync/internal/model"
	"github.com/tordrt/schemasync/internal/schema"
)

// TypeMapper converts declared types into the dialect's normalized form.
type TypeMapper interface {
	NativeType(t schema.Type, size int) string
	NormalizeType(raw string) string
}

// Compute returns the discrepancies between m and live in pass order:
// entities, fields, relations, indices. Within a pass entities follow the
// model's declared order and fields their declared order, so identical
// inputs always produce identical output.
func Compute(m *model.Model, live *schema.Schema, types TypeMapper) []Diff {
	if m == nil {
		m = &model.Model{}
	}
	if live == nil {
		live = schema.New(nil)
	}
	c := &computer{model: m, live: live, types: types, renames: make(map[string]map[string]string)}

	var out []Diff
	for i := range m.Entities {
		e := &m.Entities[i]
		if _, ok := live.Table(e.Name); !ok {
			out = append(out, Diff{Kind: EntityAdded, Entity: e.Name, Definition: e})
		}
	}
	for i := range live.Tables {
		t := &live.Tables[i]
		if _, ok := m.Entity(t.Name); !ok {
			out = append(out, Diff{Kind: EntityRemoved, Entity: t.Name, Table: t})
		}
	}

	for i := range m.Entities {
		e := &m.Entities[i]
		if t, ok := live.Table(e.Name); ok {
			out = append(out, c.fields(e, t)...)
		}
	}

	for i := range m.Entities {
		e := &m.Entities[i]
		t, _ := live.Table(e.Name)
		rel := c.matchRelations(e, t)
		for j := range rel.added {
			out = append(out, Diff{Kind: RelationAdded, Entity: e.Name, Field: rel.added[j].Column, ForeignKey: &rel.added[j]})
		}
		for j := range rel.removed {
			out = append(out, Diff{Kind: RelationRemoved, Entity: e.Name, Field: rel.removed[j].Column, ForeignKey: &rel.removed[j]})
		}
	}

	for i := range m.Entities {
		e := &m.Entities[i]
		t, _ := live.Table(e.Name)
		idx := c.matchIndexes(e, t)
		for j := range idx.added {
			out = append(out, Diff{Kind: IndexAdded, Entity: e.Name, Index: &idx.added[j]})
		}
		for j := range idx.removed {
			out = append(out, Diff{Kind: IndexRemoved, Entity: e.Name, Index: &idx.removed[j]})
		}
	}
	return out
}

type computer struct {
	model *model.Model
	live  *schema.Schema
	types TypeMapper
	// renames maps entity -> declared field -> live column.
	renames map[string]map[string]string
}

func (c *computer) nativeType(f *model.Field) string {
	return c.types.NativeType(f.Type, f.Size)
}

func (c *computer) declaredType(f *model.Field) string {
	return c.types.NormalizeType(c.nativeType(f))
}

func (c *computer) liveType(col *schema.Column) string {
	if col.Type != "" {
		return c.types.NormalizeType(col.Type)
	}
	return c.types.NormalizeType(col.RawType)
}

// liveColumn returns the live column backing a declared field.
func (c *computer) liveColumn(entity, field string) string {
	if old, ok := c.renames[entity][field]; ok {
		return old
	}
	return field
}

// fields runs the field pass for an entity present on both sides.
func (c *computer) fields(e *model.Entity, t *schema.Table) []Diff {
	declared := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		declared[f.Name] = true
	}
	claimed := make(map[string]bool)
	renames := make(map[string]string)
	c.renames[e.Name] = renames

	var out []Diff
	var retyped []int
	for i := range e.Fields {
		f := &e.Fields[i]
		want := c.declaredType(f)

		if col, ok := t.Column(f.Name); ok {
			if c.liveType(col) != want {
				retyped = append(retyped, len(out))
				out = append(out, Diff{Kind: FieldTypeChanged, Entity: e.Name, Field: f.Name, Old: col, New: f, NewType: c.nativeType(f)})
			}
			continue
		}

		if col := c.renameCandidate(t, f.Name, want, declared, claimed); col != nil {
			claimed[col.Name] = true
			renames[f.Name] = col.Name
			out = append(out, Diff{Kind: FieldRenamed, Entity: e.Name, Field: f.Name, OldField: col.Name, Old: col, New: f, NewType: c.nativeType(f)})
			continue
		}
		out = append(out, Diff{Kind: FieldAdded, Entity: e.Name, Field: f.Name, New: f, NewType: c.nativeType(f)})
	}

	for i := range t.Columns {
		col := &t.Columns[i]
		if !declared[col.Name] && !claimed[col.Name] {
			out = append(out, Diff{Kind: FieldRemoved, Entity: e.Name, Field: col.Name, Old: col})
		}
	}

	if len(retyped) > 0 {
		rel := c.matchRelations(e, t)
		idx := c.matchIndexes(e, t)
		for _, i := range retyped {
			out[i].Dependents = c.dependents(t, out[i].Field, rel, idx)
		}
	}
	return out
}

// renameCandidate picks the live-only column of exactly the declared type
// closest in name to field. Ties go to the earliest live column.
func (c *computer) renameCandidate(t *schema.Table, field, want string, declared, claimed map[string]bool) *schema.Column {
	var best *schema.Column
	bestDist := 0
	for i := range t.Columns {
		col := &t.Columns[i]
		if declared[col.Name] || claimed[col.Name] || c.liveType(col) != want {
			continue
		}
		d := levenshtein.DistanceForStrings([]rune(field), []rune(col.Name), levenshtein.DefaultOptions)
		if best == nil || d < bestDist {
			best, bestDist = col, d
		}
	}
	return best
}

func (c *computer) dependents(t *schema.Table, column string, rel relationMatch, idx indexMatch) *Dependents {
	deps := &Dependents{}
	if fk, ok := t.ForeignKeys[column]; ok {
		deps.DropForeignKeys = append(deps.DropForeignKeys, fk)
	}
	for _, li := range t.Indexes[column] {
		if !idx.implicit[li.Name] {
			deps.DropIndexes = append(deps.DropIndexes, li)
		}
	}
	if fk, ok := rel.declared[column]; ok {
		deps.AddForeignKeys = append(deps.AddForeignKeys, fk)
	}
	for _, di := range idx.declared {
		if di.Covers(column) {
			deps.AddIndexes = append(deps.AddIndexes, di)
		}
	}
	return deps
}

type relationMatch struct {
	added   []schema.ForeignKey
	removed []schema.ForeignKey
	// declared maps a field to its declared foreign key, carrying the live
	// constraint name when one already exists.
	declared map[string]schema.ForeignKey
}

// matchRelations pairs declared relations with live foreign keys on the same
// column and target. t is nil for entities not yet created.
func (c *computer) matchRelations(e *model.Entity, t *schema.Table) relationMatch {
	res := relationMatch{declared: make(map[string]schema.ForeignKey)}
	used := make(map[string]bool)

	for _, r := range e.Relations {
		fk := schema.ForeignKey{
			Name:         ForeignKeyName(e.Name, r.Field),
			Column:       r.Field,
			TargetTable:  r.Target,
			TargetColumn: r.Referenced(),
			OnDelete:     strings.ToUpper(r.OnDelete),
			OnUpdate:     strings.ToUpper(r.OnUpdate),
		}
		if t != nil {
			col := c.liveColumn(e.Name, r.Field)
			if lfk, ok := t.ForeignKeys[col]; ok && !used[col] &&
				lfk.TargetTable == r.Target && lfk.TargetColumn == c.liveColumn(r.Target, r.Referenced()) {
				used[col] = true
				if lfk.Name != "" {
					fk.Name = lfk.Name
				}
				res.declared[r.Field] = fk
				continue
			}
		}
		res.declared[r.Field] = fk
		res.added = append(res.added, fk)
	}

	if t != nil {
		for _, lfk := range t.ForeignKeyList() {
			if !used[lfk.Column] {
				res.removed = append(res.removed, lfk)
			}
		}
	}
	return res
}

type indexMatch struct {
	added   []schema.Index
	removed []schema.Index
	// declared holds every declared index, named as it is live when matched.
	declared []schema.Index
	// implicit names live indices backing the primary key or a foreign key.
	implicit map[string]bool
}

func indexKey(columns []string, unique bool) string {
	k := strings.Join(columns, "\x00")
	if unique {
		return "u\x00" + k
	}
	return "n\x00" + k
}

// declaredIndexes returns the indices an entity requires: one per unique
// field plus every declared index, deduplicated by columns and uniqueness.
func declaredIndexes(e *model.Entity) []schema.Index {
	pk := e.PrimaryKey()
	seen := make(map[string]bool)
	var out []schema.Index
	add := func(idx schema.Index) {
		key := indexKey(idx.Columns, idx.Unique)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, idx)
	}
	for _, f := range e.Fields {
		if !f.Unique || (f.PrimaryKey && len(pk) == 1) {
			continue
		}
		cols := []string{f.Name}
		add(schema.Index{Name: IndexName(e.Name, cols, true), Columns: cols, Unique: true})
	}
	for _, idx := range e.Indexes {
		cols := append([]string(nil), idx.Fields...)
		name := idx.Name
		if name == "" {
			name = IndexName(e.Name, cols, idx.Unique)
		}
		add(schema.Index{Name: name, Columns: cols, Unique: idx.Unique})
	}
	return out
}

// matchIndexes pairs declared indices with live ones by ordered column list
// and uniqueness. t is nil for entities not yet created.
func (c *computer) matchIndexes(e *model.Entity, t *schema.Table) indexMatch {
	res := indexMatch{implicit: make(map[string]bool)}
	declared := declaredIndexes(e)
	if t == nil {
		res.added = declared
		res.declared = declared
		return res
	}

	// Live columns are reported under their declared names so a renamed
	// column keeps its indices.
	toDeclared := make(map[string]string)
	for field, col := range c.renames[e.Name] {
		toDeclared[col] = field
	}
	pk := strings.Join(t.PrimaryKey(), "\x00")
	fkNames := make(map[string]bool)
	for _, fk := range t.ForeignKeys {
		if fk.Name != "" {
			fkNames[fk.Name] = true
		}
	}

	live := make(map[string]schema.Index)
	var liveOrder []string
	for _, li := range t.IndexList() {
		if (li.Unique && strings.Join(li.Columns, "\x00") == pk) || fkNames[li.Name] {
			res.implicit[li.Name] = true
			continue
		}
		mapped := li
		mapped.Columns = make([]string, len(li.Columns))
		for i, col := range li.Columns {
			mapped.Columns[i] = col
			if field, ok := toDeclared[col]; ok {
				mapped.Columns[i] = field
			}
		}
		key := indexKey(mapped.Columns, mapped.Unique)
		if _, dup := live[key]; dup {
			// A second live index with the same shape is redundant.
			res.removed = append(res.removed, li)
			continue
		}
		live[key] = mapped
		liveOrder = append(liveOrder, key)
	}

	matched := make(map[string]bool)
	for _, di := range declared {
		key := indexKey(di.Columns, di.Unique)
		if li, ok := live[key]; ok {
			matched[key] = true
			res.declared = append(res.declared, li)
			continue
		}
		res.declared = append(res.declared, di)
		res.added = append(res.added, di)
	}
	for _, key := range liveOrder {
		if !matched[key] {
			res.removed = append(res.removed, live[key])
		}
	}
	sortIndexes(res.removed)
	return res
}

func sortIndexes(list []schema.Index) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
}
