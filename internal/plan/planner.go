package plan

import (
	"context"
	"sort"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/model"
	"github.com/tordrt/schemasync/internal/schema"
)

// Execution phases. Dependents never run before their prerequisites:
// constraints and indices are dropped before the columns they cover change,
// and added only once every referenced table and column exists.
const (
	phaseDrop    = 1
	phaseCreate  = 2
	phaseAlter   = 3
	phaseAdd     = 4
	phaseDestroy = 5
)

// Options controls planning.
type Options struct {
	// AllowDestructive emits actions that drop stored data. Without it they
	// are listed in Plan.Withheld.
	AllowDestructive bool
}

// Withheld is a diff whose resolution was not planned because it is destructive.
type Withheld struct {
	Diff    diff.Diff
	Actions []Action
}

// Plan is an ordered sequence of actions
type Plan struct {
	Actions  []Action
	Withheld []Withheld
}

// Planner orders actions for one dialect
type Planner struct {
	adapter db.Adapter
}

// New creates a planner asking adapter about type mappings and casts.
func New(adapter db.Adapter) *Planner {
	return &Planner{adapter: adapter}
}

type builder struct {
	ctx     context.Context
	adapter db.Adapter
	opts    Options
	plan    *Plan
	seen    map[string]bool
	ranks   []int
}

// Plan converts diffs into actions sorted by phase. Within a phase actions
// keep the order of the diffs that produced them.
func (p *Planner) Plan(ctx context.Context, diffs []diff.Diff, opts Options) *Plan {
	b := &builder{ctx: ctx, adapter: p.adapter, opts: opts, plan: &Plan{}, seen: make(map[string]bool)}

	created := orderCreates(diffs)
	folded := b.createTables(diffs, created)
	b.dropTables(diffs)

	for i := range diffs {
		d := &diffs[i]
		switch d.Kind {
		case diff.FieldAdded:
			b.emit(Action{Kind: AddColumn, Table: d.Entity, Def: b.columnDef(d.New), Source: d, phase: phaseCreate})
		case diff.FieldRemoved:
			b.destructive(*d, Action{Kind: RemoveColumn, Table: d.Entity, Column: d.Field, Source: d, phase: phaseDestroy})
		case diff.FieldRenamed:
			b.emit(Action{Kind: RenameColumn, Table: d.Entity, Column: d.OldField, NewName: d.Field, Source: d, phase: phaseAlter})
		case diff.FieldTypeChanged:
			b.typeChange(d)
		case diff.RelationAdded:
			if folded[d] {
				continue
			}
			fk := *d.ForeignKey
			b.emit(Action{Kind: AddConstraint, Table: d.Entity, ForeignKey: &fk, Source: d, phase: phaseAdd})
		case diff.RelationRemoved:
			b.emit(Action{Kind: DropConstraint, Table: d.Entity, Name: d.ForeignKey.Name, Source: d, phase: phaseDrop})
		case diff.IndexAdded:
			idx := *d.Index
			b.emit(Action{Kind: AddIndex, Table: d.Entity, Index: &idx, Source: d, phase: phaseAdd})
		case diff.IndexRemoved:
			b.emit(Action{Kind: DropIndex, Table: d.Entity, Name: d.Index.Name, Source: d, phase: phaseDrop})
		}
	}

	b.sort()
	return b.plan
}

func (b *builder) emit(a Action) {
	if k := a.key(); k != "" {
		if b.seen[k] {
			return
		}
		b.seen[k] = true
	}
	b.plan.Actions = append(b.plan.Actions, a)
	b.ranks = append(b.ranks, b.rankOf(a))
}

// rankOf orders actions inside a phase. Constraints are dropped before the
// indices that may back them, and unique indices are added before the
// foreign keys that may reference them.
func (b *builder) rankOf(a Action) int {
	switch a.Kind {
	case DropIndex, AddConstraint:
		return 1
	case AddIndex:
		if a.Index == nil || !a.Index.Unique {
			return 1
		}
	}
	return 0
}

func (b *builder) destructive(d diff.Diff, actions ...Action) {
	if !b.opts.AllowDestructive {
		b.plan.Withheld = append(b.plan.Withheld, Withheld{Diff: d, Actions: actions})
		return
	}
	for _, a := range actions {
		b.emit(a)
	}
}

func (b *builder) sort() {
	idx := make([]int, len(b.plan.Actions))
	for i := range idx {
		idx[i] = i
	}
	acts := b.plan.Actions
	sort.SliceStable(idx, func(i, j int) bool {
		ai, aj := acts[idx[i]], acts[idx[j]]
		if ai.phase != aj.phase {
			return ai.phase < aj.phase
		}
		return b.ranks[idx[i]] < b.ranks[idx[j]]
	})
	sorted := make([]Action, len(acts))
	for i, k := range idx {
		sorted[i] = acts[k]
	}
	b.plan.Actions = sorted
}

func (b *builder) columnDef(f *model.Field) schema.ColumnDef {
	return schema.ColumnDef{
		Name:          f.Name,
		Type:          b.adapter.NativeType(f.Type, f.Size),
		Nullable:      f.Nullable,
		Default:       f.Default,
		PrimaryKey:    f.PrimaryKey,
		AutoIncrement: f.AutoIncrement,
	}
}

// typeChange retypes in place when the adapter can cast losslessly, and
// otherwise recreates the column together with its dependents.
func (b *builder) typeChange(d *diff.Diff) {
	oldType := d.Old.RawType
	if oldType == "" {
		oldType = d.Old.Type
	}
	def := b.columnDef(d.New)
	if b.adapter.CastColumnType(b.ctx, d.Entity, d.Field, oldType, def.Type) {
		b.emit(Action{Kind: ChangeColumnType, Table: d.Entity, Column: d.Field, OldType: oldType, Def: def, Source: d, phase: phaseAlter})
		return
	}

	var actions []Action
	if deps := d.Dependents; deps != nil {
		for i := range deps.DropForeignKeys {
			actions = append(actions, Action{Kind: DropConstraint, Table: d.Entity, Name: deps.DropForeignKeys[i].Name, Source: d, phase: phaseDrop})
		}
		for i := range deps.DropIndexes {
			actions = append(actions, Action{Kind: DropIndex, Table: d.Entity, Name: deps.DropIndexes[i].Name, Source: d, phase: phaseDrop})
		}
	}
	actions = append(actions,
		Action{Kind: RemoveColumn, Table: d.Entity, Column: d.Field, Source: d, phase: phaseAlter},
		Action{Kind: AddColumn, Table: d.Entity, Def: def, Source: d, phase: phaseAlter},
	)
	if deps := d.Dependents; deps != nil {
		for i := range deps.AddForeignKeys {
			fk := deps.AddForeignKeys[i]
			actions = append(actions, Action{Kind: AddConstraint, Table: d.Entity, ForeignKey: &fk, Source: d, phase: phaseAdd})
		}
		for i := range deps.AddIndexes {
			idx := deps.AddIndexes[i]
			actions = append(actions, Action{Kind: AddIndex, Table: d.Entity, Index: &idx, Source: d, phase: phaseAdd})
		}
	}
	b.destructive(*d, actions...)
}

// orderCreates returns the EntityAdded diffs ordered so that a table follows
// the tables it references.
func orderCreates(diffs []diff.Diff) []*diff.Diff {
	var added []*diff.Diff
	pending := make(map[string]bool)
	for i := range diffs {
		if diffs[i].Kind == diff.EntityAdded {
			added = append(added, &diffs[i])
			pending[diffs[i].Entity] = true
		}
	}
	return topoOrder(added, func(d *diff.Diff, done map[string]bool) bool {
		return depsCreated(d.Definition, pending, done)
	})
}

// topoOrder repeatedly takes, in input order, the first items whose
// prerequisites are done. Items caught in a cycle keep input order.
func topoOrder(items []*diff.Diff, ready func(d *diff.Diff, done map[string]bool) bool) []*diff.Diff {
	done := make(map[string]bool, len(items))
	out := make([]*diff.Diff, 0, len(items))
	for len(out) < len(items) {
		progressed := false
		for _, d := range items {
			if done[d.Entity] || !ready(d, done) {
				continue
			}
			done[d.Entity] = true
			out = append(out, d)
			progressed = true
		}
		if progressed {
			continue
		}
		for _, d := range items {
			if !done[d.Entity] {
				done[d.Entity] = true
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func depsCreated(e *model.Entity, pending, done map[string]bool) bool {
	for _, r := range e.Relations {
		if r.Target == e.Name {
			continue
		}
		if pending[r.Target] && !done[r.Target] {
			return false
		}
	}
	return true
}

// createTables emits CreateTable actions in dependency order, folding in the
// relations whose target column exists, unchanged, by the time the table is
// created. It returns the RelationAdded diffs that were folded.
func (b *builder) createTables(diffs []diff.Diff, created []*diff.Diff) map[*diff.Diff]bool {
	folded := make(map[*diff.Diff]bool)
	pending := make(map[string]bool, len(created))
	for _, d := range created {
		pending[d.Entity] = true
	}
	unsettled := unsettledColumns(diffs)

	for _, d := range created {
		def := &schema.TableDef{Name: d.Entity}
		for i := range d.Definition.Fields {
			def.Columns = append(def.Columns, b.columnDef(&d.Definition.Fields[i]))
		}
		for i := range diffs {
			rd := &diffs[i]
			if rd.Kind != diff.RelationAdded || rd.Entity != d.Entity {
				continue
			}
			fk := rd.ForeignKey
			target := fk.TargetTable
			if unsettled[columnKey(target, fk.TargetColumn)] {
				continue
			}
			if target == d.Entity || !pending[target] {
				def.ForeignKeys = append(def.ForeignKeys, *rd.ForeignKey)
				folded[rd] = true
			}
		}
		b.emit(Action{Kind: CreateTable, Table: d.Entity, Create: def, Source: d, phase: phaseCreate})
		delete(pending, d.Entity)
	}
	return folded
}

func columnKey(table, column string) string {
	return table + "." + column
}

// unsettledColumns returns the columns a foreign key cannot reference at
// table creation time: those added, renamed into place or retyped later in
// the run, and those that only become unique later in the run.
func unsettledColumns(diffs []diff.Diff) map[string]bool {
	out := make(map[string]bool)
	for i := range diffs {
		d := &diffs[i]
		switch d.Kind {
		case diff.FieldAdded, diff.FieldRenamed, diff.FieldTypeChanged:
			out[columnKey(d.Entity, d.Field)] = true
		case diff.IndexAdded:
			if !d.Index.Unique {
				continue
			}
			for _, c := range d.Index.Columns {
				out[columnKey(d.Entity, c)] = true
			}
		}
	}
	return out
}

// dropTables emits DropTable actions so that a table referencing another
// dropped table goes first.
func (b *builder) dropTables(diffs []diff.Diff) {
	var removed []*diff.Diff
	dropping := make(map[string]bool)
	for i := range diffs {
		if diffs[i].Kind == diff.EntityRemoved {
			removed = append(removed, &diffs[i])
			dropping[diffs[i].Entity] = true
		}
	}

	// referrers maps a dropped table to the dropped tables referencing it.
	referrers := make(map[string][]string)
	for _, d := range removed {
		for _, fk := range d.Table.ForeignKeyList() {
			if dropping[fk.TargetTable] && fk.TargetTable != d.Entity {
				referrers[fk.TargetTable] = append(referrers[fk.TargetTable], d.Entity)
			}
		}
	}

	ordered := topoOrder(removed, func(d *diff.Diff, done map[string]bool) bool {
		for _, r := range referrers[d.Entity] {
			if !done[r] {
				return false
			}
		}
		return true
	})
	for _, d := range ordered {
		b.destructive(*d, Action{Kind: DropTable, Table: d.Entity, Source: d, phase: phaseDestroy})
	}
}
