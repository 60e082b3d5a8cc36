// Package planner turns parsed statements on partitioned relations into
// plans that scan only the child partitions the WHERE clause can match.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/observability"
	"github.com/arkilian/partprune/internal/query/parser"
	"github.com/arkilian/partprune/pkg/types"
)

// Command is the statement kind a plan was built for.
type Command string

const (
	CommandSelect Command = "select"
	CommandUpdate Command = "update"
	CommandDelete Command = "delete"
)

// ParentRTIndex is the range table index of the statement's relation.
const ParentRTIndex = 1

// RangeTableEntry is one relation a plan touches.
type RangeTableEntry struct {
	Index    int
	Relation types.RelationID
	Name     string
	// Parent is the range table index this entry was expanded from, or 0.
	Parent int
	// PartitionIndex is the child's position in the scheme, or -1.
	PartitionIndex int
}

// ChildScan is the scan of one relation with the qualifiers left to check.
type ChildScan struct {
	RTIndex        int
	Relation       types.RelationID
	Name           string
	Alias          string
	PartitionIndex int
	TargetList     []parser.SelectColumn
	Quals          []*RestrictInfo
}

// SQL renders the scan as a standalone SELECT on the scanned relation.
func (s ChildScan) SQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	cols := make([]string, len(s.TargetList))
	for i, c := range s.TargetList {
		cols[i] = c.String()
	}
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString((&parser.TableRef{Name: s.Name, Alias: s.Alias}).String())
	if len(s.Quals) > 0 {
		quals := make([]string, len(s.Quals))
		for i, q := range s.Quals {
			quals[i] = q.Clause.String()
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(quals, " AND "))
	}
	return sb.String()
}

// ModifyTarget is the relation an UPDATE or DELETE writes to.
type ModifyTarget struct {
	RTIndex  int
	Relation types.RelationID
	Name     string
	// Retargeted is set when pruning left a single partition and the
	// statement was moved onto it.
	Retargeted bool
}

// Stats summarizes pruning of the statement's relation.
type Stats struct {
	Partitioned bool `json:"partitioned"`
	Total       int  `json:"total"`
	Selected    int  `json:"selected"`
	Pruned      int  `json:"pruned"`
}

// Plan is the result of planning one statement.
type Plan struct {
	ID         string
	Command    Command
	Statement  parser.Statement
	Strategy   types.Strategy
	Ranges     string
	RangeTable []RangeTableEntry
	Scans      []ChildScan
	Target     *ModifyTarget
	Stats      Stats
}

// Planner builds plans against a scheme repository.
type Planner struct {
	repo   manifest.SchemeRepository
	pruner *Pruner
	opts   Options
	logger zerolog.Logger
	stats  *observability.PruneStats
}

// NewPlanner creates a planner.
func NewPlanner(repo manifest.SchemeRepository, opts Options, logger zerolog.Logger) *Planner {
	return &Planner{
		repo:   repo,
		pruner: NewPruner(repo, opts, logger),
		opts:   opts,
		logger: logger,
	}
}

// SetStats makes the planner record every pruned relation in stats.
func (p *Planner) SetStats(stats *observability.PruneStats) {
	p.stats = stats
}

// Plan parses sql and plans it.
func (p *Planner) Plan(ctx context.Context, sql string) (*Plan, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryQuery, apperrors.CodeParseError, "failed to parse statement", err)
	}
	return p.PlanStatement(ctx, stmt)
}

// PlanStatement plans an already parsed statement.
func (p *Planner) PlanStatement(ctx context.Context, stmt parser.Statement) (*Plan, error) {
	switch s := stmt.(type) {
	case *parser.SelectStatement:
		return p.PlanSelect(ctx, s)
	case *parser.UpdateStatement, *parser.DeleteStatement:
		return p.PlanModify(ctx, s)
	default:
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedSyntax, fmt.Sprintf("cannot plan %T", stmt))
	}
}

// relationPlan carries the per-relation state shared by SELECT and
// modification planning.
type relationPlan struct {
	plan    *Plan
	table   *parser.TableRef
	id      types.RelationID
	clauses []parser.Expression
	result  *PruneResult
}

// prepare binds the WHERE clause of table and prunes the relation.
func (p *Planner) prepare(ctx context.Context, cmd Command, stmt parser.Statement, table *parser.TableRef, where parser.Expression) (*relationPlan, error) {
	if table == nil {
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedSyntax, "statement has no relation")
	}
	rp := &relationPlan{
		plan: &Plan{
			ID:        uuid.New().String(),
			Command:   cmd,
			Statement: stmt,
		},
		table: table,
	}

	id, found, err := p.repo.LookupRelation(ctx, table.Name)
	if err != nil {
		return nil, fmt.Errorf("planner: failed to look up %s: %w", table.Name, err)
	}
	if found {
		rp.id = id
	}

	bound, err := BindColumns(where, table, rp.id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryQuery, apperrors.CodeParseError, "failed to bind columns", err)
	}
	rp.clauses = parser.SplitConjuncts(bound)
	rp.plan.RangeTable = []RangeTableEntry{{
		Index:          ParentRTIndex,
		Relation:       rp.id,
		Name:           table.Name,
		PartitionIndex: -1,
	}}

	if !found || !p.opts.Enabled {
		return rp, nil
	}
	result, partitioned, err := p.pruner.PruneRelation(ctx, rp.id, rp.clauses)
	if err != nil {
		return nil, err
	}
	if partitioned {
		rp.result = result
		rp.plan.Strategy = result.Scheme.Strategy
		rp.plan.Ranges = result.Ranges.String()
		rp.plan.Stats = Stats{
			Partitioned: true,
			Total:       result.Total,
			Selected:    len(result.Selected),
			Pruned:      result.Pruned,
		}
		p.record(cmd, result)
	}
	return rp, nil
}

// PlanSelect plans a SELECT. A partitioned relation is replaced by one scan
// per selected child, each carrying only the residual qualifiers that
// partition still needs.
func (p *Planner) PlanSelect(ctx context.Context, stmt *parser.SelectStatement) (*Plan, error) {
	rp, err := p.prepare(ctx, CommandSelect, stmt, stmt.From, stmt.Where)
	if err != nil {
		return nil, err
	}
	targets, err := bindTargets(stmt.Columns, rp.table, rp.id)
	if err != nil {
		return nil, err
	}

	if rp.result == nil {
		rp.plan.Scans = []ChildScan{parentScan(rp, targets)}
		return rp.plan, nil
	}
	if err := p.appendChildScans(rp, targets); err != nil {
		return nil, err
	}
	return rp.plan, nil
}

// PlanModify plans an UPDATE or DELETE. When pruning leaves exactly one
// partition the statement is retargeted at that child; otherwise it stays
// on the parent and the selected children are listed as scans.
func (p *Planner) PlanModify(ctx context.Context, stmt parser.Statement) (*Plan, error) {
	var (
		cmd   Command
		table *parser.TableRef
		where parser.Expression
	)
	switch s := stmt.(type) {
	case *parser.UpdateStatement:
		cmd, table, where = CommandUpdate, s.Table, s.Where
	case *parser.DeleteStatement:
		cmd, table, where = CommandDelete, s.Table, s.Where
	default:
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedSyntax, fmt.Sprintf("%T is not a modification", stmt))
	}

	rp, err := p.prepare(ctx, cmd, stmt, table, where)
	if err != nil {
		return nil, err
	}
	rp.plan.Target = &ModifyTarget{RTIndex: ParentRTIndex, Relation: rp.id, Name: table.Name}

	if rp.result == nil {
		rp.plan.Scans = []ChildScan{parentScan(rp, nil)}
		return rp.plan, nil
	}
	if err := p.appendChildScans(rp, nil); err != nil {
		return nil, err
	}

	if rp.result.Ranges.Len() == 1 && len(rp.plan.Scans) == 1 {
		scan := rp.plan.Scans[0]
		rp.plan.Target = &ModifyTarget{
			RTIndex:    scan.RTIndex,
			Relation:   scan.Relation,
			Name:       scan.Name,
			Retargeted: true,
		}
		p.logger.Debug().
			Str("relation", table.Name).
			Str("child", scan.Name).
			Msg("retargeted modification to single partition")
	}
	return rp.plan, nil
}

// appendChildScans adds a range table entry and a scan for every selected
// partition, in partition order.
func (p *Planner) appendChildScans(rp *relationPlan, targets []parser.SelectColumn) error {
	builder := &ResidualBuilder{
		Strict: p.opts.StrictInvariants,
		OnViolation: func(err error) {
			observability.IncInvariantViolations()
			p.logger.Warn().Err(err).Str("relation", rp.table.Name).Msg("pruning invariant violated")
		},
	}
	scheme := rp.result.Scheme

	for _, i := range rp.result.Selected {
		child, ok := scheme.Child(i)
		if !ok {
			return apperrors.NewInvariantError(fmt.Sprintf("selected partition %d has no child relation", i))
		}
		residuals, err := rp.result.ResidualsFor(builder, i)
		if err != nil {
			return err
		}

		rti := len(rp.plan.RangeTable) + 1
		scan := ChildScan{
			RTIndex:        rti,
			Relation:       child.ID,
			Name:           child.Name,
			Alias:          rp.table.Alias,
			PartitionIndex: i,
			TargetList:     changeTargets(targets, rp.id, child.ID),
		}
		excluded := false
		for _, r := range residuals {
			switch r.Kind {
			case AlwaysFalse:
				excluded = true
			case Filter:
				scan.Quals = append(scan.Quals, NewRestrictInfo(r.Expr).ChangeRelID(rp.id, child.ID))
			}
		}
		if excluded {
			p.logger.Debug().Str("child", child.Name).Msg("partition excluded by residual")
			continue
		}

		rp.plan.RangeTable = append(rp.plan.RangeTable, RangeTableEntry{
			Index:          rti,
			Relation:       child.ID,
			Name:           child.Name,
			Parent:         ParentRTIndex,
			PartitionIndex: i,
		})
		rp.plan.Scans = append(rp.plan.Scans, scan)
	}
	return nil
}

func (p *Planner) record(cmd Command, result *PruneResult) {
	observability.ObservePrune(string(cmd), string(result.Scheme.Strategy), result.Total, len(result.Selected))
	if p.stats == nil {
		return
	}
	name := result.Scheme.Name
	p.stats.RecordPrune(name, result.Total, len(result.Selected))
	for _, w := range result.Wrappers {
		for _, op := range keyOperators(result.Scheme, w.Orig) {
			p.stats.RecordOperator(name, op)
		}
	}
}

// keyOperators lists the operators applied to the partition key in expr.
func keyOperators(scheme *types.PartitionScheme, expr parser.Expression) []string {
	isKey := func(e parser.Expression) bool {
		c, ok := e.(*parser.ColumnRef)
		return ok && strings.EqualFold(c.Column, scheme.KeyColumn)
	}
	var ops []string
	parser.Walk(expr, func(e parser.Expression) bool {
		switch x := e.(type) {
		case *parser.BinaryExpr:
			if parser.IsComparison(x.Operator) && (isKey(x.Left) || isKey(x.Right)) {
				ops = append(ops, x.Operator)
			}
		case *parser.InExpr:
			if isKey(x.Expr) {
				ops = append(ops, "IN")
			}
		case *parser.BetweenExpr:
			if isKey(x.Expr) {
				ops = append(ops, "BETWEEN")
			}
		}
		return true
	})
	return ops
}

func parentScan(rp *relationPlan, targets []parser.SelectColumn) ChildScan {
	scan := ChildScan{
		RTIndex:        ParentRTIndex,
		Relation:       rp.id,
		Name:           rp.table.Name,
		Alias:          rp.table.Alias,
		PartitionIndex: -1,
		TargetList:     targets,
	}
	for _, c := range rp.clauses {
		scan.Quals = append(scan.Quals, NewRestrictInfo(c))
	}
	return scan
}

func bindTargets(cols []parser.SelectColumn, table *parser.TableRef, id types.RelationID) ([]parser.SelectColumn, error) {
	out := make([]parser.SelectColumn, len(cols))
	for i, c := range cols {
		expr, err := BindColumns(c.Expr, table, id)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCategoryQuery, apperrors.CodeParseError, "failed to bind columns", err)
		}
		out[i] = parser.SelectColumn{Expr: expr, Alias: c.Alias}
	}
	return out, nil
}

func changeTargets(cols []parser.SelectColumn, oldID, newID types.RelationID) []parser.SelectColumn {
	if cols == nil {
		return nil
	}
	out := make([]parser.SelectColumn, len(cols))
	for i, c := range cols {
		out[i] = parser.SelectColumn{Expr: ChangeRelID(c.Expr, oldID, newID), Alias: c.Alias}
	}
	return out
}
