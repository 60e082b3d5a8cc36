package planner

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ScanView is the serializable form of a ChildScan.
type ScanView struct {
	RTIndex        int      `json:"rt_index"`
	Relation       uint32   `json:"relation"`
	Name           string   `json:"name"`
	PartitionIndex int      `json:"partition_index"`
	Quals          []string `json:"quals,omitempty"`
	SQL            string   `json:"sql"`
}

// TargetView is the serializable form of a ModifyTarget.
type TargetView struct {
	Relation   uint32 `json:"relation"`
	Name       string `json:"name"`
	Retargeted bool   `json:"retargeted"`
}

// PlanView is the serializable form of a Plan.
type PlanView struct {
	ID        string      `json:"id"`
	Command   string      `json:"command"`
	Statement string      `json:"statement"`
	Strategy  string      `json:"strategy,omitempty"`
	Ranges    string      `json:"ranges,omitempty"`
	Stats     Stats       `json:"stats"`
	Target    *TargetView `json:"target,omitempty"`
	Scans     []ScanView  `json:"scans"`
}

// View converts the plan to its serializable form.
func (p *Plan) View() PlanView {
	v := PlanView{
		ID:        p.ID,
		Command:   string(p.Command),
		Statement: p.Statement.String(),
		Strategy:  string(p.Strategy),
		Ranges:    p.Ranges,
		Stats:     p.Stats,
		Scans:     make([]ScanView, 0, len(p.Scans)),
	}
	if p.Target != nil {
		v.Target = &TargetView{
			Relation:   uint32(p.Target.Relation),
			Name:       p.Target.Name,
			Retargeted: p.Target.Retargeted,
		}
	}
	for _, s := range p.Scans {
		sv := ScanView{
			RTIndex:        s.RTIndex,
			Relation:       uint32(s.Relation),
			Name:           s.Name,
			PartitionIndex: s.PartitionIndex,
			SQL:            s.SQL(),
		}
		for _, q := range s.Quals {
			sv.Quals = append(sv.Quals, q.Clause.String())
		}
		v.Scans = append(v.Scans, sv)
	}
	return v
}

// Explain writes a human-readable rendering of plan to w.
func Explain(w io.Writer, plan *Plan, colorize bool) error {
	head := color.New(color.FgCyan, color.Bold)
	node := color.New(color.FgGreen)
	qual := color.New(color.FgYellow)
	dim := color.New(color.Faint)
	for _, c := range []*color.Color{head, node, qual, dim} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	var sb strings.Builder
	sb.WriteString(head.Sprintf("%s plan %s", strings.ToUpper(string(plan.Command)), plan.ID))
	sb.WriteString("\n")
	if plan.Stats.Partitioned {
		sb.WriteString(dim.Sprintf("  %s partitions: %d of %d selected, ranges %s",
			plan.Strategy, plan.Stats.Selected, plan.Stats.Total, plan.Ranges))
		sb.WriteString("\n")
	}
	if t := plan.Target; t != nil {
		label := "Modify " + t.Name
		if t.Retargeted {
			label += " (single partition)"
		}
		sb.WriteString(node.Sprint("  " + label))
		sb.WriteString("\n")
	}
	if len(plan.Scans) > 1 {
		sb.WriteString(node.Sprint("  Append"))
		sb.WriteString("\n")
	}
	for _, s := range plan.Scans {
		indent := "  "
		if len(plan.Scans) > 1 {
			indent = "    "
		}
		sb.WriteString(indent)
		sb.WriteString(node.Sprintf("Seq Scan on %s", s.Name))
		if s.PartitionIndex >= 0 {
			sb.WriteString(dim.Sprintf(" [partition %d]", s.PartitionIndex))
		}
		sb.WriteString("\n")
		for _, q := range s.Quals {
			sb.WriteString(indent)
			sb.WriteString(qual.Sprintf("  Filter: %s", q.Clause.String()))
			sb.WriteString("\n")
		}
	}
	if len(plan.Scans) == 0 {
		sb.WriteString(dim.Sprint("  Result (no partitions)"))
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("planner: failed to write explain output: %w", err)
	}
	return nil
}
