package migration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Op names one migrate operation.
type Op string

const (
	OpUp      Op = "up"
	OpDown    Op = "down"
	OpDownAll Op = "down-all"
	OpSteps   Op = "steps"
	OpGoto    Op = "goto"
	OpForce   Op = "force"
	OpStatus  Op = "status"
	OpInfo    Op = "info"
	OpVersion Op = "version"
)

// Command is one migrate invocation. N carries the step count for OpSteps
// and the target version for OpGoto and OpForce.
type Command struct {
	Op Op
	N  int
}

// Reporter runs migrate commands and reports how the transcript schema moved.
type Reporter struct {
	migrator Migrator
	out      io.Writer
}

// NewReporter writes reports for migrator to out.
func NewReporter(migrator Migrator, out io.Writer) *Reporter {
	return &Reporter{migrator: migrator, out: out}
}

// Run executes cmd. Read-only operations print the schema state; the others
// print every migration they applied or rolled back.
func (r *Reporter) Run(ctx context.Context, cmd Command) error {
	switch cmd.Op {
	case OpStatus:
		return r.status(ctx)
	case OpInfo:
		return r.info(ctx)
	case OpVersion:
		return r.version(ctx)
	case OpForce:
		if err := r.migrator.Force(ctx, cmd.N); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		fmt.Fprintf(r.out, "Schema version forced to %d, no SQL was run\n", cmd.N)
		return nil
	}

	before, err := r.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if err := r.apply(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd.Op, err)
	}
	after, err := r.migrator.Status(ctx)
	if err != nil {
		return err
	}
	r.transition(before, after)
	return nil
}

func (r *Reporter) apply(ctx context.Context, cmd Command) error {
	switch cmd.Op {
	case OpUp:
		return r.migrator.Up(ctx)
	case OpDown:
		return r.migrator.Down(ctx)
	case OpDownAll:
		return r.migrator.DownAll(ctx)
	case OpSteps:
		return r.migrator.Steps(ctx, cmd.N)
	case OpGoto:
		if cmd.N < 0 {
			return fmt.Errorf("invalid target version %d", cmd.N)
		}
		return r.migrator.Goto(ctx, uint(cmd.N))
	default:
		return fmt.Errorf("unknown operation %q", cmd.Op)
	}
}

// transition prints "+" for newly applied and "-" for rolled back migrations.
func (r *Reporter) transition(before, after []MigrationStatus) {
	from, to := appliedVersion(before), appliedVersion(after)
	if from == to {
		fmt.Fprintf(r.out, "Schema already at version %d, nothing to do\n", to)
		return
	}

	was := make(map[uint]bool, len(before))
	for _, s := range before {
		was[s.Version] = s.Applied
	}
	fmt.Fprintf(r.out, "Schema version %d -> %d\n", from, to)
	for _, s := range after {
		switch {
		case s.Applied && !was[s.Version]:
			fmt.Fprintf(r.out, "  + %06d %s (%s)\n", s.Version, s.Name, tableList(s.Tables))
		case !s.Applied && was[s.Version]:
			fmt.Fprintf(r.out, "  - %06d %s (%s)\n", s.Version, s.Name, tableList(s.Tables))
		}
	}
}

func (r *Reporter) status(ctx context.Context) error {
	statuses, err := r.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(r.out, "No migrations embedded for this database type")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tMIGRATION\tTABLES\tSTATE")
	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\t%s\n", s.Version, s.Name, tableList(s.Tables), state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\n%d applied, %d pending\n", applied, len(statuses)-applied)
	return nil
}

func (r *Reporter) info(ctx context.Context) error {
	info, err := r.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	statuses, err := r.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	var tables, pending []string
	seen := make(map[string]bool)
	for _, s := range statuses {
		if !s.Applied {
			pending = append(pending, fmt.Sprintf("%06d %s", s.Version, s.Name))
			continue
		}
		for _, t := range s.Tables {
			if !seen[t] {
				seen[t] = true
				tables = append(tables, t)
			}
		}
	}

	dirty := ""
	if info.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(r.out, "Transcript schema version %d%s\n", info.CurrentVersion, dirty)
	fmt.Fprintf(r.out, "  applied: %d of %d\n", info.AppliedMigrations, info.TotalMigrations)
	fmt.Fprintf(r.out, "  tables:  %s\n", tableList(tables))
	fmt.Fprintf(r.out, "  pending: %d\n", info.PendingMigrations)
	for _, p := range pending {
		fmt.Fprintf(r.out, "    %s\n", p)
	}
	return nil
}

func (r *Reporter) version(ctx context.Context) error {
	v, dirty, err := r.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	switch {
	case v == 0:
		fmt.Fprintln(r.out, "Transcript schema not created yet")
	case dirty:
		fmt.Fprintf(r.out, "%d (dirty)\n", v)
	default:
		fmt.Fprintf(r.out, "%d\n", v)
	}
	return nil
}

func appliedVersion(statuses []MigrationStatus) uint {
	var v uint
	for _, s := range statuses {
		if s.Applied && s.Version > v {
			v = s.Version
		}
	}
	return v
}

func tableList(tables []string) string {
	if len(tables) == 0 {
		return "-"
	}
	return strings.Join(tables, ", ")
}
