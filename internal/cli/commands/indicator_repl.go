package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapmeta/internal/catalog"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/indicator"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/query"
	"github.com/spf13/cobra"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

var replCommands = []string{
	".from", ".select", ".deselect", ".join", ".where", ".order", ".reset", ".clear",
	".show", ".sql", ".preview", ".save", ".load", ".write", ".tables", ".columns",
	".help", ".quit", ".exit",
}

func newIndicatorBuildCommand() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose an indicator interactively",
		Long: `Start an interactive session for composing an indicator step by step.
Pick source tables, select columns, add joins, filters and sort keys, and
preview the result before saving it.`,
		Example: `  # Start from scratch
  leapmeta indicator build

  # Continue editing a query file
  leapmeta indicator build --from queries/revenue_by_city.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s := newBuildSession(cc.Store, cc.indicatorService(), cc.Renderer, cc.Cfg.PreviewLimit)
			if from != "" {
				if err := s.load(from); err != nil {
					return err
				}
			}
			return runBuildREPL(cmd.Context(), cc, s)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Query file to start from")

	return cmd
}

func runBuildREPL(ctx context.Context, cc *CommandContext, s *buildSession) error {
	historyFile := ""
	if db := cc.Cfg.Target.Database; isFileTarget(cc.Cfg.Target.Type) && db != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(db), "indicator_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "leapmeta> ",
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(ctx),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cc.Renderer.Writer(),
		Stderr:          cc.Renderer.ErrWriter(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	cc.Renderer.Println("LeapMeta indicator builder")
	cc.Renderer.Println("Type .help for commands, .quit to exit")
	cc.Renderer.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			cc.Renderer.Error(err.Error())
		}
	}
}

// buildSession holds the query being composed in the REPL.
type buildSession struct {
	store core.Store
	svc   *indicator.Service
	r     *output.Renderer
	b     *query.Builder
	limit int
}

func newBuildSession(store core.Store, svc *indicator.Service, r *output.Renderer, limit int) *buildSession {
	return &buildSession{store: store, svc: svc, r: r, b: query.NewBuilder(), limit: limit}
}

// handle runs one REPL line. It returns errQuit on .quit and .exit.
func (s *buildSession) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, ".") {
		return fmt.Errorf("unknown input %q (type .help for commands)", line)
	}

	command, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch strings.ToLower(command) {
	case ".quit", ".exit":
		return errQuit

	case ".help":
		printBuildHelp(s.r.Writer())

	case ".from":
		if len(args) == 0 {
			return errors.New("usage: .from <table> [table...]")
		}
		s.b.From(args...)

	case ".select", ".deselect":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <table> <column...> or %s <table.column...>", command, command)
		}
		refs, err := columnArgs(args)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if command == ".select" {
				s.b.Select(ref.Table, ref.Column)
			} else {
				s.b.Deselect(ref.Table, ref.Column)
			}
		}

	case ".join":
		return s.join(args)

	case ".where":
		return s.where(rest)

	case ".order":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: .order <table.column> [asc|desc]")
		}
		ref, err := parseColumnRef(args[0])
		if err != nil {
			return err
		}
		dir := ""
		if len(args) == 2 {
			dir = args[1]
		}
		d, err := query.ParseDirection(dir)
		if err != nil {
			return err
		}
		s.b.OrderBy(ref.Table, ref.Column, d)

	case ".reset":
		s.b.Reset()
		s.r.Muted("joins, filters and sort keys cleared")

	case ".clear":
		s.b = query.NewBuilder()
		s.r.Muted("query cleared")

	case ".show":
		spec, err := s.b.Build()
		if err != nil {
			return err
		}
		data, err := query.Marshal(spec)
		if err != nil {
			return err
		}
		_, _ = s.r.Writer().Write(data)

	case ".sql":
		sql, err := s.compose()
		if err != nil {
			return err
		}
		s.r.Println(sql)

	case ".preview":
		limit := s.limit
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid row limit %q", args[0])
			}
			limit = n
		}
		spec, err := s.b.Build()
		if err != nil {
			return err
		}
		p, err := s.svc.Preview(ctx, spec, limit)
		if err != nil {
			return err
		}
		return s.r.ResultSet(p.Result)

	case ".save":
		name := strings.TrimSpace(rest)
		if name == "" {
			return errors.New("usage: .save <name>")
		}
		spec, err := s.b.Build()
		if err != nil {
			return err
		}
		ind, err := s.svc.Save(ctx, name, spec)
		if ind == nil {
			return err
		}
		warn(s.r, err)
		s.r.Success(fmt.Sprintf("Saved %s as %s", ind.Title, ind.TargetTable))

	case ".load":
		if len(args) != 1 {
			return errors.New("usage: .load <file>")
		}
		return s.load(args[0])

	case ".write":
		if len(args) != 1 {
			return errors.New("usage: .write <file>")
		}
		spec, err := s.b.Build()
		if err != nil {
			return err
		}
		data, err := query.Marshal(spec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			return err
		}
		s.r.Success("Wrote " + args[0])

	case ".tables":
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		tables, err := catalog.Tables(ctx, s.store, prefix)
		if err != nil {
			return err
		}
		for _, t := range tables {
			s.r.Println(t)
		}

	case ".columns":
		if len(args) == 0 {
			return errors.New("usage: .columns <table> [table...]")
		}
		schemas, err := catalog.Describe(ctx, s.store, args, false)
		if err != nil {
			return err
		}
		for _, sch := range schemas {
			printSchema(s.r, sch)
		}

	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", command)
	}
	return nil
}

func (s *buildSession) compose() (string, error) {
	spec, err := s.b.Build()
	if err != nil {
		return "", err
	}
	return s.svc.Compose(spec)
}

// join parses: <type> [outer] <left.column> <right.column>
func (s *buildSession) join(args []string) error {
	if len(args) == 4 && strings.EqualFold(args[1], "outer") {
		args = append([]string{args[0] + " OUTER"}, args[2:]...)
	}
	if len(args) != 3 {
		return errors.New("usage: .join <inner|left|right|full> <left_table.column> <right_table.column>")
	}
	typ, err := query.ParseJoinType(args[0])
	if err != nil {
		return err
	}
	left, err := parseColumnRef(args[1])
	if err != nil {
		return err
	}
	right, err := parseColumnRef(args[2])
	if err != nil {
		return err
	}
	s.b.Join(typ, left.Table, left.Column, right.Table, right.Column)
	return nil
}

// where parses: <table.column> <operator> <value...>
func (s *buildSession) where(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return errors.New("usage: .where <table.column> <operator> <value>")
	}
	ref, err := parseColumnRef(fields[0])
	if err != nil {
		return err
	}

	opWords := 1
	if strings.EqualFold(fields[1], "not") && len(fields) > 3 {
		opWords = 2
	}
	op, err := query.ParseOperator(strings.Join(fields[1:1+opWords], " "))
	if err != nil {
		return err
	}
	value := strings.Join(fields[1+opWords:], " ")
	if value == "" {
		return errors.New("usage: .where <table.column> <operator> <value>")
	}
	s.b.Where(ref.Table, ref.Column, op, value)
	return nil
}

func (s *buildSession) load(path string) error {
	spec, err := query.LoadFile(path)
	if err != nil {
		return err
	}
	def := spec.Definition()
	b := query.NewBuilder().From(def.Tables...)
	for _, t := range def.Tables {
		b.Select(t, def.Columns[t]...)
	}
	for _, j := range def.Joins {
		b.Join(j.Type, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn)
	}
	for _, f := range def.Filters {
		b.Where(f.Table, f.Column, f.Operator, f.Value)
	}
	for _, o := range def.Orders {
		b.OrderBy(o.Table, o.Column, o.Direction)
	}
	s.b = b
	s.r.Muted("loaded " + path)
	return nil
}

// completer offers dot-commands, with table names after the commands that
// take them.
func (s *buildSession) completer(ctx context.Context) *readline.PrefixCompleter {
	tables := func(string) []string {
		names, err := catalog.Tables(ctx, s.store, "")
		if err != nil {
			return nil
		}
		return names
	}
	withTables := map[string]bool{".from": true, ".select": true, ".deselect": true, ".columns": true}

	items := make([]readline.PrefixCompleterInterface, 0, len(replCommands))
	for _, c := range replCommands {
		if withTables[c] {
			items = append(items, readline.PcItem(c, readline.PcItemDynamic(tables)))
			continue
		}
		items = append(items, readline.PcItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}

// columnArgs accepts either "table col1 col2" or "table.col1 table.col2".
func columnArgs(args []string) ([]query.ColumnRef, error) {
	if !strings.Contains(args[0], ".") {
		if len(args) < 2 {
			return nil, fmt.Errorf("no columns given for %s", args[0])
		}
		refs := make([]query.ColumnRef, 0, len(args)-1)
		for _, c := range args[1:] {
			refs = append(refs, query.ColumnRef{Table: args[0], Column: c})
		}
		return refs, nil
	}

	refs := make([]query.ColumnRef, 0, len(args))
	for _, a := range args {
		ref, err := parseColumnRef(a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseColumnRef(s string) (query.ColumnRef, error) {
	table, column, ok := strings.Cut(s, ".")
	if !ok || table == "" || column == "" {
		return query.ColumnRef{}, core.ErrInput("expected table.column, got %q", s)
	}
	return query.ColumnRef{Table: table, Column: column}, nil
}

func printBuildHelp(w io.Writer) {
	help := `
Commands:
  .from <table...>                    Add source tables (the first anchors FROM)
  .select <table> <column...>         Select columns (or .select t.a t.b)
  .deselect <table> <column...>       Remove selected columns
  .join <type> <l.col> <r.col>        Join tables (inner, left, right, full)
  .where <t.col> <op> <value>         Add a filter (=, >, <, >=, <=, LIKE, IN, NOT IN)
  .order <t.col> [asc|desc]           Add a sort key
  .reset                              Clear joins, filters and sort keys
  .clear                              Start over
  .show                               Show the query definition
  .sql                                Show the composed SQL
  .preview [limit]                    Run the query
  .save <name>                        Save as an indicator
  .load <file> / .write <file>        Read or write a query file
  .tables [prefix]                    List tables
  .columns <table...>                 Show table columns
  .quit / .exit                       Exit

Tips:
  - IN values are comma separated: .where raw_sales.region IN 'BR','AR'
  - Tab completion works for commands and table names
`
	_, _ = fmt.Fprintln(w, help)
}
