package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eigerco/colstore/internal/config"
	"github.com/eigerco/colstore/pkg/comparator"
	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/store"
)

type globalFlags struct {
	config  string
	backend string
	path    string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rc := &cobra.Command{
		Use:           "colstore",
		Short:         "Inspect and edit colstore tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.PersistentFlags().StringVarP(&g.config, "config", "c", "", "Configuration file to read from.")
	rc.PersistentFlags().StringVar(&g.backend, "backend", "", "Backend to open: pebble, bolt or memory. Overrides the configuration file.")
	rc.PersistentFlags().StringVar(&g.path, "path", "", "Data location. Overrides the configuration file.")

	rc.AddCommand(newCreateTableCommand(g))
	rc.AddCommand(newDropTableCommand(g))
	rc.AddCommand(newTablesCommand(g))
	rc.AddCommand(newPutCommand(g))
	rc.AddCommand(newGetCommand(g))
	rc.AddCommand(newDeleteCommand(g))
	rc.AddCommand(newScanCommand(g))
	rc.AddCommand(newRowsCommand(g))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, d *store.Database) error) error {
	cfg, err := config.Load(g.config)
	if err != nil {
		return err
	}
	if g.backend != "" {
		cfg.Backend = g.backend
	}
	if g.path != "" {
		cfg.Path = g.path
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.InitLogging(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := cfg.OpenDatabase(ctx, nil)
	if err != nil {
		return err
	}
	defer d.Close() //nolint:errcheck
	return fn(ctx, d)
}

func parseID(s, what string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return v, nil
}

// rangeFlags registers --from and --to and converts them to a db.Range.
func rangeFlags(cmd *cobra.Command) func() db.Range {
	var from, to int64
	cmd.Flags().Int64Var(&from, "from", 0, "Inclusive lower bound.")
	cmd.Flags().Int64Var(&to, "to", 0, "Inclusive upper bound.")
	return func() db.Range {
		var r db.Range
		if cmd.Flags().Changed("from") {
			r.Lo = &from
		}
		if cmd.Flags().Changed("to") {
			r.Hi = &to
		}
		return r
	}
}

func formatValue(v []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(v)
	}
	return string(v)
}

func newCreateTableCommand(g *globalFlags) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "create-table NAME",
		Short: "Create a table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := comparator.ParseDirection(direction)
			if err != nil {
				return err
			}
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				return d.CreateTable(ctx, args[0], dir)
			})
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "ascending", "Column order: ascending or descending.")
	return cmd
}

func newDropTableCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drop-table NAME",
		Short: "Drop a table and all of its rows.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				return d.DropTable(ctx, args[0])
			})
		},
	}
}

func newTablesCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				tables, err := d.Tables(ctx)
				if err != nil {
					return err
				}
				for _, t := range tables {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, t.Direction)
				}
				return nil
			})
		},
	}
}

func newPutCommand(g *globalFlags) *cobra.Command {
	var asHex bool
	cmd := &cobra.Command{
		Use:   "put TABLE ROW COLUMN VALUE",
		Short: "Store a column value.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseID(args[1], "row")
			if err != nil {
				return err
			}
			col, err := parseID(args[2], "column")
			if err != nil {
				return err
			}
			value := []byte(args[3])
			if asHex {
				if value, err = hex.DecodeString(args[3]); err != nil {
					return fmt.Errorf("invalid hex value: %w", err)
				}
			}
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				return d.PutColumn(ctx, args[0], row, col, value)
			})
		},
	}
	cmd.Flags().BoolVar(&asHex, "hex", false, "VALUE is hex encoded.")
	return cmd
}

func newGetCommand(g *globalFlags) *cobra.Command {
	var asHex bool
	cmd := &cobra.Command{
		Use:   "get TABLE ROW COLUMN",
		Short: "Print a column value.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseID(args[1], "row")
			if err != nil {
				return err
			}
			col, err := parseID(args[2], "column")
			if err != nil {
				return err
			}
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				v, ok, err := d.GetColumn(ctx, args[0], row, col)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("column %d of row %d not found", col, row)
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(v, asHex))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asHex, "hex", false, "Print the value hex encoded.")
	return cmd
}

func newDeleteCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TABLE ROW [COLUMN]",
		Short: "Delete a column, or a whole row when COLUMN is omitted.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseID(args[1], "row")
			if err != nil {
				return err
			}
			if len(args) == 2 {
				return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
					return d.DeleteRow(ctx, args[0], row)
				})
			}
			col, err := parseID(args[2], "column")
			if err != nil {
				return err
			}
			return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
				return d.DeleteColumn(ctx, args[0], row, col)
			})
		},
	}
}

func newScanCommand(g *globalFlags) *cobra.Command {
	var (
		asHex bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "scan TABLE ROW",
		Short: "Print the columns of a row in table order.",
		Args:  cobra.ExactArgs(2),
	}
	r := rangeFlags(cmd)
	cmd.Flags().BoolVar(&asHex, "hex", false, "Print values hex encoded.")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many columns. Zero means no limit.")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		row, err := parseID(args[1], "row")
		if err != nil {
			return err
		}
		return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
			n := 0
			for c, err := range d.ScanColumns(ctx, args[0], row, r()) {
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", c.ID, formatValue(c.Value, asHex))
				if n++; limit > 0 && n >= limit {
					break
				}
			}
			return nil
		})
	}
	return cmd
}

func newRowsCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows TABLE",
		Short: "Print the ids of rows holding at least one column.",
		Args:  cobra.ExactArgs(1),
	}
	r := rangeFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, g, func(ctx context.Context, d *store.Database) error {
			for id, err := range d.ScanRows(ctx, args[0], r()) {
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	}
	return cmd
}
