// Package catalog lists the tables of a store and their live columns, for
// the table and column pickers of the CLI and the HTTP API.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/mapping"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"golang.org/x/sync/errgroup"
)

// maxConcurrent bounds the number of column lookups in flight.
const maxConcurrent = 8

// IsInternal reports whether table holds leapmeta's own metadata.
func IsInternal(table string) bool {
	return table == lineage.Table || table == mapping.Table
}

// Tables returns the user tables of the store, optionally restricted to
// names starting with prefix.
func Tables(ctx context.Context, store core.Store, prefix string) ([]string, error) {
	all, err := store.ListTables(ctx)
	if err != nil {
		return nil, core.ErrRemote("list tables", "", "", err)
	}
	out := make([]string, 0, len(all))
	for _, t := range all {
		if IsInternal(t) || !strings.HasPrefix(t, prefix) {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}

// Describe reads the live columns of each table concurrently and returns
// the schemas in the order given. Audit and key columns are left out
// unless all is set.
func Describe(ctx context.Context, store core.Store, tables []string, all bool) ([]core.TableSchema, error) {
	schemas := make([]core.TableSchema, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, t := range tables {
		g.Go(func() error {
			cols, err := store.ListColumns(gctx, t)
			if err != nil {
				return fmt.Errorf("describe %s: %w", t, err)
			}
			if !all {
				cols = slices.DeleteFunc(cols, func(c core.Column) bool {
					return core.IsManagedColumn(c.Name)
				})
			}
			schemas[i] = core.TableSchema{Name: t, Columns: cols}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schemas, nil
}
