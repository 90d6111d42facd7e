package bigtable

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/bigtable"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EnsureTable creates the table and any missing column families, and limits every
// family to a single cell version. Existing data is left untouched.
func EnsureTable(ctx context.Context, project, instance, table string, families []string, opts ...Option) error {
	const op = "bigtable.EnsureTable"

	s, err := newSettings(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	admin, err := bigtable.NewAdminClient(ctx, project, instance, s.clientOpts...)
	if err != nil {
		return fmt.Errorf("%s: failed to create admin client: %w", op, err)
	}
	defer admin.Close()

	tables, err := admin.Tables(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to list tables: %w", op, err)
	}

	if !slices.Contains(tables, table) {
		if err := admin.CreateTable(ctx, table); err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("%s: failed to create table %q: %w", op, table, err)
		}
	}

	info, err := admin.TableInfo(ctx, table)
	if err != nil {
		return fmt.Errorf("%s: failed to get table info: %w", op, err)
	}

	for _, family := range families {
		if !slices.Contains(info.Families, family) {
			err := admin.CreateColumnFamily(ctx, table, family)
			if err != nil && status.Code(err) != codes.AlreadyExists {
				return fmt.Errorf("%s: failed to create column family %q: %w", op, family, err)
			}
		}

		if err := admin.SetGCPolicy(ctx, table, family, bigtable.MaxVersionsPolicy(1)); err != nil {
			return fmt.Errorf("%s: failed to set gc policy on %q: %w", op, family, err)
		}
	}

	return nil
}
