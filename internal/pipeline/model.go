package pipeline

import (
	"context"
	"fmt"

	"github.com/lakemill/lakemill/internal/star"
)

// buildDimension materializes one star-layer dimension from its base
// source. Declared uniqueness is asserted before anything is written;
// attribute drift on keyed dimensions is resolved last-write-wins and
// surfaced as a warning.
func (p *Pipeline) buildDimension(ctx context.Context, dim *star.Dimension, table string) (rows, rejected int64, err error) {
	from := p.baseTable(dim.Source)

	if err := p.db.CreateSchema(ctx, p.schemas.Star); err != nil {
		return 0, 0, err
	}

	if countSQL := dim.UniqueViolationsSQL(p.dialect, from); countSQL != "" {
		dups, err := p.queryCount(ctx, countSQL)
		if err != nil {
			return 0, 0, err
		}
		if dups > 0 {
			return 0, 0, fmt.Errorf("%d duplicated %s value(s) in %s", dups, dim.AssertUnique, from)
		}
	}

	if countSQL := dim.DriftCountSQL(p.dialect, from); countSQL != "" {
		drift, err := p.queryCount(ctx, countSQL)
		if err != nil {
			return 0, 0, err
		}
		if drift > 0 {
			p.logger.Warn("attribute drift resolved last-write-wins",
				"table", table, "keys_with_drift", drift, "order_by", dim.OrderBy)
		}
	}

	if err := p.db.OverwriteTableAs(ctx, table, dim.SelectSQL(p.dialect, from)); err != nil {
		return 0, 0, err
	}

	rows, err = p.countRows(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	return rows, 0, nil
}

// buildFact materializes one star-layer fact. The join key must be unique
// on the right side, otherwise the left join would multiply event rows;
// that is asserted before the write. Join misses are fine: the fact keeps
// every event row and carries NULLs for the missing dimension columns.
func (p *Pipeline) buildFact(ctx context.Context, f *star.Fact, table string) (rows, rejected int64, err error) {
	leftFrom := p.baseTable(f.Left)
	rightFrom := p.baseTable(f.Right)

	if err := p.db.CreateSchema(ctx, p.schemas.Star); err != nil {
		return 0, 0, err
	}

	dups, err := p.queryCount(ctx, f.RightUniqueViolationsSQL(p.dialect, rightFrom))
	if err != nil {
		return 0, 0, err
	}
	if dups > 0 {
		return 0, 0, fmt.Errorf("join key %s has %d duplicated value(s) in %s; the join would multiply rows", f.Key, dups, rightFrom)
	}

	if err := p.db.OverwriteTableAs(ctx, table, f.SelectSQL(p.dialect, leftFrom, rightFrom)); err != nil {
		return 0, 0, err
	}

	rows, err = p.countRows(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	return rows, 0, nil
}
