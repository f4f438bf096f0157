package pipeline

import (
	"context"
	"fmt"

	"github.com/lakemill/lakemill/internal/plan"
)

// normalizeTable builds one typed base-layer table from its raw source by
// rendering the table's transform plan. How cast failures are handled
// depends on the configured policy:
//
//   - reject: bad rows land in a side <table>_rejects table and the clean
//     rows proceed. Row counts are conserved: raw = base + rejected.
//   - fail: any bad value aborts the table build.
//   - null: bad values become NULL and every row is kept.
func (p *Pipeline) normalizeTable(ctx context.Context, t *plan.Table, table string) (rows, rejected int64, err error) {
	if err := t.Validate(); err != nil {
		return 0, 0, err
	}

	from := p.rawTable(t.Source)

	if err := p.db.CreateSchema(ctx, p.schemas.Base); err != nil {
		return 0, 0, err
	}

	switch p.onCastError {
	case CastFail:
		if countSQL := t.BadRowCountSQL(p.dialect, from); countSQL != "" {
			bad, err := p.queryCount(ctx, countSQL)
			if err != nil {
				return 0, 0, err
			}
			if bad > 0 {
				return 0, 0, fmt.Errorf("%d row(s) in %s fail a declared cast", bad, from)
			}
		}
		if err := p.db.OverwriteTableAs(ctx, table, t.SelectSQL(p.dialect, from, false)); err != nil {
			return 0, 0, err
		}

	case CastNull:
		if err := p.db.OverwriteTableAs(ctx, table, t.SelectSQL(p.dialect, from, false)); err != nil {
			return 0, 0, err
		}

	default: // CastReject
		if rejectSQL := t.RejectSQL(p.dialect, from); rejectSQL != "" {
			rejectTable := p.baseTable(t.RejectTable())
			if err := p.db.OverwriteTableAs(ctx, rejectTable, rejectSQL); err != nil {
				return 0, 0, fmt.Errorf("failed to build reject table %s: %w", rejectTable, err)
			}
		}
		if err := p.db.OverwriteTableAs(ctx, table, t.SelectSQL(p.dialect, from, true)); err != nil {
			return 0, 0, err
		}

		// Rejected rows are counted as the raw/base difference, so the
		// manifest always conserves rows even if a reject lands in the side
		// table more than once (one entry per failing column).
		rawCount, err := p.countRows(ctx, from)
		if err != nil {
			return 0, 0, err
		}
		baseCount, err := p.countRows(ctx, table)
		if err != nil {
			return 0, 0, err
		}
		rejected = rawCount - baseCount
		if rejected > 0 {
			p.logger.Warn("rows rejected", "table", table, "rejected", rejected, "reject_table", p.baseTable(t.RejectTable()))
		}
		return baseCount, rejected, nil
	}

	rows, err = p.countRows(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	return rows, 0, nil
}
