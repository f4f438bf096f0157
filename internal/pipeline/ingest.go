package pipeline

import (
	"context"
	"fmt"

	"github.com/lakemill/lakemill/internal/source"
)

// ingestTable loads one source file into its raw-layer table. Raw tables
// are all-text: typing happens in the base layer, never here. The file is
// scanned before anything touches the warehouse so the ragged-row policy
// can be applied up front.
func (p *Pipeline) ingestTable(ctx context.Context, src source.Source, table string) (rows, rejected int64, err error) {
	path := src.Path(p.sourcesDir)

	scan, err := source.Scan(path)
	if err != nil {
		return 0, 0, err
	}

	if scan.Ragged > 0 {
		if p.onRagged == RaggedFail {
			return 0, 0, fmt.Errorf("%s: %d ragged row(s); set on_ragged to %q to drop them", src.File, scan.Ragged, RaggedSkip)
		}
		p.logger.Warn("dropping ragged rows", "table", table, "file", src.File, "ragged", scan.Ragged)
	}

	if err := p.db.CreateSchema(ctx, p.schemas.Raw); err != nil {
		return 0, 0, err
	}

	if err := p.db.LoadCSV(ctx, table, path, p.onRagged == RaggedSkip); err != nil {
		return 0, 0, fmt.Errorf("failed to load %s: %w", src.File, err)
	}

	rows, err = p.countRows(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	return rows, scan.Ragged, nil
}
