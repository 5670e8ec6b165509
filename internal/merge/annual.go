package merge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crash-cli/internal/fetcher"
)

// Annual extracts, by staging table name.
var annualSources = []string{"road", "acc", "curv", "grad"}

// The grade extract stores the sign separately from the magnitude.
const signGradeSQL = `
UPDATE grad
SET pct_grad =
	CASE WHEN dir_grad = '-' THEN -1 * pct_grad
	ELSE pct_grad
END`

// Elevation points supply location and fine-grained grade (as a fraction)
// where the freeway survey covers the segment.
const mergeElevSQL = `
CREATE VIEW merge_elev AS
SELECT road.*,
	AVG(elev.Longitude) AS longitude,
	AVG(elev.Latitude) AS latitude,
	AVG(elev.Grade) * 100 AS avg_grad,
	MAX(elev.Grade) * 100 AS max_grad,
	MIN(elev.Grade) * 100 AS min_grad
FROM road LEFT JOIN elev
ON road.road_inv = elev.Route_id AND
	elev.milepost BETWEEN road.begmp AND road.endmp
GROUP BY road.road_inv, road.begmp, road.endmp`

// Coarse grade applies only where elevation grade is missing.
const mergeGradSQL = `
CREATE VIEW merge_grad AS
SELECT e.lshl_typ, e.med_type, e.rshl_typ, e.surf_typ,
	e.road_inv, e.spd_limt, e.begmp AS begmp, e.endmp AS endmp, e.lanewid, e.no_lanes,
	e.lshldwid, e.rshldwid, e.medwid, e.seg_lng, e.aadt, e.longitude, e.latitude,
	CASE WHEN e.avg_grad IS NOT NULL THEN e.avg_grad
	ELSE AVG(grad.pct_grad) END AS avg_grad,
	CASE WHEN e.max_grad IS NOT NULL THEN e.max_grad
	ELSE MAX(grad.pct_grad) END AS max_grad,
	CASE WHEN e.min_grad IS NOT NULL THEN e.min_grad
	ELSE MIN(grad.pct_grad) END AS min_grad
FROM merge_elev AS e LEFT JOIN grad
ON e.road_inv = grad.grad_inv AND
	grad.begmp BETWEEN e.begmp AND e.endmp
GROUP BY e.road_inv, e.begmp, e.endmp`

const mergeCurvSQL = `
CREATE VIEW merge_curv AS
SELECT g.*,
	COUNT(curv.dir_curv) AS curv_count,
	MAX(curv.deg_curv) AS max_deg_curv
FROM merge_grad AS g LEFT JOIN curv
ON curv.curv_inv = g.road_inv AND
	curv.begmp BETWEEN g.begmp AND g.endmp
GROUP BY g.road_inv, g.begmp, g.endmp`

const mergeAccSQL = `
SELECT c.*,
	COUNT(acc.caseno) AS acc_count
FROM merge_curv AS c LEFT JOIN acc
ON c.road_inv = acc.rd_inv AND
	acc.milepost BETWEEN c.begmp AND c.endmp
GROUP BY c.road_inv, c.begmp, c.endmp
ORDER BY c.road_inv, c.begmp, c.endmp`

var dropViews = []string{
	"DROP VIEW IF EXISTS merge_curv",
	"DROP VIEW IF EXISTS merge_grad",
	"DROP VIEW IF EXISTS merge_elev",
}

func annualFile(dir, year, source string) string {
	return filepath.Join(dir, fmt.Sprintf("wa%s%s.csv", year, source))
}

// buildYear stages one year's extracts and materializes data_YY.
func (m *Merger) buildYear(ctx context.Context, opts Options, year string) error {
	tables := make([]*fetcher.Table, len(annualSources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range annualSources {
		path := annualFile(opts.DataDir, year, src)
		g.Go(func() error {
			t, err := fetcher.ReadCSVFile(gctx, path, opts.CSV)
			if err != nil {
				return eris.Wrapf(err, "merge: read %s extract for 20%s", src, year)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.exec(ctx, dropViews...); err != nil {
		return err
	}
	for i, src := range annualSources {
		if err := m.stage(ctx, src, tables[i]); err != nil {
			return eris.Wrapf(err, "merge: stage %s for 20%s", src, year)
		}
	}

	table := quoteIdent(annualTable(year))
	err := m.exec(ctx,
		signGradeSQL,
		mergeElevSQL,
		mergeGradSQL,
		mergeCurvSQL,
		"DROP TABLE IF EXISTS "+table,
		"CREATE TABLE "+table+" AS "+mergeAccSQL,
	)
	if err != nil {
		return eris.Wrapf(err, "merge: build 20%s", year)
	}

	zap.L().Info("merge: annual table built",
		zap.String("year", year),
		zap.Int("segments", len(tables[0].Rows)),
		zap.Int("crashes", len(tables[1].Rows)),
	)
	return nil
}
