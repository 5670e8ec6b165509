package export

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/crash-cli/internal/model"
)

// shapeFields are the DBF attributes of a crash map shapefile. DBF names are
// limited to 10 characters.
var shapeFields = []shp.Field{
	shp.StringField("ROAD_INV", 16),
	shp.FloatField("BEGMP", 19, 6),
	shp.FloatField("ENDMP", 19, 6),
	shp.FloatField("OBSERVED", 19, 6),
	shp.FloatField("SPF", 19, 6),
	shp.FloatField("SAFETY", 19, 6),
	shp.FloatField("ARP", 19, 6),
	shp.NumberField("RANK", 10),
	shp.FloatField("MARKER", 19, 6),
}

// WriteShapefile writes located segments as points to path (.shp, with its
// .shx and .dbf siblings). Returns the number of points written.
func WriteShapefile(path string, scores []model.SegmentScore, metric string) (int, error) {
	sizes, err := markerSizes(scores, metric)
	if err != nil {
		return 0, err
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields(shapeFields); err != nil {
		return 0, eris.Wrap(err, "export: set shapefile fields")
	}

	n := 0
	for i, sc := range scores {
		if !located(sc) {
			continue
		}
		row := int(w.Write(&shp.Point{X: sc.Longitude, Y: sc.Latitude}))
		attrs := []any{
			sc.Key.RoadInv, sc.Key.BegMP, sc.Key.EndMP, sc.Observed,
			sc.SPF, sc.Safety, sc.ARP, sc.Rank, sizes[i],
		}
		for field, v := range attrs {
			if err := w.WriteAttribute(row, field, v); err != nil {
				return n, eris.Wrapf(err, "export: write %s attribute %d", sc.Key, field)
			}
		}
		n++
	}
	return n, nil
}

// NetworkExtent returns the lon/lat bounds of every shape in a road network
// shapefile.
func NetworkExtent(path string) (*geom.Bounds, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open shapefile %s", path)
	}
	defer func() { _ = r.Close() }()

	b := geom.NewBounds(geom.XY)
	var shapes, skipped int
	for r.Next() {
		_, shape := r.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}
		b.Extend(g)
		shapes++
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "export: read shapefile %s", path)
	}
	if skipped > 0 {
		zap.L().Debug("export: skipped network shapes",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if shapes == 0 {
		return nil, eris.Errorf("export: shapefile %s has no shapes", path)
	}
	return b, nil
}

// shapeGeometry returns the vertices of a point, line or polygon shape.
func shapeGeometry(s shp.Shape) geom.T {
	var pts []shp.Point
	switch v := s.(type) {
	case *shp.Point:
		pts = []shp.Point{*v}
	case *shp.PolyLine:
		pts = v.Points
	case *shp.Polygon:
		pts = v.Points
	case *shp.MultiPoint:
		pts = v.Points
	default:
		return nil
	}
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		flat = append(flat, p.X, p.Y)
	}
	if len(flat) == 0 {
		return nil
	}
	return geom.NewMultiPointFlat(geom.XY, flat)
}
