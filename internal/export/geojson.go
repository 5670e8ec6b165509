package export

import (
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/crash-cli/internal/model"
)

// MaxMarkerSize is the marker size of the highest-valued segment on a
// crash map.
const MaxMarkerSize = 25.0

// Map metrics.
const (
	MetricSafety = "safety"
	MetricARP    = "arp"
)

func metricValue(sc model.SegmentScore, metric string) (float64, error) {
	switch metric {
	case MetricSafety, "":
		return sc.Safety, nil
	case MetricARP:
		return sc.ARP, nil
	default:
		return 0, eris.Wrapf(model.ErrInvalidInput, "export: unknown map metric %q", metric)
	}
}

func located(sc model.SegmentScore) bool {
	return !math.IsNaN(sc.Longitude) && !math.IsNaN(sc.Latitude)
}

// markerSizes scales metric values so the largest located value maps to
// MaxMarkerSize.
func markerSizes(scores []model.SegmentScore, metric string) ([]float64, error) {
	values := make([]float64, len(scores))
	peak := 0.0
	for i, sc := range scores {
		v, err := metricValue(sc, metric)
		if err != nil {
			return nil, err
		}
		values[i] = v
		if located(sc) && v > peak {
			peak = v
		}
	}
	sizes := make([]float64, len(scores))
	if peak <= 0 {
		return sizes, nil
	}
	for i, v := range values {
		sizes[i] = math.Max(v, 0) * MaxMarkerSize / peak
	}
	return sizes, nil
}

func point(sc model.SegmentScore) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{sc.Longitude, sc.Latitude}).SetSRID(4326)
}

// CrashMap builds a point feature per located segment with its scores and
// a marker size proportional to metric. Segments without a location are
// skipped.
func CrashMap(scores []model.SegmentScore, metric string) (*geojson.FeatureCollection, error) {
	sizes, err := markerSizes(scores, metric)
	if err != nil {
		return nil, err
	}
	fc := &geojson.FeatureCollection{}
	for i, sc := range scores {
		if !located(sc) {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       sc.Key.String(),
			Geometry: point(sc),
			Properties: map[string]any{
				model.ColRoadInv: sc.Key.RoadInv,
				model.ColBegMP:   sc.Key.BegMP,
				model.ColEndMP:   sc.Key.EndMP,
				"observed":       sc.Observed,
				"spf":            sc.SPF,
				"safety":         sc.Safety,
				"arp":            sc.ARP,
				"rank":           sc.Rank,
				"marker_size":    sizes[i],
			},
		})
	}
	if len(fc.Features) > 0 {
		fc.BBox = Extent(scores)
	}
	return fc, nil
}

// WriteGeoJSON encodes fc to w.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "export: write geojson")
}

// Extent returns the lon/lat bounds of the located segments, or nil when
// none has a location.
func Extent(scores []model.SegmentScore) *geom.Bounds {
	var b *geom.Bounds
	for _, sc := range scores {
		if !located(sc) {
			continue
		}
		if b == nil {
			b = geom.NewBounds(geom.XY)
		}
		b.Extend(point(sc))
	}
	return b
}
