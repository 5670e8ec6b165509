package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Column names of the merged crash_data table.
const (
	ColRoadInv    = "road_inv"
	ColBegMP      = "begmp"
	ColEndMP      = "endmp"
	ColLShlTyp    = "lshl_typ"
	ColMedType    = "med_type"
	ColRShlTyp    = "rshl_typ"
	ColSurfTyp    = "surf_typ"
	ColSpdLimt    = "spd_limt"
	ColLaneWid    = "lanewid"
	ColNoLanes    = "no_lanes"
	ColLShldWid   = "lshldwid"
	ColRShldWid   = "rshldwid"
	ColMedWid     = "medwid"
	ColSegLng     = "seg_lng"
	ColLongitude  = "longitude"
	ColLatitude   = "latitude"
	ColAvgGrad    = "avg_grad"
	ColMaxGrad    = "max_grad"
	ColMinGrad    = "min_grad"
	ColCurvCount  = "curv_count"
	ColMaxDegCurv = "max_deg_curv"
	ColAvgAADT    = "avg_aadt"
	ColTotAccCt   = "tot_acc_ct"
	ColCurve      = "curve" // derived: 1 when the segment has at least one curve
)

// SegmentKey identifies a homogeneous road segment by route and milepost range.
type SegmentKey struct {
	RoadInv string  `json:"road_inv"`
	BegMP   float64 `json:"begmp"`
	EndMP   float64 `json:"endmp"`
}

// String renders the key as "route:begmp-endmp".
func (k SegmentKey) String() string {
	return fmt.Sprintf("%s:%s-%s", k.RoadInv,
		strconv.FormatFloat(k.BegMP, 'f', -1, 64),
		strconv.FormatFloat(k.EndMP, 'f', -1, 64))
}

// Less orders keys by route, then begin and end milepost.
func (k SegmentKey) Less(o SegmentKey) bool {
	if k.RoadInv != o.RoadInv {
		return k.RoadInv < o.RoadInv
	}
	if k.BegMP != o.BegMP {
		return k.BegMP < o.BegMP
	}
	return k.EndMP < o.EndMP
}

// Segment is one row of the merged per-segment dataset. Missing numeric
// values are NaN.
type Segment struct {
	Key SegmentKey `json:"key"`

	LShlTyp string `json:"lshl_typ,omitempty"`
	MedType string `json:"med_type,omitempty"`
	RShlTyp string `json:"rshl_typ,omitempty"`
	SurfTyp string `json:"surf_typ,omitempty"`

	SpeedLimit   float64 `json:"spd_limt"`
	LaneWidth    float64 `json:"lanewid"`
	NoLanes      float64 `json:"no_lanes"`
	LShoulderWid float64 `json:"lshldwid"`
	RShoulderWid float64 `json:"rshldwid"`
	MedianWid    float64 `json:"medwid"`
	Length       float64 `json:"seg_lng"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	AvgGrade     float64 `json:"avg_grad"`
	MaxGrade     float64 `json:"max_grad"`
	MinGrade     float64 `json:"min_grad"`
	CurveCount   float64 `json:"curv_count"`
	MaxDegCurve  float64 `json:"max_deg_curv"`
	AvgAADT      float64 `json:"avg_aadt"`
	TotalCrashes float64 `json:"tot_acc_ct"`

	AADTByYear    map[string]float64 `json:"aadt_by_year,omitempty"`    // "06" -> aadt_06
	CrashesByYear map[string]float64 `json:"crashes_by_year,omitempty"` // "06" -> acc_ct_06

	// Extra holds numeric columns outside the crash_data schema.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// NewSegment returns a segment with every numeric attribute set to NaN.
func NewSegment(key SegmentKey) Segment {
	nan := math.NaN()
	return Segment{
		Key:          key,
		SpeedLimit:   nan,
		LaneWidth:    nan,
		NoLanes:      nan,
		LShoulderWid: nan,
		RShoulderWid: nan,
		MedianWid:    nan,
		Length:       nan,
		Longitude:    nan,
		Latitude:     nan,
		AvgGrade:     nan,
		MaxGrade:     nan,
		MinGrade:     nan,
		CurveCount:   nan,
		MaxDegCurve:  nan,
		AvgAADT:      nan,
		TotalCrashes: nan,
	}
}

// numericFields maps crash_data column names to segment field accessors.
var numericFields = map[string]func(*Segment) *float64{
	ColBegMP:      func(s *Segment) *float64 { return &s.Key.BegMP },
	ColEndMP:      func(s *Segment) *float64 { return &s.Key.EndMP },
	ColSpdLimt:    func(s *Segment) *float64 { return &s.SpeedLimit },
	ColLaneWid:    func(s *Segment) *float64 { return &s.LaneWidth },
	ColNoLanes:    func(s *Segment) *float64 { return &s.NoLanes },
	ColLShldWid:   func(s *Segment) *float64 { return &s.LShoulderWid },
	ColRShldWid:   func(s *Segment) *float64 { return &s.RShoulderWid },
	ColMedWid:     func(s *Segment) *float64 { return &s.MedianWid },
	ColSegLng:     func(s *Segment) *float64 { return &s.Length },
	ColLongitude:  func(s *Segment) *float64 { return &s.Longitude },
	ColLatitude:   func(s *Segment) *float64 { return &s.Latitude },
	ColAvgGrad:    func(s *Segment) *float64 { return &s.AvgGrade },
	ColMaxGrad:    func(s *Segment) *float64 { return &s.MaxGrade },
	ColMinGrad:    func(s *Segment) *float64 { return &s.MinGrade },
	ColCurvCount:  func(s *Segment) *float64 { return &s.CurveCount },
	ColMaxDegCurv: func(s *Segment) *float64 { return &s.MaxDegCurve },
	ColAvgAADT:    func(s *Segment) *float64 { return &s.AvgAADT },
	ColTotAccCt:   func(s *Segment) *float64 { return &s.TotalCrashes },
}

// Numeric returns the value of a numeric column. Per-year columns use the
// aadt_YY / acc_ct_YY names. The bool is false for unknown columns.
func (s *Segment) Numeric(column string) (float64, bool) {
	if field, ok := numericFields[column]; ok {
		return *field(s), true
	}
	if column == ColCurve {
		if math.IsNaN(s.CurveCount) {
			return math.NaN(), true
		}
		if s.CurveCount > 0 {
			return 1, true
		}
		return 0, true
	}
	if yy, ok := yearSuffix(column, "aadt_"); ok {
		v, found := s.AADTByYear[yy]
		if !found {
			return math.NaN(), true
		}
		return v, true
	}
	if yy, ok := yearSuffix(column, "acc_ct_"); ok {
		v, found := s.CrashesByYear[yy]
		if !found {
			return math.NaN(), true
		}
		return v, true
	}
	if v, ok := s.Extra[column]; ok {
		return v, true
	}
	return 0, false
}

// SetNumeric assigns a numeric column, routing per-year and unknown columns
// to their maps.
func (s *Segment) SetNumeric(column string, v float64) {
	if field, ok := numericFields[column]; ok {
		*field(s) = v
		return
	}
	if yy, ok := yearSuffix(column, "aadt_"); ok {
		if s.AADTByYear == nil {
			s.AADTByYear = make(map[string]float64)
		}
		s.AADTByYear[yy] = v
		return
	}
	if yy, ok := yearSuffix(column, "acc_ct_"); ok {
		if s.CrashesByYear == nil {
			s.CrashesByYear = make(map[string]float64)
		}
		s.CrashesByYear[yy] = v
		return
	}
	if s.Extra == nil {
		s.Extra = make(map[string]float64)
	}
	s.Extra[column] = v
}

// Categorical returns the value of a categorical column.
func (s *Segment) Categorical(column string) (string, bool) {
	switch column {
	case ColRoadInv:
		return s.Key.RoadInv, true
	case ColLShlTyp:
		return s.LShlTyp, true
	case ColMedType:
		return s.MedType, true
	case ColRShlTyp:
		return s.RShlTyp, true
	case ColSurfTyp:
		return s.SurfTyp, true
	}
	return "", false
}

// SetCategorical assigns a categorical column. Unknown columns are ignored
// and reported with false.
func (s *Segment) SetCategorical(column, v string) bool {
	switch column {
	case ColRoadInv:
		s.Key.RoadInv = v
	case ColLShlTyp:
		s.LShlTyp = v
	case ColMedType:
		s.MedType = v
	case ColRShlTyp:
		s.RShlTyp = v
	case ColSurfTyp:
		s.SurfTyp = v
	default:
		return false
	}
	return true
}

// IsCategorical reports whether column holds a category code rather than a
// measurement.
func IsCategorical(column string) bool {
	switch column {
	case ColRoadInv, ColLShlTyp, ColMedType, ColRShlTyp, ColSurfTyp:
		return true
	}
	return false
}

// Years returns the sorted two-digit years present in the per-year maps.
func (s *Segment) Years() []string {
	seen := make(map[string]struct{}, len(s.AADTByYear))
	for yy := range s.AADTByYear {
		seen[yy] = struct{}{}
	}
	for yy := range s.CrashesByYear {
		seen[yy] = struct{}{}
	}
	years := make([]string, 0, len(seen))
	for yy := range seen {
		years = append(years, yy)
	}
	sort.Strings(years)
	return years
}

func yearSuffix(column, prefix string) (string, bool) {
	if len(column) != len(prefix)+2 || column[:len(prefix)] != prefix {
		return "", false
	}
	yy := column[len(prefix):]
	if yy[0] < '0' || yy[0] > '9' || yy[1] < '0' || yy[1] > '9' {
		return "", false
	}
	return yy, true
}
