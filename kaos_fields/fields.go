package kaos_fields

// POI is a period of interest expressed in the API date format
// (YYYYMMDDTHH:MM:SS.f, UTC).
type POI struct {
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
}

// SearchRequest asks for the access windows of one or more platforms over a
// single ground target.
type SearchRequest struct {
	Target     []float64 `json:"Target" binding:"required,latlon"`
	POI        POI       `json:"POI" binding:"required"`
	PlatformID []int64   `json:"PlatformID,omitempty" binding:"omitempty,min=1,dive,gt=0"`
}

// OpportunityRequest is SearchRequest for a polygonal target area.
type OpportunityRequest struct {
	TargetArea [][]float64 `json:"TargetArea" binding:"required,min=3,dive,latlon"`
	POI        POI         `json:"POI" binding:"required"`
	PlatformID []int64     `json:"PlatformID,omitempty" binding:"omitempty,min=1,dive,gt=0"`
}

// Opportunity is a window during which a platform can see the target.
type Opportunity struct {
	PlatformID   int64   `json:"PlatformID"`
	PlatformName string  `json:"PlatformName"`
	StartTime    float64 `json:"StartTime"`
	EndTime      float64 `json:"EndTime"`
	Start        string  `json:"Start"`
	End          string  `json:"End"`
	Duration     float64 `json:"Duration"`
}

type SearchResponse struct {
	ResponseID    int64         `json:"ResponseID,omitempty"`
	Opportunities []Opportunity `json:"Opportunities"`
}

// SatelliteSummary is the GET /satellites row.
type SatelliteSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"satellite_name"`
}

type SatelliteDetail struct {
	ID               int64          `json:"id"`
	Name             string         `json:"satellite_name"`
	MaximumAltitude  float64        `json:"maximum_altitude"`
	CoordinateSystem string         `json:"coordinate_system"`
	Segments         []OrbitSegment `json:"segments"`
}

type UploadResponse struct {
	Response   string `json:"response"`
	StatusCode int    `json:"status_code"`
	PlatformID int64  `json:"platform_id"`
	Records    int    `json:"records"`
	Segments   int    `json:"segments"`
}
