package kaos_fields

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// FrameInertial marks ephemerides given in J2000/ICRF coordinates.
	FrameInertial = "J2000"
	// FrameFixed marks ephemerides given in Earth-fixed coordinates.
	FrameFixed = "Fixed"

	MaxPlatformNameLength = 50
)

// Satellite is a platform whose ephemeris has been ingested.
type Satellite struct {
	PlatformID       int64     `db:"platform_id" json:"id"`
	PlatformName     string    `db:"platform_name" json:"satellite_name" binding:"required,max=50"`
	MaximumAltitude  float64   `db:"maximum_altitude" json:"maximum_altitude"`
	CoordinateSystem string    `db:"coordinate_system" json:"coordinate_system"`
	CreatedAt        time.Time `db:"created_at" json:"-"`
}

// IsFixedFrame reports whether the satellite's records are Earth-fixed.
func (s Satellite) IsFixedFrame() bool {
	return s.CoordinateSystem == FrameFixed
}

// OrbitSegment groups records that may be interpolated together.
type OrbitSegment struct {
	SegmentID  int64   `db:"segment_id" json:"segment_id"`
	PlatformID int64   `db:"platform_id" json:"platform_id"`
	StartTime  float64 `db:"start_time" json:"start_time"`
	EndTime    float64 `db:"end_time" json:"end_time"`
}

// OrbitRecord is one ephemeris sample.
type OrbitRecord struct {
	UID        int64   `db:"uid"`
	PlatformID int64   `db:"platform_id"`
	SegmentID  int64   `db:"segment_id"`
	Time       float64 `db:"time"`
	PosX       float64 `db:"pos_x"`
	PosY       float64 `db:"pos_y"`
	PosZ       float64 `db:"pos_z"`
	VelX       float64 `db:"vel_x"`
	VelY       float64 `db:"vel_y"`
	VelZ       float64 `db:"vel_z"`
}

func (o OrbitRecord) Position() r3.Vec { return r3.Vec{X: o.PosX, Y: o.PosY, Z: o.PosZ} }
func (o OrbitRecord) Velocity() r3.Vec { return r3.Vec{X: o.VelX, Y: o.VelY, Z: o.VelZ} }

// NewOrbitRecord builds a record from a time and state vectors.
func NewOrbitRecord(t float64, pos, vel r3.Vec) OrbitRecord {
	return OrbitRecord{
		Time: t,
		PosX: pos.X, PosY: pos.Y, PosZ: pos.Z,
		VelX: vel.X, VelY: vel.Y, VelZ: vel.Z,
	}
}

// ResponseHistory stores a rendered search response for later retrieval.
type ResponseHistory struct {
	UID       int64     `db:"uid"`
	Response  string    `db:"response"`
	CreatedAt time.Time `db:"created_at"`
}
