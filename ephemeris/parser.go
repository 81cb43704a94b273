// Package ephemeris reads STK ephemeris (.e) files and stores them.
package ephemeris

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	epochMarker         = "Epoch in JDate format:"
	coordSystemMarker   = "CoordinateSystem"
	beginBoundaryMarker = "BEGIN SegmentBoundaryTimes"
	endBoundaryMarker   = "END SegmentBoundaryTimes"
	dataMarker          = "EphemerisTimePosVel"
	endMarker           = "END Ephemeris"

	maxLineLength = 1 << 20
)

// Ephemeris is the parsed content of one STK ephemeris file.
type Ephemeris struct {
	Name             string
	Epoch            float64
	CoordinateSystem string
	// Boundaries are the segment boundary offsets from Epoch, in seconds.
	Boundaries      []float64
	Segments        [][]kaos_fields.OrbitRecord
	MaximumAltitude float64
}

// Records is the number of rows over all segments, boundary duplicates included.
func (e *Ephemeris) Records() int {
	n := 0
	for _, seg := range e.Segments {
		n += len(seg)
	}
	return n
}

type parser struct {
	eph          *Ephemeris
	epochSet     bool
	inBoundaries bool
	inData       bool
	sawData      bool
	boundaries   map[float64]bool
	current      []kaos_fields.OrbitRecord
}

// ParseFile parses the ephemeris at path. The satellite name is the file stem.
func ParseFile(path string) (*Ephemeris, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(utils.FileStem(path), f)
}

// Parse reads an STK ephemeris stream. A row that lands on a segment boundary
// closes the current segment unless it is the first row of that segment, so
// the duplicated boundary row that follows a cut opens the next one. Each
// data section starts a fresh segment.
func Parse(name string, r io.Reader) (*Ephemeris, error) {
	p := &parser{
		eph:        &Ephemeris{Name: name, CoordinateSystem: kaos_fields.FrameInertial},
		boundaries: map[float64]bool{},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := p.line(strings.TrimSpace(sc.Text())); err != nil {
			return nil, apperr.Wrap(fmt.Errorf("line %d: %w", lineNo, err), apperr.ErrEphemeris,
				fmt.Sprintf("malformed ephemeris at line %d", lineNo))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrEphemeris, "unreadable ephemeris")
	}
	if !p.epochSet {
		return nil, apperr.Wrap(fmt.Errorf("%s", epochMarker), apperr.ErrEphemeris, "ephemeris has no epoch")
	}
	if !p.sawData {
		return nil, apperr.Wrap(fmt.Errorf("%s", dataMarker), apperr.ErrEphemeris, "ephemeris has no data section")
	}
	p.flush()
	if len(p.eph.Segments) == 0 {
		return nil, apperr.Wrap(fmt.Errorf("no rows"), apperr.ErrEphemeris, "ephemeris has no records")
	}
	return p.eph, nil
}

func (p *parser) line(line string) error {
	switch {
	case strings.Contains(line, epochMarker):
		value := strings.TrimSpace(line[strings.Index(line, epochMarker)+len(epochMarker):])
		jd, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("epoch %q: %w", value, err)
		}
		p.eph.Epoch = utils.JDateToUnix(jd)
		p.epochSet = true
		return nil
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case strings.HasPrefix(line, coordSystemMarker):
		if fields := strings.Fields(line); len(fields) > 1 && fields[0] == coordSystemMarker {
			p.eph.CoordinateSystem = fields[1]
		}
		return nil
	case strings.HasPrefix(line, beginBoundaryMarker):
		p.inBoundaries = true
		return nil
	case strings.HasPrefix(line, endBoundaryMarker):
		p.inBoundaries = false
		return nil
	case strings.HasPrefix(line, dataMarker):
		if !p.epochSet {
			return fmt.Errorf("data section before epoch")
		}
		p.flush()
		p.inData = true
		p.sawData = true
		return nil
	case strings.HasPrefix(line, endMarker):
		p.flush()
		p.inData = false
		return nil
	case p.inBoundaries:
		offset, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return fmt.Errorf("segment boundary %q: %w", line, err)
		}
		p.eph.Boundaries = append(p.eph.Boundaries, offset)
		p.boundaries[offset] = true
		return nil
	case p.inData:
		return p.row(line)
	}
	return nil
}

func (p *parser) row(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 7 {
		return fmt.Errorf("expected 7 columns, got %d", len(fields))
	}
	var v [7]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("column %d is not finite", i+1)
		}
		v[i] = x
	}

	pos := r3.Vec{X: v[1], Y: v[2], Z: v[3]}
	vel := r3.Vec{X: v[4], Y: v[5], Z: v[6]}
	rec := kaos_fields.NewOrbitRecord(p.eph.Epoch+v[0], pos, vel)
	if n := len(p.current); n > 0 && rec.Time < p.current[n-1].Time {
		return fmt.Errorf("time %v goes backwards", v[0])
	}
	p.current = append(p.current, rec)
	p.eph.MaximumAltitude = math.Max(p.eph.MaximumAltitude, r3.Norm(pos))

	if p.boundaries[v[0]] && len(p.current) > 1 {
		p.flush()
	}
	return nil
}

func (p *parser) flush() {
	if len(p.current) == 0 {
		return
	}
	p.eph.Segments = append(p.eph.Segments, p.current)
	p.current = nil
}
