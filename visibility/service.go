// Package visibility answers access-window searches over the stored
// ephemerides.
package visibility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adonese/kaos/algorithm"
	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/cache"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/utils"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	kindSearch      = "search"
	kindOpportunity = "opportunity"

	// windowPadding widens every viewing-cone window, in seconds, to absorb
	// the drift of the orbit plane over a chunk.
	windowPadding = 600.0
)

// Store is the persistence the service reads from and writes to.
type Store interface {
	algorithm.SegmentSource
	GetSatellite(ctx context.Context, platformID int64) (*kaos_fields.Satellite, error)
	ListSatellites(ctx context.Context) ([]kaos_fields.Satellite, error)
	SaveResponseFunc(ctx context.Context, render func(uid int64) (string, error)) (int64, error)
	GetResponse(ctx context.Context, uid int64) (*kaos_fields.ResponseHistory, error)
}

type Service struct {
	store   Store
	cache   cache.HistoryCache
	logger  *logrus.Logger
	cfg     kaos_fields.KaosConfig
	metrics *Metrics
	tracer  trace.Tracer
}

// NewService builds a Service. A nil cache disables caching and a nil
// registerer uses the prometheus default.
func NewService(st Store, hc cache.HistoryCache, logger *logrus.Logger, cfg kaos_fields.KaosConfig, reg prometheus.Registerer) *Service {
	if hc == nil {
		hc = cache.Nop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg.Defaults()
	return &Service{
		store:   st,
		cache:   hc,
		logger:  logger,
		cfg:     cfg,
		metrics: NewMetrics(reg),
		tracer:  otel.Tracer("kaos/visibility"),
	}
}

// Search finds the access windows of the requested platforms over one ground
// target and records the response in the history.
func (s *Service) Search(ctx context.Context, req kaos_fields.SearchRequest) (resp *kaos_fields.SearchResponse, err error) {
	ctx, done := s.begin(ctx, kindSearch)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	poi, err := parsePOI(req.POI)
	if err != nil {
		return nil, err
	}
	sats, err := s.platforms(ctx, req.PlatformID)
	if err != nil {
		return nil, err
	}
	targets := [][2]float64{{req.Target[0], req.Target[1]}}
	return s.run(ctx, sats, targets, poi, len(req.PlatformID) > 0)
}

// Opportunity is Search for a polygonal area. A platform has an opportunity
// whenever it sees at least one vertex of the area.
func (s *Service) Opportunity(ctx context.Context, req kaos_fields.OpportunityRequest) (resp *kaos_fields.SearchResponse, err error) {
	ctx, done := s.begin(ctx, kindOpportunity)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	poi, err := parsePOI(req.POI)
	if err != nil {
		return nil, err
	}
	sats, err := s.platforms(ctx, req.PlatformID)
	if err != nil {
		return nil, err
	}
	targets := make([][2]float64, 0, len(req.TargetArea))
	for _, v := range req.TargetArea {
		targets = append(targets, [2]float64{v[0], v[1]})
	}
	return s.run(ctx, sats, targets, poi, len(req.PlatformID) > 0)
}

// History returns a stored response verbatim.
func (s *Service) History(ctx context.Context, id int64) (string, error) {
	if resp, ok := s.cache.Get(ctx, id); ok {
		return resp, nil
	}
	entry, err := s.store.GetResponse(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		e := apperr.WithFields(apperr.ErrNotFound, map[string]any{
			"history_id": fmt.Sprintf("Entry with value: %d not found", id),
		})
		e.Extra = map[string]any{}
		return "", e
	}
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, id, entry.Response)
	return entry.Response, nil
}

func (s *Service) begin(ctx context.Context, kind string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "visibility."+kind)
	started := time.Now()
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = apperr.Code(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		s.metrics.Searches.WithLabelValues(kind, result).Inc()
		s.metrics.Duration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
		span.End()
	}
}

func validateRequest(req any) error {
	if err := kaos_fields.ValidateStruct(req); err != nil {
		e := apperr.WithFields(apperr.ErrValidation, kaos_fields.ValidationDetails(err))
		e.Err = err
		return e
	}
	return nil
}

func parsePOI(p kaos_fields.POI) (utils.TimeInterval, error) {
	start, err := utils.UTCToUnix(p.StartTime)
	if err != nil {
		return utils.TimeInterval{}, apperr.Input("POI", err.Error())
	}
	end, err := utils.UTCToUnix(p.EndTime)
	if err != nil {
		return utils.TimeInterval{}, apperr.Input("POI", err.Error())
	}
	if start > end {
		return utils.TimeInterval{}, apperr.WithFields(apperr.ErrBadPOI, map[string]any{"POI": apperr.ErrBadPOI.Message})
	}
	return utils.TimeInterval{Start: float64(start), End: float64(end)}, nil
}

// platforms resolves the requested ids, or every satellite when none are given.
func (s *Service) platforms(ctx context.Context, ids []int64) ([]kaos_fields.Satellite, error) {
	if len(ids) == 0 {
		return s.store.ListSatellites(ctx)
	}
	seen := map[int64]bool{}
	out := make([]kaos_fields.Satellite, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		sat, err := s.store.GetSatellite(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Input("PlatformID", "No such platform")
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *sat)
	}
	return out, nil
}

// run searches every platform in sats. A platform without data over poi
// fails the search when it was requested by id and is skipped otherwise.
func (s *Service) run(ctx context.Context, sats []kaos_fields.Satellite, targets [][2]float64, poi utils.TimeInterval, requested bool) (*kaos_fields.SearchResponse, error) {
	results := make([][]utils.TimeInterval, len(sats))
	skipped := make([]bool, len(sats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SearchConcurrency)
	for i := range sats {
		i := i
		g.Go(func() error {
			windows, err := s.platformWindows(gctx, sats[i], targets, poi)
			switch {
			case errors.Is(err, apperr.ErrInterpolation) && !requested:
				skipped[i] = true
				s.logger.WithFields(logrus.Fields{
					"platform_id": sats[i].PlatformID,
					"error":       apperr.Message(err),
				}).Info("skipping platform without data over the POI")
				return nil
			case errors.Is(err, apperr.ErrInterpolation):
				return apperr.Input("Platform", apperr.Message(err))
			case err != nil:
				return err
			}
			results[i] = windows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	nSkipped := 0
	for _, skip := range skipped {
		if skip {
			nSkipped++
		}
	}

	resp := &kaos_fields.SearchResponse{Opportunities: []kaos_fields.Opportunity{}}
	for i, sat := range sats {
		for _, w := range results[i] {
			resp.Opportunities = append(resp.Opportunities, kaos_fields.Opportunity{
				PlatformID:   sat.PlatformID,
				PlatformName: sat.PlatformName,
				StartTime:    w.Start,
				EndTime:      w.End,
				Start:        utils.UnixToUTC(w.Start),
				End:          utils.UnixToUTC(w.End),
				Duration:     w.Duration(),
			})
		}
	}
	sort.SliceStable(resp.Opportunities, func(i, j int) bool {
		a, b := resp.Opportunities[i], resp.Opportunities[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.PlatformID < b.PlatformID
	})

	if err := s.persist(ctx, resp); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"response_id":   resp.ResponseID,
		"platforms":     len(sats),
		"skipped":       nSkipped,
		"targets":       len(targets),
		"opportunities": len(resp.Opportunities),
		"poi_start":     utils.UnixToUTC(poi.Start),
		"poi_end":       utils.UnixToUTC(poi.End),
	}).Info("visibility search")
	return resp, nil
}

// persist stores resp, ResponseID included, and caches it.
func (s *Service) persist(ctx context.Context, resp *kaos_fields.SearchResponse) error {
	var stored string
	id, err := s.store.SaveResponseFunc(ctx, func(uid int64) (string, error) {
		resp.ResponseID = uid
		data, err := json.Marshal(resp)
		if err != nil {
			return "", apperr.Wrap(err, apperr.ErrMarshal, "")
		}
		stored = string(data)
		return stored, nil
	})
	if err != nil {
		resp.ResponseID = 0
		return err
	}
	s.cache.Set(ctx, id, stored)
	return nil
}

// platformWindows is the union over targets of the periods in which sat sees
// the target.
func (s *Service) platformWindows(ctx context.Context, sat kaos_fields.Satellite, targets [][2]float64, poi utils.TimeInterval) ([]utils.TimeInterval, error) {
	ctx, span := s.tracer.Start(ctx, "visibility.platform", trace.WithAttributes(
		attribute.Int64("kaos.platform_id", sat.PlatformID),
		attribute.String("kaos.platform_name", sat.PlatformName),
		attribute.Int("kaos.targets", len(targets)),
	))
	defer span.End()

	interp := algorithm.NewInterpolator(s.store, sat.PlatformID)
	var all []utils.TimeInterval
	for _, site := range targets {
		windows, err := s.siteWindows(ctx, interp, sat, site, poi)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.Code(err))
			return nil, err
		}
		all = append(all, windows...)
	}
	out := utils.MergeIntervals(all)
	span.SetAttributes(attribute.Int("kaos.windows", len(out)))
	return out, nil
}

func (s *Service) siteWindows(ctx context.Context, interp *algorithm.Interpolator, sat kaos_fields.Satellite, site [2]float64, poi utils.TimeInterval) ([]utils.TimeInterval, error) {
	candidates, err := s.candidates(ctx, interp, sat, site, poi)
	if err != nil {
		return nil, err
	}

	f := s.cfg.Finder
	opts := []algorithm.FinderOption{
		algorithm.WithFixedFrame(sat.IsFixedFrame()),
		algorithm.WithErrorTolerance(f.ErrorTolerance),
		algorithm.WithToleranceRatio(f.ToleranceRatio),
		algorithm.WithMaxIterations(f.MaxIterations),
		algorithm.WithSteps(f.InitialStepSec, f.MinStepSec, f.MaxStepSec),
	}
	var found []utils.TimeInterval
	for _, c := range candidates {
		finder := algorithm.NewVisibilityFinder(interp, site, c, opts...)
		windows, err := finder.FindVisibility(ctx)
		s.metrics.FinderSteps.Add(float64(finder.Steps()))
		if err != nil {
			return nil, err
		}
		found = append(found, windows...)
	}
	return utils.TrimPOISegments(utils.FuseNeighborIntervals(found), poi), nil
}

// candidates narrows poi to the padded viewing-cone windows, one sidereal
// day at a time.
func (s *Service) candidates(ctx context.Context, interp *algorithm.Interpolator, sat kaos_fields.Satellite, site [2]float64, poi utils.TimeInterval) ([]utils.TimeInterval, error) {
	var out []utils.TimeInterval
	for _, chunk := range utils.SplitInterval(poi, algorithm.SecondsPerSiderealDay) {
		pos, vel, err := interp.Interpolate(ctx, chunk.Start)
		if err != nil {
			return nil, err
		}
		if sat.IsFixedFrame() {
			pos, vel = algorithm.ECEFToECI(pos, vel, chunk.Start)
		}
		windows, err := algorithm.ReducePOI(site, pos, vel, sat.MaximumAltitude, chunk)
		if errors.Is(err, apperr.ErrViewCone) {
			s.metrics.ViewConeFallbacks.Inc()
			s.logger.WithFields(logrus.Fields{
				"platform_id": sat.PlatformID,
				"chunk_start": utils.UnixToUTC(chunk.Start),
				"error":       err.Error(),
			}).Debug("viewing cone does not apply, searching whole chunk")
			out = append(out, chunk)
			continue
		}
		if err != nil {
			return nil, err
		}
		padded := make([]utils.TimeInterval, 0, len(windows))
		for _, w := range windows {
			padded = append(padded, utils.TimeInterval{Start: w.Start - windowPadding, End: w.End + windowPadding})
		}
		out = append(out, utils.TrimPOISegments(padded, chunk)...)
	}
	return utils.MergeIntervals(out), nil
}

// ParseHistoryID parses a history id path parameter.
func ParseHistoryID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
