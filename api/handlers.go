package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/ephemeris"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/utils"
	"github.com/adonese/kaos/visibility"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

func (s *Service) Index(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to KAOS!")
}

// Satellites lists every stored platform by id.
func (s *Service) Satellites(c *gin.Context) {
	sats, err := s.Store.ListSatellites(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	out := make([]kaos_fields.SatelliteSummary, 0, len(sats))
	for _, sat := range sats {
		out = append(out, kaos_fields.SatelliteSummary{ID: sat.PlatformID, Name: sat.PlatformName})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) Satellite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"reason": notFoundReason})
		return
	}
	ctx := c.Request.Context()
	sat, err := s.Store.GetSatellite(ctx, id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	segments, err := s.Store.ListSegments(ctx, id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, kaos_fields.SatelliteDetail{
		ID:               sat.PlatformID,
		Name:             sat.PlatformName,
		MaximumAltitude:  sat.MaximumAltitude,
		CoordinateSystem: sat.CoordinateSystem,
		Segments:         segments,
	})
}

// decodeStrict decodes the JSON body into v and rejects unknown fields.
func decodeStrict(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.ErrEmptyBody
		}
		e := apperr.WithFields(apperr.ErrBadRequest, map[string]any{"body": err.Error()})
		e.Err = err
		return e
	}
	return nil
}

func (s *Service) Search(c *gin.Context) {
	var req kaos_fields.SearchRequest
	if err := decodeStrict(c, &req); err != nil {
		s.renderError(c, err)
		return
	}
	resp, err := s.Visibility.Search(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) Opportunity(c *gin.Context) {
	var req kaos_fields.OpportunityRequest
	if err := decodeStrict(c, &req); err != nil {
		s.renderError(c, err)
		return
	}
	resp, err := s.Visibility.Opportunity(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History returns a stored search response verbatim.
func (s *Service) History(c *gin.Context) {
	id, ok := visibility.ParseHistoryID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"reason": notFoundReason})
		return
	}
	resp, err := s.Visibility.History(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(resp))
}

func (s *Service) UploadForm(c *gin.Context) {
	sats, err := s.Store.ListSatellites(c.Request.Context())
	if err != nil {
		s.Logger.WithField("error", err.Error()).Warn("unable to list satellites for the upload page")
	}
	c.HTML(http.StatusOK, "upload", gin.H{"satellites": sats})
}

// Upload stores an ephemeris file under the upload directory and ingests it.
func (s *Service) Upload(c *gin.Context) {
	if s.Config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.Config.MaxUploadBytes)
	}
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.renderError(c, apperr.Input("file", fmt.Sprintf("file is larger than %d bytes", tooLarge.Limit)))
		return
	case err != nil:
		s.renderError(c, apperr.Input("file", "file is missing from POST request"))
		return
	}

	name := utils.SecureFilename(header.Filename)
	if header.Filename == "" || name == "" {
		s.renderError(c, apperr.Input("filename", "empty filename"))
		return
	}
	if strings.ToLower(filepath.Ext(name)) != ".e" {
		s.renderError(c, apperr.Input("filename", "only .e ephemeris files are accepted"))
		return
	}

	tmp, err := saveUploadTemp(header, s.Config.UploadDir, name)
	if err != nil {
		s.renderError(c, apperr.Wrap(err, apperr.ErrInternal, "unable to store the upload"))
		return
	}
	defer os.Remove(tmp)

	res, err := s.ingestUpload(c.Request.Context(), tmp, name)
	switch {
	case errors.Is(err, apperr.ErrEphemeris):
		s.Logger.WithFields(logrus.Fields{"file": name, "error": err.Error()}).Warn("rejected ephemeris upload")
		s.renderError(c, apperr.Input("contents", "malformed ephemeris file"))
		return
	case err != nil:
		s.renderError(c, err)
		return
	}
	if err := os.Rename(tmp, filepath.Join(s.Config.UploadDir, name)); err != nil {
		s.Logger.WithFields(logrus.Fields{"file": name, "error": err.Error()}).Warn("unable to keep ingested upload")
	}

	c.JSON(http.StatusOK, kaos_fields.UploadResponse{
		Response:   "OK",
		StatusCode: http.StatusOK,
		PlatformID: res.Satellite.PlatformID,
		Records:    res.Records,
		Segments:   res.Segments,
	})
}

// saveUploadTemp writes the upload to a file of its own in dir, so uploads
// sharing a name never read each other's bytes.
func saveUploadTemp(header *multipart.FileHeader, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (s *Service) ingestUpload(ctx context.Context, path, name string) (*ephemeris.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "unable to read the upload")
	}
	defer f.Close()
	return ephemeris.Ingest(ctx, s.Store, name, f, s.Logger)
}
