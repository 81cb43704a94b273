// Package api exposes the kaos HTTP endpoints.
package api

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	gateway "github.com/adonese/kaos/apigateway"
	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/store"
	"github.com/adonese/kaos/visibility"
	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// notFoundReason is the body of every unmatched route.
const notFoundReason = "404 Not Found: The requested URL was not found on the server.  " +
	"If you entered the URL manually please check your spelling and try again."

//go:embed templates/upload.html
var uploadTemplate string

// Service holds the dependencies of the handlers.
type Service struct {
	Store      *store.Store
	Visibility *visibility.Service
	Config     kaos_fields.KaosConfig
	Logger     *logrus.Logger
	// Auth guards uploads when set.
	Auth *gateway.JWTAuth
}

func NewService(st *store.Store, vis *visibility.Service, cfg kaos_fields.KaosConfig, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{Store: st, Visibility: vis, Config: cfg, Logger: logger}
	if cfg.JWTSecret != "" {
		s.Auth = &gateway.JWTAuth{Key: []byte(cfg.JWTSecret)}
	}
	return s
}

func renderer() multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	r.AddFromStringsFuncs("upload", template.FuncMap{
		"meters": func(v float64) string { return fmt.Sprintf("%.0f", v) },
	}, uploadTemplate)
	return r
}

// Router wires the kaos routes. Metrics are registered with reg and served
// from gatherer.
func (s *Service) Router(reg prometheus.Registerer, gatherer prometheus.Gatherer) *gin.Engine {
	route := gin.New()
	route.HTMLRender = renderer()
	route.MaxMultipartMemory = 8 << 20

	route.Use(gin.Recovery(), gateway.RequestID(), gateway.Instrumentation(reg),
		gateway.RequestLogger(s.Logger, gateway.LogSamplingConfig{
			Tick:  time.Duration(s.Config.LogSamplingTickMs) * time.Millisecond,
			After: time.Duration(s.Config.LogSamplingAfterMs) * time.Millisecond,
		}))

	route.GET("/", s.Index)
	route.GET("/satellites", s.Satellites)
	route.GET("/satellites/:id", s.Satellite)
	route.POST("/visibility/search", s.Search)
	route.POST("/opportunity", s.Opportunity)
	route.GET("/search/:id", s.History)
	route.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	up := route.Group("/upload")
	{
		up.GET("", s.UploadForm)
		if s.Auth != nil {
			up.POST("/uploader", s.Auth.AuthMiddleware(), s.Upload)
		} else {
			up.POST("/uploader", s.Upload)
		}
	}

	route.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"reason": notFoundReason})
	})
	return route
}

// renderError writes err in the common error shape and aborts the chain.
func (s *Service) renderError(c *gin.Context, err error) {
	status := apperr.Status(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.Logger.WithFields(logrus.Fields{
			"request_id": gateway.RequestIDFromCtx(c),
			"code":       apperr.Code(err),
			"error":      err.Error(),
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, apperr.Payload(err))
}
