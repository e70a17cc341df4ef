package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"directory/internal/auth"
	"directory/internal/cloudinary"
	"directory/internal/config"
	"directory/internal/httpmiddleware"
	"directory/internal/profile"
	"directory/internal/settings"
)

// ImageUploader hosts an uploaded image file.
type ImageUploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router serves. Images may be nil when no
// image host is configured.
type Deps struct {
	Config   config.App
	Log      *zap.Logger
	Profiles *profile.Service
	Settings *settings.Service
	Admin    *auth.Admin
	Images   ImageUploader
	Health   map[string]HealthCheck
}

type server struct {
	Deps
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Settings == nil {
		d.Settings = settings.NewService()
	}
	s := &server{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(d.Log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.NewTokenBucket(d.Config.RateLimitPerMin, d.Config.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	login := httpmiddleware.NewTokenBucket(d.Config.LoginRateLimitPerMin, d.Config.LoginRateLimitPerMin)
	api.POST("/auth/login", login.GinMiddleware(), s.login)

	api.GET("/profiles", s.listProfiles)
	api.GET("/profiles/:id", s.getProfile)
	api.GET("/directory", s.browse)
	api.GET("/filters", s.filters)
	api.GET("/settings", s.getSettings)

	admin := api.Group("", auth.AdminAuth(d.Config.JWTSigningKey, d.Config.JWTIssuer))
	admin.POST("/profiles", s.saveProfile)
	admin.DELETE("/profiles", s.deleteProfile)
	admin.POST("/settings", s.saveSettings)
	admin.GET("/admin/form", s.emptyForm)
	admin.GET("/admin/form/:id", s.editForm)
	admin.POST("/admin/form", s.submitForm)
	admin.POST("/admin/images", s.uploadImage)

	return r
}

func (s *server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context()) == nil
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
