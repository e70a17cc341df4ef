package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"directory/internal/auth"
	"directory/internal/profile"
	"directory/internal/settings"
)

const maxLoadMore = 1000

// statusFromError maps service errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, profile.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Server-side failures get a
// generic message; the detail stays in the log.
func respondError(c *gin.Context, err error, serverMsg string) {
	status := statusFromError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = serverMsg
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func (s *server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}
	id, err := s.Admin.Authenticate(req.Email, req.Password)
	if err != nil {
		s.Log.Warn("admin login rejected", zap.String("email", req.Email), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	tok, err := auth.Issue(id, s.Config.JWTIssuer, s.Config.JWTSigningKey, s.Config.SessionTTL)
	if err != nil {
		s.Log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
		"user":         gin.H{"id": id.ID, "name": id.Name, "email": id.Email},
	})
}

func (s *server) listProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, s.Profiles.List(c.Request.Context()))
}

func (s *server) getProfile(c *gin.Context) {
	p, err := s.Profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, p)
}

type savedProfile struct {
	profile.Profile
	Message string `json:"message"`
}

func (s *server) saveProfile(c *gin.Context) {
	var p profile.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile body: " + err.Error()})
		return
	}
	stored, err := s.Profiles.Save(c.Request.Context(), p)
	if err != nil {
		respondError(c, err, "failed to save user")
		return
	}
	c.JSON(http.StatusOK, savedProfile{Profile: stored, Message: "User saved successfully"})
}

func (s *server) deleteProfile(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}
	if err := s.Profiles.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		respondError(c, err, "failed to delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
}

// browse runs the filter engine server side. pages is the number of "load
// more" steps past the first page.
func (s *server) browse(c *gin.Context) {
	var q profile.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		respondError(c, err, "invalid query")
		return
	}
	loads := 0
	if v := strings.TrimSpace(c.Query("pages")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pages must be a non-negative integer"})
			return
		}
		loads = min(n, maxLoadMore)
	}
	c.JSON(http.StatusOK, s.Profiles.Browse(c.Request.Context(), q, loads))
}

func (s *server) filters(c *gin.Context) {
	c.JSON(http.StatusOK, profile.DefaultFacets())
}

func (s *server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Settings.Get(c.Request.Context()))
}

func (s *server) saveSettings(c *gin.Context) {
	var in settings.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings body"})
		return
	}
	out := s.Settings.Save(c.Request.Context(), in)
	c.JSON(http.StatusOK, struct {
		settings.Settings
		Message string `json:"message"`
	}{out, "Settings saved successfully!"})
}

func (s *server) emptyForm(c *gin.Context) {
	c.JSON(http.StatusOK, profile.EmptyForm())
}

func (s *server) editForm(c *gin.Context) {
	w := profile.NewWorkflow(s.Profiles)
	if !w.Select(s.Profiles.List(c.Request.Context()), c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, w.Form())
}

// submitForm accepts the admin form as JSON or as multipart with an
// optional imageFile part.
func (s *server) submitForm(c *gin.Context) {
	var f profile.Form
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if f.ImageMode == profile.ImageModeFile {
			data, contentType, err := s.readImageFile(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if data != nil {
				f.AttachFile(data, contentType)
			}
		}
	} else if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form body: " + err.Error()})
		return
	}

	w := profile.NewWorkflow(s.Profiles)
	saved, err := w.Submit(c.Request.Context(), f)
	if err != nil {
		respondError(c, err, "failed to save user")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": saved.Profile,
		"refresh": saved.Refresh,
		"form":    w.Form(),
		"message": "User saved successfully!",
	})
}

// uploadImage stores an image file with the configured image host and
// returns its URL, for use in URL image mode.
func (s *server) uploadImage(c *gin.Context) {
	if s.Images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	data, _, err := s.readImageFile(c)
	if err != nil || data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageFile field required"})
		return
	}
	header, _ := c.FormFile("imageFile")
	res, err := s.Images.UploadBytes(c.Request.Context(), data, header.Filename)
	if err != nil {
		s.Log.Error("image upload failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       res.SecureURL,
		"public_id": res.PublicID,
		"width":     res.Width,
		"height":    res.Height,
		"bytes":     res.Bytes,
	})
}

// readImageFile returns the imageFile part, or nil data when none was sent.
func (s *server) readImageFile(c *gin.Context) ([]byte, string, error) {
	header, err := c.FormFile("imageFile")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	limit := s.Config.MaxImageBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	if header.Size > limit {
		return nil, "", errors.New("image file too large")
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", errors.New("image file too large")
	}
	return data, header.Header.Get("Content-Type"), nil
}
