package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmitchellscott/epdkit/internal/emit"
	"github.com/rmitchellscott/epdkit/internal/logging"
	"github.com/rmitchellscott/epdkit/internal/pipeline"
	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/profile"
	"github.com/rmitchellscott/epdkit/internal/quant"
	"github.com/rmitchellscott/epdkit/internal/store"
	"github.com/rmitchellscott/epdkit/internal/version"
)

// param reads a request parameter from the form body first, then the
// query string, so both multipart uploads and raw-body posts can carry
// settings.
func param(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// readImage pulls the source bytes from a multipart "image" field or,
// failing that, the raw request body.
func readImage(c *gin.Context) ([]byte, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("missing image field: %w", err)
		}
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, file.Filename, err
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty request body")
	}
	return data, "", nil
}

// optionsFrom assembles conversion options from request parameters. A
// profile parameter pins the class; otherwise class defaults to mono.
func optionsFrom(c *gin.Context) (pipeline.Options, *profile.Profile, error) {
	opts := pipeline.Options{
		Dither: truthy(param(c, "dither")),
		Invert: truthy(param(c, "invert")),
		Flip:   truthy(param(c, "flip")),
		Mirror: truthy(param(c, "mirror")),
	}
	if v := param(c, "rotate"); v != "" {
		deg, err := strconv.Atoi(v)
		if err != nil {
			return opts, nil, fmt.Errorf("invalid rotate %q", v)
		}
		opts.Rotate = deg
	}

	if name := param(c, "profile"); name != "" {
		p, err := profile.Lookup(name)
		if err != nil {
			return opts, nil, err
		}
		opts.Class = p.ColorClass()
		return opts, p, nil
	}

	class := param(c, "class")
	if class == "" {
		class = "BW"
	}
	parsed, err := quant.ParseClass(class)
	if err != nil {
		return opts, nil, err
	}
	opts.Class = parsed
	return opts, nil, nil
}

func fitHeader(c *gin.Context, prof *profile.Profile, set *plane.Set) {
	if prof == nil {
		return
	}
	fit := prof.Fit(set.Width, set.Height)
	switch fit {
	case profile.FitExact:
		c.Header("X-Panel-Fit", "exact")
	case profile.FitRotated:
		c.Header("X-Panel-Fit", "rotated")
	default:
		c.Header("X-Panel-Fit", "mismatch")
	}
	if fit != profile.FitExact {
		logging.WarnWithComponent(logging.ComponentServer, "Converted image does not match panel",
			"panel", prof.Name, "panel_size", fmt.Sprintf("%dx%d", prof.Width, prof.Height),
			"image_size", fmt.Sprintf("%dx%d", set.Width, set.Height))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func (s *Server) profilesHandler(c *gin.Context) {
	profiles, err := profile.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (s *Server) profileHandler(c *gin.Context) {
	p, err := profile.Lookup(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// convertHandler runs one stateless conversion and streams the result
// back in the requested format.
func (s *Server) convertHandler(c *gin.Context) {
	data, filename, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, prof, err := optionsFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := pipeline.Run(data, opts)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	name := param(c, "name")
	if name == "" {
		name = emit.CName(filename)
	}
	fitHeader(c, prof, res.Set)

	switch format := param(c, "format"); format {
	case "", "carray":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", emit.CArray(res.Set, name))
	case "bin":
		c.Data(http.StatusOK, "application/octet-stream", res.Set.Bytes())
	case "png":
		png, err := emit.PreviewPNG(res.Set)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"name":   name,
			"class":  res.Set.Class.String(),
			"width":  res.Set.Width,
			"height": res.Set.Height,
			"pitch":  res.Set.Pitch,
			"planes": len(res.Set.Planes),
			"data":   res.Set.Bytes(),
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", format)})
	}
}

// createScreenHandler converts and stores a screen, recording the
// attempt in the history either way.
func (s *Server) createScreenHandler(c *gin.Context) {
	data, filename, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, prof, err := optionsFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := param(c, "name")
	if name == "" {
		name = emit.CName(filename)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	start := time.Now()
	res, err := pipeline.Run(data, opts)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		s.recordConversion(&store.Conversion{
			Source:       name,
			SourceSize:   len(data),
			SourceSHA256: digest,
			DurationMs:   durationMs,
			Error:        err.Error(),
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	fitHeader(c, prof, res.Set)

	optBytes, err := json.Marshal(gin.H{
		"class":  res.Set.Class.String(),
		"dither": opts.Dither,
		"invert": opts.Invert,
		"flip":   opts.Flip,
		"mirror": opts.Mirror,
		"rotate": opts.Rotate,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	screen := &store.Screen{
		Name:         name,
		Class:        res.Set.Class.String(),
		Width:        res.Set.Width,
		Height:       res.Set.Height,
		Pitch:        res.Set.Pitch,
		Planes:       len(res.Set.Planes),
		Options:      optBytes,
		SourceFormat: res.SourceFormat,
		SourceSHA256: digest,
	}
	if err := s.screens.SaveScreen(screen, res.Set.Bytes()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.recordConversion(&store.Conversion{
		ScreenID:     &screen.ID,
		Source:       name,
		SourceSize:   len(data),
		SourceSHA256: digest,
		DurationMs:   durationMs,
		Success:      true,
	})

	// Optionally hand the fresh screen straight to a device.
	if deviceName := param(c, "device"); deviceName != "" {
		dev, err := s.devices.GetDeviceByName(deviceName)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown device %q", deviceName)})
			return
		}
		if err := s.devices.AssignScreen(dev.ID, screen.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusCreated, screen)
}

func (s *Server) recordConversion(rec *store.Conversion) {
	if err := s.screens.RecordConversion(rec); err != nil {
		logging.ErrorWithComponent(logging.ComponentServer, "Failed to record conversion", "error", err)
	}
}

func (s *Server) listScreensHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	screens, err := s.screens.ListScreens(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, screens)
}

func (s *Server) getScreenHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	screen, err := s.screens.GetScreen(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	c.JSON(http.StatusOK, screen)
}

// setFromScreen rebuilds the packed planes of a stored screen so the
// emitters can run against it.
func setFromScreen(screen *store.Screen, data []byte) (*plane.Set, error) {
	class, err := quant.ParseClass(screen.Class)
	if err != nil {
		return nil, err
	}
	planeSize := screen.Pitch * screen.Height
	if screen.Planes <= 0 || len(data) != planeSize*screen.Planes {
		return nil, fmt.Errorf("screen data is %d bytes, want %d planes of %d",
			len(data), screen.Planes, planeSize)
	}
	set := &plane.Set{
		Width:  screen.Width,
		Height: screen.Height,
		Class:  class,
		Pitch:  screen.Pitch,
		Planes: make([][]byte, screen.Planes),
	}
	for i := 0; i < screen.Planes; i++ {
		set.Planes[i] = data[i*planeSize : (i+1)*planeSize]
	}
	return set, nil
}

func (s *Server) screenDataHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	screen, err := s.screens.GetScreen(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	data, err := screen.Data()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch format := c.DefaultQuery("format", "bin"); format {
	case "bin":
		c.Data(http.StatusOK, "application/octet-stream", data)
	case "carray":
		set, err := setFromScreen(screen, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", emit.CArray(set, screen.Name))
	case "png":
		set, err := setFromScreen(screen, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		png, err := emit.PreviewPNG(set)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", format)})
	}
}

func (s *Server) deleteScreenHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.screens.DeleteScreen(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type createDeviceRequest struct {
	Name        string `json:"name" binding:"required"`
	Profile     string `json:"profile" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) createDeviceHandler(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := profile.Lookup(req.Profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dev, err := s.devices.CreateDevice(req.Name, req.Profile, req.Description)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	// The token is only revealed here; store it on the device.
	c.JSON(http.StatusCreated, gin.H{
		"id":      dev.ID,
		"name":    dev.Name,
		"profile": dev.Profile,
		"token":   dev.Token,
	})
}

func (s *Server) listDevicesHandler(c *gin.Context) {
	devices, err := s.devices.ListDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) getDeviceHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	dev, err := s.devices.GetDeviceByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (s *Server) deleteDeviceHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.devices.DeleteDevice(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type assignScreenRequest struct {
	ScreenID uuid.UUID `json:"screen_id" binding:"required"`
}

func (s *Server) assignScreenHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req assignScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.devices.AssignScreen(id, req.ScreenID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id, "screen": req.ScreenID})
}

// displayHandler serves the device polling endpoint. The device sends
// the token it was issued at registration and receives the screen it
// should show, payload included.
func (s *Server) displayHandler(c *gin.Context) {
	token := c.GetHeader("Access-Token")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing device token"})
		return
	}

	dev, err := s.devices.GetDeviceByToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown device token"})
		return
	}
	if err := s.devices.TouchDevice(dev.ID); err != nil {
		logging.WarnWithComponent(logging.ComponentServer, "Failed to update device last_seen",
			"device", dev.Name, "error", err)
	}
	if dev.ScreenID == nil {
		c.Status(http.StatusNoContent)
		return
	}

	screen, err := s.screens.GetScreen(*dev.ScreenID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assigned screen is gone"})
		return
	}
	data, err := screen.Data()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen_id": screen.ID,
		"name":      screen.Name,
		"class":     screen.Class,
		"width":     screen.Width,
		"height":    screen.Height,
		"pitch":     screen.Pitch,
		"planes":    screen.Planes,
		"data":      data,
	})
}

func (s *Server) listConversionsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	convs, err := s.screens.ListConversions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.screens.ConversionStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
