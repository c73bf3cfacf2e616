package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartpedals/rackshare-backend/bike"
	"github.com/smartpedals/rackshare-backend/internal/middleware"
	"github.com/smartpedals/rackshare-backend/rack"
	"github.com/smartpedals/rackshare-backend/user"
)

// Config carries the operator-facing knobs for the HTTP surface. JWT
// protection of the admin routes is enabled when Auth0Domain is set;
// leaving it empty keeps admin routes open for local development.
type Config struct {
	MetricsUsername string
	MetricsPassword string
	Auth0Domain     string
	Auth0Audience   string
}

type API struct {
	r  *gin.Engine
	br *bike.Repository
	rr *rack.Repository
	ur *user.Repository
}

func New(cfg Config, br *bike.Repository, rr *rack.Repository, ur *user.Repository, reg *prometheus.Registry, logger *slog.Logger) (*API, error) {
	a := &API{
		r:  gin.New(),
		br: br,
		rr: rr,
		ur: ur,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(logger))
	a.r.Use(middleware.Metrics(reg))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	metrics := a.r.Group("/")
	if cfg.MetricsUsername != "" {
		metrics.Use(gin.BasicAuth(gin.Accounts{
			cfg.MetricsUsername: cfg.MetricsPassword,
		}))
	}
	metrics.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	a.r.GET("/bikes", a.bikesHandler)
	a.r.GET("/bikes/:label", a.bikeHandler)
	a.r.GET("/racks", a.racksHandler)
	a.r.GET("/racks/:label", a.rackHandler)

	admin := a.r.Group("/admin")
	if cfg.Auth0Domain != "" {
		jwt, err := middleware.JWT(cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			return nil, err
		}
		admin.Use(jwt)
	}
	admin.GET("/users", a.usersHandler)
	admin.GET("/users/:credential/history", a.historyHandler)
	admin.POST("/users", a.createUserHandler)
	admin.DELETE("/users/:credential", a.deleteUserHandler)
	admin.POST("/bikes", a.createBikeHandler)
	admin.DELETE("/bikes/:label", a.deleteBikeHandler)
	admin.POST("/racks", a.createRackHandler)
	admin.DELETE("/racks/:label", a.deleteRackHandler)

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func (a *API) bikesHandler(c *gin.Context) {
	bikes, err := a.br.GetBikes(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).Error("listing bikes", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	var resp []bikeResponse
	for _, b := range bikes {
		resp = append(resp, toBikeResponse(b))
	}
	c.JSON(200, resp)
}

func (a *API) bikeHandler(c *gin.Context) {
	b, err := a.br.GetBike(c.Request.Context(), c.Param("label"))
	if errors.Is(err, bike.ErrNotFound) {
		c.JSON(404, gin.H{"error": "bike not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, toBikeResponse(b))
}

func (a *API) racksHandler(c *gin.Context) {
	racks, err := a.rr.GetRacks(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).Error("listing racks", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	var resp []rackResponse
	for _, rk := range racks {
		resp = append(resp, toRackResponse(rk))
	}
	c.JSON(200, resp)
}

func (a *API) rackHandler(c *gin.Context) {
	rk, err := a.rr.GetRack(c.Request.Context(), c.Param("label"))
	if errors.Is(err, rack.ErrNotFound) {
		c.JSON(404, gin.H{"error": "rack not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, toRackResponse(rk))
}

func (a *API) usersHandler(c *gin.Context) {
	users, err := a.ur.GetUsers(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).Error("listing users", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	var resp []userResponse
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	c.JSON(200, resp)
}

func (a *API) historyHandler(c *gin.Context) {
	entries, err := a.ur.History(c.Request.Context(), c.Param("credential"))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	var resp []historyResponse
	for _, e := range entries {
		resp = append(resp, historyResponse{
			BikeID:     e.BikeLabel,
			RackID:     e.RackLabel,
			Action:     e.Action,
			RecordedAt: e.RecordedAt,
		})
	}
	c.JSON(200, resp)
}

type createUserRequest struct {
	Credential string `json:"credential" binding:"required"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

func (a *API) createUserHandler(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	u, err := a.ur.Create(c.Request.Context(), req.Credential, req.Name, req.Email)
	if err != nil {
		middleware.GetLogger(c).Error("creating user", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, toUserResponse(u))
}

func (a *API) deleteUserHandler(c *gin.Context) {
	err := a.ur.Delete(c.Request.Context(), c.Param("credential"))
	if errors.Is(err, user.ErrNotFound) {
		c.JSON(404, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type createBikeRequest struct {
	Label  string  `json:"label" binding:"required"`
	RackID *string `json:"rack_id"`
}

func (a *API) createBikeHandler(c *gin.Context) {
	var req createBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	b, err := a.br.Create(c.Request.Context(), req.Label, req.RackID)
	if err != nil {
		middleware.GetLogger(c).Error("creating bike", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, toBikeResponse(b))
}

func (a *API) deleteBikeHandler(c *gin.Context) {
	err := a.br.Delete(c.Request.Context(), c.Param("label"))
	if errors.Is(err, bike.ErrNotFound) {
		c.JSON(404, gin.H{"error": "bike not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type createRackRequest struct {
	Label     string  `json:"label" binding:"required"`
	StationID *string `json:"station_id"`
}

func (a *API) createRackHandler(c *gin.Context) {
	var req createRackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	rk, err := a.rr.Create(c.Request.Context(), req.Label, req.StationID)
	if err != nil {
		middleware.GetLogger(c).Error("creating rack", "error", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, toRackResponse(rk))
}

func (a *API) deleteRackHandler(c *gin.Context) {
	err := a.rr.Delete(c.Request.Context(), c.Param("label"))
	if errors.Is(err, rack.ErrNotFound) {
		c.JSON(404, gin.H{"error": "rack not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type bikeResponse struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	Status      string    `json:"status"`
	CurrentUser *string   `json:"current_user,omitempty"`
	CurrentRack *string   `json:"current_rack,omitempty"`
}

func toBikeResponse(b bike.Bike) bikeResponse {
	resp := bikeResponse{
		ID:     b.ID,
		Label:  b.Label,
		Status: string(b.Status),
	}
	if b.CurrentUser.Valid {
		resp.CurrentUser = &b.CurrentUser.String
	}
	if b.CurrentRack.Valid {
		resp.CurrentRack = &b.CurrentRack.String
	}
	return resp
}

type rackResponse struct {
	ID         uuid.UUID  `json:"id"`
	Label      string     `json:"label"`
	OccupiedBy *string    `json:"occupied_by,omitempty"`
	StationID  *string    `json:"station_id,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	State      string     `json:"state,omitempty"`
}

func toRackResponse(rk rack.Rack) rackResponse {
	resp := rackResponse{
		ID:    rk.ID,
		Label: rk.Label,
		State: rk.State.String,
	}
	if rk.OccupiedBy.Valid {
		resp.OccupiedBy = &rk.OccupiedBy.String
	}
	if rk.StationID.Valid {
		resp.StationID = &rk.StationID.String
	}
	if rk.LastSeen.Valid {
		resp.LastSeen = &rk.LastSeen.Time
	}
	return resp
}

type userResponse struct {
	ID         uuid.UUID `json:"id"`
	Credential string    `json:"credential"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Credential: u.Credential,
		Name:       u.Name.String,
		Email:      u.Email.String,
		CreatedAt:  u.CreatedAt,
	}
}

type historyResponse struct {
	BikeID     string    `json:"bike_id"`
	RackID     string    `json:"rack_id"`
	Action     string    `json:"action"`
	RecordedAt time.Time `json:"recorded_at"`
}
