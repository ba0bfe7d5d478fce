package facilitator

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/x402-facilitator/discovery"
	"github.com/vitwit/x402-facilitator/types"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (s *Server) registerRoutes() {
	s.engine.POST("/verify", s.verify)
	s.engine.POST("/settle", s.settle)
	s.engine.GET("/supported", s.supported)
	s.engine.GET("/discovery/resources", s.listResources)
	s.engine.GET("/discovery/resources/stats", s.resourceStats)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) verify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.ReasonInvalidPayload,
		})
		return
	}

	resp := s.facilitator.Verify(c.Request.Context(), &req)
	c.JSON(statusFor(resp.IsValid), resp)
}

func (s *Server) settle(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ReasonInvalidPayload,
		})
		return
	}

	resp := s.facilitator.Settle(c.Request.Context(), &req)
	c.JSON(statusFor(resp.Success), resp)
}

func (s *Server) supported(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.Supported())
}

type resourceListResponse struct {
	Resources []discovery.Resource `json:"resources"`
	Total     int                  `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

func (s *Server) listResources(c *gin.Context) {
	resourceType := c.DefaultQuery("type", discovery.DefaultType)
	limit := intQuery(c, "limit", defaultListLimit)
	offset := intQuery(c, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	resources, total := s.facilitator.Resources(resourceType, limit, offset)
	c.JSON(http.StatusOK, resourceListResponse{
		Resources: resources,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) resourceStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.ResourceStats())
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw, ok := c.GetQuery(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
