package davcloak

import (
	"context"
	"net"
	"net/http"
	"sort"

	"github.com/fvbock/endless"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scraperwall/davcloak/config"
	log "github.com/sirupsen/logrus"
)

// API provides the HTTP REST API for davcloak
type API struct {
	gateway *Gateway
	router  *gin.Engine
	config  *config.Config
	ctx     context.Context
}

// NewAPI creates a new REST-API for davcloak
func NewAPI(ctx context.Context, config *config.Config, gateway *Gateway) *API {
	a := &API{
		config:  config,
		ctx:     ctx,
		gateway: gateway,
	}

	a.router = a.newRouter()

	return a
}

// Run starts listening on the configured API address
func (a *API) Run() {
	go func() {
		log.Infof("API listening on %s", a.config.APIAddress)
		if err := endless.ListenAndServe(a.config.APIAddress, a.router); err != nil {
			log.Errorf("API server: %s", err)
		}
	}()
}

func (a *API) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	router.Use(cors.New(corsConfig))

	router.GET("/stats", a.getStats)
	router.GET("/recent", a.getRecent)
	router.GET("/decisions/ips", a.getDecisionIPs)
	router.DELETE("/decisions/ips", a.clearDecisionIPs)
	router.GET("/ip/:ip", a.getIP)
	router.GET("/profile", a.getProfile)
	router.GET("/rules", a.getRules)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, p := range a.gateway.plugins {
		p.APIHooks(router)
	}

	return router
}

func (a *API) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"totals":  a.gateway.stats.Totals(),
		"windows": a.gateway.stats.All(),
	})
}

func (a *API) getRecent(c *gin.Context) {
	c.JSON(http.StatusOK, a.gateway.recent.Verdicts())
}

func (a *API) getDecisionIPs(c *gin.Context) {
	if a.gateway.history == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "the decision history is disabled"})
		return
	}

	records, err := a.gateway.history.All()
	if err != nil {
		log.Errorf("failed to load the decision history: %s", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load the decision history"})
		return
	}

	if c.Query("sort") == "hits" {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Hits > records[j].Hits
		})
	}

	c.JSON(http.StatusOK, records)
}

func (a *API) clearDecisionIPs(c *gin.Context) {
	if a.gateway.history == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "the decision history is disabled"})
		return
	}

	if err := a.gateway.history.Clear(); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) getIP(c *gin.Context) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid IP address"})
		return
	}

	if a.gateway.history == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "the decision history is disabled"})
		return
	}

	rec, err := a.gateway.history.Get(ip.String())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (a *API) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server_type": a.config.ServerType,
		"headers":     a.gateway.headers,
	})
}

func (a *API) getRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"variant":  a.config.Variant,
		"rules":    a.gateway.engine.Rules(),
		"keywords": a.gateway.keywords.Set().Len(),
	})
}
