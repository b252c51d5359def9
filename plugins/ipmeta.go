package plugins

import (
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/davcloak/geo"
	log "github.com/sirupsen/logrus"
)

// IPMeta exposes the country and ASN lookups of the gateway through the admin API
type IPMeta struct {
	asndb *asndb.DB
	geo   geo.Resolver
}

// NewIPMeta creates the plugin. Both databases are optional
func NewIPMeta(asndb *asndb.DB, geo geo.Resolver) *IPMeta {
	return &IPMeta{
		asndb: asndb,
		geo:   geo,
	}
}

func (i *IPMeta) getASN(c *gin.Context) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("%s is not a valid IP address", c.Param("ip"))})
		return
	}

	if i.asndb == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no ASN database loaded"})
		return
	}

	asn := i.asndb.Lookup(ip)
	if asn == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no ASN found for %s", ip)})
		return
	}
	c.JSON(http.StatusOK, asn)
}

func (i *IPMeta) getCountry(c *gin.Context) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("%s is not a valid IP address", c.Param("ip"))})
		return
	}

	if i.geo == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no geo resolver configured"})
		return
	}

	code, ok := i.geo.Country(c.Request.Context(), ip.String())
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("the country of %s could not be resolved", ip)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ip": ip.String(), "country": code})
}

// APIHooks registers the plugin's routes
func (i *IPMeta) APIHooks(r *gin.Engine) {
	if r == nil {
		log.Fatal("gin router is nil")
	}
	r.GET("/ipmeta/asn/:ip", i.getASN)
	r.GET("/ipmeta/country/:ip", i.getCountry)
}
