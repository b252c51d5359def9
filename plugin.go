package davcloak

import (
	"github.com/gin-gonic/gin"
)

// Plugin extends the admin API
type Plugin interface {
	APIHooks(r *gin.Engine)
}
