package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OAuthNotImplemented answers the Google and Facebook login routes. Social
// login is reserved in the route table but not offered.
func OAuthNotImplemented(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"msg": "OAuth login is not implemented"})
}
