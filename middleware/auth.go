package middleware

import (
	"net/http"
	"strings"

	"github.com/dipakchaulagain/NetAuthVPN/config"
	"github.com/dipakchaulagain/NetAuthVPN/db"
	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, model.Response{Code: http.StatusUnauthorized, Message: "Unauthorized", Data: nil})
	c.Abort()
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if !strings.HasPrefix(tokenString, "Bearer ") {
			unauthorized(c)
			return
		}
		tokenString = tokenString[7:]

		token, _ := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(config.CONFIG.Server.SecretKey), nil
		})
		if token == nil {
			unauthorized(c)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
			id, _ := claims["id"].(string)
			var user model.PortalUser
			if err := db.DB.First(&user, "id = ? AND active = ?", id, true).Error; err != nil {
				unauthorized(c)
				return
			}
			c.Set("user", user)
		} else {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireRole gates a route group to the given portal roles. Must run after
// RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := c.MustGet("user").(model.PortalUser)
		if !ok {
			unauthorized(c)
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, model.Response{Code: http.StatusForbidden, Message: "Forbidden", Data: nil})
		c.Abort()
	}
}
