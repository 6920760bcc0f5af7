package router

import (
	"github.com/gin-gonic/gin"
)

func registerServiceRoutes(g *gin.RouterGroup) {
	g.GET("/api/system/service", func(c *gin.Context) {
		type serviceStatus struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		}

		services := SYSTEM.Services()
		statuses := make([]serviceStatus, 0, len(services))
		for _, name := range services {
			status, err := SYSTEM.Status(c.Request.Context(), name)
			if err != nil {
				fail(c, err)
				return
			}
			statuses = append(statuses, serviceStatus{Name: name, Status: status})
		}

		ok(c, statuses)
	})

	// Restart is gated per service: some services only administrators may
	// bounce. The whitelist check runs before the role check so unmanaged
	// names report 400, not 403.
	g.POST("/api/system/service/:name/restart", func(c *gin.Context) {
		name := c.Param("name")

		if err := SYSTEM.CanRestart(name, currentUser(c).Role); err != nil {
			record(c, "service.restart", "service", name, "", err)
			fail(c, err)
			return
		}

		err := SYSTEM.Restart(c.Request.Context(), name)
		record(c, "service.restart", "service", name, "", err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, nil)
	})
}
