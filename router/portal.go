package router

import (
	"net/http"

	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func registerPortalRoutes(g *gin.RouterGroup) {
	admin := g.Group("/", roleAdmin())

	admin.GET("/api/portal/user", func(c *gin.Context) {
		var users []model.PortalUser
		DB.Order("user_name").Find(&users)
		ok(c, users)
	})

	admin.POST("/api/portal/user", func(c *gin.Context) {
		var request model.CreatePortalUserRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Bad Request")
			return
		}

		if !util.ValidUsername(request.UserName) {
			badRequest(c, "Invalid username")
			return
		}
		if !util.ValidRole(request.Role) {
			badRequest(c, "Invalid role")
			return
		}

		var count int64
		DB.Model(&model.PortalUser{}).Where("user_name = ?", request.UserName).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, model.Response{Code: http.StatusConflict, Message: "Duplicate username", Data: nil})
			return
		}

		user := model.PortalUser{
			ID:       uuid.New().String(),
			UserName: request.UserName,
			PassWord: util.HashPassword(request.PassWord),
			FullName: request.FullName,
			Email:    request.Email,
			Role:     request.Role,
			Active:   true,
		}

		err := DB.Create(&user).Error
		record(c, "portal_user.create", "portal_user", user.ID, request.Role, err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, gin.H{"id": user.ID})
	})

	admin.POST("/api/portal/user/:id/toggle", func(c *gin.Context) {
		var user model.PortalUser
		if err := DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
			badRequest(c, "Invalid user id")
			return
		}

		// An administrator cannot lock themselves out.
		if user.ID == currentUser(c).ID {
			badRequest(c, "Cannot deactivate own account")
			return
		}

		user.Active = !user.Active
		err := DB.Save(&user).Error
		record(c, "portal_user.toggle", "portal_user", user.ID, "", err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, user)
	})

	admin.DELETE("/api/portal/user/:id", func(c *gin.Context) {
		if c.Param("id") == currentUser(c).ID {
			badRequest(c, "Cannot delete own account")
			return
		}

		err := DB.Delete(&model.PortalUser{}, "id = ?", c.Param("id")).Error
		record(c, "portal_user.delete", "portal_user", c.Param("id"), "", err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, nil)
	})

	// Audit log is readable by administrators and auditors.
	auditRead := g.Group("/", roleAudit())
	auditRead.GET("/api/audit", func(c *gin.Context) {
		limit, offset := MustObtainLimitAndOffset(c, 50, 500)

		query := DB.Model(&model.AuditLog{}).Order("created_at DESC")
		if resource := c.Query("resource_type"); resource != "" {
			query = query.Where("resource_type = ?", resource)
		}
		if actor := c.Query("actor"); actor != "" {
			query = query.Where("actor = ?", actor)
		}

		var entries []model.AuditLog
		if err := query.Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
			fail(c, err)
			return
		}

		ok(c, entries)
	})
}
