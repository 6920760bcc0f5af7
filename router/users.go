package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dipakchaulagain/NetAuthVPN/ippool"
	"github.com/dipakchaulagain/NetAuthVPN/middleware"
	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func findVPNUser(c *gin.Context) (*model.VPNUser, bool) {
	var user model.VPNUser
	if err := DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		badRequest(c, "Invalid user id")
		return nil, false
	}
	return &user, true
}

func registerUserRoutes(g *gin.RouterGroup) {
	write := g.Group("/", roleWrite())

	// Directory reconciliation. Concurrent triggers get a conflict, not a
	// second run.
	write.POST("/api/vpn/sync", func(c *gin.Context) {
		result, err := SYNCER.Run(c.Request.Context())
		summary := ""
		if result != nil {
			summary = result.Summary()
		}
		record(c, "vpn.sync", "vpn_user", "", summary, err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, result)
	})

	g.GET("/api/vpn/user", func(c *gin.Context) {
		limit, offset := MustObtainLimitAndOffset(c, 50, 200)
		var users []model.VPNUser
		DB.Order("user_name").Limit(limit).Offset(offset).Find(&users)
		ok(c, users)
	})

	g.GET("/api/vpn/user/:id", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}
		ok(c, user)
	})

	g.GET("/api/vpn/user/:id/config", downloadClientConfig)

	admin := g.Group("/", roleAdmin())
	admin.POST("/api/vpn/user", createVPNUser)
	admin.POST("/api/vpn/user/:id/toggle", toggleVPNUser)
	admin.POST("/api/vpn/user/:id/reassign", reassignVPNUserIP)

	// Routes.
	write.POST("/api/vpn/user/:id/route", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		var request model.AddRouteRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Bad Request")
			return
		}

		route, err := RULES.AddRoute(user.ID, request.Route, request.Description)
		record(c, "route.add", "vpn_user_route", user.ID, request.Route, err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, route)
	})

	g.GET("/api/vpn/user/:id/route", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		routes, err := RULES.Routes(user.ID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, routes)
	})

	write.DELETE("/api/vpn/user/:id/route/:route_id", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		err := RULES.RemoveRoute(user.ID, c.Param("route_id"))
		record(c, "route.remove", "vpn_user_route", c.Param("route_id"), user.UserName, err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	})

	// Security rules.
	write.POST("/api/vpn/user/:id/rule", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		var request model.AddRuleRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Bad Request")
			return
		}

		rule, err := RULES.AddRule(user.ID, request.RouteID, request.Protocol,
			request.Port, request.Action, request.Description)
		record(c, "rule.add", "security_rule", user.ID,
			fmt.Sprintf("route %s %s/%s %s", request.RouteID, request.Protocol, request.Port, request.Action), err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, rule)
	})

	g.GET("/api/vpn/user/:id/rule", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		userRules, err := RULES.Rules(user.ID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, userRules)
	})

	write.POST("/api/vpn/user/:id/rule/:rule_id/toggle", func(c *gin.Context) {
		rule, err := RULES.ToggleRule(c.Param("rule_id"))
		record(c, "rule.toggle", "security_rule", c.Param("rule_id"), "", err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rule)
	})

	write.DELETE("/api/vpn/user/:id/rule/:rule_id", func(c *gin.Context) {
		_, err := RULES.RemoveRule(c.Param("rule_id"))
		record(c, "rule.remove", "security_rule", c.Param("rule_id"), "", err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	})
}

// createVPNUser adds a VPN account outside of directory sync, for accounts
// the directory does not carry. The address comes from the pool unless an
// explicit free one is requested.
func createVPNUser(c *gin.Context) {
	var request model.CreateVPNUserRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "Bad Request")
		return
	}

	username := strings.ToLower(strings.TrimSpace(request.UserName))
	if !util.ValidUsername(username) {
		badRequest(c, "Invalid username")
		return
	}

	var count int64
	DB.Model(&model.VPNUser{}).Where("lower(user_name) = ?", username).Count(&count)
	if count > 0 {
		c.JSON(http.StatusConflict, model.Response{Code: http.StatusConflict, Message: "Duplicate username", Data: nil})
		return
	}

	user := model.VPNUser{
		ID:       uuid.New().String(),
		UserName: username,
		FullName: request.FullName,
		Email:    request.Email,
		Active:   true,
	}

	claim := func(tx *gorm.DB, addr string) error {
		user.IPAddress = addr
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := RADIUS.SetUserIP(tx, username, addr); err != nil {
			return err
		}
		return RADIUS.SetAccountStatus(tx, username, true)
	}

	var err error
	if request.IPAddress != "" {
		err = POOL.Claim(request.IPAddress, claim)
	} else {
		_, err = POOL.Allocate(claim)
	}

	record(c, "vpn_user.create", "vpn_user", user.ID, user.IPAddress, err)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, user)
}

// reassignVPNUserIP moves an active user to a new pooled address, the only
// path that changes an assigned address.
func reassignVPNUserIP(c *gin.Context) {
	user, found := findVPNUser(c)
	if !found {
		return
	}
	if !user.Active {
		badRequest(c, "User is inactive")
		return
	}

	var request model.ReassignIPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "Bad Request")
		return
	}

	old := user.IPAddress
	claim := func(tx *gorm.DB, addr string) error {
		user.IPAddress = addr
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		return RADIUS.SetUserIP(tx, user.UserName, addr)
	}

	var err error
	if request.IPAddress != "" {
		err = POOL.Claim(request.IPAddress, claim)
	} else {
		_, err = POOL.Allocate(claim)
	}

	record(c, "vpn_user.reassign", "vpn_user", user.ID,
		fmt.Sprintf("%s -> %s", old, user.IPAddress), err)
	if err != nil {
		fail(c, err)
		return
	}

	// The FORWARD jump still references the old source address.
	if rmErr := APPLIER.RemoveUser(c.Request.Context(), user.UserName, old); rmErr != nil {
		LOG.Warn("chain teardown failed on reassignment",
			zap.String("user", user.UserName), zap.Error(rmErr))
	}

	ok(c, user)
}

// toggleVPNUser deactivates or reactivates a VPN user. Deactivation flips
// radcheck to Reject and frees the pooled address. Reactivation keeps the
// old address when still free, otherwise claims the lowest free one.
func toggleVPNUser(c *gin.Context) {
	user, found := findVPNUser(c)
	if !found {
		return
	}

	var err error
	if user.Active {
		err = DB.Transaction(func(tx *gorm.DB) error {
			user.Active = false
			if err := tx.Save(user).Error; err != nil {
				return err
			}
			return RADIUS.SetAccountStatus(tx, user.UserName, false)
		})
		if err == nil {
			if rmErr := APPLIER.RemoveUser(c.Request.Context(), user.UserName, user.IPAddress); rmErr != nil {
				LOG.Warn("chain teardown failed on deactivation",
					zap.String("user", user.UserName), zap.Error(rmErr))
			}
		}
	} else {
		err = reactivateVPNUser(user)
	}

	record(c, "vpn_user.toggle", "vpn_user", user.ID,
		fmt.Sprintf("active=%t", user.Active), err)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, user)
}

func reactivateVPNUser(user *model.VPNUser) error {
	claim := func(tx *gorm.DB, addr string) error {
		user.Active = true
		user.IPAddress = addr
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		if err := RADIUS.SetUserIP(tx, user.UserName, addr); err != nil {
			return err
		}
		return RADIUS.SetAccountStatus(tx, user.UserName, true)
	}

	// Prefer the old address; it may have been claimed while the user
	// was inactive, in which case take the lowest free one.
	err := POOL.Claim(user.IPAddress, claim)
	if errors.Is(err, ippool.ErrDuplicateAddress) || errors.Is(err, ippool.ErrInvalidAddress) {
		_, err = POOL.Allocate(claim)
	}
	return err
}

func downloadClientConfig(c *gin.Context) {
	user, found := findVPNUser(c)
	if !found {
		return
	}
	if CONFIG.VPN.ClientConfig == "" {
		fail(c, errors.New("client config template not configured"))
		return
	}

	c.FileAttachment(CONFIG.VPN.ClientConfig, user.UserName+".ovpn")
}

func roleWrite() gin.HandlerFunc {
	return middleware.RequireRole(model.RoleAdministrator, model.RoleOperator)
}

func roleAdmin() gin.HandlerFunc {
	return middleware.RequireRole(model.RoleAdministrator)
}

func roleAudit() gin.HandlerFunc {
	return middleware.RequireRole(model.RoleAdministrator, model.RoleAuditor)
}
