package router

import (
	"fmt"

	"github.com/dipakchaulagain/NetAuthVPN/firewall"
	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/gin-gonic/gin"
)

func registerFirewallRoutes(g *gin.RouterGroup) {
	write := g.Group("/", roleWrite())

	// Compile and swap one user's chain. A failed apply leaves the live
	// rules untouched; the error says which stage refused.
	write.POST("/api/vpn/user/:id/apply", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}
		if !user.Active {
			badRequest(c, "User is inactive")
			return
		}

		userRules, err := RULES.Rules(user.ID)
		if err != nil {
			fail(c, err)
			return
		}

		err = APPLIER.ApplyUser(c.Request.Context(), *user, userRules)
		record(c, "firewall.apply", "vpn_user", user.ID,
			fmt.Sprintf("%d rules", len(userRules)), err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, gin.H{"chain": firewall.ChainName(user.UserName), "rules": len(userRules)})
	})

	// Fleet apply: every active user's chain in one commit.
	write.POST("/api/vpn/apply", func(c *gin.Context) {
		var users []model.VPNUser
		if err := DB.Where("active = ?", true).Order("user_name").Find(&users).Error; err != nil {
			fail(c, err)
			return
		}

		sets := make([]firewall.UserRuleSet, 0, len(users))
		for _, user := range users {
			userRules, err := RULES.Rules(user.ID)
			if err != nil {
				fail(c, err)
				return
			}
			sets = append(sets, firewall.UserRuleSet{User: user, Rules: userRules})
		}

		err := APPLIER.ApplyAll(c.Request.Context(), sets)
		record(c, "firewall.apply_all", "vpn_user", "",
			fmt.Sprintf("%d users", len(sets)), err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, gin.H{"users": len(sets)})
	})

	// Preview the compiled payload without touching the enforcement
	// point.
	g.GET("/api/vpn/user/:id/apply/preview", func(c *gin.Context) {
		user, found := findVPNUser(c)
		if !found {
			return
		}

		userRules, err := RULES.Rules(user.ID)
		if err != nil {
			fail(c, err)
			return
		}

		directives, err := firewall.Compile(*user, userRules)
		if err != nil {
			fail(c, err)
			return
		}

		chain := firewall.ChainName(user.UserName)
		ok(c, gin.H{"chain": chain, "payload": firewall.Render(chain, directives)})
	})
}
