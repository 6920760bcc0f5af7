package router

import (
	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/gin-gonic/gin"
)

func registerDNSRoutes(g *gin.RouterGroup) {
	write := g.Group("/", roleWrite())

	g.GET("/api/dns/record", func(c *gin.Context) {
		records, err := DNSSTORE.Records()
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, records)
	})

	write.POST("/api/dns/record", func(c *gin.Context) {
		var request model.DNSRecordRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Bad Request")
			return
		}

		rec, err := DNSSTORE.Add(request.Hostname, request.IPAddress,
			request.Description, currentUser(c).UserName)
		record(c, "dns.add", "dns_record", request.Hostname, request.IPAddress, err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, rec)
	})

	write.PUT("/api/dns/record/:id", func(c *gin.Context) {
		var request model.DNSRecordRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "Bad Request")
			return
		}

		rec, err := DNSSTORE.Update(c.Param("id"), request.IPAddress, request.Description)
		record(c, "dns.update", "dns_record", c.Param("id"), request.IPAddress, err)
		if err != nil {
			fail(c, err)
			return
		}

		ok(c, rec)
	})

	write.POST("/api/dns/record/:id/toggle", func(c *gin.Context) {
		rec, err := DNSSTORE.Toggle(c.Param("id"))
		record(c, "dns.toggle", "dns_record", c.Param("id"), "", err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rec)
	})

	write.DELETE("/api/dns/record/:id", func(c *gin.Context) {
		err := DNSSTORE.Remove(c.Param("id"))
		record(c, "dns.remove", "dns_record", c.Param("id"), "", err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	})

	// Project records into the resolver hosts file and bounce dnsmasq.
	write.POST("/api/dns/apply", func(c *gin.Context) {
		err := DNSPROJ.Apply(c.Request.Context())
		record(c, "dns.apply", "dns_record", "", "", err)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	})
}
