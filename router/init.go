package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dipakchaulagain/NetAuthVPN/audit"
	"github.com/dipakchaulagain/NetAuthVPN/config"
	"github.com/dipakchaulagain/NetAuthVPN/db"
	"github.com/dipakchaulagain/NetAuthVPN/directory"
	"github.com/dipakchaulagain/NetAuthVPN/dnshosts"
	"github.com/dipakchaulagain/NetAuthVPN/firewall"
	"github.com/dipakchaulagain/NetAuthVPN/ippool"
	"github.com/dipakchaulagain/NetAuthVPN/logger"
	"github.com/dipakchaulagain/NetAuthVPN/middleware"
	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/radius"
	"github.com/dipakchaulagain/NetAuthVPN/reconcile"
	"github.com/dipakchaulagain/NetAuthVPN/rules"
	"github.com/dipakchaulagain/NetAuthVPN/system"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	CONFIG *config.Config
	DB     *gorm.DB
	LOG    *zap.Logger
	r      *gin.Engine

	RADIUS   *radius.Manager
	POOL     *ippool.Pool
	SYNCER   *reconcile.Syncer
	RULES    *rules.Store
	APPLIER  *firewall.Applier
	SYSTEM   *system.Controller
	DNSSTORE *dnshosts.Store
	DNSPROJ  *dnshosts.Projector
	AUDITOR  *audit.Recorder
)

func MustObtainLimitAndOffset(c *gin.Context, minLimit, maxLimit int) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = minLimit
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	return limit, offset
}

func currentUser(c *gin.Context) model.PortalUser {
	user, _ := c.MustGet("user").(model.PortalUser)
	return user
}

// statusFor maps package sentinels onto HTTP statuses. Anything unmapped is
// an internal error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrInvalidCIDR),
		errors.Is(err, rules.ErrInvalidPort),
		errors.Is(err, rules.ErrInvalidProtocol),
		errors.Is(err, rules.ErrInvalidAction),
		errors.Is(err, rules.ErrRouteNotOwned),
		errors.Is(err, dnshosts.ErrInvalidHostname),
		errors.Is(err, dnshosts.ErrInvalidAddress),
		errors.Is(err, system.ErrServiceNotAllowed),
		errors.Is(err, ippool.ErrInvalidAddress),
		errors.Is(err, firewall.ErrCompile):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrNotFound),
		errors.Is(err, dnshosts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicateRoute),
		errors.Is(err, dnshosts.ErrDuplicateHostname),
		errors.Is(err, reconcile.ErrSyncInProgress),
		errors.Is(err, ippool.ErrDuplicateAddress),
		errors.Is(err, ippool.ErrPoolExhausted):
		return http.StatusConflict
	case errors.Is(err, system.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, firewall.ErrApply),
		errors.Is(err, firewall.ErrPersist),
		errors.Is(err, directory.ErrUnavailable),
		errors.Is(err, directory.ErrQuery),
		errors.Is(err, system.ErrRestart),
		errors.Is(err, system.ErrRestartTimeout),
		errors.Is(err, dnshosts.ErrWrite),
		errors.Is(err, dnshosts.ErrRestart):
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		LOG.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = "Internal Server Error"
	}

	c.JSON(status, model.Response{Code: status, Message: message, Data: nil})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Message: "OK", Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: message, Data: nil})
}

// record writes an audit row for a state-changing request. Failures are
// recorded too, with the error folded into the details.
func record(c *gin.Context, action, resourceType, resourceID, details string, err error) {
	if err != nil {
		details = fmt.Sprintf("%s (failed: %v)", details, err)
	}

	actor := currentUser(c)
	AUDITOR.Record(audit.Entry{
		ActorID:      actor.ID,
		Actor:        actor.UserName,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.ClientIP(),
	})
}

func Init() {
	CONFIG = config.CONFIG
	DB = db.DB
	LOG = logger.L

	RADIUS = radius.NewManager(DB, LOG)

	var err error
	POOL, err = ippool.New(DB, CONFIG.VPN.Subnet.String(), CONFIG.VPN.ReservedIPs)
	if err != nil {
		panic("invalid vpn subnet: " + err.Error())
	}

	ldapSource := directory.NewClient(
		CONFIG.LDAP.Server,
		CONFIG.LDAP.Identity,
		CONFIG.LDAP.Password,
		CONFIG.LDAP.BaseDN,
		CONFIG.LDAP.UserFilter,
		CONFIG.LDAPTimeout(),
	)

	SYNCER = reconcile.NewSyncer(DB, POOL, ldapSource, RADIUS, LOG)
	RULES = rules.NewStore(DB, RADIUS, LOG)
	APPLIER = firewall.NewApplier(nil, CONFIG.Firewall.RulesFile, CONFIG.FirewallTimeout(), LOG)
	SYSTEM = system.NewController(nil, CONFIG.Services.Allowed, CONFIG.Services.AdminOnly, CONFIG.RestartTimeout(), LOG)
	DNSSTORE = dnshosts.NewStore(DB, LOG)
	DNSPROJ = dnshosts.NewProjector(DB, SYSTEM, CONFIG.DNS.HostsFile, CONFIG.DNS.DnsmasqConf, LOG)
	AUDITOR = audit.NewRecorder(DB, LOG)

	if !CONFIG.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r = gin.New()
	r.Use(gin.Recovery())

	if CONFIG.Server.Debug {
		r.Use(gin.Logger())
	}

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.Response{Code: 0, Message: "pong", Data: nil})
	})

	r.POST("/api/login", login)

	authorized := r.Group("/", middleware.RequireAuth())
	{
		authorized.GET("/api/authorized", func(c *gin.Context) {
			user := currentUser(c)
			ok(c, gin.H{"username": user.UserName, "role": user.Role})
		})

		registerUserRoutes(authorized)
		registerFirewallRoutes(authorized)
		registerDNSRoutes(authorized)
		registerServiceRoutes(authorized)
		registerPortalRoutes(authorized)
	}

	r.NoRoute(gin.WrapH(http.FileServer(gin.Dir("public", false))))
}

func login(c *gin.Context) {
	var request model.LoginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "Bad Request")
		return
	}

	var user model.PortalUser
	DB.Where("user_name = ? AND active = ?", request.UserName, true).First(&user)
	if !util.ComparePassword(user.PassWord, request.PassWord) {
		c.JSON(http.StatusUnauthorized, model.Response{Code: http.StatusUnauthorized, Message: "Invalid username or password", Data: nil})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  user.ID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(CONFIG.Server.SecretKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: "Internal Server Error", Data: nil})
		return
	}

	now := time.Now()
	user.LastLogin = &now
	DB.Save(&user)

	ok(c, gin.H{"token": tokenString, "role": user.Role})
}

func Run() {
	LOG.Info("server starting",
		zap.String("address", CONFIG.Server.Address),
		zap.Uint16("port", CONFIG.Server.Port))

	err := r.Run(fmt.Sprintf("%s:%d", CONFIG.Server.Address, CONFIG.Server.Port))
	if err != nil {
		panic("failed to start server: " + err.Error())
	}
}
