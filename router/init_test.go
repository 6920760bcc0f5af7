package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dipakchaulagain/NetAuthVPN/dnshosts"
	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/firewall"
	"github.com/dipakchaulagain/NetAuthVPN/ippool"
	"github.com/dipakchaulagain/NetAuthVPN/reconcile"
	"github.com/dipakchaulagain/NetAuthVPN/rules"
	"github.com/dipakchaulagain/NetAuthVPN/system"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusForSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{rules.ErrInvalidCIDR, http.StatusBadRequest},
		{rules.ErrRouteNotOwned, http.StatusBadRequest},
		{rules.ErrInvalidPort, http.StatusBadRequest},
		{firewall.ErrCompile, http.StatusBadRequest},
		{rules.ErrNotFound, http.StatusNotFound},
		{dnshosts.ErrDuplicateHostname, http.StatusConflict},
		{reconcile.ErrSyncInProgress, http.StatusConflict},
		{ippool.ErrPoolExhausted, http.StatusConflict},
		{system.ErrForbidden, http.StatusForbidden},
		{firewall.ErrApply, http.StatusBadGateway},
		{firewall.ErrPersist, http.StatusBadGateway},
		{system.ErrRestartTimeout, http.StatusBadGateway},
		{dnshosts.ErrWrite, http.StatusBadGateway},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "for %v", tc.err)

		// Wrapped sentinels map the same way.
		if tc.want != http.StatusInternalServerError {
			wrapped := fmt.Errorf("context: %w", tc.err)
			assert.Equal(t, tc.want, statusFor(wrapped), "for wrapped %v", tc.err)
		}
	}
}

func TestAddRuleRequestBindsWithoutUserField(t *testing.T) {
	// The owning user is addressed by the URL path; the body only names
	// the rule itself.
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"route_id":"r1","protocol":"tcp","port":"443","action":"ACCEPT"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var request model.AddRuleRequest
	assert.NoError(t, c.ShouldBindJSON(&request))
	assert.Equal(t, "r1", request.RouteID)
}

func TestMustObtainLimitAndOffset(t *testing.T) {
	ctx := func(query string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		return c
	}

	limit, offset := MustObtainLimitAndOffset(ctx("limit=25&offset=5"), 50, 200)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 5, offset)

	limit, offset = MustObtainLimitAndOffset(ctx("limit=9999&offset=-3"), 50, 200)
	assert.Equal(t, 200, limit)
	assert.Equal(t, 0, offset)

	limit, _ = MustObtainLimitAndOffset(ctx("limit=bogus"), 50, 200)
	assert.Equal(t, 50, limit)
}
