package model

type LoginRequest struct {
	UserName string `json:"username" binding:"required"`
	PassWord string `json:"password" binding:"required"`
}

type CreateVPNUserRequest struct {
	UserName  string `json:"username" binding:"required"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
}

type ReassignIPRequest struct {
	IPAddress string `json:"ip_address"`
}

type AddRouteRequest struct {
	Route       string `json:"route" binding:"required"`
	Description string `json:"description"`
}

// The owning user comes from the URL path.
type AddRuleRequest struct {
	RouteID     string `json:"route_id" binding:"required"`
	Protocol    string `json:"protocol"`
	Port        string `json:"port"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type DNSRecordRequest struct {
	Hostname    string `json:"hostname" binding:"required"`
	IPAddress   string `json:"ip_address" binding:"required"`
	Description string `json:"description"`
}

type CreatePortalUserRequest struct {
	UserName string `json:"username" binding:"required"`
	PassWord string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role" binding:"required"`
}

type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}
