package model

import "time"

type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PortalUser is a web portal account, not a VPN principal.
type PortalUser struct {
	Audit

	ID        string     `gorm:"type:uuid;primary_key" json:"id"`
	UserName  string     `gorm:"unique;not null;default:null" json:"username"`
	PassWord  string     `gorm:"not null;default:null" json:"-"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Role      string     `gorm:"not null;default:Viewer" json:"role"`
	Active    bool       `gorm:"default:true" json:"active"`
	LastLogin *time.Time `json:"last_login"`
}

// Portal roles.
const (
	RoleAdministrator = "Administrator"
	RoleOperator      = "Operator"
	RoleViewer        = "Viewer"
	RoleAuditor       = "Auditor"
)

// VPNUser is a directory-derived VPN account with a pooled address.
// Deactivation is the removal path; rows are kept for audit and RADIUS
// history.
type VPNUser struct {
	Audit

	ID              string         `gorm:"type:uuid;primary_key" json:"id"`
	UserName        string         `gorm:"unique;not null;default:null;index" json:"username"`
	FullName        string         `json:"full_name"`
	Email           string         `json:"email"`
	IPAddress       string         `gorm:"not null;default:null;index" json:"ip_address"`
	DirectorySynced bool           `gorm:"default:false" json:"directory_synced"`
	LastSync        *time.Time     `json:"last_sync"`
	Active          bool           `gorm:"default:true" json:"active"`
	Routes          []VPNUserRoute `gorm:"foreignKey:VPNUserID;constraint:OnDelete:CASCADE" json:"-"`
	SecurityRules   []SecurityRule `gorm:"foreignKey:VPNUserID;constraint:OnDelete:CASCADE" json:"-"`
}

type VPNUserRoute struct {
	Audit

	ID          string `gorm:"type:uuid;primary_key" json:"id"`
	VPNUserID   string `gorm:"type:uuid;not null;index" json:"-"`
	Route       string `gorm:"not null;default:null" json:"route"`
	Description string `json:"description"`
	Active      bool   `gorm:"default:true" json:"active"`
}

// Rule protocols and actions.
const (
	ProtocolTCP  = "tcp"
	ProtocolUDP  = "udp"
	ProtocolICMP = "icmp"
	ProtocolAny  = "any"

	ActionAccept = "ACCEPT"
	ActionDrop   = "DROP"
)

// SecurityRule is a per-user firewall rule. Route always equals the CIDR of
// one of the user's routes, checked at write time. Position preserves
// creation order for compilation.
type SecurityRule struct {
	Audit

	ID          string `gorm:"type:uuid;primary_key" json:"id"`
	VPNUserID   string `gorm:"type:uuid;not null;index" json:"-"`
	RouteID     string `gorm:"type:uuid;not null" json:"route_id"`
	Route       string `gorm:"not null;default:null" json:"route"`
	Protocol    string `gorm:"default:any" json:"protocol"`
	Port        string `json:"port"`
	Action      string `gorm:"default:ACCEPT" json:"action"`
	Description string `json:"description"`
	Position    int    `gorm:"not null" json:"position"`
	Active      bool   `gorm:"default:true;index" json:"active"`
	Enabled     bool   `gorm:"default:true" json:"enabled"`
}

type DNSRecord struct {
	Audit

	ID          string `gorm:"type:uuid;primary_key" json:"id"`
	// Uniqueness among active records is enforced in the store; removed
	// rows keep their hostname for audit, so no DB-level unique here.
	Hostname    string `gorm:"not null;default:null;index" json:"hostname"`
	IPAddress   string `gorm:"not null;default:null" json:"ip_address"`
	Description string `json:"description"`
	Active      bool   `gorm:"default:true" json:"active"`
	Enabled     bool   `gorm:"default:true" json:"enabled"`
	CreatedBy   string `json:"created_by"`
}

// AuditLog rows are append-only.
type AuditLog struct {
	ID           string    `gorm:"type:uuid;primary_key" json:"id"`
	ActorID      string    `gorm:"index" json:"-"`
	Actor        string    `json:"actor"`
	Action       string    `gorm:"not null;default:null" json:"action"`
	ResourceType string    `gorm:"index" json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// RadReply mirrors the FreeRADIUS radreply table. This portal writes it, the
// RADIUS daemon reads it.
type RadReply struct {
	ID        uint   `gorm:"primary_key" json:"id"`
	UserName  string `gorm:"column:username;not null;index" json:"username"`
	Attribute string `gorm:"not null" json:"attribute"`
	Op        string `gorm:"not null;default:':='" json:"op"`
	Value     string `gorm:"not null" json:"value"`
}

func (RadReply) TableName() string {
	return "radreply"
}

// RadCheck mirrors the FreeRADIUS radcheck table.
type RadCheck struct {
	ID        uint   `gorm:"primary_key" json:"id"`
	UserName  string `gorm:"column:username;not null;index" json:"username"`
	Attribute string `gorm:"not null" json:"attribute"`
	Op        string `gorm:"not null;default:':='" json:"op"`
	Value     string `gorm:"not null" json:"value"`
}

func (RadCheck) TableName() string {
	return "radcheck"
}
