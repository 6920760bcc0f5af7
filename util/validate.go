package util

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	labelRe    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
)

func ValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 64 {
		return false
	}
	return usernameRe.MatchString(username)
}

// ValidHostname checks RFC 1123 host names, trailing dot tolerated.
func ValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > 253 {
		return false
	}

	hostname = strings.TrimSuffix(hostname, ".")
	for _, label := range strings.Split(hostname, ".") {
		if label == "" || len(label) > 63 || !labelRe.MatchString(label) {
			return false
		}
	}

	return true
}

func ValidIP(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.To4() != nil
}

// ValidRoute checks CIDR notation and requires a proper network address
// (192.168.21.0/24, not 192.168.21.10/24). A /32 host route is always
// acceptable.
func ValidRoute(route string) bool {
	ip, ipnet, err := net.ParseCIDR(route)
	if err != nil || ip.To4() == nil {
		return false
	}

	ones, _ := ipnet.Mask.Size()
	if ones == 32 {
		return true
	}

	return ip.Equal(ipnet.IP)
}

// ValidPort accepts a single port or a "low-high" range, both within
// 1-65535. Empty means any and is valid.
func ValidPort(port string) bool {
	if port == "" {
		return true
	}

	if low, high, ok := strings.Cut(port, "-"); ok {
		l, err1 := strconv.Atoi(low)
		h, err2 := strconv.Atoi(high)
		return err1 == nil && err2 == nil && l >= 1 && h <= 65535 && l <= h
	}

	p, err := strconv.Atoi(port)
	return err == nil && p >= 1 && p <= 65535
}

func ValidProtocol(protocol string) bool {
	switch protocol {
	case "tcp", "udp", "icmp", "any":
		return true
	}
	return false
}

func ValidAction(action string) bool {
	return action == "ACCEPT" || action == "DROP"
}

func ValidRole(role string) bool {
	switch role {
	case "Administrator", "Operator", "Viewer", "Auditor":
		return true
	}
	return false
}
