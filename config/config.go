package config

import (
	"net"
	"time"
)

type Network struct {
	IP    net.IP
	IPNet net.IPNet
}

type Config struct {
	Server struct {
		Debug     bool   `toml:"debug"`
		Port      uint16 `toml:"port"`
		Address   string `toml:"address"`
		SecretKey string `toml:"secret_key"`
	} `toml:"server"`

	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`

	LDAP struct {
		Server         string `toml:"server"`
		Identity       string `toml:"identity"`
		Password       string `toml:"password"`
		BaseDN         string `toml:"base_dn"`
		UserFilter     string `toml:"user_filter"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"ldap"`

	VPN struct {
		Subnet       Network  `toml:"subnet"`
		ServerIP     string   `toml:"server_ip"`
		ReservedIPs  []string `toml:"reserved_ips"`
		ClientConfig string   `toml:"client_config"`
	} `toml:"vpn"`

	Firewall struct {
		RulesFile      string `toml:"rules_file"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"firewall"`

	DNS struct {
		HostsFile   string `toml:"hosts_file"`
		DnsmasqConf string `toml:"dnsmasq_conf"`
	} `toml:"dns"`

	Services struct {
		Allowed               []string `toml:"allowed"`
		AdminOnly             []string `toml:"admin_only"`
		RestartTimeoutSeconds int      `toml:"restart_timeout_seconds"`
	} `toml:"services"`
}

func (network *Network) UnmarshalText(text []byte) error {
	ip, ipnet, err := net.ParseCIDR(string(text))
	if err == nil {
		network.IP = ip
		network.IPNet = *ipnet
	}

	return err
}

func (network *Network) String() string {
	ipnet := net.IPNet{}
	ipnet.IP = network.IP
	ipnet.Mask = network.IPNet.Mask
	return ipnet.String()
}

func (c *Config) LDAPTimeout() time.Duration {
	if c.LDAP.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LDAP.TimeoutSeconds) * time.Second
}

func (c *Config) FirewallTimeout() time.Duration {
	if c.Firewall.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Firewall.TimeoutSeconds) * time.Second
}

func (c *Config) RestartTimeout() time.Duration {
	if c.Services.RestartTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Services.RestartTimeoutSeconds) * time.Second
}
