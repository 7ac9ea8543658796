package mftp

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type portRange struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

type config struct {
	Mongoftpd ftpdConfig `toml:"mongoftpd"`
}

type ftpdConfig struct {
	ListenAddr          string     `toml:"listen_addr"`
	PublicAddr          string     `toml:"public_addr"`
	ServerName          string     `toml:"server_name"`
	PassivePortRange    *portRange `toml:"passive_port_range"`
	MaxConnections      int32      `toml:"max_connections"`
	MaxConnectionsPerIP int32      `toml:"max_connections_per_ip"`
	IdleTimeout         int        `toml:"idle_timeout"`
	ProxyProtocol       bool       `toml:"proxy_protocol"`
	UseServerStarter    bool       `toml:"use_server_starter"`
	StandardActivePort  bool       `toml:"standard_active_port"`
}

func loadConfig(path string) (*config, error) {
	var c config
	defaultConfig(&c.Mongoftpd)

	_, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, err
	}

	r := c.Mongoftpd.PassivePortRange
	if r.Start <= 0 || r.End > 65535 || r.Start > r.End {
		return nil, fmt.Errorf("invalid passive port range %d-%d", r.Start, r.End)
	}

	return &c, nil
}

func defaultConfig(config *ftpdConfig) {
	config.ListenAddr = "0.0.0.0:21"
	config.PublicAddr = "127.0.0.1"
	config.ServerName = "MongoFTP"
	config.PassivePortRange = &portRange{Start: 42000, End: 42100}
	config.MaxConnections = 10
	config.MaxConnectionsPerIP = 3
	config.IdleTimeout = 900
}
