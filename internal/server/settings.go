package server

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/reelscript/internal/config"
)

const (
	// DefaultPort matches the PORT fallback of the config layer.
	DefaultPort = 8080
	// DefaultMaxBodyBytes limits request payloads to 64 KB.
	DefaultMaxBodyBytes int64 = 64 << 10
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout has to outlast a full run.
	DefaultWriteTimeout = 10 * time.Minute
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the HTTP shell.
type Settings struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig listens on all interfaces at the configured PORT.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{Port: DefaultPort}
	if cfg != nil {
		if port, err := strconv.Atoi(cfg.Port()); err == nil {
			settings.Port = port
		}
	}
	settings.normalize()
	return settings
}

// ParseAddress builds settings from a host:port string such as ":8080".
func ParseAddress(addr string) (Settings, error) {
	host, rawPort, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return Settings{}, err
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return Settings{}, err
	}
	settings := Settings{Host: host, Port: port}
	settings.normalize()
	return settings, nil
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form. Port 0 asks the
// kernel for a free port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
