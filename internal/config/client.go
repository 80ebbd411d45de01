package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/webtail/internal/message"
)

// DefaultClientFile is read when no --config flag is given.
const DefaultClientFile = "webtail_config.json"

// DefaultChannelBuffer is the outbound queue size of a source.
const DefaultChannelBuffer = 100

// Source describes one tailed log and the server it is relayed to.
type Source struct {
	AppName          message.Identity `yaml:"app_name"`
	LogFileDir       string           `yaml:"log_file_dir"`
	LogFileNameRegex string           `yaml:"log_file_name_regex"`
	ServerHost       string           `yaml:"server_host"`
	ServerPort       int              `yaml:"server_port"`
	ServerPath       string           `yaml:"server_path"`
	ChannelBuffer    int              `yaml:"channel_buffer"`

	pattern *regexp.Regexp
}

// Pattern returns the compiled file name pattern. It is set by Validate.
func (s *Source) Pattern() *regexp.Regexp {
	return s.pattern
}

// URL returns the websocket endpoint of the relay server.
func (s *Source) URL() string {
	host := s.ServerHost
	if s.ServerPort > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(s.ServerPort))
	}
	path := s.ServerPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "ws", Host: host, Path: path}
	return u.String()
}

// Validate fills defaults and compiles the pattern.
func (s *Source) Validate() error {
	if s.AppName.IsZero() {
		return errors.New("app_name is required")
	}
	if s.LogFileDir == "" {
		return errors.New("log_file_dir is required")
	}
	if s.LogFileNameRegex == "" {
		return errors.New("log_file_name_regex is required")
	}
	re, err := regexp.Compile(s.LogFileNameRegex)
	if err != nil {
		return fmt.Errorf("log_file_name_regex: %w", err)
	}
	s.pattern = re
	if s.ServerHost == "" {
		return errors.New("server_host is required")
	}
	if s.ServerPort < 0 || s.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range", s.ServerPort)
	}
	if s.ChannelBuffer <= 0 {
		s.ChannelBuffer = DefaultChannelBuffer
	}
	return nil
}

type sourceFile struct {
	Configs []Source `yaml:"configs"`
}

// ParseSources decodes a source list. Both a top-level list and an object
// with a "configs" list are accepted, in JSON or YAML syntax.
func ParseSources(data []byte) ([]Source, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("parse sources: empty document")
	}

	var sources []Source
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&sources); err != nil {
			return nil, fmt.Errorf("parse sources: %w", err)
		}
	case yaml.MappingNode:
		var f sourceFile
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse sources: %w", err)
		}
		sources = f.Configs
	default:
		return nil, errors.New("parse sources: expected a list or a configs object")
	}

	if len(sources) == 0 {
		return nil, errors.New("parse sources: no sources configured")
	}
	for i := range sources {
		if err := sources[i].Validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return sources, nil
}

// LoadSources reads and validates the client source file at path.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseSources(data)
}
