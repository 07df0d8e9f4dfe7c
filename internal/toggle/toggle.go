// Package toggle reads boolean feature switches from the settings
// table, a YAML file or a static map.
package toggle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Keys read by the messaging core.
const (
	MessageEnable     = "message.enable"
	UserToUserEnable  = "message.userToUser.enable"
	UserToAdminEnable = "message.userToAdmin.enable"
)

// Provider resolves a boolean switch, falling back to def when the key
// is unknown.
type Provider interface {
	GetBool(ctx context.Context, key string, def bool) bool
}

// lookup is implemented by providers that can tell a missing key from
// a false one, which Chain needs.
type lookup interface {
	lookupBool(ctx context.Context, key string) (bool, bool)
}

// SettingReader is the part of the store DBStore needs.
type SettingReader interface {
	Setting(ctx context.Context, name string) (string, bool, error)
}

// DBStore reads switches from the settings table on every call.
type DBStore struct {
	settings SettingReader
	logger   *log.Logger
}

// NewDBStore reads toggles from the settings table.
func NewDBStore(settings SettingReader, logger *log.Logger) *DBStore {
	return &DBStore{settings: settings, logger: logger}
}

// GetBool returns def when the setting is missing, unparsable or the
// lookup fails.
func (d *DBStore) GetBool(ctx context.Context, key string, def bool) bool {
	if v, ok := d.lookupBool(ctx, key); ok {
		return v
	}
	return def
}

func (d *DBStore) lookupBool(ctx context.Context, key string) (bool, bool) {
	raw, ok, err := d.settings.Setting(ctx, key)
	if err != nil {
		d.logger.Warn("toggle lookup failed", "key", key, "err", err)
		return false, false
	}
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		d.logger.Warn("toggle value is not a bool", "key", key, "value", raw)
		return false, false
	}
	return v, true
}

// Static is a fixed map of switches, safe for concurrent Set and GetBool.
type Static struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewStatic copies values into a new Static.
func NewStatic(values map[string]bool) *Static {
	s := &Static{values: make(map[string]bool, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set overrides key.
func (s *Static) Set(key string, v bool) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

func (s *Static) GetBool(ctx context.Context, key string, def bool) bool {
	if v, ok := s.lookupBool(ctx, key); ok {
		return v
	}
	return def
}

func (s *Static) lookupBool(_ context.Context, key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// FileStore is a Static loaded from a YAML document. Nested maps are
// flattened to dotted keys, so
//
//	message:
//	  enable: true
//	  userToUser:
//	    enable: false
//
// yields message.enable and message.userToUser.enable.
type FileStore struct {
	*Static
}

// LoadFile reads toggles from a YAML file.
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toggle: read %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML parses toggles from YAML.
func ParseYAML(data []byte) (*FileStore, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("toggle: parse yaml: %w", err)
	}
	values := make(map[string]bool)
	if err := flatten("", doc, values); err != nil {
		return nil, err
	}
	return &FileStore{Static: NewStatic(values)}, nil
}

func flatten(prefix string, node map[string]any, out map[string]bool) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case bool:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("toggle: %s: expected bool or mapping, got %T", key, v)
		}
	}
	return nil
}

// Chain asks each provider in order and returns the first one that
// knows the key.
type Chain []Provider

// GetBool returns the first provider's answer that knows key.
func (c Chain) GetBool(ctx context.Context, key string, def bool) bool {
	for _, p := range c {
		if l, ok := p.(lookup); ok {
			if v, found := l.lookupBool(ctx, key); found {
				return v
			}
			continue
		}
		return p.GetBool(ctx, key, def)
	}
	return def
}
