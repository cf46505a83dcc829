package rbac

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of an engine's custom state: runtime
// settings, role definitions, and assignment grants. Configs load from
// YAML, JSON, or the compact binary format, keyed by file extension.
type Config struct {
	Version     uint16            `json:"version" yaml:"version"`
	Settings    EngineSettings    `json:"settings" yaml:"settings"`
	Roles       []*Role           `json:"roles" yaml:"roles"`
	Assignments []AssignmentGrant `json:"assignments" yaml:"assignments"`
}

// EngineSettings carries tunables applied by ApplyConfig. Zero values
// leave the engine's current setting untouched.
type EngineSettings struct {
	CacheTTLSeconds       int64 `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	AuditQueueSize        int   `json:"audit_queue_size" yaml:"audit_queue_size"`
	DecisionCacheCounters int64 `json:"decision_cache_counters" yaml:"decision_cache_counters"`
	DecisionCacheMaxCost  int64 `json:"decision_cache_max_cost" yaml:"decision_cache_max_cost"`
}

// AssignmentGrant declares one role grant. ExpiresAt wins over
// ExpiresInDays when both are set; with neither, the grant never expires
// (use a negative ExpiresInDays for an already-expired fixture).
type AssignmentGrant struct {
	PrincipalID   string         `json:"principal_id" yaml:"principal_id"`
	PrincipalType string         `json:"principal_type,omitempty" yaml:"principal_type,omitempty"`
	RoleID        string         `json:"role_id" yaml:"role_id"`
	Scope         string         `json:"scope,omitempty" yaml:"scope,omitempty"`
	GrantedBy     string         `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	ExpiresInDays int            `json:"expires_in_days,omitempty" yaml:"expires_in_days,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary format.
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	return decodeBinaryConfig(bytes.NewReader(data))
}

// LoadConfig reads a config file, selecting the codec by extension
// (.yaml/.yml, .json, .bin).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	loader := NewConfigLoader()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	case ".bin":
		return loader.LoadBinary(data)
	default:
		return nil, fmt.Errorf("rbac: unsupported config format %q", filepath.Ext(path))
	}
}

// SaveConfig writes a config file, selecting the codec by extension.
func SaveConfig(path string, cfg *Config) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = EncodeBinaryConfig(cfg)
	default:
		return fmt.Errorf("rbac: unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks the config for structural problems before it is
// applied: invalid or duplicate role IDs, collisions with system roles,
// permissions without patterns or actions, and grants missing their
// principal or role.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Roles))
	for _, role := range c.Roles {
		if err := validateID("role id", role.ID); err != nil {
			return err
		}
		if isSystemRoleID(role.ID) {
			return fmt.Errorf("%w: %s", ErrSystemRole, role.ID)
		}
		if seen[role.ID] {
			return fmt.Errorf("rbac: duplicate role %s in config", role.ID)
		}
		seen[role.ID] = true
		for _, p := range role.Permissions {
			if p.ResourcePattern == "" {
				return fmt.Errorf("rbac: role %s permission %q has no resource pattern", role.ID, p.ID)
			}
			if len(p.Actions) == 0 {
				return fmt.Errorf("rbac: role %s permission %q has no actions", role.ID, p.ID)
			}
		}
	}
	for i, g := range c.Assignments {
		if g.PrincipalID == "" {
			return fmt.Errorf("rbac: assignment %d has no principal id", i)
		}
		if g.RoleID == "" {
			return fmt.Errorf("rbac: assignment %d has no role id", i)
		}
	}
	return nil
}

// ConfigStats summarizes a config's contents.
type ConfigStats struct {
	Roles       int `json:"roles"`
	Permissions int `json:"permissions"`
	Assignments int `json:"assignments"`
}

func (c *Config) Stats() ConfigStats {
	stats := ConfigStats{Roles: len(c.Roles), Assignments: len(c.Assignments)}
	for _, role := range c.Roles {
		stats.Permissions += len(role.Permissions)
	}
	return stats
}

// ApplyConfig applies configuration to the engine: settings first, then
// roles (created, or updated when they already exist), then assignment
// grants through the ordinary operations, so persistence and cache
// invalidation behave exactly as for direct calls.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("rbac: config is nil")
	}
	if cfg.Settings.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.Settings.CacheTTLSeconds) * time.Second
		e.mu.Lock()
		e.cacheTTL = ttl
		e.mu.Unlock()
		e.resolution.setTTL(ttl)
	}
	if cfg.Settings.AuditQueueSize > 0 {
		e.mu.Lock()
		if e.auditCh == nil {
			e.auditQueueSize = cfg.Settings.AuditQueueSize
		}
		e.mu.Unlock()
	}
	if cfg.Settings.DecisionCacheCounters > 0 {
		if err := e.ConfigureDecisionCache(cfg.Settings.DecisionCacheCounters, cfg.Settings.DecisionCacheMaxCost); err != nil {
			return fmt.Errorf("configure decision cache: %w", err)
		}
	}

	for _, role := range cfg.Roles {
		priority := role.Priority
		if priority == 0 {
			priority = DefaultRolePriority
		}
		if _, err := e.CreateRole(ctx, role.ID, role.Name, role.Description, role.Permissions,
			WithParentRoles(role.ParentRoles...),
			WithPriority(priority),
			WithRoleMetadata(role.Metadata)); err != nil {
			return fmt.Errorf("create role %s: %w", role.ID, err)
		}
	}

	for _, g := range cfg.Assignments {
		opts := make([]AssignOption, 0, 4)
		if g.PrincipalType != "" {
			opts = append(opts, WithPrincipalType(g.PrincipalType))
		}
		if g.GrantedBy != "" {
			opts = append(opts, WithGrantedBy(g.GrantedBy))
		}
		switch {
		case g.ExpiresAt != nil:
			opts = append(opts, WithExpiresAt(*g.ExpiresAt))
		case g.ExpiresInDays != 0:
			opts = append(opts, WithExpiresInDays(g.ExpiresInDays))
		}
		if g.Conditions != nil {
			opts = append(opts, WithAssignmentConditions(g.Conditions))
		}
		if _, err := e.AssignRole(ctx, g.PrincipalID, g.RoleID, g.Scope, opts...); err != nil {
			return fmt.Errorf("assign role %s to %s: %w", g.RoleID, g.PrincipalID, err)
		}
	}
	return nil
}

// ExportConfig snapshots the engine's settings, custom roles, and active
// assignments into a Config that ApplyConfig on a fresh engine would
// replay.
func (e *Engine) ExportConfig() *Config {
	e.mu.RLock()
	settings := EngineSettings{
		CacheTTLSeconds: int64(e.cacheTTL / time.Second),
		AuditQueueSize:  e.auditQueueSize,
	}
	e.mu.RUnlock()

	cfg := &Config{Version: 1, Settings: settings, Roles: e.ListCustomRoles()}
	for _, a := range e.ListAssignments(context.Background(), "") {
		if !a.Active {
			continue
		}
		cfg.Assignments = append(cfg.Assignments, AssignmentGrant{
			PrincipalID:   a.PrincipalID,
			PrincipalType: a.PrincipalType,
			RoleID:        a.RoleID,
			Scope:         a.Scope,
			GrantedBy:     a.GrantedBy,
			ExpiresAt:     a.ExpiresAt,
			Conditions:    a.Conditions,
		})
	}
	return cfg
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x5242 // "RB"
	binaryVersion = 1
)

// EncodeBinaryConfig encodes config to the compact binary format.
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + codec version(2) + config version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	writeSection(buf, 0x01, func(b *bytes.Buffer) { encodeSettings(b, &cfg.Settings) })
	writeSection(buf, 0x02, func(b *bytes.Buffer) { encodeRoles(b, cfg.Roles) })
	writeSection(buf, 0x03, func(b *bytes.Buffer) { encodeGrants(b, cfg.Assignments) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, codecVer, cfgVer uint16
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	binary.Read(r, binary.LittleEndian, &codecVer)
	binary.Read(r, binary.LittleEndian, &cfgVer)

	if magic != binaryMagic {
		return nil, fmt.Errorf("rbac: invalid config magic: %x", magic)
	}
	if codecVer != binaryVersion {
		return nil, fmt.Errorf("rbac: unsupported binary config version: %d", codecVer)
	}
	cfg.Version = cfgVer

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		binary.Read(r, binary.LittleEndian, &size)
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read section %#x: %w", tag, err)
		}

		switch tag {
		case 0x01:
			cfg.Settings = decodeSettings(data)
		case 0x02:
			cfg.Roles = decodeRolesBinary(data)
		case 0x03:
			cfg.Assignments = decodeGrants(data)
		}
	}

	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	var l uint16
	binary.Read(r, binary.LittleEndian, &l)
	b := make([]byte, l)
	r.Read(b)
	return string(b)
}

func writeStringSlice(buf *bytes.Buffer, values []string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(values)))
	for _, v := range values {
		writeString(buf, v)
	}
}

func readStringSlice(r *bytes.Reader) []string {
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	values := make([]string, count)
	for i := range values {
		values[i] = readString(r)
	}
	return values
}

func writeJSONMap(buf *bytes.Buffer, m map[string]any) {
	if len(m) == 0 {
		writeString(buf, "")
		return
	}
	data, _ := json.Marshal(m)
	writeString(buf, string(data))
}

func readJSONMap(r *bytes.Reader) map[string]any {
	s := readString(r)
	if s == "" || s == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func encodeSettings(buf *bytes.Buffer, s *EngineSettings) {
	binary.Write(buf, binary.LittleEndian, s.CacheTTLSeconds)
	binary.Write(buf, binary.LittleEndian, int32(s.AuditQueueSize))
	binary.Write(buf, binary.LittleEndian, s.DecisionCacheCounters)
	binary.Write(buf, binary.LittleEndian, s.DecisionCacheMaxCost)
}

func decodeSettings(data []byte) EngineSettings {
	r := bytes.NewReader(data)
	s := EngineSettings{}
	binary.Read(r, binary.LittleEndian, &s.CacheTTLSeconds)
	var qs int32
	binary.Read(r, binary.LittleEndian, &qs)
	s.AuditQueueSize = int(qs)
	binary.Read(r, binary.LittleEndian, &s.DecisionCacheCounters)
	binary.Read(r, binary.LittleEndian, &s.DecisionCacheMaxCost)
	return s
}

func encodeRoles(buf *bytes.Buffer, roles []*Role) {
	binary.Write(buf, binary.LittleEndian, uint16(len(roles)))
	for _, role := range roles {
		writeString(buf, role.ID)
		writeString(buf, role.Name)
		writeString(buf, role.Description)
		binary.Write(buf, binary.LittleEndian, uint16(len(role.Permissions)))
		for _, perm := range role.Permissions {
			writeString(buf, perm.ID)
			writeString(buf, perm.Name)
			writeString(buf, perm.ResourcePattern)
			writeStringSlice(buf, perm.Actions)
			writeJSONMap(buf, perm.Conditions)
		}
		writeStringSlice(buf, role.ParentRoles)
		binary.Write(buf, binary.LittleEndian, int32(role.Priority))
		writeJSONMap(buf, role.Metadata)
	}
}

func decodeRolesBinary(data []byte) []*Role {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	roles := make([]*Role, count)
	for i := range roles {
		role := &Role{}
		role.ID = readString(r)
		role.Name = readString(r)
		role.Description = readString(r)
		var permCount uint16
		binary.Read(r, binary.LittleEndian, &permCount)
		role.Permissions = make([]Permission, permCount)
		for j := range role.Permissions {
			role.Permissions[j].ID = readString(r)
			role.Permissions[j].Name = readString(r)
			role.Permissions[j].ResourcePattern = readString(r)
			role.Permissions[j].Actions = readStringSlice(r)
			role.Permissions[j].Conditions = readJSONMap(r)
		}
		role.ParentRoles = readStringSlice(r)
		var pri int32
		binary.Read(r, binary.LittleEndian, &pri)
		role.Priority = int(pri)
		role.Metadata = readJSONMap(r)
		role.CreatedAt = time.Now().UTC()
		roles[i] = role
	}
	return roles
}

func encodeGrants(buf *bytes.Buffer, grants []AssignmentGrant) {
	binary.Write(buf, binary.LittleEndian, uint16(len(grants)))
	for _, g := range grants {
		writeString(buf, g.PrincipalID)
		writeString(buf, g.PrincipalType)
		writeString(buf, g.RoleID)
		writeString(buf, g.Scope)
		writeString(buf, g.GrantedBy)
		binary.Write(buf, binary.LittleEndian, int32(g.ExpiresInDays))
		var expires int64
		if g.ExpiresAt != nil {
			expires = g.ExpiresAt.Unix()
		}
		binary.Write(buf, binary.LittleEndian, expires)
		writeJSONMap(buf, g.Conditions)
	}
}

func decodeGrants(data []byte) []AssignmentGrant {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	grants := make([]AssignmentGrant, count)
	for i := range grants {
		grants[i].PrincipalID = readString(r)
		grants[i].PrincipalType = readString(r)
		grants[i].RoleID = readString(r)
		grants[i].Scope = readString(r)
		grants[i].GrantedBy = readString(r)
		var days int32
		binary.Read(r, binary.LittleEndian, &days)
		grants[i].ExpiresInDays = int(days)
		var expires int64
		binary.Read(r, binary.LittleEndian, &expires)
		if expires > 0 {
			t := time.Unix(expires, 0).UTC()
			grants[i].ExpiresAt = &t
		}
		grants[i].Conditions = readJSONMap(r)
	}
	return grants
}
