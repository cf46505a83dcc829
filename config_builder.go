package rbac

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:     1,
			Roles:       []*Role{},
			Assignments: []AssignmentGrant{},
			Settings: EngineSettings{
				CacheTTLSeconds: int64(DefaultCacheTTL.Seconds()),
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddRole(r *Role) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

// Grant appends a plain unscoped-or-scoped grant. Use AddGrant for
// grants that need expiry, granted-by, or conditions.
func (b *ConfigBuilder) Grant(principalID, roleID, scope string) *ConfigBuilder {
	b.cfg.Assignments = append(b.cfg.Assignments, AssignmentGrant{
		PrincipalID: principalID,
		RoleID:      roleID,
		Scope:       scope,
	})
	return b
}

func (b *ConfigBuilder) AddGrant(g AssignmentGrant) *ConfigBuilder {
	b.cfg.Assignments = append(b.cfg.Assignments, g)
	return b
}

func (b *ConfigBuilder) Settings(fn func(*EngineSettings)) *ConfigBuilder {
	fn(&b.cfg.Settings)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
