package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/maestro-platform/rbac"
	"github.com/maestro-platform/rbac/stores"
)

// Settings come from RBAC_-prefixed environment variables, so rbacctl can
// point at the same storage backend the service uses.
type Settings struct {
	Backend         string `envconfig:"BACKEND" default:"file"`
	StorageDir      string `envconfig:"STORAGE_DIR" default:"./rbac_data"`
	SQLitePath      string `envconfig:"SQLITE_PATH" default:"./rbac.db"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	CacheTTLSeconds int64  `envconfig:"CACHE_TTL_SECONDS" default:"300"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "demo":
		handleDemo()
	case "check":
		handleCheck()
	case "explain":
		handleExplain()
	case "assign":
		handleAssign()
	case "revoke":
		handleRevoke()
	case "roles":
		handleRoles()
	case "assignments":
		handleAssignments()
	case "validate":
		handleValidate()
	case "convert":
		handleConvert()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rbacctl - Role-based access control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rbacctl demo                                        - Run a built-in walkthrough")
	fmt.Println("  rbacctl check <principal> <resource> <action>       - Check access")
	fmt.Println("  rbacctl explain <principal> <resource> <action>     - Check access with resolution trace")
	fmt.Println("  rbacctl assign <principal> <role> [scope] [days]    - Grant a role (days bounds the expiry)")
	fmt.Println("  rbacctl revoke <principal> <role> [scope]           - Revoke a role")
	fmt.Println("  rbacctl roles                                       - List known roles")
	fmt.Println("  rbacctl assignments [principal]                     - List role assignments")
	fmt.Println("  rbacctl validate <file>                             - Validate configuration")
	fmt.Println("  rbacctl convert <input> <output>                    - Convert between config formats")
	fmt.Println("  rbacctl stats <file>                                - Show configuration statistics")
	fmt.Println("  rbacctl apply <file>                                - Apply configuration to the backend")
	fmt.Println()
	fmt.Println("Supported config formats: .yaml, .yml, .json, .bin")
	fmt.Println("Backends (RBAC_BACKEND): file, sqlite, redis, memory")
}

func loadSettings() Settings {
	var s Settings
	if err := envconfig.Process("rbac", &s); err != nil {
		fmt.Printf("Error reading environment: %v\n", err)
		os.Exit(1)
	}
	return s
}

// newEngine wires the engine against the configured backend.
func newEngine(s Settings) *rbac.Engine {
	opts := []rbac.Option{
		rbac.WithCacheTTL(secondsToDuration(s.CacheTTLSeconds)),
	}
	switch s.Backend {
	case "file":
		opts = append(opts, rbac.WithStorageDir(s.StorageDir))
	case "sqlite":
		sqlDB, err := sql.Open("sqlite", s.SQLitePath)
		if err != nil {
			fmt.Printf("Error opening sqlite: %v\n", err)
			os.Exit(1)
		}
		db := squealx.NewDb(sqlDB, "sqlite", "rbacctl")
		if err := stores.Migrate(db); err != nil {
			fmt.Printf("Error migrating sqlite: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts,
			rbac.WithRoleStore(stores.NewSQLRoleStore(db)),
			rbac.WithAssignmentStore(stores.NewSQLAssignmentStore(db)),
			rbac.WithAuditStore(stores.NewSQLAuditStore(db)))
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		// Redis covers assignments; role definitions stay on disk.
		opts = append(opts,
			rbac.WithStorageDir(s.StorageDir),
			rbac.WithAssignmentStore(stores.NewRedisAssignmentStore(client)))
	case "memory":
		// No persistence.
	default:
		fmt.Printf("Unknown backend: %s\n", s.Backend)
		os.Exit(1)
	}
	engine, err := rbac.New(opts...)
	if err != nil {
		fmt.Printf("Error starting engine: %v\n", err)
		os.Exit(1)
	}
	return engine
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func handleDemo() {
	engine, err := rbac.New()
	if err != nil {
		fmt.Printf("Error starting engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()
	ctx := context.Background()

	fmt.Println("RBAC walkthrough")
	fmt.Println("================")
	fmt.Println()

	if _, err := engine.AssignRole(ctx, "alice", "developer", "", rbac.WithGrantedBy("demo")); err != nil {
		fmt.Printf("Error assigning role: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Granted: alice -> developer (unscoped)")

	if _, err := engine.AssignRole(ctx, "bob", "viewer", "project/demo/*", rbac.WithGrantedBy("demo")); err != nil {
		fmt.Printf("Error assigning role: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Granted: bob -> viewer (scope project/demo/*)")
	fmt.Println()

	checks := []struct {
		principal, resource, action string
	}{
		{"alice", "project/maestro/code/main.py", "read"},
		{"alice", "project/maestro/code/main.py", "delete"},
		{"bob", "project/demo/readme.md", "read"},
		{"bob", "project/other/readme.md", "read"},
	}
	for _, c := range checks {
		res := engine.CheckAccess(ctx, c.principal, c.resource, c.action, nil)
		printResult(res)
	}
}

func handleCheck() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: rbacctl check <principal> <resource> <action>")
		os.Exit(1)
	}
	engine := newEngine(loadSettings())
	defer engine.Close()

	res := engine.CheckAccess(context.Background(), os.Args[2], os.Args[3], os.Args[4], nil)
	printResult(res)
	if !res.Allowed {
		os.Exit(2)
	}
}

func handleExplain() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: rbacctl explain <principal> <resource> <action>")
		os.Exit(1)
	}
	engine := newEngine(loadSettings())
	defer engine.Close()

	res := engine.Explain(context.Background(), os.Args[2], os.Args[3], os.Args[4], nil)
	printResult(res)
	if len(res.Trace) > 0 {
		fmt.Println("Trace:")
		for _, line := range res.Trace {
			fmt.Printf("  %s\n", line)
		}
	}
	if !res.Allowed {
		os.Exit(2)
	}
}

func handleAssign() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rbacctl assign <principal> <role> [scope] [expires_in_days]")
		os.Exit(1)
	}
	engine := newEngine(loadSettings())
	defer engine.Close()

	principal, role := os.Args[2], os.Args[3]
	scope := ""
	if len(os.Args) > 4 {
		scope = os.Args[4]
	}
	opts := []rbac.AssignOption{rbac.WithGrantedBy("rbacctl")}
	if len(os.Args) > 5 {
		days, err := strconv.Atoi(os.Args[5])
		if err != nil {
			fmt.Printf("Invalid expires_in_days: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, rbac.WithExpiresInDays(days))
	}

	a, err := engine.AssignRole(context.Background(), principal, role, scope, opts...)
	if err != nil {
		fmt.Printf("Error assigning role: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Granted %s -> %s (assignment %s)\n", principal, role, a.ID)
	if a.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", a.ExpiresAt.Format(time.RFC3339))
	}
}

func handleRevoke() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rbacctl revoke <principal> <role> [scope]")
		os.Exit(1)
	}
	engine := newEngine(loadSettings())
	defer engine.Close()

	scope := ""
	if len(os.Args) > 4 {
		scope = os.Args[4]
	}
	revoked, err := engine.RevokeRole(context.Background(), os.Args[2], os.Args[3], scope)
	if err != nil {
		fmt.Printf("Error revoking role: %v\n", err)
		os.Exit(1)
	}
	if revoked {
		fmt.Printf("Revoked %s -> %s\n", os.Args[2], os.Args[3])
	} else {
		fmt.Printf("No active assignment of %s to %s\n", os.Args[3], os.Args[2])
	}
}

func handleRoles() {
	engine := newEngine(loadSettings())
	defer engine.Close()

	fmt.Printf("%-20s %-8s %-6s %-6s %s\n", "ID", "PRIORITY", "SYSTEM", "PERMS", "NAME")
	for _, r := range engine.ListRoles() {
		fmt.Printf("%-20s %-8d %-6v %-6d %s\n", r.ID, r.Priority, r.IsSystem, len(r.Permissions), r.Name)
	}
}

func handleAssignments() {
	engine := newEngine(loadSettings())
	defer engine.Close()

	principal := ""
	if len(os.Args) > 2 {
		principal = os.Args[2]
	}
	assignments := engine.ListAssignments(context.Background(), principal)
	if len(assignments) == 0 {
		fmt.Println("No assignments")
		return
	}
	fmt.Printf("%-16s %-14s %-14s %-20s %-7s %s\n", "ID", "PRINCIPAL", "ROLE", "SCOPE", "ACTIVE", "EXPIRES")
	for _, a := range assignments {
		scope := a.Scope
		if scope == "" {
			scope = "*"
		}
		expires := "never"
		if a.ExpiresAt != nil {
			expires = a.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-16s %-14s %-14s %-20s %-7v %s\n", a.ID, a.PrincipalID, a.RoleID, scope, a.Active, expires)
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rbacctl validate <file>")
		os.Exit(1)
	}

	cfg, err := rbac.LoadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	stats := cfg.Stats()
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version:     %d\n", cfg.Version)
	fmt.Printf("  Roles:       %d\n", stats.Roles)
	fmt.Printf("  Permissions: %d\n", stats.Permissions)
	fmt.Printf("  Assignments: %d\n", stats.Assignments)
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: rbacctl convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := rbac.LoadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := rbac.SaveConfig(outputFile, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rbacctl stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := rbac.LoadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	stats := cfg.Stats()
	fmt.Println("Components:")
	fmt.Printf("  Roles:       %d\n", stats.Roles)
	fmt.Printf("  Permissions: %d\n", stats.Permissions)
	fmt.Printf("  Assignments: %d\n", stats.Assignments)
	fmt.Println()

	if stats.Roles > 0 {
		fmt.Println("Role Details:")
		fmt.Printf("  Avg permissions per role: %.1f\n", float64(stats.Permissions)/float64(stats.Roles))
		inherits := 0
		for _, r := range cfg.Roles {
			if len(r.ParentRoles) > 0 {
				inherits++
			}
		}
		fmt.Printf("  Roles with parents:       %d\n", inherits)
		fmt.Println()
	}

	fmt.Println("Engine Settings:")
	fmt.Printf("  Cache TTL:               %ds\n", cfg.Settings.CacheTTLSeconds)
	fmt.Printf("  Audit queue size:        %d\n", cfg.Settings.AuditQueueSize)
	fmt.Printf("  Decision cache counters: %d\n", cfg.Settings.DecisionCacheCounters)
	fmt.Printf("  Decision cache max cost: %d\n", cfg.Settings.DecisionCacheMaxCost)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rbacctl apply <file>")
		os.Exit(1)
	}

	cfg, err := rbac.LoadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	engine := newEngine(loadSettings())
	defer engine.Close()

	if err := engine.ApplyConfig(context.Background(), cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	stats := cfg.Stats()
	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Roles loaded:       %d\n", stats.Roles)
	fmt.Printf("  Assignments loaded: %d\n", stats.Assignments)
}

func printResult(res *rbac.AccessCheckResult) {
	verdict := "DENY "
	if res.Allowed {
		verdict = "ALLOW"
	}
	fmt.Printf("%s  %s %s %s\n", verdict, res.PrincipalID, res.Action, res.Resource)
	fmt.Printf("       reason: %s\n", res.Reason)
	if len(res.MatchedRoles) > 0 {
		fmt.Printf("       roles: %s\n", strings.Join(res.MatchedRoles, ", "))
	}
	fmt.Printf("       took: %.3fms\n", res.DurationMS)
}
