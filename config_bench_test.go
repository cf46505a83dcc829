package rbac_test

import (
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/maestro-platform/rbac"
)

// Generate test config with N roles and M grants
func generateTestConfig(numRoles, numGrants int) *rbac.Config {
	cfg := &rbac.Config{
		Version:     1,
		Roles:       make([]*rbac.Role, numRoles),
		Assignments: make([]rbac.AssignmentGrant, numGrants),
		Settings:    rbac.EngineSettings{CacheTTLSeconds: 300, AuditQueueSize: 128},
	}

	for i := 0; i < numRoles; i++ {
		cfg.Roles[i] = &rbac.Role{
			ID:   fmt.Sprintf("role-%d", i),
			Name: fmt.Sprintf("Role %d", i),
			Permissions: []rbac.Permission{
				{ID: fmt.Sprintf("perm-%d-read", i), ResourcePattern: "project/*/docs/*", Actions: []string{"read"}},
				{ID: fmt.Sprintf("perm-%d-write", i), ResourcePattern: fmt.Sprintf("project/team-%d/*", i), Actions: []string{"read", "write"}},
			},
			Priority: 10 + i,
		}
	}

	for i := 0; i < numGrants; i++ {
		cfg.Assignments[i] = rbac.AssignmentGrant{
			PrincipalID: fmt.Sprintf("user-%d", i),
			RoleID:      fmt.Sprintf("role-%d", i%max(numRoles, 1)),
			Scope:       "project/*",
			GrantedBy:   "provisioner",
		}
	}

	return cfg
}

// Benchmark Binary Encoding
func BenchmarkBinaryEncode(b *testing.B) {
	cfg := generateTestConfig(10, 5)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = rbac.EncodeBinaryConfig(cfg)
	}
}

// Benchmark Binary Decoding
func BenchmarkBinaryDecode(b *testing.B) {
	cfg := generateTestConfig(10, 5)
	data, _ := rbac.EncodeBinaryConfig(cfg)
	loader := rbac.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadBinary(data)
	}
}

// Benchmark YAML Encoding
func BenchmarkYAMLEncode(b *testing.B) {
	cfg := generateTestConfig(10, 5)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = yaml.Marshal(cfg)
	}
}

// Benchmark YAML Decoding
func BenchmarkYAMLDecode(b *testing.B) {
	cfg := generateTestConfig(10, 5)
	data, _ := yaml.Marshal(cfg)
	loader := rbac.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadYAML(data)
	}
}

// Benchmark JSON Encoding
func BenchmarkJSONEncode(b *testing.B) {
	cfg := generateTestConfig(10, 5)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToJSON()
	}
}

// Benchmark JSON Decoding
func BenchmarkJSONDecode(b *testing.B) {
	cfg := generateTestConfig(10, 5)
	data, _ := cfg.ToJSON()
	loader := rbac.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadJSON(data)
	}
}

func BenchmarkBinaryEncodeLarge(b *testing.B) {
	cfg := generateTestConfig(100, 50)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = rbac.EncodeBinaryConfig(cfg)
	}
}

func BenchmarkBinaryDecodeLarge(b *testing.B) {
	cfg := generateTestConfig(100, 50)
	data, _ := rbac.EncodeBinaryConfig(cfg)
	loader := rbac.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadBinary(data)
	}
}

func BenchmarkYAMLEncodeLarge(b *testing.B) {
	cfg := generateTestConfig(100, 50)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = yaml.Marshal(cfg)
	}
}

// Size comparison test
func TestSizeComparison(t *testing.T) {
	cfg := generateTestConfig(100, 50)

	binaryData, err := rbac.EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("binary encode: %v", err)
	}
	yamlData, _ := yaml.Marshal(cfg)
	jsonData, _ := cfg.ToJSON()

	t.Logf("Size Comparison (100 roles, 50 grants):")
	t.Logf("  Binary: %d bytes (100%%)", len(binaryData))
	t.Logf("  YAML:   %d bytes (%.0f%%)", len(yamlData), float64(len(yamlData))/float64(len(binaryData))*100)
	t.Logf("  JSON:   %d bytes (%.0f%%)", len(jsonData), float64(len(jsonData))/float64(len(binaryData))*100)
}
