package stores

import (
	"encoding/json"
	"time"

	"github.com/oarkflow/date"

	"github.com/maestro-platform/rbac"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime normalizes the driver-dependent representations of a timestamp
// column. sqlite hands back TEXT, postgres time.Time.
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanTimePtr(raw any) *time.Time {
	if raw == nil {
		return nil
	}
	t := scanTime(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mapToJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func jsonToMap(s string) map[string]any {
	if s == "" || s == "{}" || s == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func stringsToJSON(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func jsonToStrings(s string) []string {
	if s == "" || s == "[]" || s == "null" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil
	}
	return values
}

func permissionsToJSON(perms []rbac.Permission) string {
	if len(perms) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(perms)
	return string(b)
}

func jsonToPermissions(s string) []rbac.Permission {
	if s == "" || s == "[]" || s == "null" {
		return nil
	}
	var perms []rbac.Permission
	if err := json.Unmarshal([]byte(s), &perms); err != nil {
		return nil
	}
	return perms
}
