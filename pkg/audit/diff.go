package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// sensitiveKeyParts are matched as case-insensitive substrings; any key
// containing one is excluded from generated summaries.
var sensitiveKeyParts = []string{"password", "token", "secret", "api_key"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// GenerateChangeSummary produces a human-readable description of the
// difference between two snapshots. For every key present in either
// snapshot it skips sensitive keys and unchanged values, then emits one
// clause per changed key; clauses are joined with ". ". Returns "" when
// nothing changed.
func GenerateChangeSummary(oldValue, newValue map[string]interface{}) string {
	keys := make(map[string]struct{}, len(oldValue)+len(newValue))
	for k := range oldValue {
		keys[k] = struct{}{}
	}
	for k := range newValue {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var clauses []string
	for _, key := range sorted {
		if isSensitiveKey(key) {
			continue
		}

		oldV, hasOld := oldValue[key]
		newV, hasNew := newValue[key]
		if hasOld && hasNew && deepEqual(oldV, newV) {
			continue
		}

		label := humanizeKey(key)
		switch {
		case !hasOld:
			clauses = append(clauses, fmt.Sprintf("%s set to %s", label, formatValue(newV)))
		case !hasNew:
			clauses = append(clauses, fmt.Sprintf("%s removed (was %s)", label, formatValue(oldV)))
		default:
			clauses = append(clauses, fmt.Sprintf("%s changed from %s to %s", label, formatValue(oldV), formatValue(newV)))
		}
	}

	return strings.Join(clauses, ". ")
}

// defaultSummary is the fallback sentence used when no diff applies
// (CREATE/DELETE/LOGIN and friends) and no override was supplied.
func defaultSummary(e Event) string {
	entity := humanizeKey(strings.ToLower(string(e.EntityType)))
	switch e.Action {
	case ActionCreate:
		return fmt.Sprintf("%s created by %s", entity, e.User.Name)
	case ActionDelete:
		return fmt.Sprintf("%s deleted by %s", entity, e.User.Name)
	case ActionUpload:
		return fmt.Sprintf("%s uploaded by %s", entity, e.User.Name)
	case ActionRestore:
		return fmt.Sprintf("%s restored by %s", entity, e.User.Name)
	case ActionLogin:
		return fmt.Sprintf("%s logged in", e.User.Name)
	case ActionLogout:
		return fmt.Sprintf("%s logged out", e.User.Name)
	case ActionGrant:
		return fmt.Sprintf("Permissions granted on %s by %s", strings.ToLower(string(e.EntityType)), e.User.Name)
	case ActionRevoke:
		return fmt.Sprintf("Permissions revoked on %s by %s", strings.ToLower(string(e.EntityType)), e.User.Name)
	default:
		return fmt.Sprintf("%s %s by %s", entity, strings.ToLower(string(e.Action)), e.User.Name)
	}
}

// deepEqual compares two values through canonical JSON serialization, so
// e.g. nested maps and slices compare by content.
func deepEqual(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// humanizeKey turns snake_case keys into title-cased labels:
// "case_number" -> "Case Number".
func humanizeKey(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "empty"
	case string:
		if val == "" {
			return "empty"
		}
		return fmt.Sprintf("%q", val)
	case float64:
		// JSON numbers decode as float64; print integers without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
