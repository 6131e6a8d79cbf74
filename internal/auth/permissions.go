package auth

import "strings"

// Permission keys consumed by the HTTP boundary. The full catalogue lives in
// the roles table; only the keys the auth subsystem itself gates on are named
// here.
const (
	PermissionManageUsers = "users.manage"
	PermissionInspectAuth = "auth.inspect"
)

// SplitPermissions parses the comma-joined permissions column into a
// deduplicated list, preserving first-seen order. Blank segments are dropped.
// The result is never nil so the profile always marshals a JSON array.
func SplitPermissions(csv string) []string {
	out := []string{}
	if strings.TrimSpace(csv) == "" {
		return out
	}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
