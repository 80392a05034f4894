// Package planscope bounds permission grants by the institution's subscription plan.
//
// No user may hold a permission key that is absent from their institution's
// plan. FilterByScope is the single place that rule is enforced for
// per-user grants.
package planscope

import (
	"sort"

	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
)

// Wildcard in a requested set delegates the entire plan scope.
const Wildcard = "*"

// MinimalPermissions is the permission template requested for each new user type
// before plan filtering.
var MinimalPermissions = map[coreUser.UserType][]string{
	coreUser.TypeAdmin:   {Wildcard},
	coreUser.TypeTeacher: {"academics.view", "attendance.view", "timetable.view", "communication.view"},
	coreUser.TypeStudent: {"academics.view", "timetable.view", "communication.view"},
	coreUser.TypeStaff:   {"attendance.view", "communication.view"},
	coreUser.TypeParent:  {"academics.view", "attendance.view", "communication.view"},
}

// Template returns a copy of the minimal template for a user type, or nil for unknown types.
func Template(t coreUser.UserType) []string {
	tpl, ok := MinimalPermissions[t]
	if !ok {
		return nil
	}
	out := make([]string, len(tpl))
	copy(out, tpl)
	return out
}

// FilterByScope returns the requested keys the plan allows, sorted and de-duplicated.
// A wildcard anywhere in requested yields the whole scope.
func FilterByScope(requested, scope []string) []string {
	allowed := make(map[string]struct{}, len(scope))
	for _, k := range scope {
		if k == Wildcard || k == "" {
			continue
		}
		allowed[k] = struct{}{}
	}

	for _, k := range requested {
		if k == Wildcard {
			return sortedKeys(allowed)
		}
	}

	granted := make(map[string]struct{}, len(requested))
	for _, k := range requested {
		if _, ok := allowed[k]; ok {
			granted[k] = struct{}{}
		}
	}
	return sortedKeys(granted)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
