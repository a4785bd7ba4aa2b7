package rbac

import (
	"fmt"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
)

// Evaluate decides whether the principal satisfies the policy. It returns
// nil on allow and an error wrapping httpx.ErrForbidden on deny. The
// function is pure: it reads only its arguments.
func Evaluate(principal Principal, policy AuthorizationPolicy) error {
	if principal.IsAdmin {
		return nil
	}
	if len(policy.AllowedRoleNames) > 0 && !containsString(policy.AllowedRoleNames, principal.RoleName) {
		return fmt.Errorf("rbac: role %q not permitted: %w", principal.RoleName, httpx.ErrForbidden)
	}
	if len(policy.PermissionSets) == 0 {
		return nil
	}
	held := make(map[string]struct{}, len(principal.Permissions))
	for _, p := range principal.Permissions {
		held[p] = struct{}{}
	}
	for _, set := range policy.PermissionSets {
		if holdsAll(held, set) {
			return nil
		}
	}
	return fmt.Errorf("rbac: missing required permissions: %w", httpx.ErrForbidden)
}

func holdsAll(held map[string]struct{}, required []string) bool {
	for _, p := range required {
		if _, ok := held[p]; !ok {
			return false
		}
	}
	return true
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
