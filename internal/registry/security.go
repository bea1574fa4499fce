package registry

import aerrors "github.com/PayRpc/a2a-fabric/internal/errors"

// authorize enforces a composition's security policy against the caller
// (spec section 4.B "security gate"): rejects if the caller's trust level
// is below the policy's minimum, or the caller's held capability set is
// missing any of the policy's required capabilities.
func (r *Registry) authorize(policy SecurityPolicy, caller CallContext) error {
	if caller.TrustLevel < policy.MinTrustLevel {
		return aerrors.New(aerrors.TypeAuthorization, "registry.security", "caller trust level below composition minimum").
			WithContext("callerTrustLevel", caller.TrustLevel.String()).
			WithContext("requiredTrustLevel", policy.MinTrustLevel.String())
	}
	for _, required := range policy.RequiredCapabilities {
		if !caller.HasCapability(required) {
			return aerrors.New(aerrors.TypeAuthorization, "registry.security", "caller missing required capability: "+required).
				WithContext("missingCapability", required)
		}
	}
	return nil
}
