package access

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnauthenticated = errors.New("authentication credentials were not provided or are invalid")
	ErrForbidden       = errors.New("you do not have permission to perform this action")
)

//go:embed policy.yaml
var defaultPolicy []byte

type resourcePolicy struct {
	Default []Role            `yaml:"default"`
	Actions map[string][]Role `yaml:"actions"`
}

// Policy maps resource and action names to the roles allowed to invoke them.
type Policy struct {
	Resources map[string]resourcePolicy `yaml:"resources"`
}

func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(p.Resources) == 0 {
		return nil, errors.New("parse policy: no resources defined")
	}
	return &p, nil
}

// Authorize rejects anonymous principals with ErrUnauthenticated and principals
// whose role is not listed for the action with ErrForbidden. Unknown resources deny.
func (p *Policy) Authorize(principal Principal, resource, action string) error {
	if principal == nil || !principal.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if principal.IsAdmin() {
		return nil
	}

	rp, ok := p.Resources[resource]
	if !ok {
		return ErrForbidden
	}
	allowed := rp.Default
	if roles, ok := rp.Actions[action]; ok {
		allowed = roles
	}

	for _, r := range allowed {
		if r == principal.Role() {
			return nil
		}
	}
	return ErrForbidden
}
