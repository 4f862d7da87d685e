package security

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"sigs.k8s.io/yaml"
)

// Effect of a policy rule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Rule grants or denies the permissions matching a pattern. '*' in a pattern matches
// any run of characters, '/' included.
type Rule struct {
	Permission string `json:"permission"`
	Effect     Effect `json:"effect"`
}

// Policy is the document read by PolicyAuthorizer:
//
//	default: deny
//	rules:
//	  - permission: "datavirt:/datasource/cohort*:READ"
//	    effect: allow
//	  - permission: "datavirt:/datasource/cohort/table/secret*"
//	    effect: deny
type Policy struct {
	Default Effect `json:"default"`
	Rules   []Rule `json:"rules"`
}

type compiledRule struct {
	pattern *regexp.Regexp
	effect  Effect
}

// PolicyAuthorizer evaluates a static policy. A matching deny rule wins over any allow
// rule; permissions matched by no rule get the default effect.
type PolicyAuthorizer struct {
	rules []compiledRule
	allow bool
}

var _ Authorizer = (*PolicyAuthorizer)(nil)

// NewPolicyAuthorizer compiles p.
func NewPolicyAuthorizer(p Policy) (*PolicyAuthorizer, error) {
	a := &PolicyAuthorizer{}
	switch p.Default {
	case "", EffectDeny:
	case EffectAllow:
		a.allow = true
	default:
		return nil, fmt.Errorf("unknown default effect '%s'", p.Default)
	}

	for i, r := range p.Rules {
		if r.Effect != EffectAllow && r.Effect != EffectDeny {
			return nil, fmt.Errorf("rule %d: unknown effect '%s'", i, r.Effect)
		}
		if r.Permission == "" {
			return nil, fmt.Errorf("rule %d: empty permission", i)
		}
		a.rules = append(a.rules, compiledRule{pattern: compilePattern(r.Permission), effect: r.Effect})
	}
	return a, nil
}

// ParsePolicy reads a YAML or JSON policy document.
func ParsePolicy(data []byte) (*PolicyAuthorizer, error) {
	var p Policy
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return NewPolicyAuthorizer(p)
}

// LoadPolicy reads the policy document at path.
func LoadPolicy(path string) (*PolicyAuthorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePolicy(data)
}

func compilePattern(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

func (a *PolicyAuthorizer) IsPermitted(permission string) bool {
	allowed := false
	for _, r := range a.rules {
		if !r.pattern.MatchString(permission) {
			continue
		}
		if r.effect == EffectDeny {
			return false
		}
		allowed = true
	}
	return allowed || a.allow
}
