package middleware

import (
	"sort"
	"strings"

	"github.com/iliyamo/predio-auth/internal/model"
)

// Rule is one entry of the access table.  Pattern is either an exact path or
// a prefix ending in "/**", which matches the prefix itself and everything
// below it.  An empty Method matches every method.
//
// A rule with Public set admits anonymous callers.  Otherwise a principal is
// required, and when Roles is non-empty the principal must hold one of them
// (or be an administrator, if AllowAdmin is set).
type Rule struct {
	Method     string
	Pattern    string
	Public     bool
	Roles      []string
	AllowAdmin bool
}

// authenticated is applied when no rule matches.
var authenticated = Rule{Pattern: "/**"}

func (r Rule) wildcard() bool { return strings.HasSuffix(r.Pattern, "/**") }

// literal is the fixed part of the pattern.
func (r Rule) literal() string {
	if r.wildcard() {
		return strings.TrimSuffix(r.Pattern, "/**")
	}
	return r.Pattern
}

// Matches reports whether the rule applies to method and p.
func (r Rule) Matches(method, p string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	lit := r.literal()
	if !r.wildcard() {
		return p == lit
	}
	if lit == "" {
		return true
	}
	return p == lit || strings.HasPrefix(p, lit+"/")
}

// Allows reports whether p satisfies the rule's role requirement.
func (r Rule) Allows(p model.Principal) bool {
	if r.Public || len(r.Roles) == 0 {
		return true
	}
	if r.AllowAdmin && p.Admin {
		return true
	}
	return p.HasAnyRole(r.Roles...)
}

// Rules is an ordered access table.  The first matching rule wins.
type Rules struct {
	list []Rule
}

// NewRules sorts rules from most to least specific: method-bound rules
// first, then longer literal prefixes, then exact paths before wildcards.
// Rules of equal specificity keep their declaration order.
func NewRules(rules ...Rule) *Rules {
	list := append([]Rule(nil), rules...)
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if (a.Method != "") != (b.Method != "") {
			return a.Method != ""
		}
		if la, lb := len(a.literal()), len(b.literal()); la != lb {
			return la > lb
		}
		return !a.wildcard() && b.wildcard()
	})
	return &Rules{list: list}
}

// Match returns the rule governing method and p, where p is the path as the
// router sees it.  Trailing slashes are ignored; nothing else is rewritten,
// so callers must turn away Ambiguous paths first.
func (r *Rules) Match(method, p string) Rule {
	p = trimPath(p)
	if r != nil {
		for _, rule := range r.list {
			if rule.Matches(method, p) {
				return rule
			}
		}
	}
	return authenticated
}

// Ambiguous reports whether p contains dot segments, backslashes or
// percent-encoded separators.  Decoding or cleaning such a path yields a
// different route than the one echo dispatches to.
func Ambiguous(p string) bool {
	if strings.ContainsRune(p, '\\') {
		return true
	}
	lower := strings.ToLower(p)
	for _, enc := range []string{"%2f", "%5c", "%2e"} {
		if strings.Contains(lower, enc) {
			return true
		}
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func trimPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}
