package template

import (
	"regexp"
)

// Two placeholder namespaces with different binding times:
//
//	$[[name]]  bind-time, resolved once, document-wide, at run creation
//	${name}    run-time, resolved per step, immediately before dispatch
var (
	bindTimePattern = regexp.MustCompile(`\$\[\[([A-Za-z_][A-Za-z0-9_-]*)\]\]`)
	runTimePattern  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_-]*)\}`)
)

// BindTimeRefs returns the names referenced by bind-time placeholders in s,
// in order of first appearance.
func BindTimeRefs(s string) []string {
	return refs(bindTimePattern, s)
}

// RunTimeRefs returns the names referenced by run-time placeholders in s,
// in order of first appearance.
func RunTimeRefs(s string) []string {
	return refs(runTimePattern, s)
}

// HasBindTimeRef reports whether s still contains a bind-time placeholder.
func HasBindTimeRef(s string) bool {
	return bindTimePattern.MatchString(s)
}

// HasRunTimeRef reports whether s still contains a run-time placeholder.
func HasRunTimeRef(s string) bool {
	return runTimePattern.MatchString(s)
}

// SubstituteBindTime replaces every $[[name]] occurrence in s using the
// resolve function. Names the function reports as unknown are left in place
// so the caller's residual check can surface them.
func SubstituteBindTime(s string, resolve func(name string) (string, bool)) string {
	return substitute(bindTimePattern, s, resolve)
}

// SubstituteRunTime replaces every ${name} occurrence in s using the resolve
// function. Unknown names are left in place.
func SubstituteRunTime(s string, resolve func(name string) (string, bool)) string {
	return substitute(runTimePattern, s, resolve)
}

// IsBindTimePlaceholder reports whether s is exactly one bind-time
// placeholder and nothing else, and returns the referenced name. Input file
// entries of this shape are replaced wholesale by the staged file path.
func IsBindTimePlaceholder(s string) (string, bool) {
	m := bindTimePattern.FindStringSubmatch(s)
	if m != nil && m[0] == s {
		return m[1], true
	}
	return "", false
}

func refs(p *regexp.Regexp, s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range p.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func substitute(p *regexp.Regexp, s string, resolve func(name string) (string, bool)) string {
	return p.ReplaceAllStringFunc(s, func(match string) string {
		name := p.FindStringSubmatch(match)[1]
		if value, ok := resolve(name); ok {
			return value
		}
		return match
	})
}
