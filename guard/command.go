package guard

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// DefaultAllowedCommands are the command names the model may run.
var DefaultAllowedCommands = []string{
	"node", "npm", "npx", "git", "go",
	"ls", "cat", "head", "tail", "wc", "grep", "find",
	"echo", "printf", "pwd", "whoami", "date", "which", "stat",
	"mkdir", "touch",
}

// DefaultDeniedCommands are destructive command names that are never run.
var DefaultDeniedCommands = []string{
	"rm", "rmdir", "del", "format", "dd", "mkfs", "sudo", "su",
	"chmod", "chown", "shutdown", "reboot", "kill", "killall",
}

// DefaultDangerousPatterns are regular expressions rejected anywhere in a
// command string.
var DefaultDangerousPatterns = []string{
	`\brm\s+-[a-zA-Z]*[rf]`,
	`\bsudo\b`,
	`\bchmod\b`,
	`\bchown\b`,
	`:\(\)\s*\{.*\};\s*:`,
	`\bmkfs\b`,
	`\bdd\s+if=`,
	`/dev/sd[a-z]`,
	`\b(curl|wget)\b[^|]*\|\s*(ba|z)?sh\b`,
}

// shellSeparators split a command line into independently checked segments.
var shellSeparators = regexp.MustCompile(`\|\||&&|[;|&\n]`)

var redirections = strings.NewReplacer(">&", ">", "&>", ">")

// CommandPolicyOptions configures a CommandPolicy.
type CommandPolicyOptions struct {
	Allow            []string
	Deny             []string
	DangerousPattern []string
}

// CommandPolicy gates command strings before execution. Every segment of a
// compound command (split on ;, &&, ||, | and &) is checked on its first
// token.
type CommandPolicy struct {
	allow    map[string]struct{}
	deny     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewCommandPolicy builds a policy. Invalid patterns cause an error.
func NewCommandPolicy(optFns ...func(o *CommandPolicyOptions)) (*CommandPolicy, error) {
	opts := CommandPolicyOptions{
		Allow:            DefaultAllowedCommands,
		Deny:             DefaultDeniedCommands,
		DangerousPattern: DefaultDangerousPatterns,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &CommandPolicy{
		allow: toSet(opts.Allow),
		deny:  toSet(opts.Deny),
	}

	for _, expr := range opts.DangerousPattern {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("new command policy: pattern %q: %w", expr, err)
		}

		p.patterns = append(p.patterns, re)
	}

	return p, nil
}

// Allowed returns the allow-list in sorted order.
func (p *CommandPolicy) Allowed() []string {
	out := make([]string, 0, len(p.allow))
	for name := range p.allow {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Check validates command. The deny-list and dangerous patterns are consulted
// before the allow-list, so a command present in both is reported as
// ErrDangerousCommand (which also matches ErrCommandNotAllowed).
func (p *CommandPolicy) Check(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return ErrEmptyCommand
	}

	if strings.Contains(trimmed, "`") || strings.Contains(trimmed, "$(") {
		return fmt.Errorf("%w: command substitution is not permitted", ErrCommandNotAllowed)
	}

	// redirections such as 2>&1 and &> are not command separators
	segments := shellSeparators.Split(redirections.Replace(trimmed), -1)

	verbs := make([]string, 0, len(segments))
	for _, seg := range segments {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}

		verbs = append(verbs, path.Base(fields[0]))
	}

	if len(verbs) == 0 {
		return ErrEmptyCommand
	}

	for _, verb := range verbs {
		if _, denied := p.deny[verb]; denied {
			return fmt.Errorf("%w: %w: %q", ErrDangerousCommand, ErrCommandNotAllowed, verb)
		}
	}

	for _, re := range p.patterns {
		if re.MatchString(trimmed) {
			return fmt.Errorf("%w: %w: matches %s", ErrDangerousCommand, ErrCommandNotAllowed, re)
		}
	}

	for _, verb := range verbs {
		if _, ok := p.allow[verb]; !ok {
			return fmt.Errorf("%w: %q", ErrCommandNotAllowed, verb)
		}
	}

	return nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}

	return set
}
