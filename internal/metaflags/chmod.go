package metaflags

import (
	"fmt"
	"strings"
)

// ParseChmod parses a comma-separated `--chmod=SPEC` argument into
// ChmodRules, e.g. "Dg+s,ug+w,Fo-rwx".
func ParseChmod(spec string) ([]ChmodRule, error) {
	var rules []ChmodRule
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		rule, err := parseChmodField(field)
		if err != nil {
			return nil, fmt.Errorf("chmod spec %q: %w", field, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseChmodField(field string) (ChmodRule, error) {
	kind := ChmodAny
	switch field[0] {
	case 'D':
		kind = ChmodDir
		field = field[1:]
	case 'F':
		kind = ChmodFile
		field = field[1:]
	}

	var ops []ChmodOp
	for _, part := range strings.Split(field, ";") {
		op, err := parseChmodOp(part)
		if err != nil {
			return ChmodRule{}, err
		}
		ops = append(ops, op)
	}
	return ChmodRule{Kind: kind, Ops: ops}, nil
}

func parseChmodOp(part string) (ChmodOp, error) {
	i := strings.IndexAny(part, "+-=")
	if i < 0 {
		return ChmodOp{}, fmt.Errorf("missing +/-/= in %q", part)
	}
	return ChmodOp{
		Classes: part[:i],
		Op:      part[i],
		Perm:    part[i+1:],
	}, nil
}
