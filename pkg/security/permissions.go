package security

import (
	"fmt"
	"net/url"
	"strings"
)

// Domain prefixes every permission string.
const Domain = "datavirt"

// Action is the operation a permission grants.
type Action string

const (
	ActionRead   Action = "READ"
	ActionWrite  Action = "WRITE"
	ActionDelete Action = "DELETE"
)

// Permission names an action on a datasource, a table or a variable. Its string form
// is "datavirt:/datasource/<ds>[/table/<table>[/variable/<variable>]]:<ACTION>" with
// path-escaped names.
type Permission struct {
	Datasource string
	Table      string
	Variable   string
	Action     Action
}

func DatasourcePermission(datasource string, action Action) Permission {
	return Permission{Datasource: datasource, Action: action}
}

func TablePermission(datasource, table string, action Action) Permission {
	return Permission{Datasource: datasource, Table: table, Action: action}
}

func VariablePermission(datasource, table, variable string, action Action) Permission {
	return Permission{Datasource: datasource, Table: table, Variable: variable, Action: action}
}

// Resource returns the permission without its action.
func (p Permission) Resource() string {
	var b strings.Builder
	b.WriteString(Domain)
	b.WriteString(":/datasource/")
	b.WriteString(url.PathEscape(p.Datasource))
	if p.Table != "" {
		b.WriteString("/table/")
		b.WriteString(url.PathEscape(p.Table))
		if p.Variable != "" {
			b.WriteString("/variable/")
			b.WriteString(url.PathEscape(p.Variable))
		}
	}
	return b.String()
}

func (p Permission) String() string {
	return p.Resource() + ":" + string(p.Action)
}

// ParsePermission parses the string form of a permission.
func ParsePermission(s string) (Permission, error) {
	var p Permission

	rest, ok := strings.CutPrefix(s, Domain+":/")
	if !ok {
		return p, fmt.Errorf("permission '%s' is not in the %s domain", s, Domain)
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 || i == len(rest)-1 {
		return p, fmt.Errorf("permission '%s' has no action", s)
	}
	p.Action = Action(rest[i+1:])

	segments := strings.Split(rest[:i], "/")
	if len(segments)%2 != 0 || len(segments) > 6 {
		return p, fmt.Errorf("malformed permission '%s'", s)
	}
	kinds := []string{"datasource", "table", "variable"}
	for j := 0; j < len(segments); j += 2 {
		if segments[j] != kinds[j/2] {
			return p, fmt.Errorf("malformed permission '%s': expected '%s'", s, kinds[j/2])
		}
		name, err := url.PathUnescape(segments[j+1])
		if err != nil || name == "" {
			return p, fmt.Errorf("malformed permission '%s'", s)
		}
		switch j / 2 {
		case 0:
			p.Datasource = name
		case 1:
			p.Table = name
		case 2:
			p.Variable = name
		}
	}
	return p, nil
}
