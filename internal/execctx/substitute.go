package execctx

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

const maxSubstitutionDepth = 8

// Substitute expands variable references in s.
//
//   - ${name} and $name are replaced by the context value, falling back to
//     the process environment, and to the empty string when neither exists.
//   - A run of '#' characters is replaced by the frame zero-padded to the
//     length of the run.
//   - A leading '~' is replaced by the home directory.
//   - A backslash escapes the following character.
func (c *Context) Substitute(s string) string {
	return c.substitute(s, 0)
}

func (c *Context) substitute(s string, depth int) string {
	if !strings.ContainsAny(s, "$#~\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s):
			i++
			sb.WriteByte(s[i])
		case ch == '~' && i == 0:
			if home, err := os.UserHomeDir(); err == nil {
				sb.WriteString(home)
			} else {
				sb.WriteByte(ch)
			}
		case ch == '#':
			j := i
			for j < len(s) && s[j] == '#' {
				j++
			}
			sb.WriteString(padFrame(c.Frame(), j-i))
			i = j - 1
		case ch == '$' && i+1 < len(s):
			name, end := variableName(s, i+1)
			if name == "" {
				sb.WriteByte(ch)
				continue
			}
			sb.WriteString(c.resolve(name, depth))
			i = end - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// variableName parses a reference starting after '$' and returns the name
// and the index just past it.
func variableName(s string, start int) (string, int) {
	if s[start] == '{' {
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return "", start
		}
		return s[start+1 : start+end], start + end + 1
	}
	end := start
	for end < len(s) && isNameByte(s[end]) {
		end++
	}
	return s[start:end], end
}

func isNameByte(b byte) bool {
	return b == '_' || b == ':' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (c *Context) resolve(name string, depth int) string {
	if v, ok := c.Lookup(name); ok {
		str := valueString(v)
		if depth < maxSubstitutionDepth && v.Type().Equals(cty.String) {
			return c.substitute(str, depth+1)
		}
		return str
	}
	return os.Getenv(name)
}

func valueString(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	switch {
	case v.Type().Equals(cty.String):
		return v.AsString()
	case v.Type().Equals(cty.Number):
		f, _ := v.AsBigFloat().Float64()
		if f == math.Trunc(f) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case v.Type().Equals(cty.Bool):
		return strconv.FormatBool(v.True())
	default:
		return v.GoString()
	}
}

func padFrame(frame float64, width int) string {
	n := int64(math.Round(frame))
	if n < 0 {
		return "-" + fmt.Sprintf("%0*d", width, -n)
	}
	return fmt.Sprintf("%0*d", width, n)
}
