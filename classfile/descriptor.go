package classfile

import (
	"fmt"
	"strings"
)

// parseMethodDesc splits a method descriptor into parameter and return descriptors.
func parseMethodDesc(desc string) (params []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		n, err := fieldDescLen(ret)
		if err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("invalid return type in %q", desc)
		}
	}
	return params, ret, nil
}

// fieldDescLen returns the length of the field descriptor at the start of s.
func fieldDescLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i > 255 {
		return 0, fmt.Errorf("array of more than 255 dimensions")
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated descriptor %q", s)
	}
	switch s[i] {
	case 'Z', 'B', 'C', 'S', 'I', 'F', 'J', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end <= 1 {
			return 0, fmt.Errorf("unterminated class descriptor %q", s)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("invalid descriptor %q", s)
}

// descSlots returns the number of local or stack slots a field descriptor occupies.
func descSlots(desc string) int {
	switch desc {
	case "V":
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// argSlots returns the slots occupied by the parameters of a method descriptor.
func argSlots(desc string) int {
	params, _, err := parseMethodDesc(desc)
	if err != nil {
		return 0
	}
	n := 0
	for _, p := range params {
		n += descSlots(p)
	}
	return n
}

// returnDesc returns the return descriptor of a method descriptor.
func returnDesc(desc string) string {
	i := strings.LastIndexByte(desc, ')')
	if i < 0 {
		return "V"
	}
	return desc[i+1:]
}

// classNameOf converts a field descriptor for a reference type to the name
// used in class constants: internal name for classes, descriptor for arrays.
func classNameOf(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// descOfClass is the inverse of classNameOf.
func descOfClass(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}
