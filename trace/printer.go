package trace

import (
	"bufio"
	"io"
	"strings"
)

var mnemonics = map[string]string{
	"VisitIincInsn":           "iinc",
	"VisitLdcInsn":            "ldc",
	"VisitTableSwitchInsn":    "tableswitch",
	"VisitLookupSwitchInsn":   "lookupswitch",
	"VisitMultiANewArrayInsn": "multianewarray",
	"VisitInvokeDynamicInsn":  "invokedynamic",
}

// opens reports whether op starts a nested visitor closed by VisitEnd.
func opens(op string) bool {
	switch op {
	case "VisitField", "VisitMethod", "VisitAnnotation", "VisitAnnotationDefault",
		"VisitParameterAnnotation", "VisitArray":
		return true
	}
	return false
}

// Fprint writes events as an indented listing, one event per line.
// Instructions are shown by mnemonic and labels as "L0:" lines.
func Fprint(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	depth := 0
	for _, e := range events {
		if e.Op == "VisitEnd" && depth > 0 {
			depth--
		}
		indent := depth
		if e.Op == "VisitLabel" && indent > 0 {
			indent--
		}
		bw.WriteString(strings.Repeat("  ", indent))
		bw.WriteString(line(e, depth == 0))
		bw.WriteByte('\n')
		if opens(e.Op) {
			depth++
		}
	}
	return bw.Flush()
}

// Format returns the listing Fprint would write.
func Format(events []Event) string {
	var sb strings.Builder
	_ = Fprint(&sb, events)
	return sb.String()
}

func line(e Event, top bool) string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		if a == "" {
			a = "-"
		}
		args[i] = a
	}
	switch {
	case e.Op == "VisitLabel" && len(args) == 1:
		return args[0] + ":"
	case mnemonics[e.Op] != "":
		return strings.Join(append([]string{mnemonics[e.Op]}, args...), " ")
	case strings.HasSuffix(e.Op, "Insn"):
		return strings.Join(args, " ")
	}
	name := strings.ToLower(strings.TrimPrefix(e.Op, "Visit"))
	if name == "" {
		name = "value"
		if top {
			name = "class"
		}
	}
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// Member is the slice of a class trace belonging to one field or method,
// from its VisitField or VisitMethod event through the matching VisitEnd.
type Member struct {
	Method bool
	Name   string
	Desc   string
	Events []Event
}

// String returns name and descriptor, separated by a space for fields.
func (m Member) String() string {
	if m.Method {
		return m.Name + m.Desc
	}
	return m.Name + " " + m.Desc
}

// Members splits a class trace into its fields and methods, in order.
func Members(events []Event) []Member {
	var out []Member
	depth, start := 0, -1
	for i, e := range events {
		if e.Op == "VisitEnd" && depth > 0 {
			depth--
			if depth == 0 && start >= 0 {
				out[len(out)-1].Events = events[start : i+1]
				start = -1
			}
			continue
		}
		if depth == 0 && (e.Op == "VisitField" || e.Op == "VisitMethod") && len(e.Args) > 2 {
			out = append(out, Member{Method: e.Op == "VisitMethod", Name: e.Args[1], Desc: e.Args[2]})
			start = i
		}
		if opens(e.Op) {
			depth++
		}
	}
	return out
}
