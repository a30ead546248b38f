package generator

import (
	"fmt"
	"strings"

	"stubgen/internal/symbol"
)

// ABI holds the calling-convention markers and the return-value policy of the
// generated surface.
type ABI struct {
	Attr string `yaml:"attr"`
	Call string `yaml:"call"`
	// ResultType is the status type non-command entries return.
	ResultType string `yaml:"result_type"`
	// NotPresent is the ResultType value stubs return.
	NotPresent string `yaml:"not_present"`
	// ProcAddrType is the null-function-pointer type of proc-address resolvers.
	ProcAddrType string `yaml:"proc_addr_type"`
	// ProcAddrBases are base names always returning a null function pointer.
	ProcAddrBases []string `yaml:"proc_addr_bases"`
	// ZeroTypes return a bare 0; other scalars return (T)0.
	ZeroTypes []string `yaml:"zero_types"`
}

// Function is one generated C definition.
type Function struct {
	Name      symbol.Name
	Signature string
	Body      []string
}

func (f Function) String() string {
	var b strings.Builder
	b.WriteString(f.Signature)
	b.WriteString("\n{\n")
	for _, line := range f.Body {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// Emitter renders dispositions as C definitions.
type Emitter struct {
	abi ABI
}

func NewEmitter(abi ABI) *Emitter {
	return &Emitter{abi: abi}
}

// Emit renders one disposition. Satisfied entries produce nothing.
func (e *Emitter) Emit(d symbol.Disposition) (Function, bool, error) {
	switch d.Kind {
	case symbol.Satisfied:
		return Function{}, false, nil
	case symbol.Forward:
		fn, err := e.forward(d)
		return fn, err == nil, err
	case symbol.Stub:
		if d.Entry.HasSignature() {
			return e.stub(d), true, nil
		}
		return e.variadicStub(d), true, nil
	default:
		return Function{}, false, fmt.Errorf("%s: unknown disposition %q", d.Entry.Name, d.Kind)
	}
}

// EmitPlan renders every emitted disposition in order.
func (e *Emitter) EmitPlan(ds []symbol.Disposition) ([]Function, error) {
	var out []Function
	for _, d := range ds {
		fn, ok, err := e.Emit(d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fn)
		}
	}
	return out, nil
}

func (e *Emitter) prototype(ret string, name symbol.Name, params string) string {
	parts := make([]string, 0, 4)
	if e.abi.Attr != "" {
		parts = append(parts, e.abi.Attr)
	}
	parts = append(parts, ret)
	if e.abi.Call != "" {
		parts = append(parts, e.abi.Call)
	}
	parts = append(parts, fmt.Sprintf("%s(%s)", name, params))
	return strings.Join(parts, " ")
}

func (e *Emitter) forward(d symbol.Disposition) (Function, error) {
	sig := d.Entry.Signature
	if sig == nil {
		return Function{}, fmt.Errorf("%s: forward without signature", d.Entry.Name)
	}
	params := sig.ParamList()
	call := fmt.Sprintf("%s(%s);", d.Target, sig.ArgList())
	if sig.Return != "void" {
		call = "return " + call
	}
	return Function{
		Name:      d.Entry.Name,
		Signature: e.prototype(sig.Return, d.Entry.Name, params),
		Body: []string{
			"extern " + e.prototype(sig.Return, d.Target, params) + ";",
			call,
		},
	}, nil
}

func (e *Emitter) stub(d symbol.Disposition) Function {
	sig := d.Entry.Signature
	var body []string
	if d.Note != "" {
		body = append(body, "/* "+d.Note+" */")
	}
	for _, p := range sig.Params {
		body = append(body, fmt.Sprintf("(void)%s;", p.Name))
	}
	if v, ok := e.returnValue(sig.Return, d.Entry.Base); ok {
		body = append(body, "return "+v+";")
	}
	return Function{
		Name:      d.Entry.Name,
		Signature: e.prototype(sig.Return, d.Entry.Name, sig.ParamList()),
		Body:      body,
	}
}

// variadicStub is the fallback when the parameter list is unknown.
func (e *Emitter) variadicStub(d symbol.Disposition) Function {
	ret := e.abi.ResultType
	switch {
	case e.isProcAddr(d.Entry.Base):
		ret = e.abi.ProcAddrType
	case d.Entry.Kind == symbol.KindCommand:
		ret = "void"
	}

	var body []string
	if d.Note != "" {
		body = append(body, "/* "+d.Note+" */")
	}
	body = append(body, "(void)dummy;")
	if v, ok := e.returnValue(ret, d.Entry.Base); ok {
		body = append(body, "return "+v+";")
	}
	return Function{
		Name:      d.Entry.Name,
		Signature: e.prototype(ret, d.Entry.Name, "void* dummy, ..."),
		Body:      body,
	}
}

// returnValue applies the return policy; ok is false for void.
func (e *Emitter) returnValue(ret, base string) (string, bool) {
	ret = strings.TrimSpace(ret)
	switch {
	case ret == "void" || ret == "":
		return "", false
	case e.isProcAddr(base) || (e.abi.ProcAddrType != "" && ret == e.abi.ProcAddrType):
		return "NULL", true
	case ret == e.abi.ResultType:
		return e.abi.NotPresent, true
	case strings.Contains(ret, "*") || strings.HasPrefix(ret, "PFN_"):
		return "NULL", true
	}
	for _, z := range e.abi.ZeroTypes {
		if ret == z {
			return "0", true
		}
	}
	return "(" + ret + ")0", true
}

func (e *Emitter) isProcAddr(base string) bool {
	for _, b := range e.abi.ProcAddrBases {
		if b == base {
			return true
		}
	}
	return false
}
