// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader
// source code for @oxy: annotations, replaces them with registered WGSL fragments
// or generated declarations, and collects a declarations list that the render stages
// use to resolve bindings by resource identity.
//
// The pre-processor maintains two registries:
//   - includes: maps include keys to WGSL fragments and, for struct fragments, the
//     declared type name. Used by @oxy:include (to inject the source) and @oxy:group
//     (to resolve the WGSL type name in the generated declaration).
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"
)

// Include is a WGSL fragment that can be injected with //@oxy:include.
type Include struct {
	// Source is the WGSL text injected at the annotation site.
	Source string

	// Type is the struct name declared by Source, used when the include is referenced
	// from an @oxy:group annotation. Empty for fragments that declare no struct.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// includes maps include keys to their WGSL fragments.
	includes map[AnnotationArg]Include

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group and provider annotations during a Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with registered fragments or generated declarations while collecting
// a declarations list for downstream resource wiring.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and replaces @oxy: annotations with their
	// WGSL output. The declarations list is reset at the start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown include
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// Register adds or replaces an include.
	//
	// Parameters:
	//   - key: the include key used in annotations
	//   - inc: the fragment
	Register(key AnnotationArg, inc Include)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the given includes registered.
//
// Parameters:
//   - includes: the fragments available to @oxy:include and @oxy:group, keyed by include key
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(includes map[AnnotationArg]Include) PreProcessor {
	p := &preProcessor{
		includes: make(map[AnnotationArg]Include, len(includes)),
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for k, v := range includes {
		p.includes[k] = v
	}
	return p
}

func (p *preProcessor) Register(key AnnotationArg, inc Include) {
	p.includes[key] = inc
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			inc, ok := p.includes[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			out = append(out, strings.TrimRight(inc.Source, "\n"))
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				inc, err := p.structInclude(AnnotationArg(inner), i+1)
				if err != nil {
					return "", err
				}
				wgslType = fmt.Sprintf("array<%s>", inc.Type)
			} else {
				inc, err := p.structInclude(a.Args[2], i+1)
				if err != nil {
					return "", err
				}
				wgslType = inc.Type
			}

			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			out = append(out, line)
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

func (p *preProcessor) structInclude(key AnnotationArg, line int) (Include, error) {
	inc, ok := p.includes[key]
	if !ok {
		return Include{}, fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", line, key)
	}
	if inc.Type == "" {
		return Include{}, fmt.Errorf("line %d: include %q declares no struct type", line, key)
	}
	return inc, nil
}
