// annotations.go defines the annotation types, argument constants, and parser for the
// Oxy WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed
// with @oxy: that drive source injection, bind group declaration, and resource
// provider registration. The parsed results are stored as Annotation values and consumed
// by the PreProcessor and the render stages to wire GPU resources by identity instead of
// by hard-coded binding numbers.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects a registered WGSL source fragment at the annotation site.
	// Fragments are registered per shader with WithInclude, which is how generated uniform
	// structs and the compiled scene block reach the kernels.
	//
	// Syntax: //@oxy:include <key>
	//
	// Example: //@oxy:include trace_params
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration for a
	// registered struct type and appends an Annotation to the PreProcessor's declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 0 storage_uniform params trace_params
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider names the resource bound at a group and binding without generating
	// any WGSL output. The binding declaration stays hand-written directly below the annotation.
	// This is used for textures and samplers, which have no registered struct.
	//
	// Syntax: //@oxy:provider <group> <binding> <resource>
	//
	// Example: //@oxy:provider 0 2 radiance
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed (include, group, or provider).
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = include key
	//   - group:    [0] = address space, [1] = var name, [2] = include key of the struct type
	//   - provider: [0] = resource identity
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// ── Address space arguments ────────────────────────────────────────────────────
// These specify the WGSL variable address space in @oxy:group annotations.

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Resource identity arguments ────────────────────────────────────────────────
// These identify the pipeline resource bound at a slot. They appear as the last argument
// of @oxy:provider annotations and as the var name of @oxy:group uniform declarations, and
// the stages resolve binding indices from them through Shader.Binding.

const (
	// AnnotationArgParams identifies a stage's uniform parameter block.
	AnnotationArgParams AnnotationArg = "params"

	// AnnotationArgNoise identifies the noise texture sampled by the trace kernel.
	AnnotationArgNoise AnnotationArg = "noise"

	// AnnotationArgRadiance identifies the per-frame HDR radiance written by the trace kernel.
	AnnotationArgRadiance AnnotationArg = "radiance"

	// AnnotationArgHistory identifies the accumulation buffer read from the previous frame.
	AnnotationArgHistory AnnotationArg = "history"

	// AnnotationArgAccumulation identifies the accumulation buffer written this frame.
	AnnotationArgAccumulation AnnotationArg = "accumulation"

	// AnnotationArgAverage identifies the averaged HDR image produced by accumulation.
	AnnotationArgAverage AnnotationArg = "average"

	// AnnotationArgDisplay identifies the tonemapped LDR image.
	AnnotationArgDisplay AnnotationArg = "display"

	// AnnotationArgDisplaySampler identifies the sampler used to draw the display image.
	AnnotationArgDisplaySampler AnnotationArg = "display_sampler"
)

// validAddressSpaces lists all AnnotationArg values that are accepted as address
// space arguments in @oxy:group annotations. Each maps to a WGSL var<> declaration.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validResources lists all AnnotationArg values that are accepted as resource identities
// in @oxy:provider annotations.
var validResources = []AnnotationArg{
	AnnotationArgParams,
	AnnotationArgNoise,
	AnnotationArgRadiance,
	AnnotationArgHistory,
	AnnotationArgAccumulation,
	AnnotationArgAverage,
	AnnotationArgDisplay,
	AnnotationArgDisplaySampler,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Include keys
// and struct types are not checked here because the registry is per shader; the PreProcessor
// resolves them.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, var name, struct type)", lineNum)
		}
		group, binding, err := parseSlot(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case string(AnnotationTypeProvider):
		if len(args) != 4 {
			return nil, fmt.Errorf("line %d: @oxy provider annotation requires three arguments (group, binding, resource)", lineNum)
		}
		group, binding, err := parseSlot(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validResources, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown resource %q in @oxy provider annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    []AnnotationArg{AnnotationArg(args[3])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseSlot(groupArg, bindingArg string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q: %v", lineNum, groupArg, err)
	}
	binding, err := strconv.Atoi(bindingArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q: %v", lineNum, bindingArg, err)
	}
	return group, binding, nil
}
