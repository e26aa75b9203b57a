package shader

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// typeLayout is the host-shareable size and alignment of a WGSL type.
type typeLayout struct {
	size  uint64
	align uint64
}

// structField is one member of a struct declaration. Builtin members carry no buffer storage.
type structField struct {
	name    string
	typ     string
	builtin bool
}

type structDecl struct {
	name   string
	fields []structField
}

// reflection is everything the pipeline side needs to know about a pre-processed source.
type reflection struct {
	entryPoint    string
	workgroupSize [3]uint32
	structs       map[string]typeLayout
	layouts       map[int]wgpu.BindGroupLayoutDescriptor
	varNames      map[int]map[int]string
}

var (
	resourceDecl  = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
	workgroupDecl = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?(?:,\s*(\d+)\s*)?\)`)
	structHead    = regexp.MustCompile(`\bstruct\s+(\w+)\s*\{`)
)

var stageAttributes = map[ShaderType]string{
	ShaderTypeCompute:  "@compute",
	ShaderTypeVertex:   "@vertex",
	ShaderTypeFragment: "@fragment",
}

var storageFormats = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"rgba16uint":  wgpu.TextureFormatRGBA16Uint,
	"rgba16sint":  wgpu.TextureFormatRGBA16Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"rg32float":   wgpu.TextureFormatRG32Float,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"rgba32uint":  wgpu.TextureFormatRGBA32Uint,
	"rgba32sint":  wgpu.TextureFormatRGBA32Sint,
}

var textureDimensions = map[string]wgpu.TextureViewDimension{
	"1d":         wgpu.TextureViewDimension1D,
	"2d":         wgpu.TextureViewDimension2D,
	"2d_array":   wgpu.TextureViewDimension2DArray,
	"3d":         wgpu.TextureViewDimension3D,
	"cube":       wgpu.TextureViewDimensionCube,
	"cube_array": wgpu.TextureViewDimensionCubeArray,
}

var accessModes = map[string]wgpu.StorageTextureAccess{
	"read":       wgpu.StorageTextureAccessReadOnly,
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// reflectWGSL scans pre-processed source for the entry point of the given stage, its
// workgroup size, the layout of every struct, and the resource declarations of each group.
func reflectWGSL(source string, stage ShaderType, visibility wgpu.ShaderStage) reflection {
	src := stripComments(source)
	r := reflection{
		entryPoint: entryPoint(src, stage),
		structs:    structLayouts(structDecls(src)),
	}
	if stage == ShaderTypeCompute {
		r.workgroupSize = workgroupSize(src)
	}
	r.layouts, r.varNames = resourceLayouts(src, visibility, r.structs)
	return r
}

// stripComments drops line comments and nested block comments, keeping newlines so
// positions stay on the same line.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	depth := 0
	for i := 0; i < len(src); i++ {
		switch {
		case depth == 0 && strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case strings.HasPrefix(src[i:], "/*"):
			depth++
			i++
		case depth > 0 && strings.HasPrefix(src[i:], "*/"):
			depth--
			i++
		case depth > 0:
			if src[i] == '\n' {
				b.WriteByte('\n')
			}
		default:
			b.WriteByte(src[i])
		}
	}
	return b.String()
}

// entryPoint returns the name of the first function carrying the stage attribute.
func entryPoint(src string, stage ShaderType) string {
	attr, ok := stageAttributes[stage]
	if !ok {
		return ""
	}
	for rest := src; ; {
		i := strings.Index(rest, attr)
		if i < 0 {
			return ""
		}
		rest = rest[i+len(attr):]
		if rest != "" && isIdent(rest[0]) {
			continue
		}
		return functionName(rest)
	}
}

// functionName returns the identifier after the first fn keyword in src.
func functionName(src string) string {
	for i := 0; i+2 < len(src); i++ {
		if src[i] != 'f' || src[i+1] != 'n' || (i > 0 && isIdent(src[i-1])) || isIdent(src[i+2]) {
			continue
		}
		name := strings.TrimLeft(src[i+2:], " \t\r\n")
		end := 0
		for end < len(name) && isIdent(name[end]) {
			end++
		}
		return name[:end]
	}
	return ""
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// workgroupSize reads @workgroup_size, defaulting omitted dimensions and a missing attribute to 1.
func workgroupSize(src string) [3]uint32 {
	size := [3]uint32{1, 1, 1}
	m := workgroupDecl.FindStringSubmatch(src)
	for i := 1; m != nil && i < len(m); i++ {
		if v, err := strconv.ParseUint(m[i], 10, 32); err == nil {
			size[i-1] = uint32(v)
		}
	}
	return size
}

// structDecls finds every struct declaration and splits its body into members.
func structDecls(src string) []structDecl {
	var out []structDecl
	for _, loc := range structHead.FindAllStringSubmatchIndex(src, -1) {
		open := loc[1]
		end := strings.IndexByte(src[open:], '}')
		if end < 0 {
			break
		}
		d := structDecl{name: src[loc[2]:loc[3]]}
		for _, member := range splitTopLevel(src[open : open+end]) {
			member = strings.TrimSpace(member)
			builtin := strings.Contains(member, "@builtin(")
			for strings.HasPrefix(member, "@") {
				member = strings.TrimSpace(skipAttribute(member))
			}
			name, typ, ok := strings.Cut(member, ":")
			if !ok {
				continue
			}
			d.fields = append(d.fields, structField{
				name:    strings.TrimSpace(name),
				typ:     strings.TrimSpace(typ),
				builtin: builtin,
			})
		}
		out = append(out, d)
	}
	return out
}

// skipAttribute removes one leading @attr or @attr(...) from s.
func skipAttribute(s string) string {
	i := 1
	for i < len(s) && isIdent(s[i]) {
		i++
	}
	rest := strings.TrimLeft(s[i:], " \t\n")
	if strings.HasPrefix(rest, "(") {
		if j := strings.IndexByte(rest, ')'); j >= 0 {
			return rest[j+1:]
		}
	}
	return rest
}

// splitTopLevel splits at commas outside angle brackets, so array<T, N> stays whole.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// structLayouts lays out every struct whose member types resolve. Structs may reference
// structs declared later, so resolution repeats until nothing new is laid out.
func structLayouts(decls []structDecl) map[string]typeLayout {
	known := make(map[string]typeLayout, len(decls))
	for progress := true; progress; {
		progress = false
		for _, d := range decls {
			if _, done := known[d.name]; done {
				continue
			}
			if l, ok := layoutStruct(d, known); ok {
				known[d.name] = l
				progress = true
			}
		}
	}
	return known
}

func layoutStruct(d structDecl, known map[string]typeLayout) (typeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for i, f := range d.fields {
		if f.builtin {
			continue
		}
		l, ok := layoutOf(f.typ, known)
		if !ok {
			return typeLayout{}, false
		}
		// A trailing runtime array contributes only its alignment.
		if i == len(d.fields)-1 && isRuntimeArray(f.typ) {
			align = max(align, l.align)
			break
		}
		offset = alignUp(l.align, offset) + l.size
		align = max(align, l.align)
	}
	return typeLayout{size: alignUp(align, offset), align: align}, true
}

// layoutOf resolves scalars, vectors, matrices, atomics, arrays and known structs.
// A runtime-sized array reports one element so it can serve as a minimum binding size.
func layoutOf(typ string, known map[string]typeLayout) (typeLayout, bool) {
	typ = strings.ReplaceAll(typ, " ", "")
	if l, ok := known[typ]; ok {
		return l, true
	}
	switch typ {
	case "f32", "i32", "u32", "bool":
		return typeLayout{4, 4}, true
	case "f16":
		return typeLayout{2, 2}, true
	}
	base, arg := splitTypeParams(typ)
	switch {
	case base == "atomic":
		return layoutOf(arg, known)
	case base == "array":
		elemType, count, sized := strings.Cut(arg, ",")
		elem, ok := layoutOf(elemType, known)
		if !ok {
			return typeLayout{}, false
		}
		stride := alignUp(elem.align, elem.size)
		if !sized {
			return typeLayout{stride, elem.align}, true
		}
		n, err := strconv.ParseUint(count, 10, 64)
		if err != nil {
			return typeLayout{}, false
		}
		return typeLayout{n * stride, elem.align}, true
	case strings.HasPrefix(base, "vec") && len(base) >= 4:
		return vectorLayout(base, arg)
	case strings.HasPrefix(base, "mat") && len(base) >= 6:
		cols, rows := int(base[3]-'0'), int(base[5]-'0')
		scalar := arg
		if scalar == "" && len(base) == 7 {
			scalar = shorthandScalar(base[6])
		}
		col, ok := vectorLayout("vec"+string(base[5]), scalar)
		if !ok || cols < 2 || cols > 4 || rows < 2 || rows > 4 {
			return typeLayout{}, false
		}
		return typeLayout{uint64(cols) * alignUp(col.align, col.size), col.align}, true
	}
	return typeLayout{}, false
}

// vectorLayout handles both vecN<T> and the vecNf / vecNh style aliases.
func vectorLayout(base, scalar string) (typeLayout, bool) {
	n := int(base[3] - '0')
	if scalar == "" && len(base) == 5 {
		scalar = shorthandScalar(base[4])
	}
	if n < 2 || n > 4 {
		return typeLayout{}, false
	}
	width := uint64(4)
	switch scalar {
	case "f32", "i32", "u32", "bool":
	case "f16":
		width = 2
	default:
		return typeLayout{}, false
	}
	size := uint64(n) * width
	align := size
	if n == 3 {
		align = 4 * width
	}
	return typeLayout{size, align}, true
}

func shorthandScalar(c byte) string {
	switch c {
	case 'f':
		return "f32"
	case 'i':
		return "i32"
	case 'u':
		return "u32"
	case 'h':
		return "f16"
	}
	return ""
}

func isRuntimeArray(typ string) bool {
	base, arg := splitTypeParams(strings.ReplaceAll(typ, " ", ""))
	return base == "array" && !strings.Contains(arg, ",")
}

func alignUp(align, v uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// splitTypeParams splits "texture_2d<f32>" into "texture_2d" and "f32".
func splitTypeParams(typ string) (string, string) {
	base, rest, ok := strings.Cut(typ, "<")
	if !ok {
		return typ, ""
	}
	return base, strings.TrimSpace(strings.TrimSuffix(rest, ">"))
}

// resourceLayouts turns every @group/@binding declaration into a layout entry, sorted by
// binding within each group. Buffer entries get the bound type's size as MinBindingSize.
func resourceLayouts(src string, visibility wgpu.ShaderStage, structs map[string]typeLayout) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	entries := make(map[int][]wgpu.BindGroupLayoutEntry)
	names := make(map[int]map[int]string)
	for _, m := range resourceDecl.FindAllStringSubmatch(src, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		entry := resourceEntry(uint32(binding), visibility, strings.TrimSpace(m[3]), m[5])
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if l, ok := layoutOf(m[5], structs); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}
		entries[group] = append(entries[group], entry)
		if names[group] == nil {
			names[group] = make(map[int]string)
		}
		names[group][binding] = m[4]
	}

	layouts := make(map[int]wgpu.BindGroupLayoutDescriptor, len(entries))
	for g, e := range entries {
		slices.SortFunc(e, func(a, b wgpu.BindGroupLayoutEntry) int { return int(a.Binding) - int(b.Binding) })
		layouts[g] = wgpu.BindGroupLayoutDescriptor{Entries: e}
	}
	return layouts, names
}

func resourceEntry(binding uint32, visibility wgpu.ShaderStage, space, typ string) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	switch {
	case space == "uniform":
		e.Buffer.Type = wgpu.BufferBindingTypeUniform
		return e
	case strings.HasPrefix(space, "storage") && strings.Contains(space, "read_write"):
		e.Buffer.Type = wgpu.BufferBindingTypeStorage
		return e
	case strings.HasPrefix(space, "storage"):
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		return e
	}

	base, arg := splitTypeParams(typ)
	switch {
	case base == "sampler":
		e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case base == "sampler_comparison":
		e.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(base, "texture_storage_"):
		e.StorageTexture.ViewDimension = textureDimensions[strings.TrimPrefix(base, "texture_storage_")]
		format, access, _ := strings.Cut(arg, ",")
		e.StorageTexture.Format = storageFormats[strings.TrimSpace(format)]
		e.StorageTexture.Access = accessModes[strings.TrimSpace(access)]
	case strings.HasPrefix(base, "texture_depth_"):
		dim := strings.TrimPrefix(base, "texture_depth_")
		dim, e.Texture.Multisampled = strings.CutPrefix(dim, "multisampled_")
		e.Texture.SampleType = wgpu.TextureSampleTypeDepth
		e.Texture.ViewDimension = textureDimensions[dim]
	case strings.HasPrefix(base, "texture_"):
		dim := strings.TrimPrefix(base, "texture_")
		dim, e.Texture.Multisampled = strings.CutPrefix(dim, "multisampled_")
		e.Texture.ViewDimension = textureDimensions[dim]
		switch arg {
		case "f32":
			e.Texture.SampleType = wgpu.TextureSampleTypeFloat
		case "i32":
			e.Texture.SampleType = wgpu.TextureSampleTypeSint
		case "u32":
			e.Texture.SampleType = wgpu.TextureSampleTypeUint
		}
	}
	return e
}
