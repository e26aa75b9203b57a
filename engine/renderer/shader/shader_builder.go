package shader

// ShaderBuilderOption is a functional option for configuring a Shader.
// Use the With* functions to create options.
type ShaderBuilderOption func(s *shader)

// WithInclude registers a fragment for //@oxy:include and //@oxy:group annotations.
//
// Parameters:
//   - key: the include key used in annotations
//   - inc: the fragment
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithInclude(key AnnotationArg, inc Include) ShaderBuilderOption {
	return func(s *shader) {
		s.includes[key] = inc
	}
}

// WithIncludes registers several fragments at once.
//
// Parameters:
//   - includes: fragments keyed by include key
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithIncludes(includes map[AnnotationArg]Include) ShaderBuilderOption {
	return func(s *shader) {
		for k, v := range includes {
			s.includes[k] = v
		}
	}
}

// WithValidation runs the assembled source through the WGSL front end before the shader is
// returned, so malformed kernels fail at startup with a source location.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithValidation(enabled bool) ShaderBuilderOption {
	return func(s *shader) {
		s.validate = enabled
	}
}
