package stage

import (
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
)

// Kernels assembles every shader the stages would register, without a device. It is what the
// validate command runs, and it applies the same host checks as the stage constructors.
//
// Parameters:
//   - compiledScene: the WGSL scene block produced by scene.Compile
//   - opts: stage options; WithKernelSource is ignored since each kernel has its own source
//
// Returns:
//   - []shader.Shader: the trace, accumulate, tonemap, vertex and fragment shaders in frame order
//   - error: the first assembly, validation or layout failure
func Kernels(compiledScene string, opts ...StageBuilderOption) ([]shader.Shader, error) {
	base := newOptions("", opts)
	withSource := func(src string) options {
		return options{validate: base.validate, source: src}
	}

	traceIncludes := paramsInclude(params.TraceInclude, params.TraceLayout)
	traceIncludes[SceneInclude] = shader.Include{Source: compiledScene}

	out := make([]shader.Shader, 0, 5)
	for _, k := range []struct {
		key      string
		layout   *params.Layout
		includes map[shader.AnnotationArg]shader.Include
		source   string
	}{
		{TracePipelineKey, params.TraceLayout, traceIncludes, raytraceSource},
		{AccumulatePipelineKey, params.AccumulateLayout, paramsInclude(params.AccumulateInclude, params.AccumulateLayout), accumulateSource},
		{TonemapPipelineKey, params.TonemapLayout, paramsInclude(params.TonemapInclude, params.TonemapLayout), tonemapSource},
	} {
		s, err := newKernel(k.key, k.layout, k.includes, withSource(k.source))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	vs, err := shader.NewShader(PresentPipelineKey+"_vs", shader.ShaderTypeVertex, fullscreenSource, shader.WithValidation(base.validate))
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewShader(PresentPipelineKey+"_fs", shader.ShaderTypeFragment, fullscreenSource)
	if err != nil {
		return nil, err
	}
	return append(out, vs, fs), nil
}
