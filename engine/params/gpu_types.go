package params

// TraceParams is the uniform record read by the trace kernel.
type TraceParams struct {
	TextureWidth        float32    `wgsl:"texture_width"`
	TextureHeight       float32    `wgsl:"texture_height"`
	Fov                 float32    `wgsl:"fov"`
	SamplesPerPixel     float32    `wgsl:"samples_per_pixel"`
	CameraPosition      [3]float32 `wgsl:"camera_position"`
	Pitch               float32    `wgsl:"pitch"`
	Yaw                 float32    `wgsl:"yaw"`
	LightIntensity      float32    `wgsl:"light_intensity"`
	LightSamplingAmount float32    `wgsl:"light_sampling_amount"`
	Time                float32    `wgsl:"time"`
	SampleCount         uint32     `wgsl:"sample_count"`
}

// AccumulateParams is the uniform record read by the accumulation kernel.
// Clear is 1 on the first frame after an invalidation.
type AccumulateParams struct {
	Clear       int32 `wgsl:"clear"`
	SampleCount int32 `wgsl:"sample_count"`
}

// TonemapParams is the uniform record read by the tonemap kernel.
type TonemapParams struct {
	Exposure float32 `wgsl:"exposure"`
	Gamma    float32 `wgsl:"gamma"`
	Curve    uint32  `wgsl:"curve"`
}

// Layouts for every uniform record. Kernels include these by the keys below.
var (
	TraceLayout      = MustLayout("TraceParams", TraceParams{})
	AccumulateLayout = MustLayout("AccumulateParams", AccumulateParams{})
	TonemapLayout    = MustLayout("TonemapParams", TonemapParams{})
)

// Include keys used with the shader pre-processor.
const (
	TraceInclude      = "trace_params"
	AccumulateInclude = "accumulate_params"
	TonemapInclude    = "tonemap_params"
)
