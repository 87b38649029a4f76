package engine

// Logical parameter names the engine writes every frame. Character rigs
// expose their own concrete names; the rig resolves each logical
// parameter once when a character loads instead of probing every frame.
const (
	ParamMouthOpen = "mouthOpen"
	ParamMouthForm = "mouthForm"
	ParamBlinkL    = "blinkLeft"
	ParamBlinkR    = "blinkRight"
	ParamHeadRotX  = "headRotX"
	ParamHeadRotY  = "headRotY"
	ParamHeadRotZ  = "headRotZ"
	ParamTorsoRotX = "torsoRotX"
	ParamGazeX     = "gazeX"
	ParamGazeY     = "gazeY"
)

// candidates lists the concrete rig names probed for each logical
// parameter, in preference order.
var candidates = map[string][]string{
	ParamMouthOpen: {"ParamMouthOpenY", "mouthOpen", "jawOpen", "A"},
	ParamMouthForm: {"ParamMouthForm", "mouthForm", "mouthWide"},
	ParamBlinkL:    {"ParamEyeLOpen", "eyeBlinkLeft", "blinkL"},
	ParamBlinkR:    {"ParamEyeROpen", "eyeBlinkRight", "blinkR"},
	ParamHeadRotX:  {"ParamAngleX", "headRotX", "headPitch"},
	ParamHeadRotY:  {"ParamAngleY", "headRotY", "headYaw"},
	ParamHeadRotZ:  {"ParamAngleZ", "headRotZ", "headRoll"},
	ParamTorsoRotX: {"ParamBodyAngleX", "torsoRotX", "bodyLean"},
	ParamGazeX:     {"ParamEyeBallX", "gazeX", "eyeLookX"},
	ParamGazeY:     {"ParamEyeBallY", "gazeY", "eyeLookY"},
}

// Rig is the resolved-once capability table for one character: logical
// parameter to concrete rig name, or absent. Writes to absent
// parameters are silently skipped; a character missing a torso bone
// must not break blinking.
type Rig struct {
	resolved map[string]string
}

// NewRig resolves the capability table against the concrete parameter
// names the character exposes. A nil or empty list accepts the logical
// names directly (identity rig).
func NewRig(available []string) *Rig {
	r := &Rig{resolved: make(map[string]string, len(candidates))}

	if len(available) == 0 {
		for logical := range candidates {
			r.resolved[logical] = logical
		}
		return r
	}

	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[name] = struct{}{}
	}

	for logical, names := range candidates {
		for _, name := range names {
			if _, ok := set[name]; ok {
				r.resolved[logical] = name
				break
			}
		}
	}
	return r
}

// Set writes a logical parameter into the frame map, skipping
// parameters this character does not have.
func (r *Rig) Set(params map[string]float32, logical string, value float32) {
	if concrete, ok := r.resolved[logical]; ok {
		params[concrete] = value
	}
}

// Has reports whether the character resolved the logical parameter.
func (r *Rig) Has(logical string) bool {
	_, ok := r.resolved[logical]
	return ok
}
