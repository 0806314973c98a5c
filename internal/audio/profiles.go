package audio

import "github.com/RavennaNMA/defensor/internal/config"

// Profile is one named voice-mod preset (spec §4.5), grounded on
// voice_mod_service.py's VoiceProfile.PROFILES table.
type Profile struct {
	PitchShift   float64
	FormantShift float64
	ReverbAmount float64
	Distortion   float64
	Compression  float64
	EQBass       float64
	EQMid        float64
	EQTreble     float64
	EchoDelay    float64
}

// Profiles is the fixed set of named presets selectable via
// VoiceModConfig.Profile.
var Profiles = map[string]Profile{
	"None": {},
	"Cinematic": {
		PitchShift: -2.0, FormantShift: -1.0, ReverbAmount: 0.4,
		Compression: 0.3, EQBass: 0.2, EQMid: 0.1, EQTreble: -0.1,
	},
	"Monster": {
		PitchShift: -8.0, FormantShift: -3.0, ReverbAmount: 0.2,
		Distortion: 0.3, EQBass: 0.4, EQMid: -0.2,
	},
	"Singer": {
		FormantShift: 0.2, ReverbAmount: 0.3, Compression: 0.6,
		EQMid: 0.3, EQTreble: 0.2,
	},
	"Robot": {
		PitchShift: 0.0, FormantShift: 0.0, Distortion: 0.4,
		EQMid: -0.3, EQTreble: 0.1,
	},
	"Child": {
		PitchShift: 4.0, FormantShift: 2.0, EQMid: 0.1, EQTreble: 0.3,
	},
	"Darth Vader": {
		PitchShift: -6.0, FormantShift: -2.0, EchoDelay: 0.2,
		Compression: 0.4, EQBass: 0.3, EQMid: -0.1,
	},
	"Elderly": {
		PitchShift: -1.5, FormantShift: -0.8, Distortion: 0.1,
		EQMid: -0.2, EQTreble: 0.3,
	},
	"Broadcast": {
		Compression: 0.7, EQBass: 0.2, EQMid: 0.4, EQTreble: -0.1,
	},
	"Ghost": {
		PitchShift: 1.0, FormantShift: 0.5, ReverbAmount: 0.7,
		EchoDelay: 0.3, Compression: 0.2,
	},
	"Giant": {
		PitchShift: -5.0, FormantShift: -3.0, ReverbAmount: 0.4, EQBass: 0.6,
	},
}

// Resolve turns a VoiceModConfig into the effective DSP settings passed to
// Chain: when ManualMode is set the config's own fields are used verbatim,
// otherwise the named Profile is looked up and scaled by ProfileIntensity
// (spec §4.5: "profiles scale linearly with profile_intensity in [0,1]").
func Resolve(cfg config.VoiceModConfig) config.VoiceModConfig {
	if !cfg.Enabled {
		return config.VoiceModConfig{}
	}
	if cfg.ManualMode {
		return cfg
	}

	p, ok := Profiles[cfg.Profile]
	if !ok {
		p = Profiles["None"]
	}
	intensity := cfg.ProfileIntensity
	if intensity <= 0 {
		intensity = 1
	}

	out := cfg
	out.PitchShift = p.PitchShift * intensity
	out.FormantShift = p.FormantShift * intensity
	out.ReverbAmount = p.ReverbAmount * intensity
	out.Distortion = p.Distortion * intensity
	out.Compression = p.Compression * intensity
	out.EQBass = p.EQBass * intensity
	out.EQMid = p.EQMid * intensity
	out.EQTreble = p.EQTreble * intensity
	out.EchoDelay = p.EchoDelay * intensity
	if out.EffectBlend <= 0 {
		out.EffectBlend = 1
	}
	return out
}
