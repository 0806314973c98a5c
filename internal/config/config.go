// Package config provides typed access to the installation's tunables:
// timing windows, pin maps, colors, and DSP chunk sizes.
//
// Configuration is split across several small text files rather than one
// document, mirroring how the show's original author kept hardware maps
// separate from show timing separate from voice tuning. Every loader falls
// back to compiled-in defaults on a missing or malformed file and reports
// the fallback through Result so callers can warn without treating it as
// fatal.
//
//	cfg, res := config.Load("configs")
//	for _, w := range res.Warnings {
//	    log.Printf("config: %s", w)
//	}
package config

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config aggregates every tunable the installation reads at startup.
type Config struct {
	Period    PeriodConfig
	Weapons   []ToolSpec
	SSR       SSRConfig
	Anim      AnimConfig
	TTS       TTSConfig
	VoiceMod  VoiceModConfig
	Prompt    PromptConfig
}

// PeriodConfig holds the show's overall timing and sensitivity tunables,
// loaded from period_config.csv.
type PeriodConfig struct {
	DetectionSensitivity    float64
	DetectDuration          float64 // seconds
	CaptionTypingSpeed      float64 // ms/char, non-TTS mode
	CaptionWaitAfter        float64 // seconds, post-grace
	CaptionMaxCharsPerLine  int
	CaptionChineseCharWeight float64
	WeaponSwitchDelay       float64 // seconds
	CooldownTime            float64 // seconds
	LLMResponseTimeout      float64 // seconds
	MaxLostFrames           int
}

// ToolSpec describes one defensive-tool entry loaded from weapon_config.csv.
type ToolSpec struct {
	ID          string
	DisplayName string
	Pin         *uint8
	ImagePath   string
	PreDelayMs  int
	PulseHighMs int
	PostDelayMs int
	FadeInS     float64
	DisplayS    float64
	FadeOutS    float64
}

// SSRChannel describes one solid-state relay channel.
type SSRChannel struct {
	Name        string
	Pin         uint8
	PreDelayMs  int
	PostDelayMs int
}

// SSRConfig holds the two lighting channels, loaded from ssr_config.csv.
type SSRConfig struct {
	SSR1 SSRChannel
	SSR2 SSRChannel
}

// AnimPhase holds the per-phase easing and geometry for one reticle phase.
type AnimPhase struct {
	Alpha           float64
	CornerArmRatio  float64
	LineThickness   float64
	InnerRectRatio  float64
	InnerRectAlpha  float64
	CrossStartRatio float64
	CrossEndRatio   float64
}

// AnimConfig holds the overlay animator's BASIC/STATE1-4/VISUAL sections,
// loaded from anim_config.csv.
type AnimConfig struct {
	PositionSmooth     float64
	StateDurations      [4]int // frames, D1..D4
	FrameSizeMultiplier float64

	Phases [4]AnimPhase

	ColorR, ColorG, ColorB int
	Alpha                  int
	FlickerProbability     float64
}

// TTSConfig holds synthesizer tunables, loaded from tts_config.txt.
type TTSConfig struct {
	Enabled         bool
	RealtimeMode    bool
	Voice           string
	Speed           float64
	MinEnglishChars int
	MaxChunkLength  int
	MinChunkLength  int
}

// VoiceModConfig holds the DSP effect chain's tunables, loaded from
// voice_mod_config.txt.
type VoiceModConfig struct {
	Enabled          bool
	ManualMode       bool
	Profile          string
	ProfileIntensity float64

	PitchShift   float64
	FormantShift float64
	ReverbAmount float64
	EchoDelay    float64
	Distortion   float64
	Compression  float64
	EQBass       float64
	EQMid        float64
	EQTreble     float64
	EffectBlend  float64
	OutputVolume float64
}

// PromptConfig holds the LLM prompt template, loaded from prompt_config.txt,
// plus the placeholder names found in that template.
type PromptConfig struct {
	Template     string
	Placeholders []string
}

// Result reports which files loaded successfully and which fell back to
// defaults, for the debug telemetry view (§6) and startup logging.
type Result struct {
	Warnings []string
	// Loaded maps each config group ("period", "weapons", "ssr", "anim",
	// "tts", "voice_mod", "prompt") to whether it parsed from disk rather
	// than falling back to Default()'s values. Persisted to manifest.toml
	// for the debug view (§6) to read back without re-parsing every CSV.
	Loaded map[string]bool
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Default returns the compiled-in defaults, matching the values baked into
// the original installation's static fallback tables.
func Default() *Config {
	return &Config{
		Period: PeriodConfig{
			DetectionSensitivity:     0.5,
			DetectDuration:           3.0,
			CaptionTypingSpeed:       30,
			CaptionWaitAfter:         2.0,
			CaptionMaxCharsPerLine:   40,
			CaptionChineseCharWeight: 1.8,
			WeaponSwitchDelay:        0.5,
			CooldownTime:             3.0,
			LLMResponseTimeout:       10.0,
			MaxLostFrames:            10,
		},
		Weapons: []ToolSpec{
			{ID: "01", DisplayName: "Tool 01", ImagePath: "images/01.png", PreDelayMs: 0, PulseHighMs: 500, PostDelayMs: 200, FadeInS: 0.5, DisplayS: 2.0, FadeOutS: 0.5},
			{ID: "02", DisplayName: "Tool 02", ImagePath: "images/02.png", PreDelayMs: 0, PulseHighMs: 500, PostDelayMs: 200, FadeInS: 0.5, DisplayS: 2.0, FadeOutS: 0.5},
		},
		SSR: SSRConfig{
			SSR1: SSRChannel{Name: "ssr1", Pin: 12},
			SSR2: SSRChannel{Name: "ssr2", Pin: 13},
		},
		Anim: AnimConfig{
			PositionSmooth:      0.12,
			StateDurations:      [4]int{60, 60, 60, 60},
			FrameSizeMultiplier: 1.5,
			Phases: [4]AnimPhase{
				{Alpha: 0.2, CornerArmRatio: 0.07, LineThickness: 1},
				{Alpha: 0.2, InnerRectRatio: 0.9, InnerRectAlpha: 50.0 / 255.0},
				{Alpha: 0.2, CrossStartRatio: 0.55},
				{Alpha: 0.2, CrossEndRatio: 0.59},
			},
			ColorR: 255, ColorG: 0, ColorB: 0,
			Alpha:              255,
			FlickerProbability: 0.2,
		},
		TTS: TTSConfig{
			Enabled:         true,
			RealtimeMode:    true,
			Voice:           "default",
			Speed:           1.0,
			MinEnglishChars: 3,
			MaxChunkLength:  200,
			MinChunkLength:  3,
		},
		VoiceMod: VoiceModConfig{
			Enabled:      false,
			ManualMode:   true,
			Profile:      "None",
			OutputVolume: 0,
			EffectBlend:  1.0,
		},
		Prompt: PromptConfig{
			Template: "Describe the following image: {image_description}\nChoose from: {weapon_list}",
		},
	}
}

// Load reads every configuration file from dir, falling back to
// Default()'s values (per field group) on a missing or malformed file.
func Load(dir string) (*Config, *Result) {
	cfg := Default()
	res := &Result{Loaded: make(map[string]bool, 7)}

	groups := []struct {
		name string
		fn   func()
	}{
		{"period", func() { loadPeriod(filepath.Join(dir, "period_config.csv"), &cfg.Period, res) }},
		{"weapons", func() { loadWeapons(filepath.Join(dir, "weapon_config.csv"), cfg, res) }},
		{"ssr", func() { loadSSR(filepath.Join(dir, "ssr_config.csv"), &cfg.SSR, res) }},
		{"anim", func() { loadAnim(filepath.Join(dir, "anim_config.csv"), &cfg.Anim, res) }},
		{"tts", func() { loadTTS(filepath.Join(dir, "tts_config.txt"), &cfg.TTS, res) }},
		{"voice_mod", func() { loadVoiceMod(filepath.Join(dir, "voice_mod_config.txt"), &cfg.VoiceMod, res) }},
		{"prompt", func() { loadPrompt(filepath.Join(dir, "prompt_config.txt"), &cfg.Prompt, res) }},
	}
	for _, g := range groups {
		before := len(res.Warnings)
		g.fn()
		res.Loaded[g.name] = len(res.Warnings) == before
	}

	if err := cfg.Validate(); err != nil {
		res.warn("validation failed after load, reverting to full defaults: %v", err)
		return Default(), res
	}
	return cfg, res
}

// Validate rejects out-of-range values the way the teacher's Config.Validate
// rejects non-positive camera dimensions.
func (c *Config) Validate() error {
	if c.Period.DetectionSensitivity < 0 || c.Period.DetectionSensitivity > 1 {
		return fmt.Errorf("detection_sensitivity must be in [0,1], got %f", c.Period.DetectionSensitivity)
	}
	if c.Period.DetectDuration <= 0 {
		return fmt.Errorf("detect_duration must be positive, got %f", c.Period.DetectDuration)
	}
	if c.Period.CooldownTime < 0 {
		return fmt.Errorf("cooldown_time must be non-negative, got %f", c.Period.CooldownTime)
	}
	if c.Period.LLMResponseTimeout <= 0 {
		return fmt.Errorf("llm_response_timeout must be positive, got %f", c.Period.LLMResponseTimeout)
	}
	if len(c.Weapons) == 0 {
		return fmt.Errorf("at least one weapon tool must be configured")
	}
	seen := make(map[string]bool, len(c.Weapons))
	for _, w := range c.Weapons {
		if seen[w.ID] {
			return fmt.Errorf("duplicate tool id %q", w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}

// readCSVRows opens path and returns its header and data rows, skipping
// blank lines and '#'-prefixed comment lines the way anim_config.csv does.
func readCSVRows(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("%s: empty or all-comment file", path)
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return all[0], all[1:], nil
}

func colIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func loadPeriod(path string, out *PeriodConfig, res *Result) {
	header, rows, err := readCSVRows(path)
	if err != nil {
		res.warn("period_config.csv: %v, using defaults", err)
		return
	}
	keyIdx := colIndex(header, "param_key")
	valIdx := colIndex(header, "default_value")
	if keyIdx < 0 || valIdx < 0 {
		res.warn("period_config.csv: missing param_key/default_value columns, using defaults")
		return
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		if keyIdx >= len(row) || valIdx >= len(row) {
			continue
		}
		values[strings.TrimSpace(row[keyIdx])] = strings.TrimSpace(row[valIdx])
	}

	setFloat := func(key string, dst *float64) {
		if v, ok := values[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			} else {
				res.warn("period_config.csv: bad value for %s: %q", key, v)
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := values[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				res.warn("period_config.csv: bad value for %s: %q", key, v)
			}
		}
	}

	setFloat("detection_sensitivity", &out.DetectionSensitivity)
	setFloat("detect_duration", &out.DetectDuration)
	setFloat("caption_typing_speed", &out.CaptionTypingSpeed)
	setFloat("caption_wait_after", &out.CaptionWaitAfter)
	setInt("caption_max_chars_per_line", &out.CaptionMaxCharsPerLine)
	setFloat("caption_chinese_char_weight", &out.CaptionChineseCharWeight)
	setFloat("weapon_switch_delay", &out.WeaponSwitchDelay)
	setFloat("cooldown_time", &out.CooldownTime)
	setFloat("llm_response_timeout", &out.LLMResponseTimeout)
	setInt("max_lost_frames", &out.MaxLostFrames)
}

func loadWeapons(path string, cfg *Config, res *Result) {
	header, rows, err := readCSVRows(path)
	if err != nil {
		res.warn("weapon_config.csv: %v, using defaults", err)
		return
	}
	idx := func(name string) int { return colIndex(header, name) }
	iID, iName, iPin, iImg := idx("id"), idx("display_name"), idx("pin"), idx("image_path")
	iPre, iHigh, iPost := idx("pre_delay_ms"), idx("pulse_high_ms"), idx("post_delay_ms")
	iFadeIn, iDisplay, iFadeOut := idx("fade_in_s"), idx("display_s"), idx("fade_out_s")
	if iID < 0 {
		res.warn("weapon_config.csv: missing id column, using defaults")
		return
	}

	var tools []ToolSpec
	for _, row := range rows {
		get := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		t := ToolSpec{
			ID:          get(iID),
			DisplayName: get(iName),
			ImagePath:   get(iImg),
		}
		if t.ID == "" {
			continue
		}
		if p := get(iPin); p != "" {
			if n, err := strconv.Atoi(p); err == nil && n >= 0 && n <= 255 {
				pv := uint8(n)
				t.Pin = &pv
			}
		}
		t.PreDelayMs = atoiOr(get(iPre), 0)
		t.PulseHighMs = atoiOr(get(iHigh), 500)
		t.PostDelayMs = atoiOr(get(iPost), 0)
		t.FadeInS = atofOr(get(iFadeIn), 0.5)
		t.DisplayS = atofOr(get(iDisplay), 2.0)
		t.FadeOutS = atofOr(get(iFadeOut), 0.5)
		tools = append(tools, t)
	}
	if len(tools) > 0 {
		cfg.Weapons = tools
	} else {
		res.warn("weapon_config.csv: no usable rows, using defaults")
	}
}

func loadSSR(path string, out *SSRConfig, res *Result) {
	header, rows, err := readCSVRows(path)
	if err != nil {
		res.warn("ssr_config.csv: %v, using defaults", err)
		return
	}
	iName, iPin := colIndex(header, "name"), colIndex(header, "pin")
	iPre, iPost := colIndex(header, "pre_delay_ms"), colIndex(header, "post_delay_ms")
	for _, row := range rows {
		get := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		name := strings.ToLower(get(iName))
		ch := SSRChannel{
			Name:        name,
			Pin:         uint8(atoiOr(get(iPin), 0)),
			PreDelayMs:  atoiOr(get(iPre), 0),
			PostDelayMs: atoiOr(get(iPost), 0),
		}
		switch name {
		case "ssr1":
			out.SSR1 = ch
		case "ssr2":
			out.SSR2 = ch
		}
	}
}

func loadAnim(path string, out *AnimConfig, res *Result) {
	header, rows, err := readCSVRows(path)
	if err != nil {
		res.warn("anim_config.csv: %v, using defaults", err)
		return
	}
	iSection, iKey, iVal := colIndex(header, "Section"), colIndex(header, "Key"), colIndex(header, "Value")
	if iSection < 0 || iKey < 0 || iVal < 0 {
		res.warn("anim_config.csv: missing Section/Key/Value columns, using defaults")
		return
	}

	get := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for _, row := range rows {
		section := strings.ToUpper(get(row, iSection))
		key := strings.ToLower(get(row, iKey))
		val := get(row, iVal)

		switch section {
		case "BASIC":
			switch key {
			case "position_smooth":
				out.PositionSmooth = atofOr(val, out.PositionSmooth)
			case "frame_size_multiplier":
				out.FrameSizeMultiplier = atofOr(val, out.FrameSizeMultiplier)
			case "state1_duration":
				out.StateDurations[0] = atoiOr(val, out.StateDurations[0])
			case "state2_duration":
				out.StateDurations[1] = atoiOr(val, out.StateDurations[1])
			case "state3_duration":
				out.StateDurations[2] = atoiOr(val, out.StateDurations[2])
			case "state4_duration":
				out.StateDurations[3] = atoiOr(val, out.StateDurations[3])
			}
		case "STATE1", "STATE2", "STATE3", "STATE4":
			idx := int(section[5] - '1')
			p := &out.Phases[idx]
			switch key {
			case "alpha":
				p.Alpha = atofOr(val, p.Alpha)
			case "corner_arm_ratio":
				p.CornerArmRatio = atofOr(val, p.CornerArmRatio)
			case "line_thickness":
				p.LineThickness = atofOr(val, p.LineThickness)
			case "inner_rect_ratio":
				p.InnerRectRatio = atofOr(val, p.InnerRectRatio)
			case "inner_rect_alpha":
				p.InnerRectAlpha = atofOr(val, p.InnerRectAlpha)
			case "cross_start_ratio":
				p.CrossStartRatio = atofOr(val, p.CrossStartRatio)
			case "cross_end_ratio":
				p.CrossEndRatio = atofOr(val, p.CrossEndRatio)
			}
		case "VISUAL":
			switch key {
			case "color_r":
				out.ColorR = atoiOr(val, out.ColorR)
			case "color_g":
				out.ColorG = atoiOr(val, out.ColorG)
			case "color_b":
				out.ColorB = atoiOr(val, out.ColorB)
			case "alpha":
				out.Alpha = atoiOr(val, out.Alpha)
			case "flicker_probability":
				out.FlickerProbability = atofOr(val, out.FlickerProbability)
			}
		}
	}
}

func loadKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return values, sc.Err()
}

func loadTTS(path string, out *TTSConfig, res *Result) {
	values, err := loadKeyValueFile(path)
	if err != nil {
		res.warn("tts_config.txt: %v, using defaults", err)
		return
	}
	if v, ok := values["enabled"]; ok {
		out.Enabled = parseBool(v, out.Enabled)
	}
	if v, ok := values["realtime_mode"]; ok {
		out.RealtimeMode = parseBool(v, out.RealtimeMode)
	}
	if v, ok := values["voice"]; ok {
		out.Voice = v
	}
	if v, ok := values["speed"]; ok {
		out.Speed = atofOr(v, out.Speed)
	}
	if v, ok := values["min_english_chars"]; ok {
		out.MinEnglishChars = atoiOr(v, out.MinEnglishChars)
	}
	if v, ok := values["max_chunk_length"]; ok {
		out.MaxChunkLength = atoiOr(v, out.MaxChunkLength)
	}
	if v, ok := values["min_chunk_length"]; ok {
		out.MinChunkLength = atoiOr(v, out.MinChunkLength)
	}
}

func loadVoiceMod(path string, out *VoiceModConfig, res *Result) {
	values, err := loadKeyValueFile(path)
	if err != nil {
		res.warn("voice_mod_config.txt: %v, using defaults", err)
		return
	}
	str := func(key string, dst *string) {
		if v, ok := values[key]; ok {
			*dst = v
		}
	}
	fl := func(key string, dst *float64) {
		if v, ok := values[key]; ok {
			*dst = atofOr(v, *dst)
		}
	}
	if v, ok := values["voice_mod_enabled"]; ok {
		out.Enabled = parseBool(v, out.Enabled)
	}
	if v, ok := values["manual_mode"]; ok {
		out.ManualMode = parseBool(v, out.ManualMode)
	}
	str("voice_profile", &out.Profile)
	fl("profile_intensity", &out.ProfileIntensity)
	fl("pitch_shift", &out.PitchShift)
	fl("formant_shift", &out.FormantShift)
	fl("reverb_amount", &out.ReverbAmount)
	fl("echo_delay", &out.EchoDelay)
	fl("distortion", &out.Distortion)
	fl("compression", &out.Compression)
	fl("eq_bass", &out.EQBass)
	fl("eq_mid", &out.EQMid)
	fl("eq_treble", &out.EQTreble)
	fl("effect_blend", &out.EffectBlend)
	fl("output_volume", &out.OutputVolume)
}

func loadPrompt(path string, out *PromptConfig, res *Result) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.warn("prompt_config.txt: %v, using default template", err)
		return
	}
	out.Template = string(data)
	out.Placeholders = extractPlaceholders(out.Template)
}

func extractPlaceholders(template string) []string {
	var names []string
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			break
		}
		names = append(names, template[start+1:start+end])
		template = template[start+end+1:]
	}
	return names
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func atofOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return fallback
	}
}
