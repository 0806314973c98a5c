package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Period.DetectDuration != 3.0 {
		t.Errorf("expected DetectDuration 3.0, got %f", cfg.Period.DetectDuration)
	}
	if cfg.Period.DetectionSensitivity != 0.5 {
		t.Errorf("expected DetectionSensitivity 0.5, got %f", cfg.Period.DetectionSensitivity)
	}
	if len(cfg.Weapons) == 0 {
		t.Fatal("expected at least one default weapon")
	}
	if cfg.SSR.SSR1.Pin != 12 || cfg.SSR.SSR2.Pin != 13 {
		t.Errorf("expected default SSR pins 12/13, got %d/%d", cfg.SSR.SSR1.Pin, cfg.SSR.SSR2.Pin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingDirFallsBackToDefaults(t *testing.T) {
	cfg, res := Load(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fallback config should validate: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected warnings when no config files exist")
	}
}

func TestLoadPeriodConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "period_config.csv"), ""+
		"display_name,param_key,default_value,description\n"+
		"Detect Duration,detect_duration,0.1,how long a face must be seen\n"+
		"Cooldown,cooldown_time,0.25,cooldown after reset\n")

	cfg, res := Load(dir)
	if cfg.Period.DetectDuration != 0.1 {
		t.Errorf("expected DetectDuration 0.1, got %f", cfg.Period.DetectDuration)
	}
	if cfg.Period.CooldownTime != 0.25 {
		t.Errorf("expected CooldownTime 0.25, got %f", cfg.Period.CooldownTime)
	}
	// Only period_config.csv was provided; the rest fall back with warnings.
	if len(res.Warnings) == 0 {
		t.Error("expected warnings for the other missing config files")
	}
}

func TestLoadWeaponConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "weapon_config.csv"), ""+
		"id,display_name,pin,image_path,pre_delay_ms,pulse_high_ms,post_delay_ms,fade_in_s,display_s,fade_out_s\n"+
		"01,Net Gun,4,images/01.png,0,500,100,0.5,2.0,0.5\n"+
		"02,Spotlight,,images/02.png,0,0,0,0.5,2.0,0.5\n")

	cfg, _ := Load(dir)
	if len(cfg.Weapons) != 2 {
		t.Fatalf("expected 2 weapons, got %d", len(cfg.Weapons))
	}
	if cfg.Weapons[0].Pin == nil || *cfg.Weapons[0].Pin != 4 {
		t.Errorf("expected weapon 01 pin 4, got %v", cfg.Weapons[0].Pin)
	}
	if cfg.Weapons[1].Pin != nil {
		t.Errorf("expected weapon 02 to have no pin, got %v", *cfg.Weapons[1].Pin)
	}
}

func TestLoadAnimConfigSectionsAndComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "anim_config.csv"), ""+
		"# generated file\n"+
		"Section,Key,Value\n"+
		"BASIC,position_smooth,0.1\n"+
		"BASIC,state1_duration,45\n"+
		"STATE1,alpha,0.3\n"+
		"VISUAL,flicker_probability,0.15\n")

	cfg, _ := Load(dir)
	if cfg.Anim.PositionSmooth != 0.1 {
		t.Errorf("expected PositionSmooth 0.1, got %f", cfg.Anim.PositionSmooth)
	}
	if cfg.Anim.StateDurations[0] != 45 {
		t.Errorf("expected StateDurations[0] 45, got %d", cfg.Anim.StateDurations[0])
	}
	if cfg.Anim.Phases[0].Alpha != 0.3 {
		t.Errorf("expected Phases[0].Alpha 0.3, got %f", cfg.Anim.Phases[0].Alpha)
	}
	if cfg.Anim.FlickerProbability != 0.15 {
		t.Errorf("expected FlickerProbability 0.15, got %f", cfg.Anim.FlickerProbability)
	}
}

func TestLoadTTSAndVoiceModConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tts_config.txt"), ""+
		"enabled=true\nspeed=1.25\nmax_chunk_length=150\n")
	writeFile(t, filepath.Join(dir, "voice_mod_config.txt"), ""+
		"voice_mod_enabled=yes\nvoice_profile=Monster\npitch_shift=-8\n")

	cfg, _ := Load(dir)
	if !cfg.TTS.Enabled || cfg.TTS.Speed != 1.25 || cfg.TTS.MaxChunkLength != 150 {
		t.Errorf("tts config not applied: %+v", cfg.TTS)
	}
	if !cfg.VoiceMod.Enabled || cfg.VoiceMod.Profile != "Monster" || cfg.VoiceMod.PitchShift != -8 {
		t.Errorf("voice mod config not applied: %+v", cfg.VoiceMod)
	}
}

func TestValidateRejectsDuplicateToolIDs(t *testing.T) {
	cfg := Default()
	cfg.Weapons = []ToolSpec{{ID: "01"}, {ID: "01"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected duplicate tool id to fail validation")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
