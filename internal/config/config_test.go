package config

import "testing"

func TestDefaults(t *testing.T) {
	v := Defaults()
	if v.MaxLoopIterations != 1000 || v.MaxCallDepth != 64 || !v.SyncMode || !v.EmitVersionInfo {
		t.Fatalf("unexpected defaults: %+v", v)
	}
	if v.MemoryLimitBytes != DefaultMemoryLimitBytes {
		t.Fatalf("memory limit = %d, want %d", v.MemoryLimitBytes, DefaultMemoryLimitBytes)
	}
}

func TestValidate(t *testing.T) {
	v := Defaults()
	v.MaxCallDepth = 0
	if err := Validate(v); err == nil {
		t.Fatal("expected error for zero MaxCallDepth")
	}

	v = Defaults()
	v.MemoryLimitBytes = 0
	if err := Validate(v); err == nil {
		t.Fatal("expected error for zero MemoryLimitBytes")
	}

	v = Defaults()
	v.MaxLoopIterations = 0
	if err := Validate(v); err != nil {
		t.Fatalf("MaxLoopIterations=0 must be legal: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ARDUINOINTERP_MAX_LOOP_ITERATIONS", "5")
	t.Setenv("ARDUINOINTERP_VERBOSE", "true")
	v := ApplyEnv(Defaults())
	if v.MaxLoopIterations != 5 {
		t.Fatalf("MaxLoopIterations = %d, want 5", v.MaxLoopIterations)
	}
	if !v.Verbose {
		t.Fatal("Verbose = false, want true")
	}
}
