// Package config centralizes the interpreter's configurable parameters so
// defaults and env-var overrides live in one place instead of scattered
// through the interpreter core, mirroring InterpreterConfig.hpp in the
// original implementation this system was distilled from.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Values are the fully-resolved interpreter options after defaulting and
// validation. Field names and defaults match the Options table in the
// specification exactly.
type Values struct {
	MaxLoopIterations uint32
	MaxCallDepth      uint32
	MemoryLimitBytes  uint64
	SyncMode          bool
	Verbose           bool
	EmitVersionInfo   bool
}

// 8 MiB PSRAM + 512 KiB RAM, matching the ESP32 target configuration this
// system was originally sized for.
const DefaultMemoryLimitBytes uint64 = 8*1024*1024 + 512*1024

// Defaults returns the documented zero-value defaults.
func Defaults() Values {
	return Values{
		MaxLoopIterations: 1000,
		MaxCallDepth:      64,
		MemoryLimitBytes:  DefaultMemoryLimitBytes,
		SyncMode:          true,
		Verbose:           false,
		EmitVersionInfo:   true,
	}
}

// Validate rejects option combinations that can never execute meaningfully.
// maxLoopIterations == 0 is explicitly legal (spec boundary case: an empty
// loop body terminates on the first check), so only the call-depth and
// memory-limit fields are checked.
func Validate(v Values) error {
	if v.MaxCallDepth == 0 {
		return errors.New("config: MaxCallDepth must be >= 1")
	}
	if v.MemoryLimitBytes == 0 {
		return errors.New("config: MemoryLimitBytes must be > 0")
	}
	return nil
}

// ApplyEnv overlays ARDUINOINTERP_* environment variables onto v, for use by
// cmd/arduino-interp. Unset or malformed variables are ignored, leaving the
// existing value in place.
func ApplyEnv(v Values) Values {
	if s, ok := os.LookupEnv("ARDUINOINTERP_MAX_LOOP_ITERATIONS"); ok {
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			v.MaxLoopIterations = uint32(n)
		}
	}
	if s, ok := os.LookupEnv("ARDUINOINTERP_MAX_CALL_DEPTH"); ok {
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			v.MaxCallDepth = uint32(n)
		}
	}
	if s, ok := os.LookupEnv("ARDUINOINTERP_MEMORY_LIMIT_BYTES"); ok {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			v.MemoryLimitBytes = n
		}
	}
	if s, ok := os.LookupEnv("ARDUINOINTERP_SYNC_MODE"); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			v.SyncMode = b
		}
	}
	if s, ok := os.LookupEnv("ARDUINOINTERP_VERBOSE"); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			v.Verbose = b
		}
	}
	if s, ok := os.LookupEnv("ARDUINOINTERP_EMIT_VERSION_INFO"); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			v.EmitVersionInfo = b
		}
	}
	return v
}
