// Command arduino-interp loads a CompactAST binary, runs it to completion
// (or to its configured loop limit), and writes the resulting command
// stream to stdout as newline-delimited JSON, one object per line.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/interp"
	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/config"
)

var (
	maxLoopIterations = flag.Uint("max-loop-iterations", 0, "override the configured loop() iteration limit (0 keeps the default)")
	maxCallDepth      = flag.Uint("max-call-depth", 0, "override the configured recursion limit (0 keeps the default)")
	syncMode          = flag.Bool("sync", true, "block external reads on the demo provider instead of returning advisory zeros")
	verbose           = flag.Bool("verbose", false, "record interpreter trace events and dump them to stderr on exit")
	versionInfo       = flag.Bool("version-info", true, "emit a VERSION_INFO command before PROGRAM_START")
	memoryLimitBytes  = flag.Uint64("memory-limit-bytes", config.DefaultMemoryLimitBytes, "soft ceiling on value-heap residency")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: arduino-interp [flags] <program.ast>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "arduino-interp:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	astBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	opts := interp.Options{
		MaxLoopIterations: uint32(*maxLoopIterations),
		MaxCallDepth:      uint32(*maxCallDepth),
		MemoryLimitBytes:  *memoryLimitBytes,
		SyncMode:          syncMode,
		Verbose:           *verbose,
		EmitVersionInfo:   versionInfo,
	}

	it, err := interp.New(astBytes, opts)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	enc := json.NewEncoder(out)
	it.SetCommandCallback(func(c interp.Command) {
		if err := enc.Encode(c); err != nil {
			fmt.Fprintln(os.Stderr, "arduino-interp: failed to encode command:", err)
		}
	})
	it.SetSyncDataProvider(newDemoProvider())

	if err := it.Start(); err != nil {
		return err
	}

	if err := out.Flush(); err != nil {
		return err
	}

	if *verbose {
		dumpTrace(it)
	}

	if it.State() == interp.StateError {
		return errors.New("program terminated with an error; see the ERROR command above")
	}
	return nil
}

func dumpTrace(it *interp.Interpreter) {
	for _, ev := range it.Trace() {
		fmt.Fprintf(os.Stderr, "trace: %s %s %s\n", ev.Kind, ev.Label, ev.Detail)
	}
}

// demoProvider answers world-read requests with fixed, reproducible values
// so a captured command stream is stable across runs; it stands in for the
// host environment's real pin/timer/sensor state when no such environment
// is wired. millis/micros advance each call instead of staying fixed, the
// way a real clock would.
type demoProvider struct {
	millis uint32
	micros uint32
}

func newDemoProvider() *demoProvider { return &demoProvider{} }

func (p *demoProvider) AnalogRead(pin int32) (int32, error) {
	return (pin * 37) % 1024, nil
}

func (p *demoProvider) DigitalRead(pin int32) (int32, error) {
	return pin % 2, nil
}

func (p *demoProvider) Millis() (uint32, error) {
	p.millis += 1
	return p.millis, nil
}

func (p *demoProvider) Micros() (uint32, error) {
	p.micros += 1000
	return p.micros, nil
}

func (p *demoProvider) PulseIn(pin, value int32, timeoutMicros uint32) (uint32, error) {
	return 0, nil
}

func (p *demoProvider) LibrarySensor(object, method string, args []interp.Value) (interp.Value, error) {
	return interp.Value{}, errors.Errorf("arduino-interp: no sensor library configured for %s.%s", object, method)
}
