// Command tms-track reads a SimulationInput JSON from a file argument (or stdin),
// runs the simulation, and writes the SimulationLog JSON to stdout. Logs go to stderr.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cxd309/tms-track/internal/config"
	"github.com/cxd309/tms-track/internal/engine"
	"github.com/cxd309/tms-track/internal/logging"
	"github.com/cxd309/tms-track/internal/recorder"
)

var (
	configDir = flag.String("config", ".", "directory containing "+config.FileName)
	dbPath    = flag.String("db", "", "SQLite file to record firings and snapshots to (overrides recorder.sqlitePath)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load(*configDir); err != nil {
		return err
	}
	log := logging.New(os.Stderr, config.GetString("logLevel"))
	cfg, err := config.Get()
	if err != nil {
		log.Error("Invalid configuration", "dir", *configDir, "error", err)
		return err
	}

	var data []byte
	if flag.NArg() > 0 {
		data, err = os.ReadFile(flag.Arg(0))
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	opts := engine.DefaultOptions()
	opts.Track = cfg.TrackOptions()
	opts.Subdivisions = cfg.Smoothing.Subdivisions
	opts.Snapshots = cfg.Recorder.Snapshots
	opts.Logger = log

	path := cfg.Recorder.SQLitePath
	if *dbPath != "" {
		path = *dbPath
	}
	if path != "" {
		rec, err := recorder.OpenSQLite(path)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts.Recorder = rec
		log.Info("Recording run", "path", path)
	}

	result, err := engine.RunJSONWith(string(data), opts)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}

	fmt.Println(result)
	return nil
}
