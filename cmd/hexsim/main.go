// Command hexsim replays page access traces against buffer cache
// replacement policies and reports hit ratios and device costs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sibexico/HexSim/storage"
)

const usageText = `usage: hexsim <command> [flags] [args]

commands:
  run       replay trace files, or a synthetic workload when none are given
  gen       write a synthetic trace file
  repl      issue reads and writes interactively
  policies  list replacement policies and their arguments

Run "hexsim <command> -h" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hexsim:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usageText)
		return errors.New("no command given")
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:], stdout)
	case "gen":
		err = cmdGen(args[1:], stdout)
	case "repl":
		err = cmdRepl(args[1:], stdout)
	case "policies":
		err = cmdPolicies(stdout)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usageText)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func cmdPolicies(stdout io.Writer) error {
	for _, name := range storage.RegisteredPolicies() {
		fmt.Fprintf(stdout, "%-8s %s\n", name, storage.PolicyUsage(name))
	}
	return nil
}

// configFlags binds the storage.Config fields to command-line flags. Flags
// override the config file and HEXSIM_* variables only when given.
type configFlags struct {
	fs   *flag.FlagSet
	path string

	pageCount   int
	pageSize    int
	policy      string
	policyArgs  string
	readCost    float64
	writeCost   float64
	device      string
	devicePath  string
	compression string
	verify      bool
	logLevel    string
	logFormat   string
	logOutput   string
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	d := storage.DefaultConfig()
	f := &configFlags{fs: fs}
	fs.StringVar(&f.path, "config", "", "JSON or YAML config file")
	fs.IntVar(&f.pageCount, "pages", d.PageCount, "cache capacity in pages")
	fs.IntVar(&f.pageSize, "page-size", d.PageSize, "page size in bytes")
	fs.StringVar(&f.policy, "policy", d.Policy, "replacement policy")
	fs.StringVar(&f.policyArgs, "args", "", "comma separated policy arguments")
	fs.Float64Var(&f.readCost, "read-cost", d.ReadCost, "cost of one device read")
	fs.Float64Var(&f.writeCost, "write-cost", d.WriteCost, "cost of one device write")
	fs.StringVar(&f.device, "device", d.Device, "trivial, null, memory, compressed, file or mmap")
	fs.StringVar(&f.devicePath, "device-path", "", "backing file for file and mmap devices")
	fs.StringVar(&f.compression, "compression", d.Compression, "none, lz4, snappy or best")
	fs.BoolVar(&f.verify, "verify", false, "check every read against the last write")
	fs.StringVar(&f.logLevel, "log-level", d.LogLevel, "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", d.LogFormat, "json or console")
	fs.StringVar(&f.logOutput, "log-output", "", "log file, stdout or stderr")
	return f
}

// load builds the configuration from defaults, the config file, the
// environment and the flags that were set, in that order.
func (f *configFlags) load() (*storage.Config, error) {
	cfg := storage.DefaultConfig()
	if f.path != "" {
		var err error
		if cfg, err = storage.LoadConfigFromFile(f.path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "pages":
			cfg.PageCount = f.pageCount
		case "page-size":
			cfg.PageSize = f.pageSize
		case "policy":
			cfg.Policy = f.policy
		case "args":
			cfg.PolicyArgs = nil
			if f.policyArgs != "" {
				cfg.PolicyArgs = strings.Split(f.policyArgs, ",")
			}
		case "read-cost":
			cfg.ReadCost = f.readCost
		case "write-cost":
			cfg.WriteCost = f.writeCost
		case "device":
			cfg.Device = f.device
		case "device-path":
			cfg.DevicePath = f.devicePath
		case "compression":
			cfg.Compression = f.compression
		case "verify":
			cfg.Verify = f.verify
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "log-format":
			cfg.LogFormat = f.logFormat
		case "log-output":
			cfg.LogOutput = f.logOutput
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
