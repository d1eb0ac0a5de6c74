package storage

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// policyBuilder parses policy arguments and creates an unattached policy.
type policyBuilder func(args []string, cfg *Config) (Policy, error)

type policyEntry struct {
	usage string
	build policyBuilder // nil for the cacheless trivial manager
}

var policies = map[string]policyEntry{
	"trivial": {usage: "trivial (no cache)"},
	"lru":     {usage: "lru", build: buildLRU},
	"cflru":   {usage: "cflru [windowRatio=0.5]", build: buildCFLRU},
	"lirs":    {usage: "lirs [hirRatio=0.1] [ghostRatio=1.0]", build: buildLIRS},
	"flirs":   {usage: "flirs [hirRatio=0.1] [ghostRatio=1.0]", build: buildFLIRS},
	"2q":      {usage: "2q [kinRatio=0.25] [koutRatio=0.5]", build: buildTwoQ},
	"arc":     {usage: "arc", build: buildARC},
	"tn":      {usage: "tn [adjustDR enlargeCR srLimit snrLimit pickOffSR]", build: buildTn},
	"acar":    {usage: "acar [adjustDR enlargeCR srLimit snrLimit pickOffSR]", build: buildTn},
	"blower":  {usage: "blower [scanCredit=3] [readStep=0] [writeStep=0]", build: buildBlower},
}

func lookupPolicy(name string) (policyEntry, bool) {
	e, ok := policies[strings.ToLower(name)]
	return e, ok
}

// RegisteredPolicies returns the accepted policy names in sorted order.
func RegisteredPolicies() []string {
	return slices.Sorted(maps.Keys(policies))
}

// PolicyUsage describes the arguments a policy takes.
func PolicyUsage(name string) string {
	e, ok := lookupPolicy(name)
	if !ok {
		return ""
	}
	return e.usage
}

// NewPolicy creates the named policy from its textual arguments. Names are
// case-insensitive. The trivial policy has no Policy value; use
// NewBufferManager for it.
func NewPolicy(name string, args []string, cfg *Config) (Policy, error) {
	e, ok := lookupPolicy(name)
	if !ok {
		return nil, ErrUnknownPolicy("NewPolicy", name)
	}
	if e.build == nil {
		return nil, ErrInvalidConfig("NewPolicy", "policy %q has no replacement policy", name)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return e.build(args, cfg)
}

// NewBufferManager creates the manager selected by cfg over dev. A nil dev is
// replaced by a TrivialDevice with DefaultPageSize.
func NewBufferManager(cfg *Config, dev BlockDevice, opts ...Option) (BufferManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e, _ := lookupPolicy(cfg.Policy)
	if e.build == nil {
		var scratch Manager
		for _, opt := range opts {
			opt(&scratch)
		}
		return NewTrivialManager(dev, scratch.metrics), nil
	}
	p, err := e.build(cfg.PolicyArgs, cfg)
	if err != nil {
		return nil, err
	}
	return NewManager(dev, cfg.PageCount, p, opts...)
}

// NewDevice creates the device selected by cfg. File and mmap devices must
// be closed by the caller. Verification needs a device that keeps data, so
// a trivial device is replaced by a memory device when cfg.Verify is set.
func NewDevice(cfg *Config) (BlockDevice, error) {
	ct, err := ParseCompressionType(cfg.Compression)
	if err != nil {
		return nil, ErrInvalidConfig("NewDevice", "%v", err)
	}
	switch cfg.Device {
	case DeviceTrivial, "":
		if cfg.Verify {
			return NewMemoryDevice(cfg.PageSize), nil
		}
		return NewTrivialDevice(cfg.PageSize), nil
	case DeviceNull:
		return NewNullDevice(), nil
	case DeviceMemory:
		return NewMemoryDevice(cfg.PageSize), nil
	case DeviceCompressed:
		return NewCompressedDevice(cfg.PageSize, ct), nil
	case DeviceFile:
		return OpenFileDevice(cfg.DevicePath, cfg.PageSize)
	case DeviceMmap:
		return OpenMmapDevice(cfg.DevicePath, cfg.PageSize, MmapGrowPages)
	}
	return nil, ErrInvalidConfig("NewDevice", "unknown device %q", cfg.Device)
}

func parseFloats(op string, args []string, defaults ...float64) ([]float64, error) {
	if len(args) > len(defaults) {
		return nil, ErrInvalidConfig(op, "takes at most %d arguments, got %d", len(defaults), len(args))
	}
	out := slices.Clone(defaults)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, ErrInvalidConfig(op, "argument %d: %q is not a number", i+1, a)
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(op string, args []string, defaults ...int) ([]int, error) {
	if len(args) > len(defaults) {
		return nil, ErrInvalidConfig(op, "takes at most %d arguments, got %d", len(defaults), len(args))
	}
	out := slices.Clone(defaults)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, ErrInvalidConfig(op, "argument %d: %q is not an integer", i+1, a)
		}
		out[i] = v
	}
	return out, nil
}

func noArgs(op string, args []string) error {
	if len(args) != 0 {
		return ErrInvalidConfig(op, "takes no arguments, got %d", len(args))
	}
	return nil
}

func buildLRU(args []string, _ *Config) (Policy, error) {
	if err := noArgs("lru", args); err != nil {
		return nil, err
	}
	return NewLRUPolicy(), nil
}

func buildARC(args []string, _ *Config) (Policy, error) {
	if err := noArgs("arc", args); err != nil {
		return nil, err
	}
	return NewARCPolicy(), nil
}

func buildCFLRU(args []string, _ *Config) (Policy, error) {
	v, err := parseFloats("cflru", args, 0.5)
	if err != nil {
		return nil, err
	}
	return NewCFLRUPolicy(v[0]), nil
}

func buildLIRS(args []string, _ *Config) (Policy, error) {
	v, err := parseFloats("lirs", args, 0.1, 1.0)
	if err != nil {
		return nil, err
	}
	return NewLIRSPolicy(v[0], v[1]), nil
}

func buildFLIRS(args []string, cfg *Config) (Policy, error) {
	v, err := parseFloats("flirs", args, 0.1, 1.0)
	if err != nil {
		return nil, err
	}
	return NewFLIRSPolicy(cfg.Ratio(), v[0], v[1]), nil
}

func buildTwoQ(args []string, _ *Config) (Policy, error) {
	v, err := parseFloats("2q", args, 0.25, 0.5)
	if err != nil {
		return nil, err
	}
	return NewTwoQPolicy(v[0], v[1]), nil
}

func buildBlower(args []string, _ *Config) (Policy, error) {
	v, err := parseInts("blower", args, 3, 0, 0)
	if err != nil {
		return nil, err
	}
	return NewBlowerPolicy(BlowerConfig{ScanCredit: v[0], ReadWindowStep: v[1], WriteWindowStep: v[2]}), nil
}

// buildTn takes either no arguments or all five TnConfig fields in order.
func buildTn(args []string, cfg *Config) (Policy, error) {
	const op = "tn"
	kickN := max(1, cfg.RoundedRatio())

	var conf TnConfig
	switch len(args) {
	case 0:
		return NewTnPolicy(kickN, conf), nil
	case 5:
	default:
		return nil, ErrInvalidConfig(op, "takes 0 or 5 arguments, got %d", len(args))
	}

	bools := make([]bool, 0, 3)
	for _, i := range []int{0, 1, 4} {
		b, err := strconv.ParseBool(args[i])
		if err != nil {
			return nil, ErrInvalidConfig(op, "argument %d: %q is not a boolean", i+1, args[i])
		}
		bools = append(bools, b)
	}
	limits := make([]uint32, 0, 2)
	for _, i := range []int{2, 3} {
		n, err := strconv.ParseUint(args[i], 10, 32)
		if err != nil {
			return nil, ErrInvalidConfig(op, "argument %d: %q is not a page count", i+1, args[i])
		}
		limits = append(limits, uint32(n))
	}

	conf = TnConfig{
		AdjustDRWhenReadInDR:   bools[0],
		EnlargeCRWhenReadInDNR: bools[1],
		SRLimit:                limits[0],
		SNRLimit:               limits[1],
		PickOffSRWhenHitInSR:   bools[2],
	}
	return NewTnPolicy(kickN, conf), nil
}
