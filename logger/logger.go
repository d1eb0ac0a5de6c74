// Package logger builds the process-wide zap logger for hexsim.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	// Level is the minimum level: debug, info, warn or error. Unknown values mean info.
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format" json:"format"`
	// OutputFile is a path, or "stdout"/"stderr". Empty means stderr.
	OutputFile string `yaml:"output_file" json:"output_file"`
}

// New creates a logger from config. The returned func flushes the logger and
// closes its output file; call it once logging is done.
func New(config Config) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	sink, closeSink, err := zap.Open(outputPath(config.OutputFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output %s: %w", config.OutputFile, err)
	}

	core := zapcore.NewCore(encoder(config.Format), sink, level)
	log := zap.New(core, zap.AddCaller()).With(zap.String("service", "hexsim"))
	closeLog := func() {
		_ = log.Sync()
		closeSink()
	}
	return log, closeLog, nil
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

// outputPath maps OutputFile to a zap sink path.
func outputPath(outputFile string) string {
	switch strings.ToLower(outputFile) {
	case "stderr", "":
		return "stderr"
	case "stdout":
		return "stdout"
	}
	return outputFile
}
