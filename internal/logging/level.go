package logging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

var levelStrings = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// ParseLevel converts a level name, or a positive integer meaning that many
// steps of debug verbosity, to a zap level.
func ParseLevel(value string) (zapcore.Level, error) {
	if level, ok := levelStrings[strings.ToLower(strings.TrimSpace(value))]; ok {
		return level, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 || n > 127 {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", value)
	}
	// zap levels run backwards: logr V(n) maps to zap level -n.
	return zapcore.Level(int8(-n)), nil
}

// LevelFlagValue is a pflag.Value that applies the parsed level on Set.
type LevelFlagValue struct {
	apply func(zapcore.Level)
	value string
}

// NewLevelFlagValue returns a flag value calling apply with each parsed level.
func NewLevelFlagValue(apply func(zapcore.Level)) *LevelFlagValue {
	return &LevelFlagValue{apply: apply}
}

func (v *LevelFlagValue) Set(value string) error {
	level, err := ParseLevel(value)
	if err != nil {
		return err
	}
	v.apply(level)
	v.value = value
	return nil
}

func (v *LevelFlagValue) String() string {
	return v.value
}

func (*LevelFlagValue) Type() string {
	return "level"
}

var _ pflag.Value = &LevelFlagValue{}
