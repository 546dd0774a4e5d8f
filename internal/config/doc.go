// Package config provides traceview's configuration.
//
// Configuration is assembled from layers, each overriding the one below:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← applied by the CLI
//	├─────────────────────────────┤
//	│  3. Environment variables   │  ← TRACEVIEW_*
//	├─────────────────────────────┤
//	│  2. Config file             │  ← TOML or YAML, by extension
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │
//	└─────────────────────────────┘
//
// A file only needs to mention the settings it changes:
//
//	[tracing]
//	max_steps = 500
//	timeout = "5s"
//
//	[gdb]
//	compiler_flags = ["-std=c++17"]
//
// Environment variables are named after the section and key, for example
// TRACEVIEW_TRACING_MAX_STEPS or TRACEVIEW_GDB_STEP_MODE.
//
// # Basic Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Tracing.MaxSteps)
package config
