package gdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Compiler builds a C++ source file with debug information and without
// optimisation, so every source line maps to code gdb can stop on.
type Compiler struct {
	// Path is the compiler executable.
	Path string
	// Flags are passed after -g -O0.
	Flags []string
}

// Compile builds src into bin. A compiler that runs and fails returns a
// *CompileError holding its diagnostics; a compiler that cannot be run returns
// the underlying error.
func (c Compiler) Compile(ctx context.Context, src, bin string) error {
	args := append([]string{"-g", "-O0"}, c.Flags...)
	args = append(args, src, "-o", bin)

	var diag bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdout = &diag
	cmd.Stderr = &diag

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return &CompileError{Diagnostics: diag.String(), ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("run %s: %w", c.Path, err)
}
