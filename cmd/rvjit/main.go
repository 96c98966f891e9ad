package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rvjit/core/core/cache"
	"github.com/rvjit/core/core/cache/hosttest"
	"github.com/rvjit/core/core/decoder"
)

func main() {
	compileCmd := &cli.Command{
		Name:   "compile",
		Action: compileAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "rvjit",
		Description: "rvjit drives the RISC-V-to-IR translation core against raw guest code images",
		Commands: []*cli.Command{
			compileCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

// compileAct loads each argument as a flat binary guest code image and
// compiles the basic block starting at offset 0, printing the IR node
// count, the reserved code buffer size and the backend stub's checksum. It exists to exercise the
// coordinator end to end, not to drive a real executor.
func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		if err := compileImage(ctx, a); err != nil {
			return errors.Wrap(err, "compile %v", a)
		}
	}

	return nil
}

func compileImage(ctx context.Context, path string) error {
	mem, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read %v", path)
	}

	backend := &hosttest.Backend{}

	coord := cache.New(func(pc uint64) (decoder.BasicBlock, error) {
		return decoder.DecodeBasicBlock(mem[pc:], pc)
	}, backend)

	buf, err := coord.Step(ctx, 0)
	if err != nil {
		return errors.Wrap(err, "step")
	}

	g, _ := coord.Graph(0)

	fmt.Printf("%s: %d ir nodes, %d host bytes reserved, checksum %d\n", path, g.Len(), len(buf), backend.Checksum)

	return nil
}
