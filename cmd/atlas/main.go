package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/atl-lang/atlas-sub003/pkg/bytecode"
	"github.com/atl-lang/atlas-sub003/pkg/compiler"
	"github.com/atl-lang/atlas-sub003/pkg/parser"
	"github.com/atl-lang/atlas-sub003/pkg/runtime"
	"github.com/atl-lang/atlas-sub003/pkg/value"
	"github.com/atl-lang/atlas-sub003/pkg/vm"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "atlas"
	app.Usage = "run, inspect, and compile Atlas programs"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to a TOML project config"},
		cli.BoolFlag{Name: "debug, d", Usage: "print results as a full value dump instead of their display form"},
	}
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "run an Atlas source file",
			ArgsUsage: "<file.atlas>",
			Action:    runCmd,
		},
		{
			Name:   "repl",
			Usage:  "start an interactive session",
			Action: replCmd,
		},
		{
			Name:      "disasm",
			Usage:     "compile a file and print its bytecode disassembly",
			ArgsUsage: "<file.atlas>",
			Action:    disasmCmd,
		},
		{
			Name:      "build",
			Usage:     "compile a file to a serialized bytecode image",
			ArgsUsage: "<file.atlas>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out, o", Usage: "output path (default: <file>.atb)"},
			},
			Action: buildCmd,
		},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return replCmd(c)
		}
		return runFile(c, c.Args().First())
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRuntime(c *cli.Context) (*runtime.Runtime, error) {
	if path := c.GlobalString("config"); path != "" {
		cfg, err := runtime.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return runtime.WithConfig(cfg), nil
	}
	return runtime.New(), nil
}

func runCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("run: no file specified", 1)
	}
	return runFile(c, c.Args().First())
}

func runFile(c *cli.Context, path string) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	result, err := rt.EvalFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("runtime error: %v", err), 1)
	}
	if result != nil {
		printResult(c, result)
	}
	return nil
}

func printResult(c *cli.Context, result value.Value) {
	if c.GlobalBool("debug") {
		fmt.Print(vm.DebugDump(result))
		return
	}
	fmt.Println(result.Display())
}

func disasmCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("disasm: no file specified", 1)
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.New(path, string(data)).Parse()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("parse error: %v", err), 1)
	}
	bc, err := compiler.New(path).Compile(prog)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("compile error: %v", err), 1)
	}
	fmt.Println(vm.Disassemble(bc))
	return nil
}

func buildCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("build: no file specified", 1)
	}
	path := c.Args().First()
	out := c.String("out")
	if out == "" {
		out = strings.TrimSuffix(path, ".atlas") + ".atb"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.New(path, string(data)).Parse()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("parse error: %v", err), 1)
	}
	bc, err := compiler.New(path).Compile(prog)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("compile error: %v", err), 1)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := bytecode.Encode(bc, f); err != nil {
		return cli.NewExitError(fmt.Sprintf("encoding bytecode: %v", err), 1)
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

// replCmd runs a persistent session over one Runtime: each line is evaluated
// with EvalWithEngine on the VM engine, a parse/runtime error is reported and
// the loop continues rather than exiting (errors never crash the session).
func replCmd(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	fmt.Printf("atlas %s\n", version)
	fmt.Println("Type :quit or Ctrl-D to exit.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("atlas> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		if trimmed == ":quit" || trimmed == ":exit" {
			return nil
		}
		line.AppendHistory(input)

		result, err := rt.EvalWithEngine(input, runtime.EngineVM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if result != nil {
			printResult(c, result)
		}
	}
}
