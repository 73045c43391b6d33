package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/picklebridge/cache"
	"github.com/wippyai/picklebridge/codec"
	"github.com/wippyai/picklebridge/command"
	"github.com/wippyai/picklebridge/compiler"
	"github.com/wippyai/picklebridge/config"
	"github.com/wippyai/picklebridge/memengine"
	"github.com/wippyai/picklebridge/registry"
)

const usage = `Usage: pickletool <command> [flags]

Commands:
  types     list the types declared in the config
  compile   compile a type to a command file
  disasm    print the instructions of a command
  pickle    pickle a JSON or CBOR value to a data stream
  unpickle  decode a data stream to JSON or CBOR
  inspect   browse a command and a decoded data stream (TUI)

Run 'pickletool <command> -h' for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	commands := map[string]func([]string) error{
		"types":    runTypes,
		"compile":  runCompile,
		"disasm":   runDisasm,
		"pickle":   runPickle,
		"unpickle": runUnpickle,
		"inspect":  runInspect,
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Print(usage)
		return
	}
	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is the state shared by every command once flags are parsed.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	schema *config.Schema
	logger *zap.Logger
	out    io.Writer
	styles styles
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	typeExpr   string
	cmdFile    string
	color      colorMode
}

func (c *common) register(fs *flag.FlagSet, withCommand bool) {
	fs.StringVar(&c.configPath, "config", config.FileName, "config file")
	fs.Var(&c.color, "color", "colorize output: auto, always or never")
	if withCommand {
		fs.StringVar(&c.typeExpr, "type", "", "type expression, e.g. point or list<point>")
		fs.StringVar(&c.cmdFile, "cmd", "", "command file written by compile")
	}
}

func (c *common) env() (*env, error) {
	cfg, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return nil, err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	codec.SetLogger(logger)
	registry.SetLogger(logger)
	cache.SetLogger(logger)

	out, styles := c.color.output()
	return &env{
		ctx:    context.Background(),
		cfg:    cfg,
		schema: schema,
		logger: logger,
		out:    out,
		styles: styles,
	}, nil
}

// command returns the command named by -type or -cmd.
func (c *common) command(e *env) (command.Command, error) {
	switch {
	case c.typeExpr != "" && c.cmdFile != "":
		return nil, fmt.Errorf("-type and -cmd are mutually exclusive")
	case c.cmdFile != "":
		framed, err := os.ReadFile(c.cmdFile)
		if err != nil {
			return nil, err
		}
		return command.Parse(framed)
	case c.typeExpr != "":
		return e.compile(c.typeExpr, "")
	}
	return nil, fmt.Errorf("one of -type or -cmd is required")
}

// compile compiles a type expression, going through the command cache
// when one is configured. cachePath overrides the config.
func (e *env) compile(expr, cachePath string) (command.Command, error) {
	typ, err := e.schema.Parse(expr)
	if err != nil {
		return nil, err
	}
	comp := compiler.New()
	build := func() (command.Command, error) { return comp.Compile(typ) }

	if cachePath == "" {
		cachePath = e.cfg.Cache.Path
	}
	if cachePath == "" {
		return build()
	}
	if e.cfg.Path != "" && !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(filepath.Dir(e.cfg.Path), cachePath)
	}
	store, err := cache.Open(e.ctx, cachePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.GetOrCompile(e.ctx, normalizeExpr(expr), build)
}

func (e *env) codec() (*memengine.Engine, *codec.Codec) {
	eng := memengine.New()
	opts := append(e.cfg.Options(), codec.WithLogger(e.logger))
	return eng, codec.New(eng, opts...)
}

func runTypes(args []string) error {
	var c common
	fs := flag.NewFlagSet("types", flag.ExitOnError)
	c.register(fs, false)
	fs.Parse(args)

	e, err := c.env()
	if err != nil {
		return err
	}
	for _, name := range e.schema.Names() {
		t, _ := e.schema.Lookup(name)
		fmt.Fprintf(e.out, "%s  %s\n", e.styles.typeName(name), describe(t))
	}
	return nil
}

func runCompile(args []string) error {
	var (
		c         common
		out       string
		cachePath string
	)
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	c.register(fs, false)
	fs.StringVar(&c.typeExpr, "type", "", "type expression to compile")
	fs.StringVar(&out, "o", "", "output file (default <type>.cmd)")
	fs.StringVar(&cachePath, "cache", "", "command cache database (overrides the config)")
	fs.Parse(args)

	if c.typeExpr == "" {
		return fmt.Errorf("-type is required")
	}
	e, err := c.env()
	if err != nil {
		return err
	}
	cmd, err := e.compile(c.typeExpr, cachePath)
	if err != nil {
		return err
	}
	if out == "" {
		out = fileName(c.typeExpr) + ".cmd"
	}
	if err := os.WriteFile(out, command.Frame(cmd), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s %s: %d bytes -> %s\n",
		e.styles.ok("compiled"), e.styles.typeName(c.typeExpr), len(cmd), out)
	return nil
}

func runDisasm(args []string) error {
	var c common
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	c.register(fs, true)
	fs.Parse(args)

	e, err := c.env()
	if err != nil {
		return err
	}
	cmd, err := c.command(e)
	if err != nil {
		return err
	}
	ins, err := command.Disassemble(cmd)
	if err != nil {
		return err
	}
	for _, in := range ins {
		fmt.Fprintln(e.out, e.styles.instruction(in))
	}
	return nil
}

func runPickle(args []string) error {
	var (
		c      common
		in     string
		out    string
		format string
	)
	fs := flag.NewFlagSet("pickle", flag.ExitOnError)
	c.register(fs, true)
	fs.StringVar(&in, "in", "-", "value file, - for stdin")
	fs.StringVar(&out, "o", "-", "data stream output, - for stdout")
	fs.StringVar(&format, "format", "auto", "value format: auto, json or cbor")
	fs.Parse(args)

	e, err := c.env()
	if err != nil {
		return err
	}
	cmd, err := c.command(e)
	if err != nil {
		return err
	}
	raw, err := readInput(in)
	if err != nil {
		return err
	}
	value, err := decodeValue(raw, detectFormat(format, in, raw))
	if err != nil {
		return err
	}

	eng, cd := e.codec()
	defer cd.Close()
	v, err := eng.FromGo(value)
	if err != nil {
		return err
	}
	defer eng.Free(v)

	data, err := cd.Pickle(v, cmd)
	if err != nil {
		return err
	}
	return writeOutput(out, data)
}

func runUnpickle(args []string) error {
	var (
		c      common
		in     string
		out    string
		format string
	)
	fs := flag.NewFlagSet("unpickle", flag.ExitOnError)
	c.register(fs, true)
	fs.StringVar(&in, "in", "-", "data stream file, - for stdin")
	fs.StringVar(&out, "o", "-", "value output, - for stdout")
	fs.StringVar(&format, "format", "json", "output format: json or cbor")
	fs.Parse(args)

	e, err := c.env()
	if err != nil {
		return err
	}
	cmd, err := c.command(e)
	if err != nil {
		return err
	}
	data, err := readInput(in)
	if err != nil {
		return err
	}

	eng, cd := e.codec()
	defer cd.Close()
	v, err := cd.Unpickle(cmd, data)
	if err != nil {
		return err
	}
	value := eng.ToGo(v)
	eng.Free(v)

	encoded, err := encodeValue(value, strings.ToLower(format))
	if err != nil {
		return err
	}
	return writeOutput(out, encoded)
}

func runInspect(args []string) error {
	var (
		c    common
		data string
	)
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	c.register(fs, true)
	fs.StringVar(&data, "data", "", "data stream to decode (optional)")
	fs.Parse(args)

	e, err := c.env()
	if err != nil {
		return err
	}
	cmd, err := c.command(e)
	if err != nil {
		return err
	}
	var stream []byte
	if data != "" {
		if stream, err = os.ReadFile(data); err != nil {
			return err
		}
	}

	title := c.typeExpr
	if title == "" {
		title = c.cmdFile
	}
	return runInteractive(e, title, cmd, stream)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// normalizeExpr strips whitespace so equivalent expressions share a cache
// entry.
func normalizeExpr(expr string) string {
	return strings.Join(strings.Fields(expr), "")
}

// fileName turns a type expression into something usable as a file name.
func fileName(expr string) string {
	r := strings.NewReplacer("<", "-", ">", "", ",", "-", " ", "")
	return r.Replace(normalizeExpr(expr))
}
