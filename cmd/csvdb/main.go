// Package main is the csvdb command line tool.
//
// csvdb inspects and edits CSV stores. Typed stores use shapes declared in a
// YAML manifest. Configuration is read from CLI flags and CSVDB_* environment
// variables; flags win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/csvdb/internal/csvdb"
	"github.com/maruel/csvdb/internal/history"
	"github.com/maruel/csvdb/internal/manifest"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "csvdb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	file := flag.String("file", "data.csv", "CSV store file; a .gz suffix enables compression, :memory: keeps it in memory")
	manifestPath := flag.String("manifest", "", "YAML manifest declaring record shapes")
	shape := flag.String("shape", "", "Shape of the records, as declared in the manifest")
	gitDir := flag.String("git", "", "Git repository directory to snapshot the file into after each change (optional)")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}

	// Override with environment values if not explicitly set via flags
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	for name, ptr := range map[string]*string{
		"file":      file,
		"manifest":  manifestPath,
		"shape":     shape,
		"git":       gitDir,
		"log-level": logLevel,
	} {
		if !set[name] {
			if v := os.Getenv(envName(name)); v != "" {
				*ptr = v
			}
		}
	}

	ll := &slog.LevelVar{}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case int64:
				skip = t == 0 && a.Key != "records"
			case time.Time:
				skip = t.IsZero()
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)
	if err := setLevel(ll, *logLevel); err != nil {
		return err
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	a := &app{
		file:  *file,
		shape: *shape,
		reg:   csvdb.NewRegistry(),
		out:   colorable.NewColorableStdout(),
		color: isatty.IsTerminal(os.Stdout.Fd()),
	}
	if *manifestPath != "" {
		m, err := manifest.ParseManifest(*manifestPath)
		if err != nil {
			return err
		}
		if err := m.Register(a.reg); err != nil {
			return fmt.Errorf("failed to register shapes: %w", err)
		}
		slog.DebugContext(ctx, "Loaded manifest", "path", *manifestPath, "shapes", a.reg.Names())
	}
	if *gitDir != "" {
		repo, err := history.Open(*gitDir, "csvdb", "csvdb@localhost")
		if err != nil {
			return err
		}
		a.repo = repo
	}
	return cmd.run(ctx, a, args[1:])
}

func envName(flagName string) string {
	b := []byte("CSVDB_" + flagName)
	for i, c := range b {
		switch {
		case c == '-':
			b[i] = '_'
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func setLevel(ll *slog.LevelVar, level string) error {
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}
	return nil
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: csvdb [flags] <command> [args]\n\ncommands:\n")
	printCommands(w)
	fmt.Fprintf(w, "\nflags:\n")
	flag.PrintDefaults()
}

func printCommands(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-7s %s\n", name, commands[name].help)
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("csvdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
