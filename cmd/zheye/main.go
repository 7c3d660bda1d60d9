package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/five82/zheye/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file path (default ~/.config/zheye/config.toml)")
	logFile := flag.String("log", "", `log file, "-" for stderr (overrides log.file)`)
	envFile := flag.String("env", ".env", "optional dotenv file with ZHEYE_* overrides")
	flag.Usage = usage
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "zheye: load %s: %v\n", *envFile, err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, LogFile: *logFile}

	name := "browse"
	args := flag.Args()
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}

	if name == "browse" {
		if err := app.Run(ctx, opts); err != nil {
			fmt.Fprintf(os.Stderr, "zheye: %v\n", err)
			return 1
		}
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "zheye: unknown command %q\n\n", name)
		usage()
		return 2
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zheye: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := a.Bootstrap(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "zheye: bootstrap: %v\n", err)
		return 1
	}
	if err := cmd.run(ctx, a, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "zheye %s: %v\n", name, err)
		return 1
	}
	return 0
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: zheye [flags] [command] [args]\n\nCommands:\n")
	fmt.Fprintf(out, "  %-8s %s\n", "browse", "open the terminal browser (default)")
	for _, name := range commandOrder {
		fmt.Fprintf(out, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}
