package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/zheye/internal/logger"
	"github.com/five82/zheye/internal/sandbox"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:7070", "listen address")
	seedPath := flag.String("seed", "", "YAML seed file (optional)")
	users := flag.Int("users", 5, "generated users when no seed file is given")
	posts := flag.Int("posts", 8, "generated posts per column")
	seedValue := flag.Int64("rand-seed", 1, "seed for generated data")
	partnerCode := flag.String("icode", "", "required partner code (empty accepts any)")
	secret := flag.String("secret", "", "token signing secret (random when empty)")
	ttl := flag.Duration("token-ttl", 72*time.Hour, "lifetime of issued tokens")
	latency := flag.Duration("latency", 0, "delay added to every request")
	failRate := flag.Float64("fail-rate", 0, "probability in [0,1] that a request fails")
	failCode := flag.Int("fail-code", 500, "status code of injected failures")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	log := logger.SetupDefault(os.Stderr, logger.Options{Level: *logLevel, Format: "text"})

	srv := sandbox.New(sandbox.Options{
		PartnerCode: *partnerCode,
		Secret:      *secret,
		TokenTTL:    *ttl,
		Latency:     *latency,
		FailRate:    *failRate,
		FailCode:    *failCode,
		Logger:      log,
	})

	seed := sandbox.Generate(*seedValue, *users, *posts)
	if *seedPath != "" {
		loaded, err := sandbox.LoadSeed(*seedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "zheye-sandbox: %v\n", err)
			return 1
		}
		seed = loaded
	}
	if err := srv.Apply(seed); err != nil {
		fmt.Fprintf(os.Stderr, "zheye-sandbox: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := srv.App()
	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	log.Info("sandbox listening",
		slog.String("addr", *addr),
		slog.Int("users", len(seed.Users)),
		slog.String("password", sandbox.GeneratedPassword),
	)
	if err := app.Listen(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "zheye-sandbox: %v\n", err)
		return 1
	}
	return 0
}
