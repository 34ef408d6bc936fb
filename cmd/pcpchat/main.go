package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pcplabs/pcpchat/server"
	"github.com/pcplabs/pcpchat/server/profile"
	"github.com/pcplabs/pcpchat/store"
	"github.com/pcplabs/pcpchat/store/db/localfile"
	"github.com/pcplabs/pcpchat/store/db/mysql"
	"github.com/pcplabs/pcpchat/store/db/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "pcpchat",
	Short: "Chat web application backed by OpenRouter completions and Hugging Face image generation",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	// .env is optional; real config comes from flags and PCPCHAT_* env vars.
	_ = godotenv.Load()

	flags := rootCmd.PersistentFlags()
	flags.String("addr", "", "bind address")
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "prod", "dev or prod")
	flags.String("data", "./data", "directory for the local store")
	flags.String("driver", "", "remote backend driver: postgres or mysql (empty = local only)")
	flags.String("dsn", "", "remote backend connection string")

	for _, name := range []string{"addr", "port", "mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetDefault("model", "openai/gpt-4o-mini")
	viper.SetEnvPrefix("pcpchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func run() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	p, err := profile.GetProfile()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, err := localfile.New(p.Data)
	if err != nil {
		return err
	}

	// Remote backend first when configured; a remote outage at startup
	// degrades to local-only operation instead of refusing to start.
	var backends []store.Driver
	switch p.Driver {
	case "postgres":
		if db, err := postgres.NewDB(ctx, p.DSN); err != nil {
			slog.Warn("remote backend unreachable, running on local fallback", "driver", p.Driver, "err", err)
		} else {
			backends = append(backends, db)
		}
	case "mysql":
		if db, err := mysql.NewDB(ctx, p.DSN); err != nil {
			slog.Warn("remote backend unreachable, running on local fallback", "driver", p.Driver, "err", err)
		} else {
			backends = append(backends, db)
		}
	}
	backends = append(backends, local)

	st := store.New(local, backends...)
	srv := server.NewServer(p, st)
	return srv.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}
