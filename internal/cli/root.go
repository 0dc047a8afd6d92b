// Package cli implements chatctl, the operator tool that works directly on a
// chatwave badger directory: it issues credentials and manages rooms.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/storage"
)

const (
	badgerPathKey = "badger_path"
	jwtSecretKey  = "jwt_secret"
	jwtIssuerKey  = "jwt_issuer"
	logLevelKey   = "log_level"
	envPrefix     = "CHATWAVE"
)

var errMissingSecret = errors.New("jwt secret is required (--jwt-secret or CHATWAVE_JWT_SECRET)")

// app carries what subcommands share.
type app struct {
	v   *viper.Viper
	log *slog.Logger
}

// withStore opens the badger directory for the duration of fn. The server
// holds the directory lock while running, so chatctl works on a stopped
// server's data.
func (a *app) withStore(fn func(*storage.Store) error) (err error) {
	path := a.v.GetString(badgerPathKey)
	if path == "" {
		return errors.New("badger path is required (--badger-path or CHATWAVE_BADGER_PATH)")
	}
	store, err := storage.Open(path, a.logger())
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()
	return fn(store)
}

func (a *app) logger() *slog.Logger {
	if a.log == nil {
		a.log = logs.GetLoggerFromString(strings.ToUpper(a.v.GetString(logLevelKey)))
	}
	return a.log
}

func (a *app) tokens() (*auth.Manager, error) {
	secret := a.v.GetString(jwtSecretKey)
	if secret == "" {
		return nil, errMissingSecret
	}
	cfg := auth.DefaultConfig(secret)
	if issuer := a.v.GetString(jwtIssuerKey); issuer != "" {
		cfg.Issuer = issuer
	}
	return auth.NewManager(cfg), nil
}

// NewRootCommand builds chatctl. Settings come from flags, then CHATWAVE_*
// environment variables, then the optional config file.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	a := &app{v: v}
	var cfgFile string

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Operate a chatwave store: issue tokens, manage rooms, read history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("badger-path", "data/badger", "badger directory of the chatwave server")
	flags.String("jwt-secret", "", "secret shared with the chatwave server")
	flags.String("jwt-issuer", "chatwave", "issuer claim for issued tokens")
	flags.String("log-level", "WARN", "log level for the store")
	_ = v.BindPFlag(badgerPathKey, flags.Lookup("badger-path"))
	_ = v.BindPFlag(jwtSecretKey, flags.Lookup("jwt-secret"))
	_ = v.BindPFlag(jwtIssuerKey, flags.Lookup("jwt-issuer"))
	_ = v.BindPFlag(logLevelKey, flags.Lookup("log-level"))

	root.AddCommand(newTokenCommand(a), newRoomCommand(a))
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

// Execute runs chatctl with the process arguments.
func Execute() error {
	return NewRootCommand(viper.New()).Execute()
}
