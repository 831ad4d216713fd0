package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/bundlr/internal/config"
)

// flagKeys maps flag names to the configuration keys they override.
type flagKeys map[string]string

// addModeFlag registers --mode with the command's default mode.
func addModeFlag(fs *pflag.FlagSet, def config.Mode) flagKeys {
	fs.StringP("mode", "m", string(def), "build mode (development, production)")
	return flagKeys{"mode": "mode"}
}

// addOutputFlags registers flags that shape the emitted files.
func addOutputFlags(fs *pflag.FlagSet) flagKeys {
	fs.StringP("output", "o", "", "output directory (default dist)")
	fs.String("public-path", "", "URL prefix of emitted files (default /)")
	fs.String("source-map", "", "source map policy (none, source-map, inline-source-map, cheap-module-source-map)")
	fs.Int("workers", 0, "worker pool size (default: number of CPUs)")
	return flagKeys{
		"output":      "output.dir",
		"public-path": "output.public_path",
		"source-map":  "source_map",
		"workers":     "workers",
	}
}

// addServerFlags registers the dev server address flags.
func addServerFlags(fs *pflag.FlagSet) flagKeys {
	fs.IntP("port", "p", 0, "port to serve on (default 3001)")
	fs.String("host", "", "host to bind to (default localhost)")
	fs.Bool("open", false, "open the browser once the server listens")
	return flagKeys{"port": "server.port", "host": "server.host", "open": "server.open"}
}

func (k flagKeys) merge(others ...flagKeys) flagKeys {
	for _, o := range others {
		for name, key := range o {
			k[name] = key
		}
	}
	return k
}

// bindFlags binds each flag to its key. An unset flag only supplies the
// default, below file and environment values; zero defaults are left to
// config.Load.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys flagKeys) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}
