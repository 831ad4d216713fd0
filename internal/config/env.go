package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// EnvPrefix marks the environment variables exposed to bundled code as
// process.env.<NAME>.
const EnvPrefix = "APP_"

// EnvFiles lists the dotenv files read for mode, lowest precedence first.
func EnvFiles(mode Mode) []string {
	return []string{
		".env",
		".env.local",
		".env." + string(mode),
		".env." + string(mode) + ".local",
	}
}

// ReadEnv reads the dotenv files of mode under root. Missing files are
// skipped and later files override earlier ones.
func ReadEnv(fs afero.Fs, root string, mode Mode) (map[string]string, error) {
	vars := make(map[string]string)
	for _, name := range EnvFiles(mode) {
		path := filepath.Join(root, name)
		f, err := fs.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", path, err)
		}
		parsed, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
		for k, v := range parsed {
			vars[k] = v
		}
	}
	return vars, nil
}

// EnvDefines turns the EnvPrefix variables of fileVars and environ (as
// returned by os.Environ) into define entries. environ wins over files.
func EnvDefines(fileVars map[string]string, environ []string) map[string]string {
	defines := make(map[string]string)
	add := func(k, v string) {
		if strings.HasPrefix(k, EnvPrefix) {
			defines["process.env."+k] = strconv.Quote(v)
		}
	}
	for k, v := range fileVars {
		add(k, v)
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			add(k, v)
		}
	}
	return defines
}
