package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"tlog.app/go/errors"

	"github.com/slowlang/slvm/vm"
)

// FileName is looked up by FindAndLoad.
const FileName = "sl.toml"

type (
	Config struct {
		VM       vm.Config `toml:"vm"`
		Compiler Compiler  `toml:"compiler"`

		Path string `toml:"-"`
	}

	Compiler struct {
		Buffer int `toml:"buffer"` // initial code buffer size
	}
)

var ErrUnknownKey = errors.New("unknown key")

func Default() Config {
	return Config{
		VM: vm.DefaultConfig,
		Compiler: Compiler{
			Buffer: 2048,
		},
	}
}

// Parse decodes text over the defaults.
func Parse(text []byte) (c Config, err error) {
	c = Default()

	md, err := toml.Decode(string(text), &c)
	if err != nil {
		return c, errors.Wrap(err, "decode")
	}

	if und := md.Undecoded(); len(und) != 0 {
		keys := make([]string, len(und))

		for i, k := range und {
			keys[i] = k.String()
		}

		return c, errors.Wrap(ErrUnknownKey, "%s", strings.Join(keys, ", "))
	}

	return c, nil
}

func Load(path string) (c Config, err error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "read")
	}

	c, err = Parse(text)
	if err != nil {
		return c, errors.Wrap(err, "%v", path)
	}

	c.Path = path

	return c, nil
}

// FindAndLoad walks up from dir looking for FileName.
// Defaults are returned if there is none.
func FindAndLoad(dir string) (c Config, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return c, errors.Wrap(err, "abs path")
	}

	for {
		path := filepath.Join(dir, FileName)

		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}

		dir = parent
	}
}
