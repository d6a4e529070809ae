// Package cliutil holds the flag parsing, instance-size table, and exit
// code conventions shared by every cmd/ binary: --network and --size
// flags (stdlib flag, matching the rest of this module's ambient
// stack), a typed *ConfigError checked before any cryptoctx.Context is
// built, and the path layout under io/<size>/.
package cliutil

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigError marks a failure discovered while parsing or validating
// CLI flags, before any crypto context exists. cmd/ mains check for it
// specifically to choose exit code 1; every other error path exits 2 or 3.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// NewConfigError builds a *ConfigError with a formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Exit codes per the CLI contract: 0 success, 1 configuration error, 2
// IO/deserialization error, 3 backend/shape error.
const (
	ExitOK      = 0
	ExitConfig  = 1
	ExitIO      = 2
	ExitBackend = 3
)

// ExitCode maps an error to the process exit code a cmd/ main should
// return, per the three-way error taxonomy the ambient stack assigns.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitIO
}

// InstanceSize is the SINGLE/SMALL/MEDIUM/LARGE enum spec's CLI surface
// selects with an integer 0..3.
type InstanceSize int

const (
	Single InstanceSize = iota
	Small
	Medium
	Large
)

// BatchSize returns the number of images an instance size processes.
func (s InstanceSize) BatchSize() int {
	switch s {
	case Single:
		return 1
	case Small:
		return 15
	case Medium:
		return 1000
	case Large:
		return 10000
	default:
		panic(fmt.Sprintf("cliutil: unknown instance size %d", s))
	}
}

func (s InstanceSize) String() string {
	switch s {
	case Single:
		return "SINGLE"
	case Small:
		return "SMALL"
	case Medium:
		return "MEDIUM"
	case Large:
		return "LARGE"
	default:
		return fmt.Sprintf("InstanceSize(%d)", int(s))
	}
}

// ParseInstanceSize validates a --size flag value against the 0..3 range.
func ParseInstanceSize(n int) (InstanceSize, error) {
	if n < 0 || n > 3 {
		return 0, NewConfigError("--size must be 0..3 (SINGLE..LARGE), got %d", n)
	}
	return InstanceSize(n), nil
}

// Network names the three supported architectures.
type Network string

const (
	NetworkMLP      Network = "mlp"
	NetworkLeNet5   Network = "lenet5"
	NetworkResNet20 Network = "resnet20"
)

// ParseNetwork validates a --network flag value.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkMLP, NetworkLeNet5, NetworkResNet20:
		return Network(s), nil
	default:
		return "", NewConfigError("--network must be one of mlp, lenet5, resnet20, got %q", s)
	}
}

// Flags holds the three flags every cmd/ binary parses.
type Flags struct {
	Network Network
	Size    InstanceSize
	IORoot  string
}

// Parse registers and parses --network, --size, and --io-root on fs,
// returning a *ConfigError (never a bare error) on any invalid value.
func Parse(fs *flag.FlagSet, args []string) (Flags, error) {
	networkFlag := fs.String("network", "", "network to run: mlp, lenet5, resnet20")
	sizeFlag := fs.Int("size", -1, "instance size: 0=SINGLE 1=SMALL 2=MEDIUM 3=LARGE")
	ioRoot := fs.String("io-root", "io", "root directory for persisted key/ciphertext files")
	if err := fs.Parse(args); err != nil {
		return Flags{}, NewConfigError("parsing flags: %v", err)
	}

	network, err := ParseNetwork(*networkFlag)
	if err != nil {
		return Flags{}, err
	}
	size, err := ParseInstanceSize(*sizeFlag)
	if err != nil {
		return Flags{}, err
	}
	return Flags{Network: network, Size: size, IORoot: *ioRoot}, nil
}

// Paths resolves the io/<size>/... file layout spec §6 fixes.
type Paths struct {
	root string
	size InstanceSize
}

// NewPaths builds a Paths rooted at f.IORoot for f.Size.
func NewPaths(f Flags) Paths {
	return Paths{root: f.IORoot, size: f.Size}
}

func (p Paths) sizeDir() string {
	return filepath.Join(p.root, fmt.Sprintf("%d", int(p.size)))
}

// PublicKeysDir is io/<size>/public_keys.
func (p Paths) PublicKeysDir() string { return filepath.Join(p.sizeDir(), "public_keys") }

// CryptoContextPath is io/<size>/public_keys/cc.bin: the serialized
// ckks.Parameters both client and server must agree on.
func (p Paths) CryptoContextPath() string { return filepath.Join(p.PublicKeysDir(), "cc.bin") }

// PublicKeyPath is io/<size>/public_keys/pk.bin.
func (p Paths) PublicKeyPath() string { return filepath.Join(p.PublicKeysDir(), "pk.bin") }

// RelinKeyPath is io/<size>/public_keys/rk.bin.
func (p Paths) RelinKeyPath() string { return filepath.Join(p.PublicKeysDir(), "rk.bin") }

// LayerRotKeyPath is io/<size>/public_keys/layer<n>_rk.bin, one file per
// rotation-key group a network's plan names, numbered by the group's
// position in plan.Network.RotGroups().
func (p Paths) LayerRotKeyPath(n int) string {
	return filepath.Join(p.PublicKeysDir(), fmt.Sprintf("layer%d_rk.bin", n))
}

// BootstrapKeyPath is io/<size>/public_keys/btp.bin: the bootstrapper's
// evaluation keys, written only for networks with at least one
// bootstrap layer.
func (p Paths) BootstrapKeyPath() string { return filepath.Join(p.PublicKeysDir(), "btp.bin") }

// SecretKeyPath is io/<size>/secret_key/sk.bin.
func (p Paths) SecretKeyPath() string {
	return filepath.Join(p.sizeDir(), "secret_key", "sk.bin")
}

// CiphertextUploadPath is io/<size>/ciphertexts_upload/cipher_input_<i>.bin.
func (p Paths) CiphertextUploadPath(i int) string {
	return filepath.Join(p.sizeDir(), "ciphertexts_upload", fmt.Sprintf("cipher_input_%d.bin", i))
}

// CiphertextDownloadPath is io/<size>/ciphertexts_download/cipher_result_<i>.bin.
func (p Paths) CiphertextDownloadPath(i int) string {
	return filepath.Join(p.sizeDir(), "ciphertexts_download", fmt.Sprintf("cipher_result_%d.bin", i))
}

// PredictionsPath is io/<size>/encrypted_model_predictions.txt.
func (p Paths) PredictionsPath() string {
	return filepath.Join(p.sizeDir(), "encrypted_model_predictions.txt")
}

// EnsureDir creates dir (and parents) if it doesn't already exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cliutil: creating %s: %w", dir, err)
	}
	return nil
}
