package cliutil

import (
	"flag"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstanceSize(t *testing.T) {
	for n, want := range map[int]InstanceSize{0: Single, 1: Small, 2: Medium, 3: Large} {
		got, err := ParseInstanceSize(n)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseInstanceSize(4)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInstanceSizeBatchSize(t *testing.T) {
	assert.Equal(t, 1, Single.BatchSize())
	assert.Equal(t, 15, Small.BatchSize())
	assert.Equal(t, 1000, Medium.BatchSize())
	assert.Equal(t, 10000, Large.BatchSize())
}

func TestParseNetwork(t *testing.T) {
	for _, name := range []string{"mlp", "lenet5", "resnet20"} {
		got, err := ParseNetwork(name)
		require.NoError(t, err)
		assert.Equal(t, Network(name), got)
	}

	_, err := ParseNetwork("vgg16")
	require.Error(t, err)
}

func TestParseRejectsMissingFlags(t *testing.T) {
	_, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParseAcceptsValidFlags(t *testing.T) {
	flags, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError),
		[]string{"--network=lenet5", "--size=1", "--io-root=/tmp/io"})
	require.NoError(t, err)
	assert.Equal(t, NetworkLeNet5, flags.Network)
	assert.Equal(t, Small, flags.Size)
	assert.Equal(t, "/tmp/io", flags.IORoot)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitConfig, ExitCode(NewConfigError("bad flag")))
	assert.Equal(t, ExitConfig, ExitCode(fmt.Errorf("parsing: %w", NewConfigError("bad flag"))))
	assert.Equal(t, ExitIO, ExitCode(fmt.Errorf("reading file: permission denied")))
}

func TestPathsLayout(t *testing.T) {
	p := NewPaths(Flags{Network: NetworkLeNet5, Size: Medium, IORoot: "io"})
	assert.Equal(t, "io/2/public_keys/cc.bin", p.CryptoContextPath())
	assert.Equal(t, "io/2/public_keys/pk.bin", p.PublicKeyPath())
	assert.Equal(t, "io/2/public_keys/rk.bin", p.RelinKeyPath())
	assert.Equal(t, "io/2/public_keys/btp.bin", p.BootstrapKeyPath())
	assert.Equal(t, "io/2/public_keys/layer1_rk.bin", p.LayerRotKeyPath(1))
	assert.Equal(t, "io/2/secret_key/sk.bin", p.SecretKeyPath())
	assert.Equal(t, "io/2/ciphertexts_upload/cipher_input_3.bin", p.CiphertextUploadPath(3))
	assert.Equal(t, "io/2/ciphertexts_download/cipher_result_3.bin", p.CiphertextDownloadPath(3))
	assert.Equal(t, "io/2/encrypted_model_predictions.txt", p.PredictionsPath())
}
