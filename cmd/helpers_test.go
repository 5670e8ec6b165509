package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testModelYAML = `name: wa-flat
family: negative_binomial
link: log
terms: [Intercept]
coefficients: [0]
scale: 1
covariance:
  - [0.01]
`

const testCrashCSV = `road_inv,begmp,endmp,lanewid,seg_lng,avg_aadt,longitude,latitude,tot_acc_ct
002,0,0.42,12,0.42,5400,-122.0,47.0,1
002,0.42,1.1,11,0.68,6100,-122.1,47.1,4
005,10,10.5,12,0.5,48000,-122.2,47.2,22
005,10.5,11.3,NA,0.8,51000,,,15
`

// chdirTemp switches into a fresh temp dir holding files and restores the
// working directory and cfg afterwards.
func chdirTemp(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))

	oldCfg := cfg
	t.Cleanup(func() {
		_ = os.Chdir(orig)
		cfg = oldCfg
	})
	return dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}
