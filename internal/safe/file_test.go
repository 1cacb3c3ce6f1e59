package safe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	regular := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(regular, []byte("profiler: {}\n"), 0o600))

	link := filepath.Join(dir, "link.yaml")
	require.NoError(t, os.Symlink(regular, link))

	big := filepath.Join(dir, "big.yaml")
	require.NoError(t, os.WriteFile(big, make([]byte, 128), 0o600))

	tests := []struct {
		name    string
		path    string
		opts    *ReadFileOptions
		want    string
		wantErr bool
	}{
		{name: "regular file", path: regular, want: "profiler: {}\n"},
		{name: "symlink rejected", path: link, wantErr: true},
		{name: "symlink allowed", path: link, opts: &ReadFileOptions{AllowSymlinks: true}, want: "profiler: {}\n"},
		{name: "directory", path: dir, wantErr: true},
		{name: "missing", path: filepath.Join(dir, "missing.yaml"), wantErr: true},
		{name: "too large", path: big, opts: &ReadFileOptions{MaxSize: 64}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadFile(tt.path, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
