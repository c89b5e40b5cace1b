package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/shared/version"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		current string
		commit  string
		want    string
	}{
		{name: "release", current: "v1.4.0", commit: "abc123", want: "autocrm v1.4.0 (abc123)\n"},
		{name: "development", current: "dev", want: "autocrm dev [development build]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prevCurrent, prevCommit := version.Current, version.Commit
			t.Cleanup(func() { version.Current, version.Commit = prevCurrent, prevCommit })
			version.Current, version.Commit = tt.current, tt.commit

			var out bytes.Buffer
			cmd := NewCommand()
			cmd.SetOut(&out)
			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, out.String())
		})
	}
}
