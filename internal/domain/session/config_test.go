package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestConfigMerge(t *testing.T) {
	c := Config{Language: "es-ES"}

	assert.False(t, c.Merge(ConfigUpdate{}))
	assert.Equal(t, Config{Language: "es-ES"}, c)

	assert.True(t, c.Merge(ConfigUpdate{Language: ptr("en-US"), ScanDownloads: ptr(true)}))
	assert.Equal(t, Config{Language: "en-US", ScanDownloads: true}, c)

	assert.False(t, c.Merge(ConfigUpdate{Language: ptr("en-US"), VTAnalyzeURLs: ptr(true)}))
	assert.True(t, c.ScanNavigations)

	assert.False(t, c.Merge(ConfigUpdate{Language: ptr(""), VTAnalyzeDownloads: ptr(false)}))
	assert.Equal(t, "en-US", c.Language)
	assert.False(t, c.ScanDownloads)
}

func TestConfigMergePrefersCanonicalNames(t *testing.T) {
	c := Config{}
	c.Merge(ConfigUpdate{ScanNavigations: ptr(false), VTAnalyzeURLs: ptr(true)})
	assert.False(t, c.ScanNavigations)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"example.com", "https://example.com", false},
		{"  example.com/a?b=c ", "https://example.com/a?b=c", false},
		{"http://example.com", "http://example.com", false},
		{"HTTPS://Example.com", "HTTPS://Example.com", false},
		{"about:blank", "about:blank", false},
		{"", "", true},
		{"http://", "", true},
		{"javascript:alert(1)", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, u, err := normalizeURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotNil(t, u)
		})
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "New Tab", cleanTitle(""))
	assert.Equal(t, "New Tab", cleanTitle("  <script>x</script> "))
	assert.Equal(t, "Hello World", cleanTitle("<b>Hello</b>\n  World"))
	assert.Equal(t, "Q&A", cleanTitle("Q&amp;A"))
}
