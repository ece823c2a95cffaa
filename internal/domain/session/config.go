package session

// Config is the per-session browsing configuration.
type Config struct {
	Language        string `json:"language"`
	ScanDownloads   bool   `json:"scanDownloads"`
	ScanNavigations bool   `json:"scanNavigations"`
}

// ConfigUpdate is a partial Config. Absent fields keep their value. The
// vtAnalyze* names are accepted from older clients.
type ConfigUpdate struct {
	Language           *string `json:"language,omitempty"`
	ScanDownloads      *bool   `json:"scanDownloads,omitempty"`
	ScanNavigations    *bool   `json:"scanNavigations,omitempty"`
	VTAnalyzeDownloads *bool   `json:"vtAnalyzeDownloads,omitempty"`
	VTAnalyzeURLs      *bool   `json:"vtAnalyzeUrls,omitempty"`
}

// Merge applies u to c and reports whether the language changed.
func (c *Config) Merge(u ConfigUpdate) (languageChanged bool) {
	if u.Language != nil && *u.Language != "" && *u.Language != c.Language {
		c.Language = *u.Language
		languageChanged = true
	}
	if v := firstSet(u.ScanDownloads, u.VTAnalyzeDownloads); v != nil {
		c.ScanDownloads = *v
	}
	if v := firstSet(u.ScanNavigations, u.VTAnalyzeURLs); v != nil {
		c.ScanNavigations = *v
	}
	return languageChanged
}

func firstSet(vals ...*bool) *bool {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
