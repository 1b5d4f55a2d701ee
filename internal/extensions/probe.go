package extensions

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ProbeManifestID extracts the extension id from raw manifest bytes without a
// full decode. It returns an empty string when the document is not valid JSON
// or carries no id.
func ProbeManifestID(data []byte, kind Kind) string {
	if !gjson.ValidBytes(data) {
		return ""
	}

	paths := []string{"id", "plugin_id", "theme_id"}
	if kind == KindTheme {
		paths = []string{"id", "theme_id", "plugin_id"}
	}
	for _, result := range gjson.GetManyBytes(data, paths...) {
		if result.Type == gjson.String {
			if id := strings.TrimSpace(result.Str); id != "" {
				return id
			}
		}
	}
	return ""
}

// ProbeManifestVersion returns the declared version, if any.
func ProbeManifestVersion(data []byte) string {
	return strings.TrimSpace(gjson.GetBytes(data, "version").String())
}
