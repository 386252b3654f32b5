package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// labelEscaper escapes the characters the Prometheus text format reserves
// inside label values.
var labelEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	`"`, `\"`,
)

func escapeLabelValue(value string) string {
	return labelEscaper.Replace(value)
}

// FormatPrometheus renders structured metrics data as Prometheus text
// exposition. Values go through %g so stale NaN markers print as NaN,
// which the text format accepts.
func FormatPrometheus(data *MetricsData) string {
	var out strings.Builder

	for _, family := range data.Families {
		fmt.Fprintf(&out, "# HELP %s %s\n", family.Name, family.Help)
		fmt.Fprintf(&out, "# TYPE %s %s\n", family.Name, family.Type)

		for _, metric := range family.Metrics {
			out.WriteString(family.Name)
			out.WriteByte('{')
			writeLabels(&out, metric.Labels)
			fmt.Fprintf(&out, "} %g\n", metric.Value)
		}
	}

	return out.String()
}

// writeLabels emits the label pairs comma joined, keys in alphabetical
// order so the exposition is stable across scrapes.
func writeLabels(out *strings.Builder, labels map[string]string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i > 0 {
			out.WriteByte(',')
		}
		fmt.Fprintf(out, `%s="%s"`, k, escapeLabelValue(labels[k]))
	}
}
