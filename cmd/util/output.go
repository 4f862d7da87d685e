package util

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

const OutputFlag = "output"

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

func AddOutputFlag(flags *pflag.FlagSet) {
	flags.StringP(OutputFlag, "o", OutputText, "the output format (one of text, json, yaml)")
}

// Print writes data in format. The text format is a table whose rows are produced by
// rows, one slice of cells per line, after the header.
func Print(w io.Writer, format string, data any, header []string, rows func(add func(cells ...any))) error {
	switch format {
	case OutputJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case OutputYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case OutputText, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		writeRow(tw, toAny(header)...)
		rows(func(cells ...any) {
			writeRow(tw, cells...)
		})
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format '%s'", format)
	}
}

func writeRow(w io.Writer, cells ...any) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
