package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Pojie/pojie-go/source"
	"github.com/spf13/cobra"
)

var parseLogWpaCli bool

var parseLogCmd = &cobra.Command{
	Use:   "parse-log [file]",
	Short: "Print the events found in a supplicant log",
	Long: `Run the log parser over a file, or stdin when no file is given, and print
one JSON event per line. With --wpa-cli the input is read as wpa_cli event
output and the parsed state changes are printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParseLog,
}

func init() {
	parseLogCmd.Flags().BoolVar(&parseLogWpaCli, "wpa-cli", false, "parse wpa_cli event lines")
	rootCmd.AddCommand(parseLogCmd)
}

func runParseLog(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer f.Close()
		in = f
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	parser := source.NewLogParser()
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var (
			v  any
			ok bool
		)
		if parseLogWpaCli {
			v, ok = source.ParseWpaCliEvent(sc.Text())
		} else {
			v, ok = parser.Parse(sc.Text())
		}
		if !ok {
			continue
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
