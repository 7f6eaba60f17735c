package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/ingest"
)

var (
	normalizeOut   string
	normalizeNoBOM bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <dir|file>...",
	Short: "Convert CSV files to UTF-8 with a BOM",
	Long: `Detects each CSV's encoding (utf-8, gbk, gb18030, latin1, in that order)
and rewrites it as UTF-8 prefixed with a byte order mark, so spreadsheet tools
open Chinese column names correctly. Files no encoding can decode are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bom := !normalizeNoBOM
		var converted, skipped int

		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return eris.Wrapf(err, "normalize: stat %s", arg)
			}

			if info.IsDir() {
				c, s, err := ingest.NormalizeDir(arg, normalizeOut, bom)
				converted += len(c)
				skipped += len(s)
				if err != nil {
					return err
				}
				continue
			}

			dst := arg
			if normalizeOut != "" {
				dst = filepath.Join(normalizeOut, filepath.Base(arg))
			}
			charset, err := ingest.NormalizeFile(arg, dst, bom)
			if eris.Is(err, ingest.ErrUndecodable) {
				zap.L().Warn("normalize: skipping file, all charsets failed", zap.String("file", arg))
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			zap.L().Info("normalize: converted file", zap.String("file", arg), zap.String("charset", charset))
			converted++
		}

		fmt.Fprintf(os.Stdout, "converted %d file(s), skipped %d\n", converted, skipped)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeOut, "out", "", "write converted files to this directory instead of in place")
	normalizeCmd.Flags().BoolVar(&normalizeNoBOM, "no-bom", false, "omit the UTF-8 byte order mark")
	rootCmd.AddCommand(normalizeCmd)
}
