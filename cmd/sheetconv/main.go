// Command sheetconv converts spreadsheets between CSV, XLSX and ODS.
// Formats are picked from the file extensions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/silecs/spout"
	"github.com/silecs/spout/csv"
	"github.com/silecs/spout/ods"
	"github.com/silecs/spout/xlsx"
)

var verbose zlog.VerboseVar
var logger = zlog.NewLogger(zlog.MaybeConsoleHandler(&verbose, os.Stderr)).SLog()

func main() {
	if err := Main(); err != nil {
		slog.Error("MAIN", "error", err)
		os.Exit(1)
	}
}

func Main() error {
	fs := flag.NewFlagSet("sheetconv", flag.ContinueOnError)
	fs.Var(&verbose, "v", "logging verbosity")
	flagOut := fs.String("o", "", "output file name (format inferred from extension)")
	flagDelimiter := fs.String("delimiter", ",", "CSV field delimiter")
	flagCharset := fs.String("charset", "utf-8", "CSV input charset name")
	flagBOM := fs.Bool("bom", true, "CSV output: start with a UTF-8 byte order mark")
	flagFormatDates := fs.Bool("format-dates", false, "render date cells as display text instead of timestamps")
	flagPreserve := fs.Bool("preserve-empty-rows", false, "keep fully empty rows instead of skipping them")
	flagInline := fs.Bool("inline-strings", false, "XLSX output: inline strings instead of a shared table")
	flag1904 := fs.Bool("1904", false, "XLSX output: use the 1904 date system")
	flagSheet := fs.String("sheet", "", "convert only the sheet with this name")

	app := ffcli.Command{
		Name:       "sheetconv",
		ShortUsage: "sheetconv [flags] -o output input.{csv,xlsx,ods}",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("SHEETCONV")},
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 || *flagOut == "" {
				return flag.ErrHelp
			}
			conv := converter{
				readerOpts: []spout.Option{
					spout.WithFieldDelimiter(firstRune(*flagDelimiter)),
					spout.WithEncoding(*flagCharset),
					spout.WithFormatDates(*flagFormatDates),
					spout.WithPreserveEmptyRows(*flagPreserve),
					spout.WithLogger(logger),
				},
				writerOpts: []spout.Option{
					spout.WithFieldDelimiter(firstRune(*flagDelimiter)),
					spout.WithBOM(*flagBOM),
					spout.WithInlineStrings(*flagInline),
					spout.With1904Epoch(*flag1904),
					spout.WithLogger(logger),
				},
				onlySheet: *flagSheet,
			}
			return conv.run(ctx, args[0], *flagOut)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return app.ParseAndRun(ctx, os.Args[1:])
}

type converter struct {
	readerOpts []spout.Option
	writerOpts []spout.Option
	onlySheet  string
}

// sheetedWriter is the extra surface of the multi-sheet writers.
type sheetedWriter interface {
	spout.Writer
	AddSheet(name string) error
}

func (c converter) run(ctx context.Context, inPath, outPath string) error {
	r, err := c.openReader(inPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := c.createWriter(outPath)
	if err != nil {
		return err
	}

	if err := c.copySheets(ctx, r, w); err != nil {
		w.Close()
		os.Remove(outPath)
		return err
	}
	return w.Close()
}

func (c converter) copySheets(ctx context.Context, r spout.Reader, w spout.Writer) error {
	multi, _ := w.(sheetedWriter)
	wroteSheets := 0

	sheets := r.Sheets()
	for sheets.Next() {
		sheet := sheets.Sheet()
		if c.onlySheet != "" && sheet.Name() != c.onlySheet {
			continue
		}
		if wroteSheets > 0 {
			if multi == nil {
				logger.Info("output format holds a single sheet, stopping here",
					"skipped", sheet.Name())
				break
			}
			if err := multi.AddSheet(sheet.Name()); err != nil {
				// the name may collide with an auto-assigned one
				logger.Debug("sheet name rejected, using a generated one",
					"name", sheet.Name(), "error", err)
				if err := multi.AddSheet(""); err != nil {
					return err
				}
			}
		}
		logger.Debug("converting sheet", "name", sheet.Name(), "index", sheet.Index())

		rows := sheet.Rows()
		n := 0
		for rows.Next() {
			if err := ctx.Err(); err != nil {
				rows.Close()
				return err
			}
			if err := w.AddRow(rows.Row()); err != nil {
				rows.Close()
				return err
			}
			n++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		logger.Debug("sheet done", "name", sheet.Name(), "rows", n)
		wroteSheets++
	}
	if err := sheets.Err(); err != nil {
		return err
	}
	if wroteSheets == 0 && c.onlySheet != "" {
		return fmt.Errorf("sheetconv: sheet %q not found in input", c.onlySheet)
	}
	return nil
}

func (c converter) openReader(path string) (spout.Reader, error) {
	switch ext(path) {
	case ".csv":
		return csv.Open(path, c.readerOpts...)
	case ".xlsx":
		return xlsx.Open(path, c.readerOpts...)
	case ".ods":
		return ods.Open(path, c.readerOpts...)
	default:
		return nil, fmt.Errorf("sheetconv: unsupported input format %q", ext(path))
	}
}

func (c converter) createWriter(path string) (spout.Writer, error) {
	switch ext(path) {
	case ".csv":
		return csv.Create(path, c.writerOpts...)
	case ".xlsx":
		return xlsx.Create(path, c.writerOpts...)
	case ".ods":
		return ods.Create(path, c.writerOpts...)
	default:
		return nil, fmt.Errorf("sheetconv: unsupported output format %q", ext(path))
	}
}

func ext(path string) string { return strings.ToLower(filepath.Ext(path)) }

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return ','
}
