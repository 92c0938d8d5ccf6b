// Package check validates local PDF files offline with the same rules the
// server applies to uploads.
package check

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/cli"
	"golang.org/x/sync/errgroup"

	"github.com/pdf-extractor/backend/internal/cmd/base"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/pdfdoc"
	"github.com/pdf-extractor/backend/internal/validate"
)

// sniffLen is how much of a file is read to detect its media type.
const sniffLen = 512

type Command struct {
	*base.Command

	flagMaxFiles   int
	flagMaxSizeMB  int
	flagMediaType  string
	flagInspect    bool
	flagConcurrent int
}

func (c *Command) Synopsis() string {
	return "Validate local PDF files against the upload rules"
}

func (c *Command) Help() string {
	return `Usage: pdfextract check [options] <file>...

  Runs the upload validation on local files in the order given and prints
  one line per file. Accepted files are opened to count their pages.
  The exit code is 1 when any file is rejected.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("check", flag.ContinueOnError))
	f.IntVar(&c.flagMaxFiles, "max-files", 10, "Maximum number of files in one set")
	f.IntVar(&c.flagMaxSizeMB, "max-size-mb", 10, "Maximum size of one file in megabytes")
	f.StringVar(&c.flagMediaType, "media-type", validate.DefaultMediaType, "Accepted media type")
	f.BoolVar(&c.flagInspect, "inspect", true, "Open accepted files to count pages")
	f.IntVar(&c.flagConcurrent, "concurrency", 4, "Files inspected in parallel")
	return f
}

// Result is the verdict for one file.
type Result struct {
	Path     string
	Name     string
	Size     int64
	Accepted bool
	Reason   validate.Reason
	Message  string
	Pages    int
	Warning  string
}

func (r Result) String() string {
	if !r.Accepted {
		return fmt.Sprintf("REJECT %-30s %s (%s)", r.Name, r.Message, r.Reason)
	}
	line := fmt.Sprintf("OK     %-30s %s", r.Name, validate.FormatSize(r.Size))
	if r.Pages > 0 {
		line += fmt.Sprintf(", %d pages", r.Pages)
	}
	if r.Warning != "" {
		line += " - " + r.Warning
	}
	return line
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() == 0 {
		c.UI.Error("at least one file is required")
		return cli.RunResultHelp
	}

	limits := validate.Limits{
		MediaType:   c.flagMediaType,
		MaxFileSize: int64(c.flagMaxSizeMB) * 1024 * 1024,
	}
	results := Check(f.Args(), limits, c.flagMaxFiles)

	if c.flagInspect {
		if err := Inspect(context.Background(), results, pdfdoc.NewInspector(), c.flagConcurrent); err != nil {
			c.UI.Error(fmt.Sprintf("error inspecting files: %v", err))
			return 1
		}
	}

	code := 0
	for _, r := range results {
		if r.Accepted {
			c.UI.Output(r.String())
		} else {
			c.UI.Warn(r.String())
			code = 1
		}
	}
	return code
}

// Check validates paths in order, as one upload batch into an empty set.
func Check(paths []string, limits validate.Limits, maxFiles int) []Result {
	v := validate.New(limits)
	var accepted []models.Document
	out := make([]Result, 0, len(paths))

	for _, p := range paths {
		r := Result{Path: p, Name: filepath.Base(p)}
		candidate, err := describe(p)
		if err != nil {
			r.Reason = validate.ReasonStorageError
			r.Message = err.Error()
			out = append(out, r)
			continue
		}
		r.Size = candidate.Size

		verdict := v.CheckFile(candidate, accepted)
		switch {
		case !verdict.Accepted:
			r.Reason = verdict.Reason
		case maxFiles > 0 && len(accepted) >= maxFiles:
			r.Reason = validate.ReasonExceedsMaxCount
		default:
			r.Accepted = true
			accepted = append(accepted, models.Document{Name: r.Name, Size: r.Size, Kind: models.KindFile, AddedAt: time.Now()})
		}
		if !r.Accepted {
			r.Message = r.Reason.Message(r.Name, limits)
		}
		out = append(out, r)
	}
	return out
}

// PageCounter counts the pages of a PDF.
type PageCounter interface {
	PageCount(rs io.ReadSeeker) (int, error)
}

// Inspect counts pages of accepted results in parallel. Unreadable files
// stay accepted with a warning.
func Inspect(ctx context.Context, results []Result, counter PageCounter, concurrency int) error {
	g, _ := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i := range results {
		if !results[i].Accepted {
			continue
		}
		r := &results[i]
		g.Go(func() error {
			f, err := os.Open(r.Path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", r.Path, err)
			}
			defer f.Close()

			pages, err := counter.PageCount(f)
			if err != nil {
				r.Warning = "could not read the PDF structure"
				return nil
			}
			r.Pages = pages
			return nil
		})
	}
	return g.Wait()
}

func describe(path string) (validate.FileCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return validate.FileCandidate{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return validate.FileCandidate{}, err
	}
	if info.IsDir() {
		return validate.FileCandidate{}, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return validate.FileCandidate{}, err
	}

	return validate.FileCandidate{
		Name:      filepath.Base(path),
		Size:      info.Size(),
		MediaType: http.DetectContentType(head[:n]),
	}, nil
}
