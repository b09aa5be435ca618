// Command contextsearch runs one Reddit or YouTube search from the terminal,
// or an interactive prompt when no query is given.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/anatolykoptev/go_context/internal/app"
	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/logging"
)

type options struct {
	platform    string
	query       string
	count       int
	format      string
	subItems    bool
	subLimit    int
	full        bool
	concurrency int
	out         string
	timings     bool
}

func main() {
	var o options
	flag.StringVar(&o.platform, "platform", "reddit", "reddit or youtube")
	flag.StringVar(&o.query, "q", "", "search query; empty starts the interactive prompt")
	flag.IntVar(&o.count, "n", 5, "number of results (1-25)")
	flag.StringVar(&o.format, "format", "full", "full, reduced-object or reduced-markup")
	flag.BoolVar(&o.subItems, "sub", true, "attach comments or transcript excerpts")
	flag.IntVar(&o.subLimit, "sub-limit", 5, "comments or excerpts per result")
	flag.BoolVar(&o.full, "full-transcript", false, "attach whole transcripts (youtube)")
	flag.IntVar(&o.concurrency, "concurrency", 0, "parallel fetches; 1 keeps search order")
	flag.StringVar(&o.out, "out", "", "directory to save each batch to")
	flag.BoolVar(&o.timings, "timings", false, "print per-operation timings at exit")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(o options) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if o.out != "" {
		cfg.OutputDir = o.out
	}
	app.AttachClients(&cfg, logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	platform := engine.Platform(strings.ToLower(o.platform))
	p := a.Pipeline(platform)
	if p == nil {
		return fmt.Errorf("platform %q is not available (youtube needs YOUTUBE_API_KEY)", o.platform)
	}

	search := func(query string) error {
		batch, err := p.Run(ctx, o.request(query))
		if err != nil {
			return err
		}
		render(os.Stdout, query, batch)
		if o.out != "" {
			saved, err := a.Archive.Save(ctx, query, batch)
			if err != nil {
				return err
			}
			fmt.Printf("\nSaved %d results to %s\n", saved.Records, saved.Path)
		}
		return nil
	}

	if o.query != "" {
		err = search(o.query)
	} else {
		err = interactive(os.Stdin, os.Stdout, search)
	}
	if o.timings {
		fmt.Print("\n" + a.Timings.Summary())
	}
	return err
}

func (o options) request(query string) engine.Request {
	return engine.Request{
		Query:           query,
		DesiredCount:    o.count,
		Format:          o.format,
		IncludeSubItems: o.subItems,
		SubItemLimit:    o.subLimit,
		Concurrency:     o.concurrency,
		FullAncillary:   o.full,
	}
}

// interactive prompts for queries until "quit" or end of input.
// Search errors are printed and the loop continues.
func interactive(in io.Reader, out io.Writer, search func(string) error) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nEnter your search query (or 'quit' to exit): ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		query := strings.TrimSpace(sc.Text())
		switch {
		case query == "":
			fmt.Fprintln(out, "No search query provided.")
			continue
		case strings.EqualFold(query, "quit"):
			return nil
		}
		fmt.Fprintf(out, "\nSearching for: %s\n", query)
		if err := search(query); err != nil {
			fmt.Fprintf(out, "An error occurred: %v\n", err)
		}
	}
}

// render prints a batch for humans. Markup batches print the document as is.
func render(w io.Writer, query string, b engine.Batch) {
	if b.Records == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	if b.Format == engine.FormatReducedMarkup {
		fmt.Fprint(w, b.Markup())
		return
	}

	fmt.Fprintf(w, "\nTop %d %s results for '%s':\n", b.Records, b.Platform, query)
	if b.Format == engine.FormatReducedObject {
		for i, s := range b.SlimRecords() {
			fmt.Fprintf(w, "\n%d. %s\n   %s\n", i+1, s.Title, s.URL)
			for _, sub := range s.SubItems {
				fmt.Fprintf(w, "   - %s\n", engine.TruncateAtWord(sub, 160))
			}
		}
		return
	}

	for i, r := range b.DetailRecords() {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, r.Title)
		switch r.Platform {
		case engine.PlatformYouTube:
			fmt.Fprintf(w, "   Channel: %s\n   Published: %s\n   URL: %s\n", r.Container, r.CreatedAt, r.URL)
			if snippets := engine.DescriptionSnippets(r.Body, 5); len(snippets) > 0 {
				fmt.Fprintln(w, "   Snippets:")
				for j, s := range snippets {
					fmt.Fprintf(w, "      %d. %s\n", j+1, s)
				}
			}
		default:
			fmt.Fprintf(w, "   r/%s · score %d · %d comments\n   %s\n", r.Container, r.Metrics.Score, r.Metrics.Comments, r.URL)
		}
		for _, sub := range r.SubItems {
			fmt.Fprintf(w, "   - %s\n", engine.TruncateAtWord(sub.Body, 160))
		}
	}
}
