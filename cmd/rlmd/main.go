// Command rlmd wires the core packages into the typed calls spec §6
// names (Ingest, Ask) plus the list_labels administrative operation
// SPEC_FULL.md adds, exposed as subcommands. The chat surface itself
// (slash commands, session management) is explicitly out of scope per
// spec §6 ("interface-only, not core"); this binary is the thin
// capability-per-subcommand shape the teacher's examples/ directory uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/smallnest/rlmcore/config"
	"github.com/smallnest/rlmcore/contentstore"
	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/docstore/postgres"
	"github.com/smallnest/rlmcore/docstore/rediscache"
	"github.com/smallnest/rlmcore/ingest"
	"github.com/smallnest/rlmcore/llmclient"
	"github.com/smallnest/rlmcore/rlmengine"
	"github.com/smallnest/rlmcore/rlmlog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := rlmlog.New("rlmd", rlmlog.LevelInfo)

	ctx := context.Background()

	switch os.Args[1] {
	case "ingest":
		runIngest(ctx, cfg, log, os.Args[2:])
	case "ask":
		runAsk(ctx, cfg, log, os.Args[2:])
	case "sources":
		runSources(ctx, cfg, log, os.Args[2:])
	case "list-labels":
		runListLabels(ctx, cfg, log)
	case "clear":
		runClear(ctx, cfg, log, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rlmd <ingest|ask|sources|list-labels|clear> [flags]")
}

func openStores(ctx context.Context, cfg *config.Config, log rlmlog.Logger) (*contentstore.ContentStore, docstore.Store, error) {
	cs, err := contentstore.Open(cfg.DataDir + "/docs/blobs")
	if err != nil {
		return nil, nil, err
	}

	var ds docstore.Store
	switch cfg.DocstoreBackend {
	case "postgres":
		ds, err = postgres.New(ctx, postgres.Options{ConnString: cfg.PostgresConnString})
	case "sqlite", "":
		ds, err = docstore.Open(docstore.Options{Path: cfg.DataDir + "/docs/index/rlm.db"})
	default:
		err = fmt.Errorf("unknown RLM_DOCSTORE_BACKEND %q (want sqlite or postgres)", cfg.DocstoreBackend)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.RedisAddr != "" {
		cache := rediscache.New(rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   log,
		})
		ds = rediscache.NewCachingStore(ds, cache)
	}

	return cs, ds, nil
}

func runIngest(ctx context.Context, cfg *config.Config, log rlmlog.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	url := fs.String("url", "", "source URL: repo or web page")
	label := fs.String("label", "", "topic label")
	docType := fs.String("type", string(docstore.DocTypeDocumentation), "documentation|code|minimal|web")
	branch := fs.String("branch", "main", "repo branch, for repo ingests")
	urlContext := fs.String("url-context", "", "operator-supplied URL-attribution context")
	fs.Parse(args)

	if *url == "" || *label == "" {
		fmt.Fprintln(os.Stderr, "ingest: -url and -label are required")
		os.Exit(2)
	}

	cs, ds, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("ingest: opening stores: %v", err)
		os.Exit(1)
	}
	defer ds.Close()

	ig := ingest.New(cs, ds, nil, nil, log)
	n, err := ig.Ingest(ctx, ingest.Request{
		URL:        *url,
		Label:      *label,
		DocType:    docstore.DocType(*docType),
		Branch:     *branch,
		URLContext: *urlContext,
	})
	if err != nil {
		log.Error("ingest failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("ingested %d document(s) under label %q\n", n, *label)
}

func runAsk(ctx context.Context, cfg *config.Config, log rlmlog.Logger, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	topic := fs.String("topic", "", "topic label to query")
	question := fs.String("question", "", "the question to ask")
	fs.Parse(args)

	if *topic == "" || *question == "" {
		fmt.Fprintln(os.Stderr, "ask: -topic and -question are required")
		os.Exit(2)
	}

	_, ds, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("ask: opening stores: %v", err)
		os.Exit(1)
	}
	defer ds.Close()

	primary := llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)
	sub := llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMSubModel, log)

	engine := rlmengine.New(ds, primary, sub, log, rlmengine.Options{
		MaxIterations:     cfg.MaxIterations,
		MinCodeExecutions: cfg.MinCodeExecutions,
		MinAnswerLen:      cfg.MinAnswerLen,
		ParallelLoops:     cfg.ParallelLoops,
	})

	result, err := engine.Ask(ctx, *topic, *question)
	if err != nil {
		log.Warn("ask: %v", err)
	}
	if result == nil {
		os.Exit(1)
	}

	fmt.Println(result.Answer)
	if len(result.CitedURLs) > 0 {
		fmt.Println("\nSources:")
		for _, u := range result.CitedURLs {
			fmt.Printf("  - %s\n", u)
		}
	}
	if result.Truncated {
		fmt.Fprintf(os.Stderr, "\n(truncated after %d iterations, %d script calls)\n", result.Iterations, result.ScriptCalls)
	}
}

func runSources(ctx context.Context, cfg *config.Config, log rlmlog.Logger, args []string) {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	label := fs.String("label", "", "topic label")
	fs.Parse(args)

	if *label == "" {
		fmt.Fprintln(os.Stderr, "sources: -label is required")
		os.Exit(2)
	}

	_, ds, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("sources: opening stores: %v", err)
		os.Exit(1)
	}
	defer ds.Close()

	ids, err := ds.ListByLabel(ctx, *label)
	if err != nil {
		log.Error("sources: %v", err)
		os.Exit(1)
	}

	for _, id := range ids {
		doc, err := ds.Get(ctx, id)
		if err != nil {
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", doc.DocID, doc.Path, doc.SourceURL)
	}
}

// runListLabels is the SPEC_FULL.md-supplemented administrative operation
// surfacing docstore.ListLabels.
func runListLabels(ctx context.Context, cfg *config.Config, log rlmlog.Logger) {
	_, ds, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("list-labels: opening stores: %v", err)
		os.Exit(1)
	}
	defer ds.Close()

	labels, err := ds.ListLabels(ctx)
	if err != nil {
		log.Error("list-labels: %v", err)
		os.Exit(1)
	}

	for _, l := range labels {
		fmt.Printf("%s\t%d\n", l.Label, l.Count)
	}
}

func runClear(ctx context.Context, cfg *config.Config, log rlmlog.Logger, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	label := fs.String("label", "", "topic label to wipe")
	fs.Parse(args)

	if *label == "" {
		fmt.Fprintln(os.Stderr, "clear: -label is required")
		os.Exit(2)
	}

	cs, ds, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("clear: opening stores: %v", err)
		os.Exit(1)
	}
	defer ds.Close()

	hashes, err := ds.DeleteLabel(ctx, *label)
	if err != nil {
		log.Error("clear: %v", err)
		os.Exit(1)
	}
	collected := 0
	for _, h := range hashes {
		stillReferenced, err := ds.HasContentHash(ctx, h)
		if err != nil {
			log.Warn("clear: checking references for blob %s: %v", h, err)
			continue
		}
		if stillReferenced {
			continue
		}
		if err := cs.Collect(h); err != nil {
			log.Warn("clear: collecting blob %s: %v", h, err)
			continue
		}
		collected++
	}
	fmt.Printf("cleared %d document(s) under label %q (%d blob(s) collected)\n", len(hashes), *label, collected)
}
