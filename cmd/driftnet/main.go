package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"driftnet/internal/config"
	"driftnet/internal/jobs"
	"driftnet/internal/logging"
	"driftnet/internal/metrics"
	"driftnet/internal/profilestore"
	"driftnet/internal/rapidapi"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "fetch":
		cmdFetch(false)
	case "pages":
		cmdFetch(true)
	case "backfill":
		cmdReprocess(true)
	case "process":
		cmdReprocess(false)
	case "discover":
		cmdDiscover()
	case "sources":
		cmdSources()
	case "migrate":
		cmdMigrate()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: driftnet <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./driftnet.yaml")
	fmt.Println("  fetch       Download a user's tweets and replies, backfill, and clean")
	fmt.Println("  pages       Download and save raw pages only")
	fmt.Println("  backfill    Backfill and clean an existing raw file")
	fmt.Println("  process     Rebuild clean outputs from an existing raw file (no API calls)")
	fmt.Println("  discover    Walk a seed account's followings through the dedup policy")
	fmt.Println("  sources     Show who discovered a handle")
	fmt.Println("  migrate     Merge case-variant profile rows")
}

func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
			cfg.ResolveEnv()
		} else {
			fail(err)
		}
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr)
	}
	return cfg
}

func mustRunner(cfg config.Config) (*jobs.Runner, profilestore.Store) {
	store, err := profilestore.Open(cfg.Storage)
	if err != nil {
		fail(err)
	}
	client := rapidapi.New(cfg.API)
	return jobs.New(cfg, client, store), store
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./driftnet.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fail(err)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdFetch(pagesOnly bool) {
	name := "fetch"
	if pagesOnly {
		name = "pages"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "./driftnet.yaml", "config path")
	username := fs.String("username", "", "twitter username (with or without @)")
	_ = fs.Parse(os.Args[2:])
	if *username == "" && fs.NArg() > 0 {
		*username = fs.Arg(0)
	}
	if *username == "" {
		fail(fmt.Errorf("missing username"))
	}
	cfg := loadConfig(*cfgPath)
	runner, store := mustRunner(cfg)
	defer store.Close()

	ctx := context.Background()
	var err error
	if pagesOnly {
		err = runner.RunPagesOnly(ctx, *username)
	} else {
		err = runner.RunFetch(ctx, *username)
	}
	if err != nil {
		fail(err)
	}
}

func cmdReprocess(backfill bool) {
	name := "process"
	if backfill {
		name = "backfill"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "./driftnet.yaml", "config path")
	rawFile := fs.String("raw-file", "", "existing raw JSON file")
	_ = fs.Parse(os.Args[2:])
	if *rawFile == "" && fs.NArg() > 0 {
		*rawFile = fs.Arg(0)
	}
	if *rawFile == "" {
		fail(fmt.Errorf("missing -raw-file"))
	}
	cfg := loadConfig(*cfgPath)
	runner, store := mustRunner(cfg)
	defer store.Close()

	ctx := context.Background()
	var err error
	if backfill {
		err = runner.RunBackfillFromRaw(ctx, *rawFile)
	} else {
		err = runner.RunProcessOnly(ctx, *rawFile)
	}
	if err != nil {
		fail(err)
	}
}

func cmdDiscover() {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	cfgPath := fs.String("config", "./driftnet.yaml", "config path")
	seed := fs.String("seed", "", "seed username whose followings to inspect")
	count := fs.Int("count", 50, "how many of the newest followings to inspect")
	_ = fs.Parse(os.Args[2:])
	if *seed == "" && fs.NArg() > 0 {
		*seed = fs.Arg(0)
	}
	if *seed == "" {
		fail(fmt.Errorf("missing seed username"))
	}
	cfg := loadConfig(*cfgPath)
	runner, store := mustRunner(cfg)
	defer store.Close()

	decisions, err := runner.RunDiscovery(context.Background(), *seed, *count)
	if err != nil {
		fail(err)
	}
	processed := 0
	for _, d := range decisions {
		if d.Process {
			processed++
			fmt.Printf("  process @%s (%s)\n", d.Handle, d.Outcome)
		} else {
			fmt.Printf("  skip    @%s (%s)\n", d.Handle, d.Outcome)
		}
	}
	fmt.Printf("%d inspected, %d to process\n", len(decisions), processed)
}

func cmdSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	cfgPath := fs.String("config", "./driftnet.yaml", "config path")
	handle := fs.String("handle", "", "handle to look up")
	_ = fs.Parse(os.Args[2:])
	if *handle == "" && fs.NArg() > 0 {
		*handle = fs.Arg(0)
	}
	if *handle == "" {
		fail(fmt.Errorf("missing handle"))
	}
	cfg := loadConfig(*cfgPath)
	runner, store := mustRunner(cfg)
	defer store.Close()

	rels, err := runner.Sources(context.Background(), *handle)
	if err != nil {
		fail(err)
	}
	if len(rels) == 0 {
		fmt.Println("no discovery edges recorded")
		return
	}
	for _, rel := range rels {
		fmt.Printf("  @%s discovered by @%s on %s\n", rel.Handle, rel.DiscoveredBy, rel.DiscoveryDate.Format("2006-01-02"))
	}
}

func cmdMigrate() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cfgPath := fs.String("config", "./driftnet.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	runner, store := mustRunner(cfg)
	defer store.Close()

	removed, err := runner.Migrate(context.Background())
	if err != nil {
		fail(err)
	}
	fmt.Printf("merged %d case-variant row(s)\n", removed)
}
