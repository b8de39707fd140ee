package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"pricecrawler/internal/checkpoint"
	"pricecrawler/internal/config"
	"pricecrawler/internal/importer"
	"pricecrawler/internal/logger"
)

func main() {
	mode := flag.String("mode", "auto", "interactive|auto")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDB(); err != nil {
		slog.Error("database not configured", "err", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	ctx := context.Background()

	db, err := sql.Open("pgx", cfg.DB.DSN())
	if err != nil {
		log.Error("open database failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("database unreachable", "err", err)
		os.Exit(1)
	}
	if err := importer.EnsureSchema(ctx, db); err != nil {
		log.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	files, err := resolveFiles(cfg.OutputDir, flag.Args(), *mode)
	if err != nil {
		log.Error("resolve batch files failed", "err", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		log.Warn("nothing to import", "output_dir", cfg.OutputDir)
		return
	}

	imp := importer.New(db, log)
	failed := 0
	for _, path := range files {
		count, err := imp.ImportBatch(ctx, path)
		if err != nil {
			// Rows already written stay; rerunning the file is safe.
			log.Error("import failed", "path", path, "imported_before_failure", count, "err", err)
			failed++
			continue
		}
		log.Info("imported", "path", path, "count", count)
	}

	log.Info("all imports completed", "files", len(files), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// resolveFiles picks the batch files to import: explicit arguments win,
// otherwise every finished batch in the output directory, with interactive
// mode prompting for a subset. Partial checkpoint files are never imported.
func resolveFiles(outputDir string, args []string, mode string) ([]string, error) {
	if len(args) > 0 {
		out := make([]string, 0, len(args))
		for _, a := range args {
			if !filepath.IsAbs(a) {
				a = filepath.Join(outputDir, a)
			}
			out = append(out, a)
		}
		return out, nil
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir %s: %w", outputDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && checkpoint.IsBatchFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if mode == "interactive" && len(names) > 0 {
		picked, err := selectFiles(names)
		if err != nil {
			return nil, err
		}
		names = picked
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(outputDir, n))
	}
	return out, nil
}

func selectFiles(names []string) ([]string, error) {
	fmt.Println("Select the JSON files to import (comma-separated numbers, or 'all'):")
	for i, n := range names {
		fmt.Printf("  %d) %s\n", i+1, n)
	}
	fmt.Print("> ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "all") {
		return names, nil
	}

	var picked []string
	for _, part := range strings.Split(line, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 1 || idx > len(names) {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		picked = append(picked, names[idx-1])
	}
	return picked, nil
}
