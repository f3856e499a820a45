package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/INLOpen/nexusbase/config"
	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/hooks"
	"github.com/INLOpen/nexusbase/hooks/listeners"
	"github.com/INLOpen/nexusbase/txlog"
	"github.com/INLOpen/nexusbase/version"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults are used if omitted)")
	logDir := flag.String("log-dir", "", "overrides the WAL live directory from config")
	fromSequence := flag.Uint64("from", 1, "sequence number to start replay at")
	follow := flag.Bool("follow", false, "keep polling for new batches instead of exiting at the current write horizon")
	printEntries := flag.Bool("entries", false, "decode and print each batch's entries instead of just its header")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *logDir != "" {
		cfg.WAL.Dir = *logDir
	}
	archiveDir := cfg.WAL.Dir + string(os.PathSeparator) + core.ArchiveDirName

	files, err := txlog.DiscoverFiles(cfg.WAL.Dir, archiveDir)
	if err != nil {
		logger.Error("failed to discover log files", "error", err, "log_dir", cfg.WAL.Dir)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no WAL segments found in %s\n", cfg.WAL.Dir)
		os.Exit(1)
	}
	if err := txlog.ValidateFiles(files); err != nil {
		logger.Error("discovered log files fail ordering invariants", "error", err)
		os.Exit(1)
	}

	// A one-shot tail has nothing durable to catch up to beyond what's
	// already on disk: use the highest last-sequence any discovered file
	// could plausibly contain as the write horizon. In a real deployment
	// this comes from the engine's live version.Set instead.
	versionView := version.New(highestPlausibleSequence(files))

	hookManager := hooks.NewHookManager(logger)
	hookManager.Register(hooks.EventOnGapReseek, listeners.NewGapReseekAlerterListener(logger))

	it := txlog.New(txlog.Options{
		LogDir:           cfg.WAL.Dir,
		ArchiveDir:       archiveDir,
		Files:            files,
		StartingSequence: *fromSequence,
		VersionView:      versionView,
		VerifyChecksums:  cfg.Iterator.VerifyChecksums,
		GapReseekEnabled: cfg.Iterator.GapReseekEnabled,
		HookManager:      hookManager,
		Logger:           logger,
	})
	defer it.Close()

	pollInterval := config.ParseDuration(cfg.Iterator.PollInterval, 100*time.Millisecond, logger)

	for {
		for it.Valid() {
			printDelivery(it.GetBatch(), *printEntries)
			it.Next()
		}

		status := it.Status()
		if !status.IsOK() {
			logger.Error("iterator faulted", "status", status.Error())
			os.Exit(1)
		}
		if !*follow {
			return
		}
		versionView.Advance(highestPlausibleSequence(files))
		time.Sleep(pollInterval)
		it.Next()
	}
}

func highestPlausibleSequence(files []txlog.LogFileDescriptor) uint64 {
	var maxBytes uint64
	for _, f := range files {
		maxBytes += f.SizeBytes
	}
	// Every batch header costs at least core.MinRecordSize bytes on disk, so
	// this overestimates the true horizon; canReadMore only ever narrows
	// down to what's actually framed on disk, never past it.
	return maxBytes / uint64(core.MinRecordSize)
}

func printDelivery(d txlog.Delivery, decodeEntries bool) {
	if !decodeEntries {
		fmt.Printf("seq=%d count=%d bytes=%d\n", d.Sequence, d.Count, len(d.Payload))
		return
	}
	batch, err := core.DecodeBatch(d.Payload)
	if err != nil {
		fmt.Printf("seq=%d count=%d <undecodable: %v>\n", d.Sequence, d.Count, err)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	for i, entry := range batch.Entries {
		enc.Encode(map[string]any{
			"sequence": d.Sequence + uint64(i),
			"type":     entry.EntryType.String(),
			"key":      string(entry.Key),
		})
	}
}
