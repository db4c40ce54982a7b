package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/nakarte/geophotos/geophoto"
	"github.com/nakarte/geophotos/internal/config"
)

func main() {
	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)

	if len(os.Args) < 2 {
		helptext := `Usage: geophotos [COMMAND] [ARGS]

Scheduling a download queue:
geophotos build-queue full -photo-db PATH -queue-db PATH -temp-dir DIR [-flag]
geophotos build-queue recent -days N -queue-db PATH [-flag]

Running the downloader:
geophotos download -queue-db PATH -photo-db PATH [-stop-at-sentinel]

Building the tile pyramid:
geophotos make-tiles -photo-db PATH -tiles-db PATH -temp-dir DIR

Uploading a finished artifact:
geophotos upload INPUT BUCKET_URL`
		fmt.Println(helptext)
		os.Exit(1)
	}

	cfg := config.Default()
	if key := os.Getenv("GEOPHOTOS_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	switch os.Args[1] {
	case "build-queue":
		if err := runBuildQueue(logger, cfg, os.Args[2:]); err != nil {
			logger.Fatalf("geophotos: build-queue failed: %v", err)
		}
	case "download":
		if err := runDownload(logger, cfg, os.Args[2:]); err != nil {
			logger.Fatalf("geophotos: download failed: %v", err)
		}
	case "make-tiles":
		if err := runMakeTiles(logger, cfg, os.Args[2:]); err != nil {
			logger.Fatalf("geophotos: make-tiles failed: %v", err)
		}
	case "upload":
		if err := runUpload(logger, os.Args[2:]); err != nil {
			logger.Fatalf("geophotos: upload failed: %v", err)
		}
	default:
		logger.Println("unrecognized command.")
		flag.PrintDefaults()
		os.Exit(1)
	}
}

func runBuildQueue(logger *log.Logger, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("USAGE: build-queue [full|recent] ...")
	}
	mode := args[0]
	rest := args[1:]

	switch mode {
	case "recent":
		cmd := flag.NewFlagSet("build-queue recent", flag.ExitOnError)
		queueDB := cmd.String("queue-db", "", "path to the queue database")
		days := cmd.Int("days", 7, "how many days back to scan")
		addFlag := cmd.Bool("flag", false, "append a sentinel barrier job")
		cmd.Parse(rest)
		if *queueDB == "" {
			return fmt.Errorf("USAGE: build-queue recent -queue-db PATH -days N [-flag]")
		}
		q, err := geophoto.OpenQueue(*queueDB)
		if err != nil {
			return err
		}
		defer q.Close()
		return geophoto.QueueRecent(q, *days, *addFlag, time.Now())

	case "full":
		cmd := flag.NewFlagSet("build-queue full", flag.ExitOnError)
		queueDB := cmd.String("queue-db", "", "path to the queue database")
		photoDB := cmd.String("photo-db", "", "path to the photo store")
		tempDir := cmd.String("temp-dir", "", "scratch directory for ephemeral indices")
		addFlag := cmd.Bool("flag", false, "append a sentinel barrier job")
		cmd.Parse(rest)
		if *queueDB == "" || *photoDB == "" || *tempDir == "" {
			return fmt.Errorf("USAGE: build-queue full -queue-db PATH -photo-db PATH -temp-dir DIR [-flag]")
		}

		store, err := geophoto.OpenPhotoStore(*photoDB)
		if err != nil {
			return err
		}
		defer store.Close()

		density, err := geophoto.BuildDensityIndex(cfg, *tempDir, store)
		if err != nil {
			return err
		}

		q, err := geophoto.OpenQueue(*queueDB)
		if err != nil {
			return err
		}
		defer q.Close()

		written, err := geophoto.BuildQueue(cfg, density, q, *addFlag, time.Now())
		if err != nil {
			return err
		}
		logger.Printf("geophotos: wrote %d jobs covering %d photos", written, density.Len())
		return nil

	default:
		return fmt.Errorf("USAGE: build-queue [full|recent] ...")
	}
}

func runDownload(logger *log.Logger, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("download", flag.ExitOnError)
	queueDB := cmd.String("queue-db", "", "path to the queue database")
	photoDB := cmd.String("photo-db", "", "path to the photo store")
	stopAtSentinel := cmd.Bool("stop-at-sentinel", false, "exit once the initial backlog's sentinel job is reached")
	cmd.Parse(args)
	if *queueDB == "" || *photoDB == "" {
		return fmt.Errorf("USAGE: download -queue-db PATH -photo-db PATH [-stop-at-sentinel]")
	}

	q, err := geophoto.OpenQueue(*queueDB)
	if err != nil {
		return err
	}
	defer q.Close()

	store, err := geophoto.OpenPhotoStore(*photoDB)
	if err != nil {
		return err
	}
	defer store.Close()

	coordinator := geophoto.NewCoordinator(cfg, q, store, logger)
	processed, err := coordinator.Run(context.Background(), *stopAtSentinel)
	logger.Printf("geophotos: processed %d jobs", processed)
	return err
}

func runMakeTiles(logger *log.Logger, cfg config.Config, args []string) error {
	cmd := flag.NewFlagSet("make-tiles", flag.ExitOnError)
	photoDB := cmd.String("photo-db", "", "path to the photo store")
	tilesDB := cmd.String("tiles-db", "", "path to the output MBTiles archive")
	tempDir := cmd.String("temp-dir", "", "scratch directory for the ephemeral point index")
	cmd.Parse(args)
	if *photoDB == "" || *tilesDB == "" || *tempDir == "" {
		return fmt.Errorf("USAGE: make-tiles -photo-db PATH -tiles-db PATH -temp-dir DIR")
	}

	store, err := geophoto.OpenPhotoStore(*photoDB)
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := geophoto.BuildPointIndexFromStore(cfg, *tempDir, store)
	if err != nil {
		return err
	}
	logger.Printf("geophotos: indexed %d distinct pixel positions", index.Len())

	writer, err := geophoto.OpenMBTilesWriter(*tilesDB)
	if err != nil {
		return err
	}
	defer writer.Close()

	maker := geophoto.NewTileMaker(cfg, index)
	written, err := maker.Build(writer)
	if err != nil {
		return err
	}
	logger.Printf("geophotos: wrote %d tiles", written)
	return nil
}

func runUpload(logger *log.Logger, args []string) error {
	cmd := flag.NewFlagSet("upload", flag.ExitOnError)
	bufferSize := cmd.Int("buffer-size", 8, "upload chunk size in megabytes")
	maxConcurrency := cmd.Int("max-concurrency", 5, "number of upload threads")
	cmd.Parse(args)
	file := cmd.Arg(0)
	bucketURL := cmd.Arg(1)
	if file == "" || bucketURL == "" {
		return fmt.Errorf("USAGE: upload [-buffer-size B] [-max-concurrency M] INPUT BUCKET_URL")
	}

	opts := geophoto.UploadOptions{BufferSizeMB: *bufferSize, MaxConcurrency: *maxConcurrency}
	return geophoto.UploadArtifact(context.Background(), logger, file, bucketURL, opts)
}
