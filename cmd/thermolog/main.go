package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thermolog/internal/config"
	"github.com/thermolog/internal/logger"
	"github.com/thermolog/pkg/api"
	"github.com/thermolog/pkg/bst"
	"github.com/thermolog/pkg/sensor"
	"github.com/thermolog/pkg/storage"
	"github.com/thermolog/pkg/types"
)

const (
	version = "1.0.0"

	// Interactive sessions log one reading per day, sampled at a
	// fixed local hour of the chosen start year.
	startYear  = 2023
	sampleHour = 13
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API server instead of an interactive session")
	configPath := flag.String("config", "", "path to a TOML configuration file")
	seed := flag.Int64("seed", time.Now().UnixNano(), "simulator seed for interactive sessions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "thermolog: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.LogLevel)

	if *serve {
		if err := runServer(cfg); err != nil {
			log.Fatalf("server failed: %v", err)
		}
		return
	}
	if err := runInteractive(cfg, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "thermolog: %v\n", err)
		os.Exit(1)
	}
}

func greeting() {
	fmt.Printf("thermolog %s\n", version)
	if wd, err := os.Getwd(); err == nil {
		fmt.Printf("Working directory: %s\n", wd)
	}
	fmt.Println()
}

// runInteractive builds an in-memory tree of simulated daily readings
// and answers search queries from the terminal.
func runInteractive(cfg *config.Config, seed int64) error {
	greeting()

	tree := bst.New()
	tree.SetTrace(func(n *bst.Node) {
		r := n.Reading()
		log.Debugf("-> [%d] %s", r.Timestamp, r.Date())
	})

	in := bufio.NewReader(os.Stdin)

	start, days, err := promptRange(in)
	if err != nil {
		return err
	}
	if err := populate(tree, cfg, seed, start, days); err != nil {
		return err
	}

	if err := searchLoop(tree, in); err != nil {
		return err
	}

	printTable(tree)
	return nil
}

func promptRange(in *bufio.Reader) (time.Time, int, error) {
	fmt.Print("Enter the starting month (1 to 12), day (1 to 31), and number of days (1 to 100): ")
	line, err := in.ReadString('\n')
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("read input: %w", err)
	}

	var month, day, days int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d,%d,%d", &month, &day, &days); err != nil {
		return time.Time{}, 0, fmt.Errorf("expected month,day,days (for example 3,1,12)")
	}
	if month < 1 || month > 12 {
		return time.Time{}, 0, fmt.Errorf("month must be 1 to 12, got %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, 0, fmt.Errorf("day must be 1 to 31, got %d", day)
	}
	if days < 1 || days > 100 {
		return time.Time{}, 0, fmt.Errorf("number of days must be 1 to 100, got %d", days)
	}

	start := time.Date(startYear, time.Month(month), day, sampleHour, 0, 0, 0, time.Local)
	return start, days, nil
}

// populate simulates one reading per day and inserts them in shuffled
// order. Inserting in date order would chain every node down the right
// spine.
func populate(tree *bst.Tree, cfg *config.Config, seed int64, start time.Time, days int) error {
	src := sensor.NewSimSource(seed,
		cfg.Sensor.TempMinF, cfg.Sensor.TempMaxF,
		cfg.Sensor.HumidityMin, cfg.Sensor.HumidityMax)

	readings := make([]types.Reading, days)
	for i := 0; i < days; i++ {
		temp, hum := src.Next()
		readings[i] = types.Reading{
			Timestamp:   start.AddDate(0, 0, i).Unix(),
			Temperature: temp,
			Humidity:    hum,
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(readings), func(i, j int) {
		readings[i], readings[j] = readings[j], readings[i]
	})

	for _, r := range readings {
		if _, err := tree.Insert(r); err != nil {
			return fmt.Errorf("insert reading for %s: %w", r.Date(), err)
		}
		log.Infof("logged %s: %.1fF %.1f%%", r.Date(),
			sensor.RawToFahrenheit(r.Temperature), sensor.RawToPercent(r.Humidity))
	}
	return nil
}

func searchLoop(tree *bst.Tree, in *bufio.Reader) error {
	for {
		fmt.Print("Enter a search date (mm/dd/yyyy): ")
		line, err := in.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}

		when, err := time.ParseInLocation("01/02/2006", line, time.Local)
		if err != nil {
			fmt.Printf("Could not parse %q as mm/dd/yyyy.\n", line)
			continue
		}
		ts := time.Date(when.Year(), when.Month(), when.Day(), sampleHour, 0, 0, 0, time.Local).Unix()

		node, err := tree.Search(ts)
		if err != nil {
			fmt.Printf("Did not find a reading for %s.\n", line)
			continue
		}
		r := node.Reading()
		fmt.Printf("Found: %s\n", r.TableRow())
		fmt.Printf("       %05.1f degrees F, %05.1f%% relative humidity\n",
			sensor.RawToFahrenheit(r.Temperature), sensor.RawToPercent(r.Humidity))
	}
}

func printTable(tree *bst.Tree) {
	fmt.Println()
	fmt.Println("Temperature/Humidity table:")
	fmt.Println("---------------------------")
	tree.Ascend(func(r types.Reading) bool {
		fmt.Println(r.TableRow())
		return true
	})
	fmt.Printf("%d readings logged.\n", tree.Len())
}

// runServer opens the persistent store and serves the HTTP API until
// the process receives an interrupt.
func runServer(cfg *config.Config) error {
	store, err := storage.Open(cfg.ToStoreConfig())
	if err != nil {
		return err
	}

	cached := storage.NewCachedStore(store, cfg.Server.CacheSize, cfg.CacheTTL())
	defer func() {
		if err := cached.Close(); err != nil {
			log.Errorf("closing store: %v", err)
		}
	}()

	if cfg.MQTT.Enabled {
		ingestor, err := sensor.NewIngestor(sensor.IngestorOptions{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
		}, cached)
		if err != nil {
			return err
		}
		defer ingestor.Close()
		if err := ingestor.Start(); err != nil {
			return err
		}
	}

	srv := api.NewServer(cfg.Server.ListenAddr, cached)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	log.Infof("thermolog %s listening on %s", version, cfg.Server.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
