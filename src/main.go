package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"

	"github.com/ryansname/powertree/src/powertree"
	"github.com/ryansname/powertree/src/snapshot"
)

// SafeGo launches a goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// Returned normally: context cancelled or the work is done
			if panicValue == nil {
				return
			}

			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	log.Println("Starting powertree...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := loadConfigFromOS()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	m, err := snapshot.Load(cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	log.Printf("Loaded %s: %d nodes, %d use cases, %d profiles\n",
		cfg.ModelPath, len(m.Nodes), len(m.UseCases), len(m.Profiles))

	issues := powertree.Validate(m)
	if cfg.Validate {
		writeIssues(os.Stdout, issues)
		if powertree.HasErrors(issues) {
			os.Exit(1)
		}
		return
	}
	for _, issue := range issues {
		log.Println(issue)
	}

	if cfg.SavePath != "" {
		if err := snapshot.Save(cfg.SavePath, m); err != nil {
			log.Fatalf("Failed to save model: %v", err)
		}
		log.Printf("Saved model to %s\n", cfg.SavePath)
	}

	useCase, err := selectUseCase(m, cfg.UseCase)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context for lifecycle management
	ctx, cancel := context.WithCancel(context.Background())

	ev, err := powertree.EvaluateAll(ctx, m, cfg.Workers)
	if err != nil {
		cancel()
		log.Fatalf("Evaluation failed: %v", err)
	}
	writeReport(os.Stdout, m, ev, useCase, cfg)

	if cfg.SankeyPath != "" && useCase != "" {
		files, err := writeSankeyFiles(cfg.SankeyPath, ev.Results[useCase], cfg.Device+"_"+useCase)
		if err != nil {
			cancel()
			log.Fatalf("Failed to write sankey card: %v", err)
		}
		log.Printf("Wrote %s\n", strings.Join(files, ", "))
	}

	if !cfg.Publish && !cfg.Shell {
		cancel()
		return
	}

	if cfg.Publish {
		mqttOutgoingChan := make(chan MQTTMessage, 100) // Larger buffer for queuing
		mqttClientChan := make(chan mqtt.Client, 1)     // Buffered to prevent blocking onConnect
		recomputeChan := make(chan string, 10)

		SafeGo(ctx, cancel, "mqtt-sender-worker", func(ctx context.Context) {
			mqttSenderWorker(ctx, mqttOutgoingChan, mqttClientChan)
		})

		mqttSender := NewMQTTSender(mqttOutgoingChan)

		SafeGo(ctx, cancel, "publish-worker", func(ctx context.Context) {
			publishWorker(ctx, cfg, recomputeChan, mqttSender)
		})

		SafeGo(ctx, cancel, "mqtt-worker", func(ctx context.Context) {
			mqttWorker(ctx, cfg, recomputeChan, mqttClientChan)
		})
		log.Printf("MQTT workers started, send anything to %s to recompute\n", recomputeTopic(cfg.Device))
	}

	if cfg.Shell {
		state := NewShellState(cfg, m, ev, useCase, os.Stdout)
		SafeGo(ctx, cancel, "shell", func(ctx context.Context) {
			shellWorker(ctx, cancel, state)
		})
	}

	// Wait for interrupt signal or context cancellation (from panic or shell exit)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("\nShutting down...")
	case <-ctx.Done():
		log.Println("\nShutting down...")
	}
	cancel()
}
