package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryansname/powertree/src/powertree"
	"github.com/ryansname/powertree/src/sankey"
	"github.com/ryansname/powertree/src/snapshot"
)

// publishWorker evaluates the model on start and again on every recompute
// request, publishing Home Assistant discovery configs and state
func publishWorker(
	ctx context.Context,
	cfg Config,
	recomputeChan <-chan string,
	sender *MQTTSender,
) {
	log.Println("Publish worker started")

	publish := func(reason string) {
		m, err := snapshot.Load(cfg.ModelPath)
		if err != nil {
			log.Printf("Publish worker: %v\n", err)
			return
		}
		ev, err := powertree.EvaluateAll(ctx, m, cfg.Workers)
		if err != nil {
			log.Printf("Publish worker: evaluation failed: %v\n", err)
			return
		}
		for _, issue := range ev.Issues() {
			log.Println(issue)
		}

		if err := sender.CreateEvaluationEntities(cfg.Device, m); err != nil {
			log.Printf("Publish worker: failed to create entities: %v\n", err)
			return
		}
		if err := sender.PublishEvaluation(cfg.Device, ev); err != nil {
			log.Printf("Publish worker: failed to publish state: %v\n", err)
			return
		}
		log.Printf("Published %d use cases and %d profiles (%s)\n", len(ev.Results), len(ev.Estimates), reason)
	}

	publish("startup")

	for {
		select {
		case payload := <-recomputeChan:
			reason := "recompute"
			if payload != "" {
				reason += ": " + payload
			}
			publish(reason)

		case <-ctx.Done():
			log.Println("Publish worker stopped")
			return
		}
	}
}

// writeSankeyFiles writes the sankey card to path and the template sensors
// next to it, returning the paths written
func writeSankeyFiles(path string, res *powertree.Result, prefix string) ([]string, error) {
	generated := sankey.Generate(res, prefix)

	ext := filepath.Ext(path)
	templatesPath := strings.TrimSuffix(path, ext) + "_templates" + ext
	if ext == "" {
		templatesPath = path + "_templates.yaml"
	}

	if err := os.WriteFile(path, []byte(generated.SankeyConfig), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(templatesPath, []byte(generated.Templates), 0o644); err != nil {
		return nil, err
	}
	return []string{path, templatesPath}, nil
}
