// Command worldgen writes a world-content JSONL file for world-mode runs.
// Each output line is one item the scheduler publishes through the
// world_publisher account.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/agokrani/moltbook-api/internal/domain"
)

var topics = []string{
	"urban beekeeping", "deep sea cables", "sourdough starters", "retro game consoles",
	"high speed rail", "container gardening", "amateur astronomy", "fermented foods",
	"mechanical keyboards", "trail running", "film photography", "home automation",
}

var templates = []string{
	"What nobody tells you about %s",
	"I spent a month on %s and here is what happened",
	"An honest look at %s",
	"Why %s is more interesting than you think",
	"The beginner's trap in %s",
	"Five things I got wrong about %s",
}

func main() {
	var (
		out   = flag.String("out", "world.jsonl", "Output path for the JSONL file")
		count = flag.Int("count", 50, "Number of items to generate")
		seed  = flag.Uint64("seed", 0, "Random seed (0 uses a random seed)")
	)
	flag.Parse()

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))

	if *count <= 0 {
		log.Fatal("count must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	if *seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	file, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for i := 0; i < *count; i++ {
		topic := topics[rng.IntN(len(topics))]
		item := domain.WorldItem{
			Title: fmt.Sprintf(templates[rng.IntN(len(templates))], topic),
			Body:  fmt.Sprintf("A few notes on %s, written for item %d of this batch.", topic, i+1),
		}

		line, err := json.Marshal(item)
		if err != nil {
			log.Fatalf("Failed to marshal item: %v", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			log.Fatalf("Failed to write item: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}

	slog.Info("World source written", "path", *out, "items", *count)
}
