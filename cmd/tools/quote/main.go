// Command quote totals a JSON file of line items from the terminal. Useful for
// sanity-checking price data before sending it to the API.
//
// Usage:
//
//	go run ./cmd/tools/quote -file items.json -scale 100 -timeout 2s
//
// The input file holds a JSON array of line items; pass "-" to read stdin.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/kasir-api/internal/pricing"
)

func main() {
	file := flag.String("file", "-", "path to a JSON array of line items, or - for stdin")
	scale := flag.Int64("scale", int64(pricing.DefaultMinorUnit), "minor units per major unit (1, 10, 100, 1000 or 10000)")
	timeout := flag.Duration("timeout", 0, "abort the calculation after this long (0 means no deadline)")
	flag.Parse()

	items, err := readItems(*file)
	if err != nil {
		log.Fatalf("read items: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calc := &pricing.Calculator{Opts: pricing.Options{
		MinorUnit: pricing.MinorUnit(*scale),
		Timeout:   *timeout,
	}}

	start := time.Now()
	result, err := calc.Total(ctx, items)
	if err != nil {
		log.Fatalf("total: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))
	log.Printf("totalled %d item(s) in %s", result.Items, time.Since(start).Round(time.Microsecond))
}

func readItems(path string) ([]pricing.LineItem, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	var items []pricing.LineItem
	if err := json.NewDecoder(reader).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}
