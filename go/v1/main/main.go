// Copyright 2021 The Rode Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/bridge"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// documentLine is one line of a documents file.
type documentLine struct {
	Index    string          `json:"index"`
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document"`
}

func main() {
	var (
		configPath    = pflag.StringP("config", "c", "", "configuration file")
		documentsPath = pflag.String("documents", "", "JSON lines file of {\"index\", \"id\", \"document\"} to index")
		request       = &bridge.SearchRequest{}
	)
	pflag.StringSliceVar(&request.Indexes, "index", nil, "indexes to search, all of them by default")
	pflag.StringVar(&request.Filter, "filter", "", "CEL filter expression")
	pflag.StringSliceVar(&request.Sort, "sort", nil, "sort by these fields, '-' prefixed for descending order, or _score")
	pflag.StringSliceVar(&request.Fields, "fields", nil, "fields to return instead of the whole document")
	pflag.IntVar(&request.Offset, "offset", 0, "number of hits to skip")
	pflag.IntVar(&request.Limit, "limit", 0, "maximum number of hits")
	pflag.Parse()

	_, debugEnabled := os.LookupEnv("DEBUG")
	logger, err := createLogger(debugEnabled)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(ctx, logger, c, *documentsPath, request, os.Stdout); err != nil {
		stop()
		logger.Fatal("search bridge failed", zap.String("backend", c.Backend), zap.Error(err))
	}
}

// run indexes the documents file if any, then searches unless only indexing was asked for. The
// backend is closed before returning so that on-disk indexes are flushed even on failure.
func run(ctx context.Context, logger *zap.Logger, c *config.SearchConfig, documentsPath string, request *bridge.SearchRequest, out io.Writer) (err error) {
	b, err := bridge.New(ctx, logger, c)
	if err != nil {
		return fmt.Errorf("failed to start the search bridge: %w", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close the backend: %w", closeErr))
		}
	}()

	if documentsPath != "" {
		if err := indexDocuments(ctx, logger, b, documentsPath); err != nil {
			return fmt.Errorf("failed to index documents: %w", err)
		}
		if request.Filter == "" && len(request.Indexes) == 0 {
			return nil
		}
	}

	result, err := b.Search(ctx, request)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to write the result: %w", err)
	}

	return nil
}

func indexDocuments(ctx context.Context, logger *zap.Logger, b *bridge.Bridge, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		line := &documentLine{}
		if err := json.Unmarshal(scanner.Bytes(), line); err != nil {
			return err
		}
		id, err := b.IndexJSON(ctx, line.Index, line.ID, line.Document)
		if err != nil {
			return err
		}
		logger.Debug("document indexed", zap.String("index", line.Index), zap.String("id", id))
		count++
	}
	logger.Info("documents indexed", zap.Int("count", count))

	return scanner.Err()
}

func createLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
