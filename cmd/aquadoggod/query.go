package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aquadoggo-go/aquadoggo/internal/config"
	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/materializer"
	"github.com/aquadoggo-go/aquadoggo/internal/query"
	"github.com/aquadoggo-go/aquadoggo/internal/queryengine"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store/factory"
	"github.com/aquadoggo-go/aquadoggo/internal/taskqueue"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

var (
	queryOrderBy   string
	queryOrderDesc bool
	queryFirst     int
	queryAfter     string
	querySelect    []string
)

var queryCmd = &cobra.Command{
	Use:   "query <schema_id> <filter>",
	Short: "Run a one-shot abstract query against the node's store",
	Long: `query compiles a filter expression in the same DSL the client API
accepts (see internal/query's package doc) and runs it directly against
the configured store, printing one JSON page of results.

Example:
  aquadoggod query note_v1 'priority>1 AND NOT status=closed' --order-by priority --desc --first 20`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "field or meta field to sort by (default: view id)")
	queryCmd.Flags().BoolVar(&queryOrderDesc, "desc", false, "sort descending")
	queryCmd.Flags().IntVar(&queryFirst, "first", 50, "page size")
	queryCmd.Flags().StringVar(&queryAfter, "after", "", "opaque cursor from a prior page's end_cursor")
	queryCmd.Flags().StringSliceVar(&querySelect, "select", nil, "fields to return (default: every schema field)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	schemaID, filterExpr := args[0], args[1]

	ctx := cmd.Context()
	filter, err := query.ParseFilter(filterExpr)
	if err != nil {
		return fmt.Errorf("query: parse filter: %w", err)
	}

	q := &query.Query{
		SchemaID:   types.SchemaID(schemaID),
		Select:     querySelect,
		Filter:     filter,
		Pagination: query.Pagination{First: queryFirst, After: queryAfter},
	}
	if queryOrderBy != "" {
		dir := query.Asc
		if queryOrderDesc {
			dir = query.Desc
		}
		q.Order = &query.Order{Field: queryOrderBy, Direction: dir}
	}

	engine, closeStore, err := bootstrapQueryEngine(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := engine.Run(ctx, q)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// bootstrapQueryEngine opens the configured store and rebuilds just enough
// in-memory state (the schema registry) for a one-shot query to resolve
// the schemas it names, without starting the worker pool or replication
// engine a full `serve` run would.
func bootstrapQueryEngine(ctx context.Context) (*queryengine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}

	s, err := factory.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("query: open store: %w", err)
	}
	closeStore := func() {
		if err := s.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}

	bus := eventbus.New()
	registry := schema.New(bus)
	queue := taskqueue.New(s)
	mat := materializer.New(s, queue, registry, bus)
	if err := mat.WarmStart(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("query: %w", err)
	}

	return queryengine.New(s, registry), closeStore, nil
}
