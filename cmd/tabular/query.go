package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tabulardb/tabular"
)

var queryCmd = &cobra.Command{
	Use:   "query <dataset-id>",
	Short: "Query a processed dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := buildFilterSpec(cmd)
		if err != nil {
			return err
		}

		svc, store, err := openService()
		if err != nil {
			return err
		}
		defer func() {
			svc.Close()
			_ = store.Close()
		}()

		result, err := svc.Query(cmd.Context(), args[0], spec)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	queryCmd.Flags().String("search", "", "free-text search term")
	queryCmd.Flags().StringArray("filter", nil, "column filter as column:operator:value[:type], repeatable")
	queryCmd.Flags().String("sort", "", "sort as column[:asc|desc]")
	queryCmd.Flags().Int("page", 1, "page number (1-based)")
	queryCmd.Flags().Int("page-size", tabular.DefaultPageSize, "rows per page")
}

func buildFilterSpec(cmd *cobra.Command) (tabular.FilterSpec, error) {
	spec := tabular.FilterSpec{}
	spec.Search, _ = cmd.Flags().GetString("search")
	spec.Page, _ = cmd.Flags().GetInt("page")
	spec.PageSize, _ = cmd.Flags().GetInt("page-size")

	filters, _ := cmd.Flags().GetStringArray("filter")
	for _, raw := range filters {
		parts := strings.SplitN(raw, ":", 4)
		if len(parts) < 3 {
			return spec, fmt.Errorf("invalid filter %q: want column:operator:value[:type]", raw)
		}
		filter := tabular.ColumnFilter{
			Column:   parts[0],
			Operator: parts[1],
			Value:    parts[2],
			Type:     tabular.TypeText,
		}
		if len(parts) == 4 {
			filter.Type = tabular.ColumnType(parts[3])
			if !filter.Type.Valid() {
				return spec, fmt.Errorf("invalid filter type %q", parts[3])
			}
		}
		spec.Filters = append(spec.Filters, filter)
	}

	if sort, _ := cmd.Flags().GetString("sort"); sort != "" {
		column, direction, found := strings.Cut(sort, ":")
		if !found {
			direction = tabular.SortAsc
		}
		spec.Sort = &tabular.SortSpec{Column: column, Direction: direction}
	}

	return spec, nil
}
