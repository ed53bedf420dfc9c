package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

// newFieldsCmd prints the document paths a partial read would fetch.
// Omitting --field prints null: the whole document is read.
func newFieldsCmd() *cobra.Command {
	var types, names []string
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Resolve the field paths fetched for a type and field selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var typeSel, fieldSel fields.Selector
			if cmd.Flags().Changed("type") {
				typeSel = types
			}
			if cmd.Flags().Changed("field") {
				fieldSel = names
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(fields.IncludedFields(typeSel, fieldSel))
		},
	}
	cmd.Flags().StringArrayVar(&types, "type", nil, "saved-object type, repeatable (default: any type)")
	cmd.Flags().StringArrayVar(&names, "field", nil, "attribute field, repeatable")
	return cmd
}
