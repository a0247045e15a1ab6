package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/quatton/qfold/pkg/qapi"
	"github.com/spf13/cobra"
)

var (
	openapiOutput    string
	openapiDowngrade bool
)

var openapiCmd = &cobra.Command{
	Use:     "openapi",
	Aliases: []string{"spec"},
	Short:   "Print the OpenAPI document of the report API",
	Long:    `Outputs the OpenAPI specification of the report API without reading any batch.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api := qapi.NewApi()
		qapi.Mount(api.Api, nil, nil)

		var (
			spec []byte
			err  error
		)
		if openapiDowngrade {
			spec, err = api.Api.OpenAPI().Downgrade()
		} else {
			spec, err = json.Marshal(api.Api.OpenAPI())
		}
		if err != nil {
			return fmt.Errorf("generating OpenAPI document: %w", err)
		}

		if openapiOutput == "" {
			fmt.Println(string(spec))
			return nil
		}
		if err := os.WriteFile(openapiOutput, spec, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", openapiOutput, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openapiCmd)
	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "", "write to this file (default stdout)")
	openapiCmd.Flags().BoolVar(&openapiDowngrade, "downgrade", true, "downgrade to OpenAPI 3.0")
}
