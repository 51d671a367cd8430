package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Look up PDB and AlphaFold structure metadata",
}

var structureInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Print metadata for a PDB id, UniProt accession or AlphaFold model id",
	Args:  cobra.ExactArgs(1),
	RunE:  runStructureInfo,
}

var structureBatchCmd = &cobra.Command{
	Use:   "batch <id>...",
	Short: "Resolve several identifiers at once",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStructureBatch,
}

var structureCoordsCmd = &cobra.Command{
	Use:   "coords <id>",
	Short: "Print the coordinate file location for a structure",
	Args:  cobra.ExactArgs(1),
	RunE:  runStructureCoords,
}

func init() {
	structureCmd.AddCommand(structureInfoCmd, structureBatchCmd, structureCoordsCmd)
	rootCmd.AddCommand(structureCmd)
}

func runStructureInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	md, err := a.Structures.Metadata(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load structure: %w", err)
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintMetadata(md)
	}
	return writeJSON(cmd.OutOrStdout(), md)
}

func runStructureBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Structures.MetadataBatch(ctx, args)
	if err != nil {
		return fmt.Errorf("failed to load structures: %w", err)
	}
	if p := printer(cmd, a.Config); p != nil {
		p.PrintBatch(results)
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{"results": results})
}

func runStructureCoords(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	coords, err := a.Structures.Coordinates(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve coordinates: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), coords)
}
