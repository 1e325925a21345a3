package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/parsec-core/pkg/types"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Resolve workspace paths against the device's manifest cache",
}

var pathResolveCmd = &cobra.Command{
	Use:   "resolve <workspace> <path>",
	Short: "Resolve a workspace-relative path to its manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawRealm, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid workspace id %q: %w", args[0], err)
		}
		realm := types.RealmID(rawRealm)
		fsPath := parseFsPath(args[1])

		d, err := openDevice(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		resolved, err := d.resolver.Resolve(context.Background(), realm, fsPath, false)
		if err != nil {
			return err
		}

		fmt.Printf("id:       %s\n", resolved.Manifest.ID())
		fmt.Printf("kind:     %s\n", manifestKindLabel(resolved.Manifest.Kind))
		fmt.Printf("parent:   %s\n", resolved.Manifest.Parent())
		fmt.Printf("updated:  %s\n", resolved.Manifest.Updated().String())
		if resolved.Confined {
			fmt.Printf("confined: true (confinement point %s)\n", resolved.ConfinementID)
		} else {
			fmt.Println("confined: false")
		}
		if resolved.Guard != nil {
			resolved.Guard.Release()
		}
		return nil
	},
}

func init() {
	pathCmd.AddCommand(pathResolveCmd)
}

// parseFsPath splits a "/"-separated workspace path into its entry
// names, the CLI-facing form of types.FsPath.
func parseFsPath(raw string) types.FsPath {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return types.FsPath{}
	}
	parts := strings.Split(trimmed, "/")
	path := make(types.FsPath, len(parts))
	for i, p := range parts {
		path[i] = types.EntryName(p)
	}
	return path
}

func manifestKindLabel(k types.ManifestKind) string {
	if k == types.ManifestKindFolder {
		return "folder"
	}
	return "file"
}
