// Entity commands: create, get, list, delete.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tether/pkg/types"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage stored entities",
}

var createAttrs string

var entityCreateCmd = &cobra.Command{
	Use:   "create <type> <name>",
	Short: "Create a new entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, name := args[0], args[1]

		var attrs map[string]any
		if createAttrs != "" {
			if err := json.Unmarshal([]byte(createAttrs), &attrs); err != nil {
				fmt.Fprintf(os.Stderr, "create: invalid --attrs JSON: %s\n", err)
				os.Exit(exitUserError)
			}
		}

		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		entities, err := ledger.Entities()
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(exitSysError)
		}

		e := &types.Entity{Type: entityType, Name: name, Attrs: attrs}
		if _, err := entities.Save(e); err != nil {
			if errors.Is(err, types.ErrValidation) {
				fmt.Fprintln(os.Stderr, "create:", err)
				os.Exit(exitUserError)
			}
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(exitSysError)
		}

		if flagJSON {
			printJSON(e)
		} else {
			fmt.Printf("Created %s: %d (uid %s)\n", e.Type, e.ID, e.UID)
		}
		return nil
	},
}

var entityGetCmd = &cobra.Command{
	Use:   "get <type> <id|uid>",
	Short: "Get an entity by id or public UID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		entities, err := ledger.Entities()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}

		e, err := lookupEntity(entities, args[0], args[1])
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "get: %s %q not found\n", args[0], args[1])
				os.Exit(exitUserError)
			}
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}

		if flagJSON {
			printJSON(e)
		} else {
			printEntity(e)
		}
		return nil
	},
}

var entityListCmd = &cobra.Command{
	Use:   "list [type]",
	Short: "List entities, optionally filtered by type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType := ""
		if len(args) == 1 {
			entityType = args[0]
		}

		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		entities, err := ledger.Entities()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}

		items, err := entities.List(entityType)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}

		if flagJSON {
			printJSON(items)
			return nil
		}
		for _, e := range items {
			printEntity(e)
		}
		return nil
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Delete an entity and every link referencing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitUserError)
		}

		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		entities, err := ledger.Entities()
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitSysError)
		}

		if err := entities.Delete(id, args[0]); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "delete: %s %d not found\n", args[0], id)
				os.Exit(exitUserError)
			}
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitSysError)
		}

		fmt.Printf("Deleted %s: %d\n", args[0], id)
		return nil
	},
}

func init() {
	entityCreateCmd.Flags().StringVar(&createAttrs, "attrs", "", "entity attributes as a JSON object")

	entityCmd.AddCommand(entityCreateCmd)
	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityListCmd)
	entityCmd.AddCommand(entityDeleteCmd)
}
