// Link commands: add, remove, list.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tether/pkg/types"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage links between entities",
}

// linkRef parses the four positional arguments every link mutation takes and
// verifies both endpoints exist.
func linkRef(ledger types.Ledger, args []string) (types.EdgeRef, error) {
	id1, err := parseID(args[1])
	if err != nil {
		return types.EdgeRef{}, err
	}
	id2, err := parseID(args[3])
	if err != nil {
		return types.EdgeRef{}, err
	}

	entities, err := ledger.Entities()
	if err != nil {
		return types.EdgeRef{}, err
	}
	for _, ep := range []struct {
		id  int64
		typ string
	}{{id1, args[0]}, {id2, args[2]}} {
		ok, err := entities.Exists(ep.id, ep.typ)
		if err != nil {
			return types.EdgeRef{}, err
		}
		if !ok {
			return types.EdgeRef{}, fmt.Errorf("%w: %s %d", types.ErrNotFound, ep.typ, ep.id)
		}
	}

	return types.EdgeRef{
		SubjectID:   id1,
		SubjectType: args[0],
		PartnerID:   id2,
		PartnerType: args[2],
	}, nil
}

var linkAddCmd = &cobra.Command{
	Use:   "add <type1> <id1> <type2> <id2>",
	Short: "Link two entities",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link add:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		ref, err := linkRef(ledger, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "link add:", err)
			os.Exit(exitUserError)
		}

		links, err := ledger.Links()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link add:", err)
			os.Exit(exitSysError)
		}

		b := adHocBinding(args[0], args[2])
		if err := links.Add(b, ref); err != nil {
			switch {
			case errors.Is(err, types.ErrUniqueness):
				fmt.Fprintln(os.Stderr, "link add: link already exists")
				os.Exit(exitUserError)
			case errors.Is(err, types.ErrSelfLink):
				fmt.Fprintln(os.Stderr, "link add: an entity cannot link to itself")
				os.Exit(exitUserError)
			default:
				fmt.Fprintln(os.Stderr, "link add:", err)
				os.Exit(exitSysError)
			}
		}

		fmt.Printf("Linked %s/%d <-> %s/%d\n", args[0], ref.SubjectID, args[2], ref.PartnerID)
		return nil
	},
}

var linkRemoveCmd = &cobra.Command{
	Use:   "remove <type1> <id1> <type2> <id2>",
	Short: "Remove the link between two entities",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link remove:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		ref, err := linkRef(ledger, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "link remove:", err)
			os.Exit(exitUserError)
		}

		links, err := ledger.Links()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link remove:", err)
			os.Exit(exitSysError)
		}

		b := adHocBinding(args[0], args[2])
		if err := links.Remove(b, ref); err != nil {
			fmt.Fprintln(os.Stderr, "link remove:", err)
			os.Exit(exitSysError)
		}

		fmt.Printf("Unlinked %s/%d <-> %s/%d\n", args[0], ref.SubjectID, args[2], ref.PartnerID)
		return nil
	},
}

var linkListCmd = &cobra.Command{
	Use:   "list [type id]",
	Short: "List links, optionally scoped to one entity",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			fmt.Fprintln(os.Stderr, "link list: provide both type and id, or neither")
			os.Exit(exitUserError)
		}

		ledger, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link list:", err)
			os.Exit(exitSysError)
		}
		defer ledger.Detach()

		links, err := ledger.Links()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link list:", err)
			os.Exit(exitSysError)
		}

		edges, err := links.All()
		if err != nil {
			fmt.Fprintln(os.Stderr, "link list:", err)
			os.Exit(exitSysError)
		}

		if len(args) == 2 {
			id, err := parseID(args[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, "link list:", err)
				os.Exit(exitUserError)
			}
			filtered := edges[:0]
			for _, e := range edges {
				if (e.ID1 == id && e.Type1 == args[0]) || (e.ID2 == id && e.Type2 == args[0]) {
					filtered = append(filtered, e)
				}
			}
			edges = filtered
		}

		if flagJSON {
			printJSON(edges)
			return nil
		}
		for _, e := range edges {
			fmt.Printf("%s/%d <-> %s/%d\n", e.Type1, e.ID1, e.Type2, e.ID2)
		}
		return nil
	},
}

func init() {
	linkCmd.AddCommand(linkAddCmd)
	linkCmd.AddCommand(linkRemoveCmd)
	linkCmd.AddCommand(linkListCmd)
}
