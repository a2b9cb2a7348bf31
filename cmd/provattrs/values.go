package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provattrs/internal/attrs"
	"github.com/alfredjeanlab/provattrs/internal/document"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
	"github.com/alfredjeanlab/provattrs/internal/ui"
)

// addScopeFlags registers --collection and --node.
func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("collection", store.Attributes.Name, "collection: attributes, extras or settings")
	cmd.Flags().Int64("node", 0, "owning node id (omit for settings)")
}

func scopeFromFlags(cmd *cobra.Command) (store.Scope, error) {
	name, _ := cmd.Flags().GetString("collection")
	node, _ := cmd.Flags().GetInt64("node")
	coll, err := store.CollectionByName(name)
	if err != nil {
		return store.Scope{}, err
	}
	scope := store.Scope{Collection: coll, NodeID: node}
	return scope, scope.Validate()
}

// parseValue reads a command-line value as JSON, or as plain text when
// asText is set. ISO-8601 strings become dates.
func parseValue(raw string, asText bool) (model.Value, error) {
	if asText {
		return model.Text(raw), nil
	}
	v, err := document.UnmarshalValue([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("value is not valid JSON (use --text for plain strings): %w", err)
	}
	return v, nil
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a JSON value under a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		asText, _ := cmd.Flags().GetBool("text")
		stop, _ := cmd.Flags().GetBool("stop-if-existing")

		value, err := parseValue(args[1], asText)
		if err != nil {
			return err
		}
		err = service.Set(cmd.Context(), scope, args[0], value, attrs.SetOptions{StopIfExisting: stop})
		if errors.Is(err, model.ErrUniquenessConflict) {
			return fmt.Errorf("%q already exists; drop --stop-if-existing to replace it", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderOK("set"), ui.RenderKey(args[0]))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under a key (nested keys allowed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		v, err := service.Get(cmd.Context(), scope, args[0])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), v)
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Delete a key and everything below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		children, _ := cmd.Flags().GetBool("children")
		if children {
			err = service.DeleteChildren(cmd.Context(), scope, args[0])
		} else {
			err = service.Delete(cmd.Context(), scope, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderOK("unset"), ui.RenderKey(args[0]))
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every value of a node or of the settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}
		rows, _ := cmd.Flags().GetBool("rows")
		doc, _ := cmd.Flags().GetBool("document")

		switch {
		case rows:
			rs, err := db.ListAllRows(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), rs)
		case doc:
			values, err := service.Document(cmd.Context(), scope.Collection, scope.NodeID)
			if err != nil {
				return err
			}
			return printValues(cmd.OutOrStdout(), values)
		}
		values, err := service.GetAll(cmd.Context(), scope)
		if err != nil {
			return err
		}
		return printValues(cmd.OutOrStdout(), values)
	},
}

var findCmd = &cobra.Command{
	Use:   "find <key> <value>",
	Short: "List nodes whose scalar value at key equals value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("collection")
		asText, _ := cmd.Flags().GetBool("text")
		coll, err := store.CollectionByName(name)
		if err != nil {
			return err
		}
		value, err := parseValue(args[1], asText)
		if err != nil {
			return err
		}
		ids, err := service.Find(cmd.Context(), coll, args[0], value)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ids)
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{setCmd, getCmd, unsetCmd, dumpCmd} {
		addScopeFlags(cmd)
	}
	setCmd.Flags().Bool("text", false, "store the value as a plain string")
	setCmd.Flags().Bool("stop-if-existing", false, "fail instead of replacing an existing value")
	unsetCmd.Flags().Bool("children", false, "delete only the entries below the key")
	dumpCmd.Flags().Bool("rows", false, "print the raw EAV rows")
	dumpCmd.Flags().Bool("document", false, "print the migrated document instead of the rows")
	findCmd.Flags().String("collection", store.Attributes.Name, "collection: attributes or extras")
	findCmd.Flags().Bool("text", false, "treat the value as a plain string")
}
