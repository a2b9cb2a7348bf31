package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provattrs/internal/model"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Create, show and delete nodes",
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeType, _ := cmd.Flags().GetString("type")
		label, _ := cmd.Flags().GetString("label")
		n := &model.Node{NodeType: nodeType, Label: label}
		if err := db.CreateNode(cmd.Context(), n); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), n)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", n.ID, n.UUID)
		return nil
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a node and its document columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		n, err := db.GetNode(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), n)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ID:          %d\n", n.ID)
		fmt.Fprintf(w, "UUID:        %s\n", n.UUID)
		fmt.Fprintf(w, "Type:        %s\n", n.NodeType)
		if n.Label != "" {
			fmt.Fprintf(w, "Label:       %s\n", n.Label)
		}
		fmt.Fprintf(w, "Created At:  %s\n", n.CreatedAt.Format("2006-01-02 15:04:05"))
		if len(n.Attributes) > 0 {
			fmt.Fprintf(w, "Attributes:  %s\n", n.Attributes)
		}
		if len(n.Extras) > 0 {
			fmt.Fprintf(w, "Extras:      %s\n", n.Extras)
		}
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a node and all its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteNode(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "node %d deleted\n", id)
		return nil
	},
}

func parseNodeID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid node id %q", s)
	}
	return id, nil
}

func init() {
	nodeCreateCmd.Flags().String("type", "data.Dict", "node type")
	nodeCreateCmd.Flags().String("label", "", "node label")

	nodeCmd.AddCommand(nodeCreateCmd)
	nodeCmd.AddCommand(nodeShowCmd)
	nodeCmd.AddCommand(nodeDeleteCmd)
}
