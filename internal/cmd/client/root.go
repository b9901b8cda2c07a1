package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the syncq client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "syncq",
		Short: "syncq client commands",
	}
	root.AddCommand(NewQueueCommand(baseURL))
	return root
}
