package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"github.com/spf13/cobra"
)

var treeJSON bool

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Show the vault tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		root := ""
		if len(args) == 1 {
			root = args[0]
		}
		tree, err := a.svc.GetVaultTree(cmd.Context(), root)
		if err != nil {
			return err
		}
		if treeJSON {
			return printJSON(tree)
		}
		printTree(tree, "")
		return nil
	},
}

func printTree(e *vault.VaultEntry, indent string) {
	name := e.Name
	if e.Path == "" {
		name = "."
	}
	if e.IsDir() && e.Path != "" {
		name += "/"
	}
	fmt.Printf("%s%s\n", indent, name)
	for _, c := range e.Children {
		printTree(c, indent+"  ")
	}
}

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a vault file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		content, err := a.svc.ReadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(content)
		if !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
		return nil
	},
}

var (
	writeContent string
	writeFile    string
	writeIndex   bool
)

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write a vault file and keep its index record current",
	Long: `Write saves content to an existing or new vault file. The file is indexed when
--index is given or when it already has an index record.`,
	Example: `  vaultsync write notes/today.md --content "standup at 10"
  cat draft.md | vaultsync write notes/draft.md --file - --index`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(writeContent, writeFile)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.svc.SyncOnWrite(cmd.Context(), args[0], content, writeIndex); err != nil {
			return reportSyncError(err)
		}
		fmt.Printf("✓ Wrote %s\n", args[0])
		return nil
	},
}

var (
	createContent string
	createFile    string
)

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a vault file, including missing directories, and index it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(createContent, createFile)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.svc.SyncOnCreate(cmd.Context(), args[0], content); err != nil {
			return reportSyncError(err)
		}
		fmt.Printf("✓ Created %s\n", args[0])
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a vault directory and its parents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.svc.CreateDirectory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Directory ready: %s\n", args[0])
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:     "move <from> <to>",
	Aliases: []string{"mv"},
	Short:   "Move a file or directory and its index records",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.svc.SyncOnMove(cmd.Context(), args[0], args[1]); err != nil {
			return reportSyncError(err)
		}
		fmt.Printf("✓ Moved %s -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd, readCmd, writeCmd, createCmd, mkdirCmd, moveCmd)

	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "print the tree as JSON")

	writeCmd.Flags().StringVarP(&writeContent, "content", "c", "", "file content")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "read content from a local file ('-' for stdin)")
	writeCmd.Flags().BoolVar(&writeIndex, "index", false, "index the file even if it has no record yet")

	createCmd.Flags().StringVarP(&createContent, "content", "c", "", "file content")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "read content from a local file ('-' for stdin)")
}
