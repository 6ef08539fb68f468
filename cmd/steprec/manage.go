package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/snapshot"
	"github.com/v0xg/steprec/internal/store"
	"gopkg.in/yaml.v3"
)

func compileCmd(a *app) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "compile <name>",
		Short: "Print a saved sequence as a Playwright script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			fmt.Print(sess.Compile(origin))
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "URL the script starts on (default: where recording started)")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	var asYAML, asJSON bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			seq := sess.Snapshot()

			if asYAML {
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(seq)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(seq)
			}

			a.log.Println("%s (%d actions) on %s", args[0], seq.Len(), seq.Origin)
			for i, act := range seq.Actions {
				mark := ""
				if previewImage(act) {
					mark = " [screenshot]"
				}
				a.log.Println("  [%d] %s%s", i+1, act, mark)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the stored YAML form")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored JSON form")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				a.log.Println("No saved sequences in %s", a.cfg.Store.Path)
				return nil
			}
			for _, s := range summaries {
				a.log.Println("%-24s %4d actions  %s  %s", s.Name, s.Actions, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Origin)
			}
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.store.Delete(context.Background(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no sequence named %q", args[0])
			}
			if err != nil {
				return err
			}
			a.log.Success("Deleted %s", args[0])
			return nil
		},
	}
}

// previewImage reports whether an action carries a decodable thumbnail
func previewImage(a action.Action) bool {
	if a.Image == "" {
		return false
	}
	_, err := snapshot.Decode(a.Image)
	return err == nil
}
