package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benaskins/kvault"
	"github.com/benaskins/kvault/internal/keychain"
)

var setCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a value",
	Long:  "Store a value. If value is omitted, reads it from stdin (prompting without echo on a terminal).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindFlag(cmd, kvault.KindString)
		if err != nil {
			return err
		}
		key := args[0]

		var raw string
		if len(args) == 2 {
			raw = args[1]
		} else {
			raw, err = readSecret("Enter value: ")
			if err != nil {
				return err
			}
		}
		value, err := parseValue(kind, raw)
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			if err := s.vault.Set(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q stored in %s\n", value.Kind(), key, s.scope())
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a value",
	Long:  "Print a value. With --type the stored value is converted the way the typed accessors convert it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindFlag(cmd, kvault.KindMissing)
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *session) error {
			value, err := s.vault.Get(args[0])
			if errors.Is(err, kvault.ErrNotFound) {
				return fmt.Errorf("%q not found in %s", args[0], s.scope())
			}
			if err != nil {
				return err
			}
			if kind != kvault.KindMissing {
				if value, err = convert(value, kind); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		})
	},
}

// errAbsent makes exists exit non-zero without printing an error.
var errAbsent = errors.New("key absent")

var existsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "Report whether a key holds a value",
	Long:  "Print true or false. Exits non-zero when the key is absent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			found := s.vault.Exists(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), found)
			if !found {
				return errAbsent
			}
			return nil
		})
	},
}

var keysCmd = &cobra.Command{
	Use:     "keys",
	Short:   "List keys in the store",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			keys, err := s.vault.Keys()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys stored")
				return nil
			}

			meta := s.audited.Metadata()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tUPDATED\tROTATED")
			for _, k := range keys {
				updated, rotated := "-", "-"
				if m := meta.Get(s.scope(), k); m != nil {
					updated = m.UpdatedAt.Format("2006-01-02 15:04")
					if !m.LastRotated.IsZero() {
						rotated = m.LastRotated.Format("2006-01-02 15:04")
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", k, updated, rotated)
			}
			return w.Flush()
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Short:   "Remove a value",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			if err := s.vault.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q deleted\n", args[0])
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every value in the store's scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return withSession(cmd, func(s *session) error {
			if !yes && !confirm(fmt.Sprintf("Remove every value in %s?", s.scope())) {
				return errors.New("clear not confirmed (use --yes)")
			}
			if err := s.vault.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cleared\n", s.scope())
			return nil
		})
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <key>",
	Short: "Replace a value with the output of a command",
	Long:  "Run --command through /bin/sh and store its trimmed stdout as the new string value.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		if command == "" {
			return errors.New("--command is required")
		}
		key := args[0]

		return withSession(cmd, func(s *session) error {
			value, err := keychain.RunRotationCommand(cmd.Context(), command)
			if err == nil {
				err = s.vault.SetString(key, value)
			}
			if rerr := s.audited.RecordRotation(s.scope(), key, command, err); rerr != nil {
				return errors.Join(err, rerr)
			}
			if err != nil {
				return fmt.Errorf("rotating %q: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q rotated\n", key)
			return nil
		})
	},
}

// kindFlag reads --type, falling back to def when it is unset.
func kindFlag(cmd *cobra.Command, def kvault.Kind) (kvault.Kind, error) {
	name, _ := cmd.Flags().GetString("type")
	if name == "" {
		return def, nil
	}
	return kvault.ParseKind(name)
}

func init() {
	setCmd.Flags().StringP("type", "t", "", "value type: string, int, long, float, double or bool (default string)")
	getCmd.Flags().StringP("type", "t", "", "read the value as this type")
	clearCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	rotateCmd.Flags().String("command", "", "shell command whose stdout becomes the new value")

	rootCmd.AddCommand(setCmd, getCmd, existsCmd, keysCmd, deleteCmd, clearCmd, rotateCmd)
}
