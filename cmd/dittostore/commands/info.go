package commands

import (
	"fmt"
	"sort"

	"github.com/marmos91/dittostore/pkg/config"
	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the scheme, root and capabilities of a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.operator(cmd)
			if err != nil {
				return err
			}

			info := op.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scheme: %s\n", info.Scheme())
			fmt.Fprintf(out, "root: %s\n", info.Root())
			if name := info.Name(); name != "" {
				fmt.Fprintf(out, "name: %s\n", name)
			}

			capability := info.FullCapability().Map()
			keys := make([]string, 0, len(capability))
			for k := range capability {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Fprintln(out, "capability:")
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %v\n", k, capability[k])
			}
			return nil
		},
	}
}

func newServicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			def := a.reg.Default()
			for _, name := range a.reg.List() {
				svc, err := a.reg.GetService(name)
				if err != nil {
					return err
				}
				marker := " "
				if name == def {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-16s %-8s %s\n", marker, name, svc.Scheme(), svc.Root())
			}
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(configFlag)
			if path == "" {
				var err error
				if path, err = config.InitConfig(force); err != nil {
					return err
				}
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}
