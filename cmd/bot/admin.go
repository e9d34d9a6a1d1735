package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"replybot/internal/auth"
	"replybot/internal/config"
)

func newAdminCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage who may run admin chat commands",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "admin file (default: ADMIN_FILE_PATH)")

	open := func() (*auth.Service, error) {
		cfg, err := config.LoadUnvalidated()
		if err != nil {
			return nil, err
		}
		if file == "" {
			file = cfg.AdminFilePath
		}
		if file == "" {
			return nil, fmt.Errorf("no admin file: set ADMIN_FILE_PATH or --file")
		}
		repo, err := auth.NewFileRepository(file)
		if err != nil {
			return nil, err
		}
		return auth.NewWithRepo(repo, nil)
	}

	var name string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Allow an account to run admin commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			return svc.Upsert(auth.Admin{ID: args[0], Name: name})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Revoke admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			return svc.Remove(args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List admins stored in the admin file",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			for _, a := range svc.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.ID, a.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
