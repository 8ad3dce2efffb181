package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"termin-notifier/config"
	"termin-notifier/storage"
)

func newSubscribersCmd() *cobra.Command {
	subs := &cobra.Command{
		Use:   "subscribers",
		Short: "Manage the subscriber list",
	}

	subs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print all subscribed chat IDs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			for _, id := range store.List() {
				fmt.Println(id)
			}
			return nil
		},
	})

	subs.AddCommand(&cobra.Command{
		Use:   "add <chat-id>",
		Short: "Subscribe a chat ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, id, err := openStoreWithID(args[0])
			if err != nil {
				return err
			}
			added, err := store.Add(id)
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("%d already subscribed\n", id)
			}
			return nil
		},
	})

	subs.AddCommand(&cobra.Command{
		Use:   "remove <chat-id>",
		Short: "Unsubscribe a chat ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, id, err := openStoreWithID(args[0])
			if err != nil {
				return err
			}
			removed, err := store.Remove(id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("%d was not subscribed\n", id)
			}
			return nil
		},
	})

	return subs
}

func openStore() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.New(cfg.Storage.SubscribersFile, newLogger("error"))
}

func openStoreWithID(arg string) (*storage.Store, int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid chat ID %q: %w", arg, err)
	}
	store, err := openStore()
	if err != nil {
		return nil, 0, err
	}
	return store, id, nil
}
