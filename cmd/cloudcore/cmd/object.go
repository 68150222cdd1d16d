package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/x8labs/cloudcore/pkg/objectstore"
	"github.com/x8labs/cloudcore/pkg/objectstore/providers/filesystem"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Put, get, delete, and query objects in the local filesystem object store",
}

var (
	objectCollection string
	objectFile       string
)

var objectPutCmd = &cobra.Command{
	Use:   "put [id]",
	Short: "Write a file's contents to an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := os.ReadFile(objectFile)
		if err != nil {
			return fmt.Errorf("read %q: %w", objectFile, err)
		}
		component := newObjectComponent()
		item, err := component.Put(context.Background(), objectstore.PutArgs{
			ID:         args[0],
			Value:      value,
			Collection: objectCollection,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s@%s (%d bytes)\n", item.Key.ID, item.Key.Version, len(item.Value))
		return nil
	},
}

var objectGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print an object's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component := newObjectComponent()
		item, err := component.Get(context.Background(), objectstore.GetArgs{
			ID:         args[0],
			Collection: objectCollection,
		})
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(item.Value)
		return err
	},
}

var objectDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component := newObjectComponent()
		return component.Delete(context.Background(), objectstore.DeleteArgs{
			ID:         args[0],
			Collection: objectCollection,
		})
	},
}

var (
	objectPrefix    string
	objectDelimiter string
	objectLimit     int
)

var objectQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List objects in a collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		component := newObjectComponent()
		list, err := component.Query(context.Background(), objectstore.QueryArgs{
			Prefix:     objectPrefix,
			Delimiter:  objectDelimiter,
			Limit:      objectLimit,
			Collection: objectCollection,
		})
		if err != nil {
			return err
		}
		for _, item := range list.Items {
			fmt.Println(item.Key.ID)
		}
		for _, prefix := range list.Prefixes {
			fmt.Println(prefix)
		}
		return nil
	},
}

func newObjectComponent() *objectstore.Component {
	provider := filesystem.New(afero.NewOsFs(), viper.GetString("store-dir"))
	return objectstore.New(provider)
}

func init() {
	objectCmd.PersistentFlags().StringVar(&objectCollection, "collection", "default", "Collection the object belongs to")
	objectPutCmd.Flags().StringVarP(&objectFile, "file", "f", "", "Path to the file to upload")
	_ = objectPutCmd.MarkFlagRequired("file")
	objectQueryCmd.Flags().StringVar(&objectPrefix, "prefix", "", "Only list ids starting with this prefix")
	objectQueryCmd.Flags().StringVar(&objectDelimiter, "delimiter", "", "Fold ids past this delimiter into common prefixes")
	objectQueryCmd.Flags().IntVar(&objectLimit, "limit", 0, "Maximum number of entries to return (0 = provider default)")

	objectCmd.AddCommand(objectPutCmd, objectGetCmd, objectDeleteCmd, objectQueryCmd)
}
