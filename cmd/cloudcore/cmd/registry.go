package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/containerregistry/providers"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Push and pull images through the local Docker daemon registry provider",
}

var registryPushCmd = &cobra.Command{
	Use:   "push [image]",
	Short: "Push a local image reference to the configured registry host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, err := newRegistryComponent()
		if err != nil {
			return err
		}
		item, err := component.Push(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s@%s\n", item.Image, item.Digest)
		return nil
	},
}

var registryPullCmd = &cobra.Command{
	Use:   "pull [image] [tag]",
	Short: "Pull an image:tag into the local Docker daemon",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, err := newRegistryComponent()
		if err != nil {
			return err
		}
		item, err := component.Pull(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s@%s\n", item.Image, item.Digest)
		return nil
	},
}

func newRegistryComponent() (*containerregistry.Component, error) {
	provider, err := providers.NewDockerLocal(providers.DockerLocalConfig{
		RegistryHost: viper.GetString("registry-host"),
	})
	if err != nil {
		return nil, err
	}
	return containerregistry.New(provider), nil
}

func init() {
	registryCmd.PersistentFlags().String("registry-host", "", "Remote registry host to tag pushed images for; empty keeps images local")
	_ = viper.BindPFlag("registry-host", registryCmd.PersistentFlags().Lookup("registry-host"))

	registryCmd.AddCommand(registryPushCmd, registryPullCmd)
}
