package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/x8labs/cloudcore/pkg/kubernetes"
	"github.com/x8labs/cloudcore/pkg/model"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Create, inspect, and delete container services on Kubernetes",
}

var serviceFile string

var serviceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Apply a ServiceDefinition manifest and wait for it to stabilize",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(serviceFile)
		if err != nil {
			return fmt.Errorf("read %q: %w", serviceFile, err)
		}
		var service model.ServiceDefinition
		if err := yaml.Unmarshal(data, &service); err != nil {
			return fmt.Errorf("parse %q: %w", serviceFile, err)
		}
		component, err := newServiceComponent()
		if err != nil {
			return err
		}
		ctx := context.Background()
		item, err := component.Apply(ctx, service, nil, nil)
		if err != nil {
			return err
		}
		klog.V(1).Infof("applied %q, waiting for stability", service.Name)
		item, err = component.WaitStable(ctx, service.Name)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", item.Definition.Name, item.Status)
		return nil
	},
}

var serviceGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print a service's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, err := newServiceComponent()
		if err != nil {
			return err
		}
		item, err := component.GetService(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", item.Definition.Name, item.Status)
		return nil
	},
}

var serviceDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a service's Deployment and Service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, err := newServiceComponent()
		if err != nil {
			return err
		}
		return component.DeleteService(context.Background(), args[0])
	},
}

var serviceListRevisionsCmd = &cobra.Command{
	Use:   "list-revisions [name]",
	Short: "List a service's known revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, err := newServiceComponent()
		if err != nil {
			return err
		}
		item, err := component.GetService(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, rev := range item.Revisions {
			marker := ""
			if rev.Current {
				marker = " (current)"
			}
			fmt.Printf("%s%s\n", rev.ID, marker)
		}
		return nil
	},
}

var trafficWeights []string

var serviceUpdateTrafficCmd = &cobra.Command{
	Use:   "update-traffic [name]",
	Short: "Update a service's stable/canary traffic split",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traffic, err := parseTrafficWeights(trafficWeights)
		if err != nil {
			return err
		}
		component, err := newServiceComponent()
		if err != nil {
			return err
		}
		item, err := component.UpdateTraffic(context.Background(), args[0], traffic)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", item.Definition.Name, item.Status)
		return nil
	},
}

func parseTrafficWeights(raw []string) ([]model.TrafficAllocation, error) {
	traffic := make([]model.TrafficAllocation, 0, len(raw))
	for _, entry := range raw {
		var revision string
		var percent int
		if _, err := fmt.Sscanf(entry, "%[^=]=%d", &revision, &percent); err != nil {
			return nil, fmt.Errorf("parse traffic weight %q (want revision=percent): %w", entry, err)
		}
		traffic = append(traffic, model.TrafficAllocation{Revision: revision, Percent: percent})
	}
	return traffic, nil
}

func newServiceComponent() (*kubernetes.Component, error) {
	var k *kubernetes.Kubernetes
	var err error
	if path := viper.GetString("kubeconfig"); path != "" {
		k, err = kubernetes.NewKubernetesWithKubeconfig(path)
	} else {
		k, err = kubernetes.NewKubernetes()
	}
	if err != nil {
		return nil, fmt.Errorf("connect to kubernetes: %w", err)
	}
	return kubernetes.NewComponent(k, viper.GetString("namespace")), nil
}

func init() {
	serviceCreateCmd.Flags().StringVarP(&serviceFile, "file", "f", "", "Path to a ServiceDefinition YAML manifest")
	_ = serviceCreateCmd.MarkFlagRequired("file")
	serviceUpdateTrafficCmd.Flags().StringArrayVar(&trafficWeights, "weight", nil, "revision=percent, repeatable")

	serviceCmd.AddCommand(serviceCreateCmd, serviceGetCmd, serviceDeleteCmd, serviceListRevisionsCmd, serviceUpdateTrafficCmd)
}
