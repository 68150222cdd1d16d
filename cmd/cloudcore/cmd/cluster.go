package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/x8labs/cloudcore/pkg/kubernetes"
)

// clusterCmd groups the diagnostic and admin operations that don't belong
// to any single ServiceDefinition: node/pod inventory, events, raw rollout
// control, and connectivity checks against the cluster the service
// commands target.
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect and operate on the underlying Kubernetes cluster",
}

func newKubernetesClient() (*kubernetes.Kubernetes, error) {
	if path := viper.GetString("kubeconfig"); path != "" {
		return kubernetes.NewKubernetesWithKubeconfig(path)
	}
	return kubernetes.NewKubernetes()
}

var clusterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print namespaces, nodes, and node resource usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		ctx := context.Background()

		namespaces, err := k.NamespacesList(ctx)
		if err != nil {
			return fmt.Errorf("list namespaces: %w", err)
		}
		fmt.Println("Namespaces:")
		fmt.Println(namespaces)

		nodes, err := k.NodesList(ctx)
		if err != nil {
			return fmt.Errorf("list nodes: %w", err)
		}
		fmt.Println("Nodes:")
		fmt.Println(nodes)

		if metrics, err := k.GetNodeMetrics(ctx, ""); err == nil {
			fmt.Println("Node metrics:")
			fmt.Println(metrics)
		} else {
			// metrics-server is optional; don't fail the whole status report for it.
			fmt.Printf("Node metrics unavailable: %v\n", err)
		}
		return nil
	},
}

var nodesCmd = &cobra.Command{
	Use:   "nodes [name]",
	Short: "List nodes, or describe one by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		if len(args) == 1 {
			out, err := k.NodesGet(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		out, err := k.NodesList(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var topPodNamespace string

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show node or pod resource usage (requires metrics-server)",
}

var topNodeCmd = &cobra.Command{
	Use:   "node [name]",
	Short: "Show CPU/memory usage for all nodes, or one node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		out, err := k.GetNodeMetrics(context.Background(), name)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var topPodCmd = &cobra.Command{
	Use:   "pod [name]",
	Short: "Show CPU/memory usage for pods in a namespace, or one pod",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		namespace := topPodNamespace
		if namespace == "" {
			namespace = viper.GetString("namespace")
		}
		out, err := k.GetPodMetrics(context.Background(), namespace, name)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsCmd = &cobra.Command{
	Use:   "pods",
	Short: "Inspect and run ad hoc pods in the target cluster",
}

var podsAllNamespaces bool

var podsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pods in the configured namespace, or every namespace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		ctx := context.Background()
		if podsAllNamespaces {
			out, err := k.PodsListInAllNamespaces(ctx)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		out, err := k.PodsListInNamespace(ctx, viper.GetString("namespace"))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Describe a single pod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.PodsGet(context.Background(), viper.GetString("namespace"), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a pod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.PodsDelete(context.Background(), viper.GetString("namespace"), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsLogTail int

var podsLogsCmd = &cobra.Command{
	Use:   "logs [name]",
	Short: "Print a pod's logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.PodsLog(context.Background(), viper.GetString("namespace"), args[0], podsLogTail)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsRunImage string
var podsRunPort int32

var podsRunCmd = &cobra.Command{
	Use:   "run [name]",
	Short: "Start a bare single-container pod for ad hoc debugging",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.PodsRun(context.Background(), viper.GetString("namespace"), name, podsRunImage, podsRunPort)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var podsExecContainer string

var podsExecCmd = &cobra.Command{
	Use:   "exec [name] -- [command...]",
	Short: "Run a command inside a pod's container and print its output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		command := args[1:]
		if len(command) == 0 {
			command = []string{"/bin/sh", "-c", "true"}
		}
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.PodsExec(context.Background(), viper.GetString("namespace"), name, podsExecContainer, command)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var eventsNamespace string
var eventsFieldSelectors []string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List cluster events, optionally narrowed by field selector",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.EventsList(context.Background(), eventsNamespace, eventsFieldSelectors)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Control Deployment rollouts and, where installed, Argo Rollouts",
}

func rolloutActionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [name]",
		Short: fmt.Sprintf("%c%s a deployment rollout", strings.ToUpper(action)[0], action[1:]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := newKubernetesClient()
			if err != nil {
				return err
			}
			defer k.Close()
			out, err := k.ResourceRollout(context.Background(), viper.GetString("namespace"), "deployment", args[0], action, 0)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

var argoCmd = &cobra.Command{
	Use:   "argo",
	Short: "Control an Argo Rollout directly (progressive delivery outside the service commands)",
}

func newArgoRolloutsClient() (*kubernetes.ArgoRolloutsClient, error) {
	k, err := newKubernetesClient()
	if err != nil {
		return nil, err
	}
	return k.NewArgoRolloutsClient(viper.GetString("namespace"))
}

var argoOutputFormat string

var argoGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print an Argo Rollout's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		rollout, err := rollouts.GetRollout(context.Background(), args[0], viper.GetString("namespace"))
		if err != nil {
			return err
		}
		out, err := rollouts.FormatRolloutOutput(rollout, argoOutputFormat)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var argoFullPromote bool

var argoPromoteCmd = &cobra.Command{
	Use:   "promote [name]",
	Short: "Advance a paused Argo Rollout to its next step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		out, err := rollouts.PromoteRollout(context.Background(), args[0], viper.GetString("namespace"), argoFullPromote)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var argoAbortCmd = &cobra.Command{
	Use:   "abort [name]",
	Short: "Abort an in-progress Argo Rollout and revert to the stable version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		out, err := rollouts.AbortRollout(context.Background(), args[0], viper.GetString("namespace"))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var argoPauseCmd = &cobra.Command{
	Use:   "pause [name]",
	Short: "Pause an Argo Rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		out, err := rollouts.PauseRollout(context.Background(), args[0], viper.GetString("namespace"))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var argoSetImageContainer string

var argoSetImageCmd = &cobra.Command{
	Use:   "set-image [name] [image]",
	Short: "Update the image of a container in an Argo Rollout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		out, err := rollouts.SetRolloutImage(context.Background(), args[0], viper.GetString("namespace"), argoSetImageContainer, args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var argoSetWeightCmd = &cobra.Command{
	Use:   "set-weight [name] [weight]",
	Short: "Set the canary weight (0-100) for an Argo Rollout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		weight, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse weight %q: %w", args[1], err)
		}
		rollouts, err := newArgoRolloutsClient()
		if err != nil {
			return err
		}
		out, err := rollouts.SetRolloutWeight(context.Background(), args[0], viper.GetString("namespace"), weight)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var checkConnectivityCmd = &cobra.Command{
	Use:   "check-connectivity [service:port]",
	Short: "Verify connectivity to a service from inside the cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		out, err := k.CheckServiceConnectivity(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved kubeconfig",
}

var configMinify bool

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the current kubeconfig (or in-cluster config)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := kubernetes.ConfigurationView(configMinify)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var apiResourcesCmd = &cobra.Command{
	Use:   "api-resources",
	Short: "List every API resource the cluster's discovery endpoint serves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := kubernetes.GetAvailableAPIResources(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

// parseKeyValues parses "key=value" pairs into a map, the same shape the
// service commands' --weight flag accepts.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

var labelValues []string
var labelUnset string

var labelCmd = &cobra.Command{
	Use:   "label [kind] [name]",
	Short: "Apply (--set key=value) or remove (--unset key) a label on a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		gvk, err := gvkForKind(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()
		namespace := viper.GetString("namespace")
		if labelUnset != "" {
			out, err := k.RemoveLabel(ctx, gvk, namespace, args[1], labelUnset)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		values, err := parseKeyValues(labelValues)
		if err != nil {
			return err
		}
		out, err := k.LabelResource(ctx, gvk, namespace, args[1], values)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var annotateCmd = &cobra.Command{
	Use:   "annotate [kind] [name]",
	Short: "Apply (--set key=value) or remove (--unset key) an annotation on a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		gvk, err := gvkForKind(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()
		namespace := viper.GetString("namespace")
		if labelUnset != "" {
			out, err := k.RemoveAnnotation(ctx, gvk, namespace, args[1], labelUnset)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		values, err := parseKeyValues(labelValues)
		if err != nil {
			return err
		}
		out, err := k.AnnotateResource(ctx, gvk, namespace, args[1], values)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

// gvkForKind resolves a friendly resource kind (as keyed in
// kubernetes.GetGroupVersionResource) to the GVK that LabelResource and
// AnnotateResource expect.
func gvkForKind(kind string) (*schema.GroupVersionKind, error) {
	gvr, err := kubernetes.GetGroupVersionResource(strings.ToLower(kind))
	if err != nil {
		return nil, err
	}
	return &schema.GroupVersionKind{Group: gvr.Group, Version: gvr.Version, Kind: kind}, nil
}

var getCmd = &cobra.Command{
	Use:   "get [kind] [name]",
	Short: "Fetch a resource by friendly kind name (e.g. deployment, configmap)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		obj, err := k.GetCrdResource(context.Background(), strings.ToLower(args[0]), args[1], viper.GetString("namespace"))
		if err != nil {
			return err
		}
		fmt.Println(obj)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete-resource [kind] [name]",
	Short: "Delete a resource by friendly kind name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKubernetesClient()
		if err != nil {
			return err
		}
		defer k.Close()
		if err := k.DeleteCrdResource(context.Background(), strings.ToLower(args[0]), args[1], viper.GetString("namespace")); err != nil {
			return err
		}
		fmt.Printf("%s %q deleted\n", args[0], args[1])
		return nil
	},
}

func init() {
	topPodCmd.Flags().StringVar(&topPodNamespace, "namespace", "", "Namespace to read pod metrics from; empty uses the global --namespace")
	podsListCmd.Flags().BoolVar(&podsAllNamespaces, "all-namespaces", false, "List pods across every namespace")
	podsLogsCmd.Flags().IntVar(&podsLogTail, "tail", 0, "Number of trailing log lines to print (0 for all)")
	podsRunCmd.Flags().StringVar(&podsRunImage, "image", "", "Container image to run")
	podsRunCmd.Flags().Int32Var(&podsRunPort, "port", 0, "Container port to expose")
	_ = podsRunCmd.MarkFlagRequired("image")
	podsExecCmd.Flags().StringVar(&podsExecContainer, "container", "", "Container name (defaults to the pod's only container)")
	eventsCmd.Flags().StringVar(&eventsNamespace, "namespace", "", "Namespace to list events from; empty lists every namespace")
	eventsCmd.Flags().StringArrayVar(&eventsFieldSelectors, "field-selector", nil, "Field selector such as involvedObject.name=foo, repeatable")
	argoGetCmd.Flags().StringVar(&argoOutputFormat, "output", "", "Output format: json, yaml, or empty for human-readable")
	argoPromoteCmd.Flags().BoolVar(&argoFullPromote, "full", false, "Fully promote a blue-green rollout instead of advancing one step")
	argoSetImageCmd.Flags().StringVar(&argoSetImageContainer, "container", "", "Container name (defaults to the first container)")
	configViewCmd.Flags().BoolVar(&configMinify, "minify", false, "Strip contexts/clusters/users not referenced by the current context")
	labelCmd.Flags().StringArrayVar(&labelValues, "set", nil, "key=value, repeatable")
	labelCmd.Flags().StringVar(&labelUnset, "unset", "", "key to remove instead of setting --set values")
	annotateCmd.Flags().StringArrayVar(&labelValues, "set", nil, "key=value, repeatable")
	annotateCmd.Flags().StringVar(&labelUnset, "unset", "", "key to remove instead of setting --set values")

	podsCmd.AddCommand(podsListCmd, podsGetCmd, podsDeleteCmd, podsLogsCmd, podsRunCmd, podsExecCmd)
	topCmd.AddCommand(topNodeCmd, topPodCmd)
	argoCmd.AddCommand(argoGetCmd, argoPromoteCmd, argoAbortCmd, argoPauseCmd, argoSetImageCmd, argoSetWeightCmd)
	rolloutCmd.AddCommand(rolloutActionCmd("status"), rolloutActionCmd("restart"), rolloutActionCmd("pause"), rolloutActionCmd("resume"), argoCmd)
	configCmd.AddCommand(configViewCmd)

	clusterCmd.AddCommand(clusterStatusCmd, nodesCmd, topCmd, podsCmd, eventsCmd, rolloutCmd,
		checkConnectivityCmd, configCmd, apiResourcesCmd, labelCmd, annotateCmd, getCmd, deleteCmd)
}
