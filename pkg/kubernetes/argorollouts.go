package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	rolloutv1alpha1 "github.com/argoproj/argo-rollouts/pkg/apis/rollouts/v1alpha1"
	rolloutclient "github.com/argoproj/argo-rollouts/pkg/client/clientset/versioned"
	log "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// ArgoRolloutsClient represents a client for ArgoRollouts API
type ArgoRolloutsClient struct {
	namespace      string
	httpClient     *http.Client
	rolloutsClient rolloutclient.Interface
	k              *Kubernetes
}

// NewArgoRolloutsClient creates a new ArgoRollouts client
func (k *Kubernetes) NewArgoRolloutsClient(namespace string) (*ArgoRolloutsClient, error) {
	// Create the client using the official Argo Rollouts client library
	rolloutsClient, err := rolloutclient.NewForConfig(k.GetRESTConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Argo Rollouts client: %w", err)
	}

	client := &ArgoRolloutsClient{
		namespace: namespaceOrDefault(namespace),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rolloutsClient: rolloutsClient,
		k:              k,
	}
	return client, nil
}

// GetRollout gets an Argo Rollout by name and namespace
func (c *ArgoRolloutsClient) GetRollout(ctx context.Context, name, namespace string) (*rolloutv1alpha1.Rollout, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	// Get the rollout
	rollout, err := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	return rollout, nil
}

// FormatRolloutOutput formats a rollout for output in the specified format
func (c *ArgoRolloutsClient) FormatRolloutOutput(rollout *rolloutv1alpha1.Rollout, format string) (string, error) {
	// Format output based on requested format
	var result string
	switch format {
	case "json":
		jsonBytes, err := json.Marshal(rollout)
		if err != nil {
			return "", fmt.Errorf("failed to marshal rollout to JSON: %w", err)
		}
		result = string(jsonBytes)
	case "yaml":
		yamlBytes, err := yaml.Marshal(rollout)
		if err != nil {
			return "", fmt.Errorf("failed to marshal rollout to YAML: %w", err)
		}
		result = string(yamlBytes)
	default:
		// Default human-readable format
		phase := rollout.Status.Phase
		if phase == "" {
			phase = "N/A"
		}

		result = fmt.Sprintf("Name:               %s\n", rollout.Name)
		result += fmt.Sprintf("Namespace:          %s\n", rollout.Namespace)
		result += fmt.Sprintf("Status:             %s\n", phase)
		result += fmt.Sprintf("Strategy:           %s\n", c.getStrategyType(rollout))
		result += fmt.Sprintf("Images:             %s\n", c.getContainerImages(rollout))

		if rollout.Status.CurrentStepIndex != nil {
			result += fmt.Sprintf("Current Step:       %d\n", *rollout.Status.CurrentStepIndex)
		}

		if len(rollout.Status.PauseConditions) > 0 {
			result += "Pause Conditions:   Yes\n"
		} else {
			result += "Pause Conditions:   No\n"
		}
	}

	return result, nil
}

// PromoteRollout promotes an Argo Rollout to advance it to the next step
func (c *ArgoRolloutsClient) PromoteRollout(ctx context.Context, name, namespace string, fullPromote bool) (string, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	// Get the rollouts interface for the specified namespace
	rolloutInterface := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace)

	// Get the current rollout
	rollout, err := rolloutInterface.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	// Create a patched rollout for promotion
	var result string
	if fullPromote {
		// For full promotion in blue-green strategy, we'll set the activeSelector to the new ReplicaSet
		if rollout.Spec.Strategy.BlueGreen == nil {
			return "", fmt.Errorf("full promotion is only applicable to blue-green strategy")
		}

		// Patch the rollout for full promotion
		rollout.Status.BlueGreen.ActiveSelector = rollout.Status.CurrentPodHash
		_, err = rolloutInterface.UpdateStatus(ctx, rollout, metav1.UpdateOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to fully promote rollout: %w", err)
		}
		result = fmt.Sprintf("Rollout '%s' in namespace '%s' has been fully promoted", name, namespace)
	} else {
		// For regular promotion, we'll set the pause condition to false
		// This is equivalent to the `promote` command in kubectl plugin
		if len(rollout.Status.PauseConditions) == 0 {
			return "", fmt.Errorf("rollout '%s' in namespace '%s' is not currently paused", name, namespace)
		}

		// Patch the rollout to resume it
		// We're removing all pause conditions to advance the rollout
		rollout.Status.PauseConditions = nil
		rollout.Status.ControllerPause = false
		_, err = rolloutInterface.UpdateStatus(ctx, rollout, metav1.UpdateOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to promote rollout: %w", err)
		}
		result = fmt.Sprintf("Rollout '%s' in namespace '%s' has been promoted to the next step", name, namespace)
	}

	log.Infof("Successfully promoted rollout '%s' in namespace '%s'", name, namespace)
	return result, nil
}

// AbortRollout aborts an in-progress Argo Rollout and reverts to the stable version
func (c *ArgoRolloutsClient) AbortRollout(ctx context.Context, name, namespace string) (string, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	// Get the rollouts interface for the specified namespace
	rolloutInterface := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace)

	// Get the current rollout
	rollout, err := rolloutInterface.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	// Set the abort flag in the rollout
	// This is equivalent to the `abort` command in kubectl plugin
	rollout.Status.Abort = true
	_, err = rolloutInterface.UpdateStatus(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to abort rollout: %w", err)
	}

	log.Infof("Successfully aborted rollout '%s' in namespace '%s'", name, namespace)
	return fmt.Sprintf("Rollout '%s' in namespace '%s' has been aborted", name, namespace), nil
}

// SetRolloutWeight sets the weight for a canary rollout
func (c *ArgoRolloutsClient) SetRolloutWeight(ctx context.Context, name, namespace string, weight int) (string, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	if weight < 0 || weight > 100 {
		return "", fmt.Errorf("weight must be between 0 and 100")
	}

	// Get the rollouts interface for the specified namespace
	rolloutInterface := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace)

	// Get the current rollout
	rollout, err := rolloutInterface.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	// Check if rollout is using canary strategy
	if rollout.Spec.Strategy.Canary == nil {
		return "", fmt.Errorf("rollout '%s' in namespace '%s' is not using canary strategy", name, namespace)
	}

	// Set the desired weight in the rollout status
	// This simulates the setWeight command
	if rollout.Status.CurrentStepIndex == nil {
		index := int32(0)
		rollout.Status.CurrentStepIndex = &index
	}

	// Use annotations to set the desired weight
	weightStr := strconv.Itoa(weight)
	annotations := rollout.Annotations
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations["rollout.argoproj.io/desired-weight"] = weightStr
	rollout.Annotations = annotations

	// Update the rollout with the new annotations
	_, err = rolloutInterface.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to set canary weight: %w", err)
	}

	log.Infof("Successfully set canary weight to %d%% for rollout '%s' in namespace '%s'", weight, name, namespace)
	return fmt.Sprintf("Canary weight for rollout '%s' in namespace '%s' has been set to %d%%", name, namespace, weight), nil
}

// Helper functions for formatting rollout information
func (c *ArgoRolloutsClient) getStrategyType(rollout *rolloutv1alpha1.Rollout) string {
	if rollout.Spec.Strategy.BlueGreen != nil {
		return "BlueGreen"
	}
	if rollout.Spec.Strategy.Canary != nil {
		return "Canary"
	}
	return "Unknown"
}

func (c *ArgoRolloutsClient) getContainerImages(rollout *rolloutv1alpha1.Rollout) string {
	var images []string
	for _, container := range rollout.Spec.Template.Spec.Containers {
		images = append(images, container.Image)
	}
	return strings.Join(images, ", ")
}

// PauseRollout pauses an Argo Rollout to temporarily halt progression
func (c *ArgoRolloutsClient) PauseRollout(ctx context.Context, name, namespace string) (string, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	// Get the rollouts interface for the specified namespace
	rolloutInterface := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace)

	// Get the current rollout
	rollout, err := rolloutInterface.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	// Check if rollout is already paused
	if rollout.Spec.Paused {
		return fmt.Sprintf("Rollout '%s' in namespace '%s' is already paused", name, namespace), nil
	}

	// Pause the rollout by setting the Paused field to true
	rollout.Spec.Paused = true
	_, err = rolloutInterface.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pause rollout: %w", err)
	}

	log.Infof("Successfully paused rollout '%s' in namespace '%s'", name, namespace)
	return fmt.Sprintf("Rollout '%s' in namespace '%s' has been paused", name, namespace), nil
}

// SetRolloutImage updates the image of a container in an Argo Rollout
func (c *ArgoRolloutsClient) SetRolloutImage(ctx context.Context, name, namespace, containerName, image string) (string, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	if image == "" {
		return "", fmt.Errorf("new image is required")
	}

	// Get the rollouts interface for the specified namespace
	rolloutInterface := c.rolloutsClient.ArgoprojV1alpha1().Rollouts(namespace)

	// Get the current rollout
	rollout, err := rolloutInterface.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get rollout '%s' in namespace '%s': %w", name, namespace, err)
	}

	// Find and update the container
	containerFound := false
	for i, container := range rollout.Spec.Template.Spec.Containers {
		// If containerName is specified, match by name, otherwise update the first container
		if containerName == "" || container.Name == containerName {
			oldImage := container.Image
			rollout.Spec.Template.Spec.Containers[i].Image = image
			containerFound = true
			log.Infof("Updating container '%s' in rollout '%s/%s' from image '%s' to '%s'",
				container.Name, namespace, name, oldImage, image)

			// Only one container is updated: the named one, or the first
			break
		}
	}

	if !containerFound {
		if containerName != "" {
			return "", fmt.Errorf("container '%s' not found in rollout '%s' in namespace '%s'", containerName, name, namespace)
		} else {
			return "", fmt.Errorf("no containers found in rollout '%s' in namespace '%s'", name, namespace)
		}
	}

	// Update the rollout
	_, err = rolloutInterface.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to update rollout image: %w", err)
	}

	if containerName != "" {
		return fmt.Sprintf("Successfully updated image for container '%s' in rollout '%s' in namespace '%s' to '%s'",
			containerName, name, namespace, image), nil
	} else {
		return fmt.Sprintf("Successfully updated image for the first container in rollout '%s' in namespace '%s' to '%s'",
			name, namespace, image), nil
	}
}
