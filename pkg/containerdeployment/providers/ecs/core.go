// Package ecs is the AWS ECS core shared by ecsfargate and ecsec2 (spec.md
// §4.1 feature matrix footnote: "ECS state machines"). Grounded on
// original_source/x8/compute/container_deployment/providers/_amazon_ecs.py
// (the largest file in the original, 111KB) for the cluster/role/log-group
// prerequisite chain, the task-definition shape, and the create-vs-update
// service decision; translated from boto3 calls to the aws CLI over
// pkg/shell.Shell since no AWS SDK is present anywhere in the corpus
// (Design Notes §9: a Shell abstraction replaces ad-hoc subprocess calls).
package ecs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/shell"
)

// LaunchKind selects the ECS capacity model.
type LaunchKind string

const (
	LaunchFargate LaunchKind = "FARGATE"
	LaunchEC2     LaunchKind = "EC2"
)

// Config is the provider configuration shared by ecsfargate and ecsec2.
type Config struct {
	Region         string
	ClusterName    string // "" means a per-service cluster, see ensureCluster
	LaunchKind     LaunchKind
	NetworkMode    string // "awsvpc" | "bridge" | "host"
	Subnets        []string
	SecurityGroups []string
	AssignPublicIP bool
}

// ECS is the shared reconciliation core. ecsfargate and ecsec2 both embed
// it and only differ in launch-type-specific task-definition fields and
// in whether an EC2 capacity provider chain is reconciled.
type ECS struct {
	cfg Config
	sh  shell.Shell
}

func New(cfg Config, sh shell.Shell) *ECS {
	return &ECS{cfg: cfg, sh: sh}
}

func (e *ECS) Supports(f dispatch.Feature) bool {
	switch f {
	case dispatch.FeatureMultipleRevisions, dispatch.FeatureRevisionDelete, dispatch.FeatureMultipleContainers:
		return true
	case dispatch.FeatureTrafficSplit:
		// Native ECS services don't weight traffic across task-definition
		// revisions without a CodeDeploy blue/green deployment controller,
		// which is out of scope for this adapter.
		return false
	default:
		return false
	}
}

func (e *ECS) Close(ctx context.Context) error { return nil }

func (e *ECS) clusterName(serviceName string) string {
	if e.cfg.ClusterName != "" {
		return e.cfg.ClusterName
	}
	return serviceName + "-cluster"
}

// aws runs `aws <args...> --region <region> --output json` and unmarshals
// stdout into out (when non-nil).
func (e *ECS) aws(ctx context.Context, out any, args ...string) error {
	argv := append([]string{"aws"}, args...)
	argv = append(argv, "--region", e.cfg.Region, "--output", "json")
	stdout, exitCode, err := e.sh.Run(ctx, argv, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "aws %s", strings.Join(args, " "))
	}
	if exitCode != 0 {
		return apierr.New(apierr.KindBadRequest, "aws %s exited %d: %s", strings.Join(args, " "), exitCode, stdout)
	}
	if out == nil || len(stdout) == 0 {
		return nil
	}
	if err := json.Unmarshal(stdout, out); err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "parse aws %s output", strings.Join(args, " "))
	}
	return nil
}

// ensureCluster creates the cluster if it doesn't exist; a per-service
// cluster is tagged cloudcore:owned. DeleteService does not read the tag:
// it removes the cluster only when no ClusterName is configured (spec.md
// §4.1 delete algorithm: "only resources the engine created").
func (e *ECS) ensureCluster(ctx context.Context, name string, owned bool) error {
	var describe struct {
		Clusters []struct {
			Status string `json:"status"`
		} `json:"clusters"`
	}
	if err := e.aws(ctx, &describe, "ecs", "describe-clusters", "--clusters", name); err == nil {
		for _, c := range describe.Clusters {
			if c.Status == "ACTIVE" {
				return nil
			}
		}
	}
	args := []string{"ecs", "create-cluster", "--cluster-name", name}
	if owned {
		args = append(args, "--tags", "key=cloudcore:owned,value=true")
	}
	return e.aws(ctx, nil, args...)
}

func (e *ECS) ensureLogGroup(ctx context.Context, serviceName string) (string, error) {
	logGroup := fmt.Sprintf("/ecs/%s", serviceName)
	err := e.aws(ctx, nil, "logs", "create-log-group", "--log-group-name", logGroup)
	if err != nil && !strings.Contains(err.Error(), "ResourceAlreadyExistsException") {
		return "", err
	}
	_ = e.aws(ctx, nil, "logs", "put-retention-policy",
		"--log-group-name", logGroup, "--retention-in-days", "30")
	return logGroup, nil
}

// ensureRole idempotently creates an IAM role for roleName with
// trustPolicy/attachedPolicyARN, tolerating the eventual-consistency
// window new roles go through before they can be referenced elsewhere
// (spec.md §9 IAM retry budget).
func (e *ECS) ensureRole(ctx context.Context, roleName, trustPolicyJSON, attachedPolicyARN string) (string, error) {
	var getOut struct {
		Role struct {
			Arn string `json:"Arn"`
		} `json:"Role"`
	}
	if err := e.aws(ctx, &getOut, "iam", "get-role", "--role-name", roleName); err == nil {
		return getOut.Role.Arn, nil
	}

	var createOut struct {
		Role struct {
			Arn string `json:"Arn"`
		} `json:"Role"`
	}
	createErr := containerdeployment.RetryIAMPropagation(ctx, func() error {
		return e.aws(ctx, &createOut, "iam", "create-role",
			"--role-name", roleName, "--assume-role-policy-document", trustPolicyJSON)
	})
	if createErr != nil {
		return "", createErr
	}
	if err := e.aws(ctx, nil, "iam", "attach-role-policy",
		"--role-name", roleName, "--policy-arn", attachedPolicyARN); err != nil {
		return "", err
	}
	return createOut.Role.Arn, nil
}

const ecsTaskTrustPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":"ecs-tasks.amazonaws.com"},"Action":"sts:AssumeRole"}]}`

// ensurePrerequisites runs step 5 of the reconciliation algorithm: cluster,
// execution role, task role, and log group, all idempotent.
func (e *ECS) ensurePrerequisites(ctx context.Context, serviceName string) (cluster, execRoleARN, taskRoleARN, logGroup string, err error) {
	cluster = e.clusterName(serviceName)
	if err = e.ensureCluster(ctx, cluster, e.cfg.ClusterName == ""); err != nil {
		return
	}
	execRoleARN, err = e.ensureRole(ctx, serviceName+"-execution-role", ecsTaskTrustPolicy,
		"arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy")
	if err != nil {
		return
	}
	taskRoleARN, err = e.ensureRole(ctx, serviceName+"-task-role", ecsTaskTrustPolicy,
		"arn:aws:iam::aws:policy/ReadOnlyAccess")
	if err != nil {
		return
	}
	logGroup, err = e.ensureLogGroup(ctx, serviceName)
	return
}

// taskDefinitionJSON marshals a ServiceDefinition + resolved images into an
// ECS RegisterTaskDefinition request body. extra lets ecsfargate
// set requiresCompatibilities/cpu/memory and ecsec2 leave cpu/memory off
// (EC2 tasks size from the container definitions instead).
func (e *ECS) taskDefinitionJSON(service model.ServiceDefinition, images []string, execRoleARN, taskRoleARN, logGroup string, extra map[string]any) ([]byte, error) {
	containerDefs := make([]map[string]any, 0, len(service.Containers))
	for i, c := range service.Containers {
		image := c.Image
		if i < len(images) && images[i] != "" {
			image = images[i]
		}
		def := map[string]any{
			"name":      c.Name,
			"image":     image,
			"essential": c.Type == model.MainContainer,
			"logConfiguration": map[string]any{
				"logDriver": "awslogs",
				"options": map[string]string{
					"awslogs-group":         logGroup,
					"awslogs-region":        e.cfg.Region,
					"awslogs-stream-prefix": c.Name,
				},
			},
		}
		if len(c.Command) > 0 {
			def["entryPoint"] = c.Command
		}
		if len(c.Args) > 0 {
			def["command"] = c.Args
		}
		if c.Resources.LimitsMemoryMiB > 0 {
			def["memory"] = c.Resources.LimitsMemoryMiB
		} else if c.Resources.RequestsMemoryMiB > 0 {
			def["memoryReservation"] = c.Resources.RequestsMemoryMiB
		}
		if cores := c.Resources.LimitsCPUCores; cores > 0 {
			def["cpu"] = containerdeployment.CoresToFargateUnits(cores)
		}
		if len(c.Env) > 0 {
			env := make([]map[string]string, 0, len(c.Env))
			for _, ev := range c.Env {
				env = append(env, map[string]string{"name": ev.Name, "value": ev.Value})
			}
			def["environment"] = env
		}
		if len(c.Ports) > 0 {
			var ports []map[string]any
			for _, p := range c.Ports {
				mapping := map[string]any{"containerPort": p.ContainerPort}
				if p.Protocol != "" {
					mapping["protocol"] = strings.ToLower(p.Protocol)
				}
				ports = append(ports, mapping)
			}
			def["portMappings"] = ports
		}
		if hc := containerdeployment.ProbeToECSHealthCheck(c.LivenessProbe); hc != nil {
			def["healthCheck"] = map[string]any{
				"command":     hc.Command,
				"interval":    hc.IntervalSec,
				"timeout":     hc.TimeoutSec,
				"retries":     hc.Retries,
				"startPeriod": hc.StartPeriod,
			}
		}
		containerDefs = append(containerDefs, def)
	}

	body := map[string]any{
		"family":                  service.Name,
		"networkMode":             e.cfg.NetworkMode,
		"containerDefinitions":    containerDefs,
		"executionRoleArn":        execRoleARN,
		"taskRoleArn":             taskRoleARN,
	}
	for k, v := range extra {
		body[k] = v
	}
	return json.Marshal(body)
}

func (e *ECS) registerTaskDefinition(ctx context.Context, body []byte) (string, error) {
	var out struct {
		TaskDefinition struct {
			TaskDefinitionArn string `json:"taskDefinitionArn"`
			Revision          int    `json:"revision"`
		} `json:"taskDefinition"`
	}
	if err := e.aws(ctx, &out, "ecs", "register-task-definition", "--cli-input-json", string(body)); err != nil {
		return "", err
	}
	return out.TaskDefinition.TaskDefinitionArn, nil
}

func (e *ECS) networkConfigurationJSON() string {
	cfg := map[string]any{
		"awsvpcConfiguration": map[string]any{
			"subnets":        e.cfg.Subnets,
			"securityGroups": e.cfg.SecurityGroups,
			"assignPublicIp": boolToEnabled(e.cfg.AssignPublicIP),
		},
	}
	b, _ := json.Marshal(cfg)
	return string(b)
}

func boolToEnabled(b bool) string {
	if b {
		return "ENABLED"
	}
	return "DISABLED"
}

// Deploy implements steps 5-6 for both launch types: ensure prerequisites,
// register a task definition, then create-or-update the ECS service.
func (e *ECS) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool, launchSpecific map[string]any) (model.ServiceItem, error) {
	cluster, execRoleARN, taskRoleARN, logGroup, err := e.ensurePrerequisites(ctx, service.Name)
	if err != nil {
		return model.ServiceItem{}, err
	}

	taskDefJSON, err := e.taskDefinitionJSON(service, images, execRoleARN, taskRoleARN, logGroup, launchSpecific)
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "build task definition for %q", service.Name)
	}
	taskDefARN, err := e.registerTaskDefinition(ctx, taskDefJSON)
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "register task definition for %q", service.Name)
	}

	desiredCount := desiredCountFromScale(service.Scale)

	exists, err := e.serviceExists(ctx, cluster, service.Name)
	if err != nil {
		return model.ServiceItem{}, err
	}
	klog.V(1).Infof("containerdeployment(ecs): %s service %q in cluster %q", verbFor(exists), service.Name, cluster)

	if exists {
		err = e.aws(ctx, nil, "ecs", "update-service",
			"--cluster", cluster, "--service", service.Name,
			"--task-definition", taskDefARN,
			"--desired-count", fmt.Sprintf("%d", desiredCount))
	} else {
		args := []string{"ecs", "create-service",
			"--cluster", cluster, "--service-name", service.Name,
			"--task-definition", taskDefARN,
			"--desired-count", fmt.Sprintf("%d", desiredCount)}
		if e.cfg.NetworkMode == "awsvpc" {
			args = append(args, "--network-configuration", e.networkConfigurationJSON())
		}
		if e.cfg.LaunchKind == LaunchFargate {
			args = append(args, "--launch-type", "FARGATE")
		}
		err = e.aws(ctx, nil, args...)
	}
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "deploy service %q", service.Name)
	}

	return model.ServiceItem{
		Definition: service,
		Status:     containerdeployment.StatusProvisioning,
	}, nil
}

func verbFor(exists bool) string {
	if exists {
		return "updating"
	}
	return "creating"
}

func desiredCountFromScale(scale *model.Scale) int {
	if scale == nil {
		return 1
	}
	if scale.Replicas > 0 {
		return scale.Replicas
	}
	return scale.EffectiveMinReplicas()
}

func (e *ECS) serviceExists(ctx context.Context, cluster, name string) (bool, error) {
	var out struct {
		Services []struct {
			Status string `json:"status"`
		} `json:"services"`
	}
	if err := e.aws(ctx, &out, "ecs", "describe-services", "--cluster", cluster, "--services", name); err != nil {
		return false, nil
	}
	for _, s := range out.Services {
		if s.Status == "ACTIVE" {
			return true, nil
		}
	}
	return false, nil
}

func (e *ECS) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	cluster := e.clusterName(name)
	var out struct {
		Services []struct {
			Status        string `json:"status"`
			TaskDefinition string `json:"taskDefinition"`
			Deployments   []struct {
				RolloutState string `json:"rolloutState"`
			} `json:"deployments"`
		} `json:"services"`
	}
	if err := e.aws(ctx, &out, "ecs", "describe-services", "--cluster", cluster, "--services", name); err != nil {
		return model.ServiceItem{}, err
	}
	if len(out.Services) == 0 || out.Services[0].Status != "ACTIVE" {
		return model.ServiceItem{}, apierr.New(apierr.KindNotFound, "ecs service %q not found", name)
	}
	svc := out.Services[0]
	status := containerdeployment.StatusProvisioning
	if len(svc.Deployments) > 0 && svc.Deployments[0].RolloutState == "COMPLETED" {
		status = containerdeployment.StatusReady
	}
	return model.ServiceItem{
		Definition: model.ServiceDefinition{Name: name, LatestReadyRevision: svc.TaskDefinition},
		Status:     status,
	}, nil
}

// DeleteService implements the teardown algorithm: remove the ECS
// service, then tear down the per-service cluster (never a caller-
// supplied one) once its security groups have detached.
func (e *ECS) DeleteService(ctx context.Context, name string) error {
	cluster := e.clusterName(name)
	if err := e.aws(ctx, nil, "ecs", "update-service", "--cluster", cluster, "--service", name, "--desired-count", "0"); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "scale down service %q before delete", name)
	}
	if err := e.aws(ctx, nil, "ecs", "delete-service", "--cluster", cluster, "--service", name, "--force"); err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "delete service %q", name)
	}
	if e.cfg.ClusterName == "" {
		err := containerdeployment.RetryDependencyViolation(ctx, 60*time.Second, func() error {
			return e.aws(ctx, nil, "ecs", "delete-cluster", "--cluster", cluster)
		})
		if err != nil {
			klog.Warningf("containerdeployment(ecs): cluster %q did not delete cleanly: %v", cluster, err)
		}
	}
	return nil
}

func (e *ECS) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	var out struct {
		ServiceArns []string `json:"serviceArns"`
	}
	if err := e.aws(ctx, &out, "ecs", "list-services", "--cluster", e.cfg.ClusterName); err != nil {
		return nil, err
	}
	items := make([]model.ServiceItem, 0, len(out.ServiceArns))
	for _, arn := range out.ServiceArns {
		name := arn[strings.LastIndex(arn, "/")+1:]
		item, err := e.GetService(ctx, name)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// activeTaskDefinition returns the task definition ARN the service is
// currently running, used to resolve Revision.Current.
func (e *ECS) activeTaskDefinition(ctx context.Context, name string) (string, error) {
	item, err := e.GetService(ctx, name)
	if err != nil {
		return "", err
	}
	return item.Definition.LatestReadyRevision, nil
}

func (e *ECS) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	var out struct {
		TaskDefinitionArns []string `json:"taskDefinitionArns"`
	}
	if err := e.aws(ctx, &out, "ecs", "list-task-definitions", "--family-prefix", name, "--sort", "DESC"); err != nil {
		return nil, err
	}
	active, _ := e.activeTaskDefinition(ctx, name)
	revisions := make([]model.Revision, 0, len(out.TaskDefinitionArns))
	for _, arn := range out.TaskDefinitionArns {
		revisions = append(revisions, model.Revision{ID: arn, Current: active != "" && arn == active})
	}
	return revisions, nil
}

func (e *ECS) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	var out struct {
		TaskDefinition struct {
			TaskDefinitionArn string `json:"taskDefinitionArn"`
			RegisteredAt      int64  `json:"registeredAt"`
		} `json:"taskDefinition"`
	}
	if err := e.aws(ctx, &out, "ecs", "describe-task-definition", "--task-definition", revision); err != nil {
		return model.Revision{}, apierr.Wrap(apierr.KindNotFound, err, "revision %q of %q", revision, name)
	}
	active, _ := e.activeTaskDefinition(ctx, name)
	return model.Revision{
		ID:      out.TaskDefinition.TaskDefinitionArn,
		Current: active != "" && active == out.TaskDefinition.TaskDefinitionArn,
		Created: out.TaskDefinition.RegisteredAt,
	}, nil
}

func (e *ECS) DeleteRevision(ctx context.Context, name, revision string) error {
	if err := e.aws(ctx, nil, "ecs", "deregister-task-definition", "--task-definition", revision); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "deregister revision %q of %q", revision, name)
	}
	return nil
}

// UpdateTraffic has no CodeDeploy-backed weighted routing, but a single
// 100%-to-one-revision allocation is just "run this task definition" and
// ECS services do that natively.
func (e *ECS) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	if len(traffic) != 1 || traffic[0].Percent != 100 {
		return model.ServiceItem{}, apierr.New(apierr.KindUnsupported, "ecs does not support traffic splitting without a CodeDeploy deployment controller")
	}
	cluster := e.clusterName(name)
	if err := e.aws(ctx, nil, "ecs", "update-service", "--cluster", cluster, "--service", name, "--task-definition", traffic[0].Revision); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "switch %q to revision %q", name, traffic[0].Revision)
	}
	return e.GetService(ctx, name)
}

// WaitStable polls describe-services until the rollout completes or
// StabilityWindow expires, in which case the last-polled state is
// returned rather than an error: a slow rollout isn't a failed one.
func (e *ECS) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	deadline := time.Now().Add(containerdeployment.StabilityWindow)
	var last model.ServiceItem
	for {
		item, err := e.GetService(ctx, name)
		if err != nil {
			return last, err
		}
		last = item
		if item.Status == containerdeployment.StatusReady {
			return item, nil
		}
		if time.Now().After(deadline) {
			klog.Warningf("containerdeployment(ecs): %q did not stabilize within %s, returning current state %q", name, containerdeployment.StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(containerdeployment.StabilityPollInterval):
		}
	}
}
