package ecs

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/model"
)

// scriptedShell is a stateful fake AWS CLI transport, standing in for the
// "fake AWS REST transport" seed-test fixture against this provider's
// `aws <service> <verb>` invocations (spec.md §8 scenario 6). It tracks
// whether the cluster/roles/service already exist so a second Deploy call
// observes the idempotent branch of the reconciliation algorithm.
type scriptedShell struct {
	clusterActive   bool
	execRoleExists  bool
	taskRoleExists  bool
	serviceActive   bool
	taskDefRevision int
	calls           [][]string
}

func (s *scriptedShell) Run(_ context.Context, argv []string, _ io.Reader) ([]byte, int, error) {
	s.calls = append(s.calls, append([]string(nil), argv...))
	service, verb := argv[1], argv[2]
	switch {
	case service == "ecs" && verb == "describe-clusters":
		if !s.clusterActive {
			return nil, 255, errNotFound
		}
		return []byte(`{"clusters":[{"status":"ACTIVE"}]}`), 0, nil
	case service == "ecs" && verb == "create-cluster":
		s.clusterActive = true
		return nil, 0, nil
	case service == "iam" && verb == "get-role":
		name := flagValue(argv, "--role-name")
		exists := (strings.HasSuffix(name, "-execution-role") && s.execRoleExists) ||
			(strings.HasSuffix(name, "-task-role") && s.taskRoleExists)
		if !exists {
			return nil, 254, errNotFound
		}
		return []byte(`{"Role":{"Arn":"arn:aws:iam::123456789012:role/` + name + `"}}`), 0, nil
	case service == "iam" && verb == "create-role":
		name := flagValue(argv, "--role-name")
		if strings.HasSuffix(name, "-execution-role") {
			s.execRoleExists = true
		} else {
			s.taskRoleExists = true
		}
		return []byte(`{"Role":{"Arn":"arn:aws:iam::123456789012:role/` + name + `"}}`), 0, nil
	case service == "iam" && verb == "attach-role-policy":
		return nil, 0, nil
	case service == "logs" && verb == "create-log-group":
		if s.taskDefRevision > 0 {
			return nil, 254, errAlreadyExists
		}
		return nil, 0, nil
	case service == "logs" && verb == "put-retention-policy":
		return nil, 0, nil
	case service == "ecs" && verb == "register-task-definition":
		s.taskDefRevision++
		arn := taskDefARN(s.taskDefRevision)
		return []byte(`{"taskDefinition":{"taskDefinitionArn":"` + arn + `","revision":` + strconv.Itoa(s.taskDefRevision) + `}}`), 0, nil
	case service == "ecs" && verb == "describe-services":
		if !s.serviceActive {
			return []byte(`{"services":[]}`), 0, nil
		}
		return []byte(`{"services":[{"status":"ACTIVE","taskDefinition":"` + taskDefARN(s.taskDefRevision) + `","deployments":[{"rolloutState":"COMPLETED"}]}]}`), 0, nil
	case service == "ecs" && verb == "create-service":
		s.serviceActive = true
		return nil, 0, nil
	case service == "ecs" && verb == "update-service":
		return nil, 0, nil
	default:
		return nil, 0, nil
	}
}

func taskDefARN(revision int) string {
	return "arn:aws:ecs:us-east-1:123456789012:task-definition/web:" + strconv.Itoa(revision)
}

func flagValue(argv []string, flag string) string {
	for i, a := range argv {
		if a == flag && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

var errNotFound = &notFoundError{}
var errAlreadyExists = &alreadyExistsError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "ClusterNotFoundException" }

type alreadyExistsError struct{}

func (*alreadyExistsError) Error() string { return "ResourceAlreadyExistsException" }

func testDefinition() model.ServiceDefinition {
	return model.ServiceDefinition{
		Name: "web",
		Containers: []model.Container{
			{
				Name:  "app",
				Type:  model.MainContainer,
				Image: "example/app:v1",
				Ports: []model.Port{{ContainerPort: 8080}},
				LivenessProbe: &model.Probe{
					Action: model.ProbeAction{HTTPGet: &model.HTTPGetAction{Path: "/healthz", Port: 8080}},
				},
			},
		},
		Scale: &model.Scale{Mode: model.ScaleManual, Replicas: 1},
	}
}

func TestDeployCreatesServiceOnFirstRun(t *testing.T) {
	sh := &scriptedShell{}
	e := New(Config{Region: "us-east-1", NetworkMode: "awsvpc", Subnets: []string{"subnet-1"}, SecurityGroups: []string{"sg-1"}, LaunchKind: LaunchFargate}, sh)

	item, err := e.Deploy(context.Background(), testDefinition(), nil, nil, map[string]any{"requiresCompatibilities": []string{"FARGATE"}, "cpu": "256", "memory": "512"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != containerdeployment.StatusProvisioning {
		t.Fatalf("status = %q, want Provisioning", item.Status)
	}
	if !sh.serviceActive {
		t.Fatal("expected create-service to have been invoked")
	}
	if !hasCall(sh.calls, "ecs", "create-service") {
		t.Fatal("expected a create-service call on first deploy")
	}
	if hasCall(sh.calls, "ecs", "update-service") {
		t.Fatal("first deploy should not call update-service")
	}
}

func TestDeployIsIdempotentOnSecondRun(t *testing.T) {
	sh := &scriptedShell{}
	e := New(Config{Region: "us-east-1", NetworkMode: "awsvpc", Subnets: []string{"subnet-1"}, SecurityGroups: []string{"sg-1"}, LaunchKind: LaunchFargate}, sh)
	ctx := context.Background()
	def := testDefinition()

	if _, err := e.Deploy(ctx, def, nil, nil, nil); err != nil {
		t.Fatalf("first deploy: unexpected error: %v", err)
	}
	sh.calls = nil

	item, err := e.Deploy(ctx, def, nil, nil, nil)
	if err != nil {
		t.Fatalf("second deploy: unexpected error: %v", err)
	}
	if hasCall(sh.calls, "ecs", "create-cluster") {
		t.Fatal("second deploy should not recreate an already-active cluster")
	}
	if hasCall(sh.calls, "iam", "create-role") {
		t.Fatal("second deploy should not recreate already-existing roles")
	}
	if hasCall(sh.calls, "ecs", "create-service") {
		t.Fatal("second deploy should update, not create, an already-active service")
	}
	if !hasCall(sh.calls, "ecs", "update-service") {
		t.Fatal("second deploy should invoke update-service")
	}
	if item.Definition.Name != def.Name {
		t.Fatalf("service name = %q, want %q", item.Definition.Name, def.Name)
	}
}

func TestGetServiceReportsReadyAfterRolloutCompletes(t *testing.T) {
	sh := &scriptedShell{}
	e := New(Config{Region: "us-east-1", NetworkMode: "awsvpc", LaunchKind: LaunchFargate}, sh)
	ctx := context.Background()
	def := testDefinition()
	if _, err := e.Deploy(ctx, def, nil, nil, nil); err != nil {
		t.Fatalf("deploy: unexpected error: %v", err)
	}

	item, err := e.GetService(ctx, "web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != containerdeployment.StatusReady {
		t.Fatalf("status = %q, want Ready", item.Status)
	}
}

func hasCall(calls [][]string, service, verb string) bool {
	for _, c := range calls {
		if len(c) > 2 && c[1] == service && c[2] == verb {
			return true
		}
	}
	return false
}
