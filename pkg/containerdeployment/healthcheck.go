package containerdeployment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/x8labs/cloudcore/pkg/model"
)

// ECSHealthCheck is the subset of an ECS container definition's
// HealthCheck block the probe translation round-trips.
type ECSHealthCheck struct {
	Command     []string
	IntervalSec int
	TimeoutSec  int
	Retries     int
	StartPeriod int
}

// ProbeToECSHealthCheck converts a Probe into an ECS container healthcheck
// shelling out to curl (HTTPGet) or /dev/tcp (TCPSocket). Recovered from
// original_source .../_amazon_ecs.py's _convert_probes_to_healthcheck.
func ProbeToECSHealthCheck(probe *model.Probe) *ECSHealthCheck {
	if probe == nil {
		return nil
	}
	interval := maxInt(5, orDefault(probe.PeriodSeconds, 30))
	timeout := maxInt(2, orDefault(probe.TimeoutSeconds, 5))
	retries := maxInt(1, orDefault(probe.FailureThreshold, 3))
	startPeriod := maxInt(0, orDefault(probe.InitialDelaySeconds, 0))

	var cmd []string
	switch {
	case probe.Action.HTTPGet != nil:
		h := probe.Action.HTTPGet
		port := h.Port
		if port == 0 {
			port = 80
		}
		path := h.Path
		if path == "" {
			path = "/"
		}
		host := h.Host
		if host == "" {
			host = "127.0.0.1"
		}
		scheme := strings.ToLower(h.Scheme)
		if scheme == "" {
			scheme = "http"
		}
		cmd = []string{"CMD-SHELL", fmt.Sprintf("curl -fsS %s://%s:%d%s || exit 1", scheme, host, port, path)}
	case probe.Action.TCPSocket != nil:
		s := probe.Action.TCPSocket
		port := s.Port
		if port == 0 {
			port = 80
		}
		host := s.Host
		if host == "" {
			host = "127.0.0.1"
		}
		cmd = []string{"CMD-SHELL", fmt.Sprintf("bash -c '</dev/tcp/%s/%d' || exit 1", host, port)}
	default:
		return nil
	}

	return &ECSHealthCheck{
		Command:     cmd,
		IntervalSec: interval,
		TimeoutSec:  timeout,
		Retries:     retries,
		StartPeriod: startPeriod,
	}
}

var curlHealthCheckPattern = regexp.MustCompile(`(?i)curl\s+.*?\s+(https?)://([^:/\s]+)(?::(\d+))?(/\S*)?`)
var tcpHealthCheckPattern = regexp.MustCompile(`(?i)</dev/tcp/([^/]+)/(\d+)`)

// ECSHealthCheckToProbe is the reverse of ProbeToECSHealthCheck, used when
// probing a live ECS task definition back into the neutral model (spec.md
// §4.1 step 3's "probe current state").
func ECSHealthCheckToProbe(hc *ECSHealthCheck) *model.Probe {
	if hc == nil || len(hc.Command) == 0 {
		return nil
	}
	shell := hc.Command[0]
	if hc.Command[0] == "CMD-SHELL" && len(hc.Command) > 1 {
		shell = strings.Join(hc.Command[1:], " ")
	} else {
		shell = strings.Join(hc.Command, " ")
	}

	timing := func(action model.ProbeAction) *model.Probe {
		return &model.Probe{
			Action:              action,
			PeriodSeconds:       intPtr(hc.IntervalSec),
			TimeoutSeconds:      intPtr(hc.TimeoutSec),
			FailureThreshold:    intPtr(hc.Retries),
			InitialDelaySeconds: intPtr(hc.StartPeriod),
		}
	}

	if m := curlHealthCheckPattern.FindStringSubmatch(shell); m != nil {
		port := 80
		if m[3] != "" {
			port, _ = strconv.Atoi(m[3])
		}
		path := m[4]
		if path == "" {
			path = "/"
		}
		return timing(model.ProbeAction{HTTPGet: &model.HTTPGetAction{
			Host: m[2], Port: port, Path: path, Scheme: strings.ToUpper(m[1]),
		}})
	}
	if m := tcpHealthCheckPattern.FindStringSubmatch(shell); m != nil {
		port, _ := strconv.Atoi(m[2])
		return timing(model.ProbeAction{TCPSocket: &model.TCPSocketAction{Host: m[1], Port: port}})
	}
	return nil
}

// ACAMemoryString encodes a memory quantity in MiB as Azure Container
// Apps' "N.NNGi" resource string, trimming trailing zeroes the way
// original_source .../azure_container_apps.py's _convert_resources does.
func ACAMemoryString(memoryMiB int64) string {
	gi := float64(memoryMiB) / 1024.0
	s := strconv.FormatFloat(gi, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	return s + "Gi"
}

// ParseACAMemoryString is the reverse of ACAMemoryString, also accepting
// "Mi"/"Ti" suffixes as ACA's API permits.
func ParseACAMemoryString(s string) (int64, error) {
	switch {
	case strings.HasSuffix(s, "Mi"):
		v, err := strconv.ParseInt(strings.TrimSuffix(s, "Mi"), 10, 64)
		return v, err
	case strings.HasSuffix(s, "Gi"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "Gi"), 64)
		return int64(v * 1024), err
	case strings.HasSuffix(s, "Ti"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "Ti"), 64)
		return int64(v * 1024 * 1024), err
	default:
		return 0, fmt.Errorf("containerdeployment: unrecognized ACA memory suffix in %q", s)
	}
}

// ParseCloudRunCPU parses Cloud Run's "cpu" resource limit, which is
// either a bare core count ("1", "0.5") or a millicpu string ("500m").
// Recovered from original_source .../google_cloud_run.py's revision probe.
func ParseCloudRunCPU(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if strings.HasSuffix(s, "m") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0, fmt.Errorf("containerdeployment: parse millicpu %q: %w", raw, err)
		}
		return v / 1000.0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("containerdeployment: parse cpu %q: %w", raw, err)
	}
	return v, nil
}

// AppRunnerInstanceClass buckets requested cores/memory into one of App
// Runner's instance configuration options. Recovered verbatim from
// original_source .../aws_app_runner.py's _convert_instance_configuration.
func AppRunnerInstanceClass(cores float64, memoryMiB int64) (cpu, memory string) {
	if cores <= 0 {
		cores = 0.25
	}
	cpu = fmt.Sprintf("%s vCPU", strconv.FormatFloat(cores, 'f', -1, 64))

	memoryGB := float64(memoryMiB) / 1024.0
	if memoryMiB == 0 {
		memoryGB = 0.5
	}
	switch {
	case memoryGB <= 0.5:
		memory = "0.5 GB"
	case memoryGB <= 1:
		memory = "1 GB"
	case memoryGB <= 2:
		memory = "2 GB"
	case memoryGB <= 3:
		memory = "3 GB"
	case memoryGB <= 4:
		memory = "4 GB"
	default:
		memory = "8 GB"
	}
	return cpu, memory
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func orDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func intPtr(v int) *int { return &v }
