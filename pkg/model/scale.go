package model

// ScaleMode selects between a fixed replica count and autoscaling.
type ScaleMode string

const (
	ScaleManual ScaleMode = "manual"
	ScaleAuto   ScaleMode = "auto"
)

// ScaleRuleType names the metric source an autoscale rule reacts to.
type ScaleRuleType string

const (
	ScaleRuleHTTP   ScaleRuleType = "http"
	ScaleRuleTCP    ScaleRuleType = "tcp"
	ScaleRuleCustom ScaleRuleType = "custom"
	ScaleRuleCPU    ScaleRuleType = "cpu"
	ScaleRuleMemory ScaleRuleType = "memory"
)

// ScaleRuleAuth names a secret/credential reference an autoscale rule
// consults (e.g. a KEDA TriggerAuthentication equivalent).
type ScaleRuleAuth struct {
	Name string
	SecretRef string
}

// ScaleRule binds a metric to a desired-replica-count policy.
type ScaleRule struct {
	Type     ScaleRuleType
	Metadata map[string]string
	Auth     []ScaleRuleAuth
}

// Scale is either a fixed replica count (Mode == ScaleManual) or an
// autoscaling policy (Mode == ScaleAuto).
type Scale struct {
	Mode     ScaleMode
	Replicas int

	MinReplicas     int
	MaxReplicas     int
	CooldownPeriod  int // seconds
	PollingInterval int // seconds
	Rules           []ScaleRule
}

// EffectiveMinReplicas returns the replica floor used when a provider needs
// a single desiredCount (spec §8 scenario 6: "desiredCount = min_replicas
// or 1").
func (s *Scale) EffectiveMinReplicas() int {
	if s == nil {
		return 1
	}
	if s.Mode == ScaleManual {
		if s.Replicas > 0 {
			return s.Replicas
		}
		return 1
	}
	if s.MinReplicas > 0 {
		return s.MinReplicas
	}
	return 1
}
