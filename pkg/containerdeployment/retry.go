package containerdeployment

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// RetryIAMPropagation retries fn while the error looks like an IAM
// eventual-consistency failure (an instance profile that was just created
// hasn't propagated to every AWS partition yet). Recovered from
// original_source/x8/compute/container_deployment/providers/_amazon_ecs.py's
// auto-scaling-group creation retry: 5 attempts, starting at 0.7s, backoff
// factor 1.7 plus a random jitter of up to 100ms per attempt, capped at 3s.
func RetryIAMPropagation(ctx context.Context, fn func() error) error {
	const attempts = 5
	delay := 700 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !looksLikeIAMPropagationError(err) || i == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		next := time.Duration(float64(delay)*1.7) + time.Duration(rand.Int63n(int64(i)*int64(100*time.Millisecond)))
		if next > 3*time.Second {
			next = 3 * time.Second
		}
		delay = next
	}
	return err
}

func looksLikeIAMPropagationError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "iaminstanceprofile") &&
		(strings.Contains(msg, "invalid") || strings.Contains(msg, "not found"))
}

// RetryDependencyViolation retries fn every 5s while it fails with a
// DependencyViolation (a security group still attached to a just-deleted
// ENI), bounded at timeout. Recovered from the same file's
// _wait_for_security_group_detach.
func RetryDependencyViolation(ctx context.Context, timeout time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "DependencyViolation") {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}
