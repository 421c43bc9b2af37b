package leader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/aaafuria/furia-feed/internal/config"
)

func TestIdentity_FromPodName(t *testing.T) {
	t.Setenv("POD_NAME", "feedsvc-7d9f8-x2k4q")
	if got := identity(); got != "feedsvc-7d9f8-x2k4q" {
		t.Errorf("identity() = %q, want %q", got, "feedsvc-7d9f8-x2k4q")
	}
}

func TestIdentity_Hostname(t *testing.T) {
	t.Setenv("POD_NAME", "")
	host, err := os.Hostname()
	if err != nil {
		t.Skip("cannot get hostname")
	}
	if got := identity(); got != host {
		t.Errorf("identity() = %q, want %q", got, host)
	}
}

func TestRun_InvalidTimings(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) { return fake.NewSimpleClientset(), nil }
	t.Cleanup(func() { ClientFactory = orig })

	cfg := config.LeaderElectionConfig{
		LeaseName:      "feedsvc-leader",
		LeaseNamespace: "default",
		LeaseDuration:  time.Second,
		RenewDeadline:  2 * time.Second,
		RetryPeriod:    time.Second,
	}
	err := Run(context.Background(), cfg, slog.Default(), func(context.Context) {
		t.Error("leadership must not start with invalid timings")
	}, func() {})
	if err == nil {
		t.Fatal("expected error for renew deadline longer than lease duration")
	}
}

func TestRun_ClientError(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) { return nil, errors.New("no cluster") }
	t.Cleanup(func() { ClientFactory = orig })

	err := Run(context.Background(), config.LeaderElectionConfig{}, slog.Default(), func(context.Context) {}, func() {})
	if err == nil {
		t.Fatal("expected client factory error")
	}
}
