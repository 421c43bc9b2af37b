package leader_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/aaafuria/furia-feed/internal/config"
	"github.com/aaafuria/furia-feed/internal/leader"
)

func TestRun_FakeClientset(t *testing.T) {
	t.Setenv("POD_NAME", "feedsvc-0")
	clientset := fake.NewSimpleClientset()

	origFactory := leader.ClientFactory
	leader.ClientFactory = func() (kubernetes.Interface, error) { return clientset, nil }
	t.Cleanup(func() { leader.ClientFactory = origFactory })

	cfg := config.LeaderElectionConfig{
		Enabled:        true,
		LeaseName:      "feedsvc-leader",
		LeaseNamespace: "default",
		LeaseDuration:  2 * time.Second,
		RenewDeadline:  1 * time.Second,
		RetryPeriod:    100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- leader.Run(ctx, cfg, slog.Default(),
			func(ctx context.Context) {
				close(started)
				<-ctx.Done()
			},
			func() {},
		)
	}()

	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("timed out waiting for leadership")
	}

	lease, err := clientset.CoordinationV1().Leases("default").Get(ctx, "feedsvc-leader", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("getting lease: %v", err)
	}
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != "feedsvc-0" {
		t.Errorf("lease holder = %v, want feedsvc-0", lease.Spec.HolderIdentity)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}
