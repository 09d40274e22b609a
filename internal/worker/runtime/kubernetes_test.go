package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

var stageNamespace = KubernetesConfig{
	Namespace:          "tiles",
	DefaultCPULimit:    "500m",
	DefaultMemoryLimit: "256Mi",
}

// startStage starts one stage run on a fake cluster and returns the created Job.
func startStage(t *testing.T, cfg KubernetesConfig, opts StartOptions) batchv1.Job {
	t.Helper()
	clientset := fake.NewClientset()
	rt := &KubernetesRuntime{clientset: clientset, config: cfg}

	ctx := context.Background()
	handle, err := rt.Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if handle.(*KubernetesHandle).namespace != cfg.Namespace {
		t.Errorf("handle namespace = %q, want %q", handle.(*KubernetesHandle).namespace, cfg.Namespace)
	}

	jobs, err := clientset.BatchV1().Jobs(cfg.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs.Items) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs.Items))
	}
	return jobs.Items[0]
}

func TestKubernetesRuntime_StageJob(t *testing.T) {
	job := startStage(t, stageNamespace, StartOptions{
		Name:    "PlanetoidGen.ContainerAgent_1_3_5_2",
		Image:   "registry.local/heightmap:2",
		Command: []string{"/bin/heightmap", "--tile", "3/5/2"},
		Env:     map[string]string{"PLANETOID_ID": "1", "AGENT_INDEX": "2"},
		Timeout: 90 * time.Second,
	})

	if !strings.HasPrefix(job.Name, "planetoidgen-planetoidgen-containeragent-1-3-5-2-") {
		t.Errorf("unexpected job name %q", job.Name)
	}
	if job.Labels[managedByLabel] != "planetoidgen" {
		t.Errorf("managed-by label = %q", job.Labels[managedByLabel])
	}
	if job.Spec.ActiveDeadlineSeconds == nil || *job.Spec.ActiveDeadlineSeconds != 90 {
		t.Errorf("expected 90s deadline, got %v", job.Spec.ActiveDeadlineSeconds)
	}
	if job.Spec.BackoffLimit == nil || *job.Spec.BackoffLimit != 0 {
		t.Errorf("stage retries belong to the worker, got backoff limit %v", job.Spec.BackoffLimit)
	}

	pod := job.Spec.Template
	if pod.Labels["job-name"] != job.Name {
		t.Errorf("pod job-name label = %q, want %q", pod.Labels["job-name"], job.Name)
	}
	if pod.Spec.RestartPolicy != corev1.RestartPolicyNever {
		t.Errorf("restart policy = %s", pod.Spec.RestartPolicy)
	}
	if len(pod.Spec.Containers) != 1 {
		t.Fatalf("expected 1 container, got %d", len(pod.Spec.Containers))
	}
	c := pod.Spec.Containers[0]
	if c.Name != "stage" || c.Image != "registry.local/heightmap:2" {
		t.Errorf("container = %s %s", c.Name, c.Image)
	}
	if strings.Join(c.Command, " ") != "/bin/heightmap --tile 3/5/2" {
		t.Errorf("command = %v", c.Command)
	}
	env := make(map[string]string)
	for _, e := range c.Env {
		env[e.Name] = e.Value
	}
	if env["PLANETOID_ID"] != "1" || env["AGENT_INDEX"] != "2" || len(env) != 2 {
		t.Errorf("env = %v", env)
	}
	if c.Resources.Limits.Cpu().String() != "500m" || c.Resources.Limits.Memory().String() != "256Mi" {
		t.Errorf("limits = %v", c.Resources.Limits)
	}
}

func TestKubernetesRuntime_StageDeadline(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    int64
	}{
		{"no timeout", 0, 0},
		{"sub second rounds up", 300 * time.Millisecond, 1},
		{"default container timeout", 30 * time.Minute, 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := startStage(t, stageNamespace, StartOptions{Image: "alpine", Timeout: tt.timeout})
			got := int64(0)
			if job.Spec.ActiveDeadlineSeconds != nil {
				got = *job.Spec.ActiveDeadlineSeconds
			}
			if got != tt.want {
				t.Errorf("deadline = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKubernetesRuntime_ServiceAccount(t *testing.T) {
	cfg := stageNamespace
	cfg.ServiceAccount = "tile-writer"

	job := startStage(t, cfg, StartOptions{Image: "alpine"})
	if job.Spec.Template.Spec.ServiceAccountName != "tile-writer" {
		t.Errorf("service account = %q", job.Spec.Template.Spec.ServiceAccountName)
	}
}

func TestJobNameFor(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		prefix string
	}{
		{"empty", "", "planetoidgen-"},
		{"agent title", "PlanetoidGen.Dummy_4_0_1_0", "planetoidgen-planetoidgen-dummy-4-0-1-0-"},
		{"leading symbols trimmed", "__Stage", "planetoidgen-stage-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jobNameFor(tt.in)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("jobNameFor(%q) = %q, want prefix %q", tt.in, got, tt.prefix)
			}
			if len(got) != len(tt.prefix)+8 {
				t.Errorf("jobNameFor(%q) = %q, expected an 8 char suffix", tt.in, got)
			}
		})
	}

	long := jobNameFor(strings.Repeat("Z", 200))
	if len(long) > 63 {
		t.Errorf("job name too long: %d", len(long))
	}
	if jobNameFor("stage") == jobNameFor("stage") {
		t.Error("reruns of a stage share a job name")
	}
}

func TestKubernetesHandle_StopRemovesStageJob(t *testing.T) {
	clientset := fake.NewClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "planetoidgen-stage-1234abcd", Namespace: "tiles"},
	})
	handle := &KubernetesHandle{clientset: clientset, namespace: "tiles", jobName: "planetoidgen-stage-1234abcd"}

	ctx := context.Background()
	if err := handle.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	jobs, _ := clientset.BatchV1().Jobs("tiles").List(ctx, metav1.ListOptions{})
	if len(jobs.Items) != 0 {
		t.Errorf("expected the job to be deleted, %d left", len(jobs.Items))
	}
}

func TestKubernetesHandle_WaitForPod(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "stage-pod",
			Namespace: "tiles",
			Labels:    map[string]string{"job-name": "planetoidgen-stage-1234abcd"},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}

	t.Run("found", func(t *testing.T) {
		handle := &KubernetesHandle{clientset: fake.NewClientset(pod), namespace: "tiles", jobName: "planetoidgen-stage-1234abcd"}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		name, err := handle.waitForPod(ctx)
		if err != nil {
			t.Fatalf("waitForPod failed: %v", err)
		}
		if name != "stage-pod" {
			t.Errorf("pod = %q", name)
		}
		handle.podName = name
		if err := handle.waitForContainerReady(ctx); err != nil {
			t.Errorf("waitForContainerReady failed: %v", err)
		}
	})

	t.Run("other job's pod", func(t *testing.T) {
		handle := &KubernetesHandle{clientset: fake.NewClientset(pod), namespace: "tiles", jobName: "planetoidgen-stage-ffff0000"}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if _, err := handle.waitForPod(ctx); err == nil {
			t.Error("expected timeout error, got nil")
		}
	})
}
