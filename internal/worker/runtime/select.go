package runtime

import (
	"fmt"
	"log/slog"
)

// Runtime kinds accepted by New.
const (
	KindExec       = "exec"
	KindDocker     = "docker"
	KindKubernetes = "kubernetes"
)

// Options configures New. WorkDir applies to exec, Kubernetes to kubernetes.
type Options struct {
	WorkDir    string
	Kubernetes KubernetesConfig
}

// New builds the runtime of the given kind.
func New(kind string, opts Options, logger *slog.Logger) (Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch kind {
	case KindExec, "":
		logger.Info("using exec runtime", "workdir", opts.WorkDir)
		return NewExecRuntime(opts.WorkDir), nil
	case KindDocker:
		rt, err := NewDockerRuntime(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker runtime: %w", err)
		}
		logger.Info("using docker runtime")
		return rt, nil
	case KindKubernetes:
		rt, err := NewKubernetesRuntime(opts.Kubernetes, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes runtime: %w", err)
		}
		logger.Info("using kubernetes runtime", "namespace", opts.Kubernetes.Namespace)
		return rt, nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", kind)
	}
}
