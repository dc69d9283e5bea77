package easycontainers

import (
	"context"

	"github.com/acntech/easycontainers/pkg/imagebuild"
)

// Build runs an image build, using the in-cluster Kaniko
// builder when cfg.KanikoNamespace is set, falling back to the local
// Docker daemon's native build API otherwise.
func (m *Manager) Build(ctx context.Context, req imagebuild.Request) (*imagebuild.Handle, error) {
	builder, err := m.builder()
	if err != nil {
		return nil, err
	}
	return builder.Build(ctx, req)
}

func (m *Manager) builder() (imagebuild.Builder, error) {
	if m.cfg.KanikoNamespace != "" {
		eng, err := m.k8sEngine()
		if err != nil {
			return nil, err
		}
		return imagebuild.NewKanikoBuilder(eng.Clientset(), eng.RestConfig(), m.cfg.KanikoNamespace, m.cfg.KanikoPVCName), nil
	}
	return imagebuild.NewDaemonBuilder(m.docker.Client()), nil
}
