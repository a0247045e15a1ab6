package qsubmit

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the part of the Docker client the backend uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// DockerSubmitter runs each request in a new container. The jobs root is
// bind-mounted at the same path so the paths in the script stay valid.
type DockerSubmitter struct {
	client   dockerAPI
	closer   func() error
	jobsRoot string
	config   ContainerConfig
}

// NewDockerSubmitter connects to the daemon named by the DOCKER_* environment.
func NewDockerSubmitter(jobsRoot string, config ContainerConfig) (*DockerSubmitter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	s := newDockerSubmitter(cli, jobsRoot, config)
	s.closer = cli.Close
	return s, nil
}

func newDockerSubmitter(api dockerAPI, jobsRoot string, config ContainerConfig) *DockerSubmitter {
	if config.Image == "" {
		config.Image = DefaultContainerConfig().Image
	}
	return &DockerSubmitter{client: api, jobsRoot: jobsRoot, config: config}
}

func (s *DockerSubmitter) Name() string { return BackendDocker }

// Close releases the docker client.
func (s *DockerSubmitter) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *DockerSubmitter) Submit(ctx context.Context, req Request) (Submission, error) {
	config, hostConfig, err := s.buildContainerConfig(req)
	if err != nil {
		return Submission{}, err
	}
	created, err := s.client.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName(req))
	if err != nil {
		return Submission{}, submissionError(BackendDocker, req.Job, err)
	}
	if err := s.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Submission{}, submissionError(BackendDocker, req.Job, err)
	}
	return Submission{Backend: BackendDocker, SchedulerID: created.ID}, nil
}

// buildContainerConfig translates the request into Docker's create options.
func (s *DockerSubmitter) buildContainerConfig(req Request) (*container.Config, *container.HostConfig, error) {
	res, err := ResourcesFrom(req.Config)
	if err != nil {
		return nil, nil, err
	}

	mounts := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: s.jobsRoot,
		Target: s.jobsRoot,
	}}
	for _, m := range s.config.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Destination,
			ReadOnly: m.ReadOnly,
		})
	}

	hostConfig := &container.HostConfig{
		Mounts:      mounts,
		NetworkMode: container.NetworkMode(s.config.NetworkMode),
		Resources: container.Resources{
			Memory:   res.MemoryBytes,
			NanoCPUs: res.CPUs * 1e9,
		},
	}
	if res.GPUs > 0 {
		hostConfig.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        int(res.GPUs),
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	config := &container.Config{
		Image:      s.config.Image,
		Cmd:        scriptCommand(req),
		WorkingDir: req.JobDir,
		Env: []string{
			"QFOLD_JOB=" + req.Job,
			"QFOLD_STAGE=" + string(req.Stage),
		},
		Labels: map[string]string{
			LabelJob:   req.Job,
			LabelStage: string(req.Stage),
		},
	}
	return config, hostConfig, nil
}
