package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// expireTimeout stops containers left running by a panicking test.
const expireTimeout = 10 * time.Minute

type containerSpec struct {
	image string
	env   []string
	port  nat.Port
}

// runContainer starts the container described by cfg and returns the host address of its port.
// The container is stopped when the test finishes.
func runContainer(t testing.TB, cfg containerSpec) string {
	t.Helper()
	ctx := context.Background()

	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		dockerClient.Close()
	})

	allImages, err := dockerClient.ImageList(ctx, image.ListOptions{
		All: true,
	})
	require.NoError(t, err)

	found := false

AllImages:
	for _, img := range allImages {
		for _, tag := range img.RepoTags {
			if strings.Contains(tag, cfg.image) {
				found = true
				break AllImages
			}
		}
	}

	if !found {
		t.Logf("Pulling image %s", cfg.image)
		reader, err := dockerClient.ImagePull(ctx, cfg.image, image.PullOptions{})
		require.NoError(t, err)

		_, err = io.Copy(io.Discard, reader) // consume the image pull output to make sure it's done
		require.NoError(t, err)
	}

	containerCfg := container.Config{
		Env: cfg.env,
		ExposedPorts: nat.PortSet{
			cfg.port: {},
		},
		Image: cfg.image,
	}

	hostCfg := container.HostConfig{
		AutoRemove:      true,
		PublishAllPorts: true,
	}

	name := strings.ReplaceAll(strings.Split(cfg.image, ":")[0], "/", "-") + "-" + ulid.Make().String()

	cont, err := dockerClient.ContainerCreate(ctx, &containerCfg, &hostCfg, nil, nil, name)
	require.NoError(t, err, "failed to create docker container")

	stop := func(timeoutSec int) {
		err := dockerClient.ContainerStop(context.Background(), cont.ID, container.StopOptions{Timeout: &timeoutSec})
		if err != nil && !errdefs.IsNotFound(err) {
			t.Logf("failed to stop container %s: %v", name, err)
		}
	}

	t.Cleanup(func() {
		t.Logf("stopping container %s", name)
		stop(5)
		t.Logf("stopped container %s", name)
	})

	err = dockerClient.ContainerStart(ctx, cont.ID, container.StartOptions{})
	require.NoError(t, err, "failed to start container")

	// spin up a goroutine to survive any test panics to expire/stop the running container
	go func() {
		time.Sleep(expireTimeout)
		stop(0)
	}()

	containerJSON, err := dockerClient.ContainerInspect(ctx, cont.ID)
	require.NoError(t, err)

	m, ok := containerJSON.NetworkSettings.Ports[cfg.port]
	if !ok || len(m) == 0 {
		require.Fail(t, "failed to get host port mapping from container")
	}

	return "localhost:" + m[0].HostPort
}
