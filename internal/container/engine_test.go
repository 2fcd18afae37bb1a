// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"testing"
)

func TestImageTag_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag     ImageTag
		wantErr bool
	}{
		{"web:abc123def456", false},
		{"registry.example.com/web:1.0", false},
		{"", true},
		{"web: tag", true},
		{"web\ttag", true},
	}

	for _, tt := range tests {
		err := tt.tag.Validate()
		if tt.wantErr && !errors.Is(err, ErrInvalidImageTag) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidImageTag", tt.tag, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("Validate(%q) = %v, want nil", tt.tag, err)
		}
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine("lxc"); err == nil {
		t.Error("expected error for unknown engine type")
	}
}

func TestDockerEngine_ImageExists(t *testing.T) {
	recorder := NewMockCommandRecorder()
	e := &DockerEngine{BaseCLIEngine: NewBaseCLIEngine("/usr/bin/docker",
		WithName("docker"),
		WithExecCommand(recorder.CommandFunc(t)))}

	exists, err := e.ImageExists(context.Background(), "web:abc123")
	if err != nil {
		t.Fatalf("ImageExists returned error: %v", err)
	}
	if !exists {
		t.Error("expected image to exist on zero exit")
	}
	recorder.AssertArgsContain(t, "image inspect web:abc123")
}

func TestPodmanEngine_ImageExists(t *testing.T) {
	recorder := NewMockCommandRecorder()
	recorder.ExitCode = 1
	e := &PodmanEngine{BaseCLIEngine: NewBaseCLIEngine("/usr/bin/podman",
		WithName("podman"),
		WithExecCommand(recorder.CommandFunc(t)))}

	exists, err := e.ImageExists(context.Background(), "web:abc123")
	if err != nil {
		t.Fatalf("ImageExists returned error: %v", err)
	}
	if exists {
		t.Error("expected image to be absent on non-zero exit")
	}
	recorder.AssertArgsContain(t, "image exists web:abc123")
}

func TestImageExists_EngineUnreachable(t *testing.T) {
	// A binary that cannot be launched is not a cache miss.
	docker := &DockerEngine{BaseCLIEngine: NewBaseCLIEngine("/nonexistent/docker",
		WithName("docker"))}
	if _, err := docker.ImageExists(context.Background(), "web:abc123"); err == nil {
		t.Error("docker: expected error when the engine cannot be launched")
	}

	podman := &PodmanEngine{BaseCLIEngine: NewBaseCLIEngine("/nonexistent/podman",
		WithName("podman"))}
	if _, err := podman.ImageExists(context.Background(), "web:abc123"); err == nil {
		t.Error("podman: expected error when the engine cannot be launched")
	}
}

func TestEngineVersion(t *testing.T) {
	recorder := NewMockCommandRecorder()
	recorder.Stdout = "27.3.1\n"
	e := &DockerEngine{BaseCLIEngine: NewBaseCLIEngine("/usr/bin/docker",
		WithName("docker"),
		WithExecCommand(recorder.CommandFunc(t)))}

	version, err := e.Version(context.Background())
	if err != nil {
		t.Fatalf("Version returned error: %v", err)
	}
	if version != "27.3.1" {
		t.Errorf("Version = %q", version)
	}
}
