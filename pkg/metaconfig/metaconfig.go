// Package metaconfig loads the startup descriptor that tells the
// compositor how to launch the config process. The descriptor is
// deliberately minimal: everything behavioral lives in the config process
// itself, which talks back over the control socket.
package metaconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DescriptorName is the descriptor's well-known file name.
const DescriptorName = "metaconfig.yaml"

// Descriptor describes how to launch and talk to the config process.
type Descriptor struct {
	// Command is the argv used to spawn the config process. Environment
	// variables in each element are expanded at load time.
	Command []string `yaml:"command" validate:"required,min=1,dive,required"`

	// Dir is the working directory for the config process. Empty means
	// the directory containing the descriptor file.
	Dir string `yaml:"dir,omitempty"`

	// Envs are extra environment variables for the config process, on top
	// of the compositor's own environment. Values are expanded.
	Envs map[string]string `yaml:"envs,omitempty"`

	// SocketDir is where the control socket is created. Empty selects
	// $XDG_RUNTIME_DIR, falling back to /tmp.
	SocketDir string `yaml:"socket_dir,omitempty"`
}

var validate = validator.New()

// Load reads, expands, and validates the descriptor at path. The
// descriptor is re-read on every config reload, so edits take effect
// without restarting the compositor.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}

	d.expand()
	if d.Dir == "" {
		d.Dir = filepath.Dir(path)
	}
	if d.SocketDir == "" {
		d.SocketDir = defaultSocketDir()
	}

	if err := validate.Struct(&d); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	return &d, nil
}

// expand applies environment variable expansion to every user-supplied
// string in the descriptor.
func (d *Descriptor) expand() {
	for i, arg := range d.Command {
		d.Command[i] = os.ExpandEnv(arg)
	}
	d.Dir = os.ExpandEnv(d.Dir)
	d.SocketDir = os.ExpandEnv(d.SocketDir)
	for k, v := range d.Envs {
		d.Envs[k] = os.ExpandEnv(v)
	}
}

// Environ merges the process environment with the descriptor's extra
// variables and the control socket path, ready for exec.
func (d *Descriptor) Environ(socketPath string) []string {
	env := os.Environ()
	for k, v := range d.Envs {
		env = append(env, k+"="+v)
	}
	env = append(env, "WAYCREST_SOCKET="+socketPath)
	return env
}

func defaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return "/tmp"
}
